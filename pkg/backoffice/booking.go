package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ardelia/frontdesk/pkg/errorsx"
	"github.com/ardelia/frontdesk/pkg/resilience"
	"github.com/ardelia/frontdesk/pkg/verify"
)

type BookingConfig struct {
	URL              string `mapstructure:"url"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
	BreakerThreshold int    `mapstructure:"breaker_threshold"`
	BreakerCooldownS int    `mapstructure:"breaker_cooldown_s"`
}

func (c BookingConfig) withDefaults() BookingConfig {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 8000
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerCooldownS <= 0 {
		c.BreakerCooldownS = 30
	}
	return c
}

var errBackendUnavailable = errors.New("scheduling backend unavailable")

// BookingClient talks to the scheduling backend. Book is the one awaited
// external call in the system: its result travels back to the caller as the
// tool output.
type BookingClient struct {
	cfg     BookingConfig
	client  *http.Client
	breaker *resilience.Breaker
	logger  *slog.Logger
}

func NewBookingClient(cfg BookingConfig, logger *slog.Logger) *BookingClient {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		breaker: resilience.NewBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownS)*time.Second),
		logger:  logger,
	}
}

func (c *BookingClient) Book(ctx context.Context, req verify.BookingRequest) (verify.BookingOutcome, error) {
	if !c.breaker.Allow() {
		return verify.BookingOutcome{}, errorsx.Wrap(errBackendUnavailable, errorsx.ReasonBookingUpstream)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return verify.BookingOutcome{}, errorsx.Wrap(err, errorsx.ReasonBookingDecode)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return verify.BookingOutcome{}, errorsx.Wrap(err, errorsx.ReasonBookingUpstream)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.breaker.OnFailure()
		return verify.BookingOutcome{}, errorsx.Wrap(err, errorsx.ReasonBookingUpstream)
	}
	defer resp.Body.Close()

	// A 4xx is the backend answering, only server errors trip the breaker.
	if resp.StatusCode >= 500 {
		c.breaker.OnFailure()
	} else {
		c.breaker.OnSuccess()
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return verify.BookingOutcome{}, errorsx.Wrap(err, errorsx.ReasonBookingUpstream)
	}
	if !json.Valid(payload) {
		payload, _ = json.Marshal(map[string]string{"message": string(payload)})
	}
	return verify.BookingOutcome{
		OK:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		Payload: payload,
	}, nil
}
