package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardelia/frontdesk/pkg/errorsx"
	"github.com/ardelia/frontdesk/pkg/redact"
	"github.com/ardelia/frontdesk/pkg/resilience"
)

type StatsConfig struct {
	URL       string `mapstructure:"url"`
	Buffer    int    `mapstructure:"buffer"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// StatsEvent is one telemetry record: a call status change or a transcript
// line.
type StatsEvent struct {
	CallSID   string    `json:"call_sid"`
	TraceID   string    `json:"trace_id,omitempty"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status,omitempty"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsSink posts call telemetry best-effort: recording never blocks, events
// are dropped when the buffer is full, and failures are only logged.
type StatsSink struct {
	cfg     StatsConfig
	ch      chan StatsEvent
	done    chan struct{}
	dropped int64
	mu      sync.Mutex
	closed  bool
	once    sync.Once
	client  *http.Client
	retry   resilience.RetryPolicy
	logger  *slog.Logger
}

func NewStatsSink(cfg StatsConfig, logger *slog.Logger) *StatsSink {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = 3000
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &StatsSink{
		cfg:    cfg,
		ch:     make(chan StatsEvent, cfg.Buffer),
		done:   make(chan struct{}),
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		retry:  resilience.NewRetryPolicy(1, 200*time.Millisecond),
		logger: logger,
	}
	go s.loop()
	return s
}

func (s *StatsSink) CallStatus(callSID, traceID, status string) {
	s.record(StatsEvent{CallSID: callSID, TraceID: traceID, Kind: "status", Status: status, Timestamp: time.Now().UTC()})
}

func (s *StatsSink) Transcript(callSID, traceID, role, text string) {
	s.record(StatsEvent{CallSID: callSID, TraceID: traceID, Kind: "transcript", Role: role, Text: redact.Text(text), Timestamp: time.Now().UTC()})
}

func (s *StatsSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (s *StatsSink) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Drain flushes buffered events and stops the sink.
func (s *StatsSink) Drain() error {
	s.Close()
	<-s.done
	return nil
}

// record holds the mutex across the send so Close cannot close the channel
// between the closed check and the enqueue.
func (s *StatsSink) record(ev StatsEvent) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

func (s *StatsSink) loop() {
	defer close(s.done)
	for ev := range s.ch {
		if s.cfg.URL == "" {
			continue
		}
		s.post(ev)
	}
}

func (s *StatsSink) post(ev StatsEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	err = s.retry.Do(context.Background(), func() error {
		resp, err := s.client.Post(s.cfg.URL, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("stats_post_failed",
			"reason_code", string(errorsx.ReasonStatsDispatch),
			"error", err.Error())
	}
}
