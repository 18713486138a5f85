package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/ardelia/frontdesk/pkg/errorsx"
)

type Config struct {
	APIKey             string `mapstructure:"api_key"`
	Model              string `mapstructure:"model"`
	BaseURL            string `mapstructure:"base_url"`
	TranscriptionModel string `mapstructure:"transcription_model"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-realtime-preview"
	}
	if c.BaseURL == "" {
		c.BaseURL = "wss://api.openai.com/v1/realtime"
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = "whisper-1"
	}
	return c
}

// Dialer opens realtime connections, one per call.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg.withDefaults(), logger: logger}
}

// TranscriptionModel exposes the configured transcription model for session
// configuration.
func (d *Dialer) TranscriptionModel() string {
	return d.cfg.TranscriptionModel
}

// Dial connects to the realtime endpoint and starts the read loop. The
// returned Conn is open until either side closes it.
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	url := d.cfg.BaseURL
	if !strings.Contains(url, "model=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "model=" + d.cfg.Model
	}
	header := http.Header{}
	if d.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
	}
	c := &Conn{
		ws:     ws,
		events: make(chan ServerEvent, 64),
		logger: d.logger,
	}
	c.open.Store(true)
	go c.readLoop()
	return c, nil
}

// Conn is one duplex realtime connection. Sends are silently dropped once
// the connection is no longer open.
type Conn struct {
	ws      *websocket.Conn
	events  chan ServerEvent
	writeMu sync.Mutex
	open    atomic.Bool
	once    sync.Once
	logger  *slog.Logger
}

// Events yields inbound events in strict arrival order. The channel is
// closed when the connection goes away.
func (c *Conn) Events() <-chan ServerEvent { return c.events }

func (c *Conn) IsOpen() bool { return c.open.Load() }

func (c *Conn) Send(ev ClientEvent) error {
	if !c.open.Load() {
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRealtimeSend)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.open.Load() {
		return nil
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRealtimeSend)
	}
	return nil
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.open.Store(false)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer func() {
		c.open.Store(false)
		close(c.events)
	}()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		ev, err := ParseServerEvent(raw)
		if err != nil {
			c.logger.Warn("realtime_decode_failed",
				"reason_code", string(errorsx.ReasonRealtimeDecode),
				"error", err.Error())
			continue
		}
		c.events <- ev
	}
}
