package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	twilioclient "github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"github.com/ardelia/frontdesk/pkg/call"
	"github.com/ardelia/frontdesk/pkg/errorsx"
)

type Config struct {
	ServerAddr string `mapstructure:"server_addr"`
	PublicURL  string `mapstructure:"public_url"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	VoicePath  string `mapstructure:"voice_path"`
	StreamPath string `mapstructure:"stream_path"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.StreamPath == "" {
		c.StreamPath = "/calls"
	}
	return c
}

// AgentParams are the per-deployment defaults embedded into each call's
// stream parameters by the voice webhook.
type AgentParams struct {
	Prompt          string
	Voice           string
	Greeting        string
	BookingEnabled  bool
	AssistantNumber string
}

// Transport owns the telephony-facing HTTP surface: the voice webhook that
// answers with stream TwiML and the websocket endpoint the media stream
// connects to. Each accepted stream gets its own handler from the factory.
type Transport struct {
	cfg      Config
	agent    AgentParams
	factory  HandlerFactory
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}

	draining atomic.Bool
}

func New(cfg Config, agent AgentParams, factory HandlerFactory, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		cfg:     cfg.withDefaults(),
		agent:   agent,
		factory: factory,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.VoicePath, t.handleVoice)
	mux.Handle(t.cfg.StreamPath, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("telephony_server_error", "error", err.Error())
		}
	}()
	t.logger.Info("telephony_listening",
		"webhook_url", t.voiceWebhookURL(),
		"stream_url", t.streamURL(nil))
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for c := range t.conns {
		_ = c.Close()
	}
	t.conns = make(map[*Conn]struct{})
	t.mu.Unlock()
	return nil
}

// Drain lets the transport participate in process shutdown.
func (t *Transport) Drain() error { return t.Stop() }

// handleVoice answers the inbound call webhook with TwiML that connects the
// call's audio to the stream endpoint, carrying the call parameters the
// session needs.
func (t *Transport) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		t.logger.Warn("telephony_invalid_signature",
			"reason_code", string(errorsx.ReasonTransportInvalidSignature),
			"path", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	params := map[string]string{
		call.ParamCallSID: r.FormValue("CallSid"),
		call.ParamFrom:    r.FormValue("From"),
		call.ParamTo:      r.FormValue("To"),
		call.ParamPrompt:  t.agent.Prompt,
		call.ParamVoice:   t.agent.Voice,
	}
	if t.agent.Greeting != "" {
		params[call.ParamGreeting] = t.agent.Greeting
	}
	if t.agent.BookingEnabled {
		params[call.ParamBookingEnabled] = "true"
	}
	if t.agent.AssistantNumber != "" {
		params[call.ParamAssistantNumber] = t.agent.AssistantNumber
	}

	elements := make([]twiml.Element, 0, len(params))
	for name, value := range params {
		if value == "" {
			continue
		}
		elements = append(elements, twiml.VoiceParameter{Name: name, Value: value})
	}
	stream := twiml.VoiceStream{
		Url:           t.streamURL(r),
		InnerElements: elements,
	}
	connect := twiml.VoiceConnect{
		InnerElements: []twiml.Element{stream},
	}
	body, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		t.logger.Error("telephony_twiml_failed", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(body))
}

// ServeHTTP accepts one media stream connection and pumps its events into a
// fresh call handler. Malformed messages are dropped, never fatal.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := newConn(ws)
	handler := t.factory(conn)
	t.track(conn)

	defer func() {
		t.untrack(conn)
		_ = conn.Close()
		handler.OnClosed()
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var evt streamEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "start":
			if evt.Start == nil {
				continue
			}
			handler.OnStart(StartEvent{
				StreamSID: evt.Start.StreamSID,
				CallSID:   evt.Start.CallSID,
				TraceID:   uuid.NewString(),
				Params:    evt.Start.CustomParameters,
			})
		case "media":
			if evt.Media == nil {
				continue
			}
			handler.OnMedia(evt.Media.Payload)
		case "stop":
			handler.OnStop()
			return
		}
	}
}

func (t *Transport) track(c *Conn) {
	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()
}

func (t *Transport) untrack(c *Conn) {
	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()
}

func (t *Transport) streamURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return "wss://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.StreamPath
	}
	host := ""
	if r != nil {
		host = r.Host
	}
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return "wss://" + host + t.cfg.StreamPath
}

func (t *Transport) voiceWebhookURL() string {
	return webhookURL(t.cfg)
}

func webhookURL(cfg Config) string {
	if cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(cfg.PublicURL) + cfg.VoicePath
	}
	addr := cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + cfg.VoicePath
}

func (t *Transport) validateTwilioRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || t.cfg.AuthToken == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.ValidateBody(t.requestURL(r), body, signature)
}

func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		base := strings.TrimRight(t.cfg.PublicURL, "/")
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func normalizePublicURL(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}

// Conn is the outbound half of one media stream. Sends after close are
// silently dropped so races between teardown and in-flight relays stay
// harmless.
type Conn struct {
	ws     *websocket.Conn
	sendCh chan []byte
	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:     ws,
		sendCh: make(chan []byte, 256),
	}
	go c.loop()
	return c
}

// SendMedia relays one opaque audio payload tagged with the stream id.
func (c *Conn) SendMedia(streamSID, payload string) error {
	return c.enqueue(map[string]any{
		"event":     "media",
		"streamSid": streamSID,
		"media": map[string]any{
			"payload": payload,
		},
	})
}

// Clear tells the telephony side to discard any buffered outbound audio.
func (c *Conn) Clear(streamSID string) error {
	return c.enqueue(map[string]any{
		"event":     "clear",
		"streamSid": streamSID,
	})
}

func (c *Conn) enqueue(msg map[string]any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	select {
	case c.sendCh <- b:
	default:
	}
	return nil
}

func (c *Conn) loop() {
	for msg := range c.sendCh {
		_ = c.ws.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
	c.mu.Unlock()
	return c.ws.Close()
}
