package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ardelia/frontdesk/pkg/call"
	"github.com/ardelia/frontdesk/pkg/errorsx"
	"github.com/ardelia/frontdesk/pkg/realtime"
	"github.com/ardelia/frontdesk/pkg/telephony"
	"github.com/ardelia/frontdesk/pkg/verify"
)

// TelephonyConn is the outbound half of the telephony stream.
type TelephonyConn interface {
	SendMedia(streamSID, payload string) error
	Clear(streamSID string) error
	Close() error
}

// AISession is one open realtime connection.
type AISession interface {
	Send(ev realtime.ClientEvent) error
	Events() <-chan realtime.ServerEvent
	Close() error
}

// AIDialer opens a realtime connection for a call.
type AIDialer interface {
	Dial(ctx context.Context) (AISession, error)
}

// Stats receives best-effort call telemetry.
type Stats interface {
	CallStatus(callSID, traceID, status string)
	Transcript(callSID, traceID, role, text string)
}

type Deps struct {
	Dialer             AIDialer
	SMS                verify.SMSSender
	Booker             verify.Booker
	Stats              Stats
	Defaults           call.Defaults
	SMSLimit           int
	TranscriptionModel string
	DialTimeout        time.Duration
	Logger             *slog.Logger
}

// Controller drives one call end to end: it resolves the call config from
// the start event, opens the realtime connection, relays audio both ways,
// handles barge-in, and routes tool calls through the verification machine.
// It is the sole writer of the call's mutable state.
type Controller struct {
	deps   Deps
	tel    TelephonyConn
	logger *slog.Logger

	mu          sync.Mutex
	cfg         call.Config
	cfgKnown    bool
	dialStarted bool
	streamSID   string
	callSID     string
	traceID     string
	ai          AISession
	aiOpen      bool
	configured  bool
	closed      bool
	machine     *verify.Machine

	closeOnce sync.Once
}

var _ telephony.CallHandler = (*Controller)(nil)

func New(deps Deps, tel TelephonyConn) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DialTimeout <= 0 {
		deps.DialTimeout = 10 * time.Second
	}
	return &Controller{
		deps:   deps,
		tel:    tel,
		logger: deps.Logger,
	}
}

// OnStart resolves the immutable call config, reports the call, and kicks
// off the realtime connection. Configuration of the AI session waits until
// both this and the connection being open have happened, in either order.
func (c *Controller) OnStart(ev telephony.StartEvent) {
	cfg := call.Resolve(ev.Params, c.deps.Defaults)

	c.mu.Lock()
	if c.dialStarted {
		// A duplicate start event must not dial a second AI connection.
		c.mu.Unlock()
		return
	}
	c.dialStarted = true
	c.streamSID = ev.StreamSID
	c.callSID = ev.CallSID
	c.traceID = ev.TraceID
	c.cfg = cfg
	c.cfgKnown = true
	c.machine = verify.New(verify.Options{
		SMS:             c.deps.SMS,
		Booker:          c.deps.Booker,
		CallerNumber:    cfg.CallerNumber,
		AssistantNumber: cfg.AssistantNumber,
		SMSLimit:        c.deps.SMSLimit,
		Logger:          c.logger,
	})
	c.mu.Unlock()

	c.logger.Info("call_started",
		"call_sid", ev.CallSID,
		"trace_id", ev.TraceID,
		"stream_sid", ev.StreamSID,
		"booking_enabled", cfg.BookingEnabled)
	c.deps.Stats.CallStatus(ev.CallSID, ev.TraceID, "started")

	go c.runAI()
	c.tryConfigure()
}

// OnMedia forwards one opaque audio payload to the realtime side. Frames
// arriving before the connection is open are dropped; there is deliberately
// no buffering here.
func (c *Controller) OnMedia(payload string) {
	c.mu.Lock()
	ai := c.ai
	open := c.aiOpen
	c.mu.Unlock()
	if !open || ai == nil {
		return
	}
	if err := ai.Send(realtime.AppendAudio(payload)); err != nil {
		c.logger.Warn("audio_forward_failed", "error", err.Error())
	}
}

// OnStop records completion and closes the realtime side.
func (c *Controller) OnStop() {
	c.mu.Lock()
	callSID, traceID := c.callSID, c.traceID
	ai := c.ai
	c.mu.Unlock()

	c.deps.Stats.CallStatus(callSID, traceID, "completed")
	c.logger.Info("call_completed", "call_sid", callSID, "trace_id", traceID)
	if ai != nil {
		_ = ai.Close()
	}
}

// OnClosed tears down whatever is still open. Safe to call multiple times.
func (c *Controller) OnClosed() {
	c.shutdown()
}

func (c *Controller) runAI() {
	ctx, cancel := context.WithTimeout(context.Background(), c.deps.DialTimeout)
	sess, err := c.deps.Dialer.Dial(ctx)
	cancel()
	if err != nil {
		c.logger.Error("realtime_connect_failed",
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error())
		c.shutdown()
		return
	}
	c.onAIOpen(sess)
	for ev := range sess.Events() {
		c.onAIEvent(ev)
	}
	c.shutdown()
}

func (c *Controller) onAIOpen(sess AISession) {
	c.mu.Lock()
	if c.closed {
		// The call ended while the dial was in flight; don't adopt the
		// session, close it so it isn't left dangling.
		c.mu.Unlock()
		_ = sess.Close()
		return
	}
	c.ai = sess
	c.aiOpen = true
	c.mu.Unlock()
	c.tryConfigure()
}

// tryConfigure is the idempotent latch: it runs the configure-and-greet
// sequence exactly once, no matter how often or in which order its two
// preconditions are signalled.
func (c *Controller) tryConfigure() {
	c.mu.Lock()
	if c.configured || c.closed || !c.aiOpen || !c.cfgKnown {
		c.mu.Unlock()
		return
	}
	c.configured = true
	ai := c.ai
	cfg := c.cfg
	c.mu.Unlock()

	sessCfg := &realtime.SessionConfig{
		Modalities:        []string{"audio", "text"},
		Instructions:      cfg.Prompt,
		Voice:             cfg.Voice,
		InputAudioFormat:  "g711_ulaw",
		OutputAudioFormat: "g711_ulaw",
		TurnDetection: &realtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMS:   300,
			SilenceDurationMS: 500,
		},
		InputAudioTranscription: &realtime.Transcription{Model: c.deps.TranscriptionModel},
	}
	if cfg.BookingEnabled {
		sessCfg.Tools = toolCatalog()
		sessCfg.ToolChoice = "auto"
	}
	if err := ai.Send(realtime.ClientEvent{Type: realtime.TypeSessionUpdate, Session: sessCfg}); err != nil {
		c.logger.Error("session_configure_failed", "error", err.Error())
		return
	}
	if cfg.Greeting != "" {
		// The greeting is forced verbatim so the opening line is
		// deterministic regardless of the model.
		greet := `Greet the caller by saying exactly: "` + cfg.Greeting + `". Say nothing else.`
		if err := ai.Send(realtime.ClientEvent{
			Type:     realtime.TypeResponseCreate,
			Response: &realtime.ResponseParams{Instructions: greet},
		}); err != nil {
			c.logger.Error("greeting_failed", "error", err.Error())
		}
	}
	c.logger.Info("session_configured", "call_sid", c.CallSID(), "voice", cfg.Voice)
}

func (c *Controller) onAIEvent(ev realtime.ServerEvent) {
	switch ev.Type {
	case realtime.TypeAudioDelta:
		c.mu.Lock()
		streamSID := c.streamSID
		c.mu.Unlock()
		if streamSID == "" {
			// Audio before start would be a protocol violation upstream;
			// drop it rather than guess a stream id.
			return
		}
		if err := c.tel.SendMedia(streamSID, ev.Delta); err != nil {
			c.logger.Warn("media_relay_failed", "error", err.Error())
		}
	case realtime.TypeSpeechStarted:
		c.onBargeIn()
	case realtime.TypeFunctionArgumentsDone:
		c.dispatchTool(ev.Name, ev.Arguments, ev.CallID)
	case realtime.TypeInputTranscriptionDone:
		c.recordTranscript("caller", ev.Transcript)
	case realtime.TypeOutputTranscriptionDone:
		c.recordTranscript("assistant", ev.Transcript)
	case realtime.TypeError:
		msg := ""
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		c.logger.Error("realtime_error_event", "message", msg)
	}
}

// onBargeIn flushes buffered outbound audio on the telephony side, then
// cancels the in-flight response. The clear must go out first so stale audio
// of the interrupted turn is gone before anything else happens.
func (c *Controller) onBargeIn() {
	c.mu.Lock()
	streamSID := c.streamSID
	ai := c.ai
	c.mu.Unlock()

	if err := c.tel.Clear(streamSID); err != nil {
		c.logger.Warn("barge_in_clear_failed", "error", err.Error())
	}
	if ai != nil {
		if err := ai.Send(realtime.ClientEvent{Type: realtime.TypeResponseCancel}); err != nil {
			c.logger.Warn("barge_in_cancel_failed", "error", err.Error())
		}
	}
}

// dispatchTool routes one tool call through the verification machine and
// answers with exactly two events: the function result, then the request to
// continue the response.
func (c *Controller) dispatchTool(name, argumentsJSON, toolCallID string) {
	c.mu.Lock()
	ai := c.ai
	machine := c.machine
	c.mu.Unlock()
	if ai == nil {
		return
	}

	var res verify.Result
	if machine == nil {
		res = verify.Result{Status: "error", Message: "call not started"}
	} else {
		switch toolKindFromName(name) {
		case toolSendCode:
			res = machine.SendCode(context.Background())
		case toolCheckCode:
			var args struct {
				Code string `json:"code"`
			}
			if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
				res = verify.Result{Status: "invalid_arguments", Message: err.Error()}
			} else {
				res = machine.CheckCode(args.Code)
			}
		case toolBook:
			var appt verify.Appointment
			if err := json.Unmarshal([]byte(argumentsJSON), &appt); err != nil {
				res = verify.Result{Status: "invalid_arguments", Message: err.Error()}
			} else {
				res = machine.Book(context.Background(), appt)
			}
		case toolUnknown:
			res = verify.Result{Status: "unknown_tool", Message: "no such tool: " + name}
		}
	}

	c.logger.Info("tool_call",
		"call_sid", c.CallSID(),
		"tool", name,
		"status", res.Status,
		"success", res.Success)

	out, err := json.Marshal(res)
	if err != nil {
		out = []byte(`{"success":false,"status":"error"}`)
	}
	if err := ai.Send(realtime.FunctionOutput(toolCallID, string(out))); err != nil {
		c.logger.Warn("tool_result_send_failed", "error", err.Error())
	}
	if err := ai.Send(realtime.ClientEvent{Type: realtime.TypeResponseCreate}); err != nil {
		c.logger.Warn("tool_continue_send_failed", "error", err.Error())
	}
}

func (c *Controller) recordTranscript(role, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	callSID, traceID := c.callSID, c.traceID
	c.mu.Unlock()
	c.deps.Stats.Transcript(callSID, traceID, role, text)
}

func (c *Controller) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		ai := c.ai
		c.aiOpen = false
		callSID, traceID := c.callSID, c.traceID
		c.mu.Unlock()

		if ai != nil {
			_ = ai.Close()
		}
		_ = c.tel.Close()
		c.logger.Info("call_closed", "call_sid", callSID, "trace_id", traceID)
	})
}

// CallSID returns the telephony call identifier, empty before start.
func (c *Controller) CallSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callSID
}

// Machine exposes the verification state machine, nil before start.
func (c *Controller) Machine() *verify.Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine
}
