package telephony

// Wire shapes for the inbound media stream protocol.

type startPayload struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type streamEvent struct {
	Event string        `json:"event"`
	Start *startPayload `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`
}

// StartEvent is handed to the call handler when the stream opens.
type StartEvent struct {
	StreamSID string
	CallSID   string
	TraceID   string
	Params    map[string]string
}

// CallHandler receives one call's inbound events in arrival order. OnClosed
// always fires last, whether the stream ended with a stop event or the
// connection simply went away.
type CallHandler interface {
	OnStart(ev StartEvent)
	OnMedia(payload string)
	OnStop()
	OnClosed()
}

// HandlerFactory builds the handler for a freshly accepted stream.
type HandlerFactory func(conn *Conn) CallHandler
