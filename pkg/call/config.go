package call

import (
	"strings"
)

// Param names carried on the stream start event. The voice webhook embeds
// these as TwiML <Parameter> elements, so they round-trip through the
// telephony side as plain strings.
const (
	ParamPrompt          = "prompt"
	ParamVoice           = "voice"
	ParamGreeting        = "greeting"
	ParamCallSID         = "call_sid"
	ParamFrom            = "from"
	ParamTo              = "to"
	ParamBookingEnabled  = "booking_enabled"
	ParamAssistantNumber = "assistant_number"
)

// Config holds the immutable per-call parameters resolved from the start
// event. It is created once per call and never mutated afterwards.
type Config struct {
	Prompt          string
	Voice           string
	Greeting        string
	CallSID         string
	CallerNumber    string
	CalledNumber    string
	AssistantNumber string
	BookingEnabled  bool
}

// Defaults supplies agent-level fallbacks for params the webhook did not set.
type Defaults struct {
	Prompt   string
	Voice    string
	Greeting string
}

// Resolve builds a Config from the start event's custom parameters, filling
// gaps from agent defaults. The assistant number falls back to the called
// number when no override is present.
func Resolve(params map[string]string, def Defaults) Config {
	cfg := Config{
		Prompt:          pick(params[ParamPrompt], def.Prompt),
		Voice:           pick(params[ParamVoice], def.Voice),
		Greeting:        pick(params[ParamGreeting], def.Greeting),
		CallSID:         strings.TrimSpace(params[ParamCallSID]),
		CallerNumber:    strings.TrimSpace(params[ParamFrom]),
		CalledNumber:    strings.TrimSpace(params[ParamTo]),
		BookingEnabled:  parseBool(params[ParamBookingEnabled]),
		AssistantNumber: strings.TrimSpace(params[ParamAssistantNumber]),
	}
	if cfg.AssistantNumber == "" {
		cfg.AssistantNumber = cfg.CalledNumber
	}
	return cfg
}

func pick(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
