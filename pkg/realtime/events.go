package realtime

import "encoding/json"

// Client event types sent to the realtime endpoint.
const (
	TypeSessionUpdate    = "session.update"
	TypeResponseCreate   = "response.create"
	TypeResponseCancel   = "response.cancel"
	TypeConversationItem = "conversation.item.create"
	TypeInputAudioAppend = "input_audio_buffer.append"
)

// Server event types consumed from the realtime endpoint.
const (
	TypeSessionUpdated          = "session.updated"
	TypeAudioDelta              = "response.audio.delta"
	TypeSpeechStarted           = "input_audio_buffer.speech_started"
	TypeFunctionArgumentsDone   = "response.function_call_arguments.done"
	TypeInputTranscriptionDone  = "conversation.item.input_audio_transcription.completed"
	TypeOutputTranscriptionDone = "response.audio_transcript.done"
	TypeError                   = "error"
)

// ClientEvent is an outbound message. Only the fields relevant to its Type
// are populated; the rest marshal away.
type ClientEvent struct {
	Type     string          `json:"type"`
	Session  *SessionConfig  `json:"session,omitempty"`
	Audio    string          `json:"audio,omitempty"`
	Item     *Item           `json:"item,omitempty"`
	Response *ResponseParams `json:"response,omitempty"`
}

// SessionConfig carries the session.update payload.
type SessionConfig struct {
	Modalities              []string       `json:"modalities,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string         `json:"output_audio_format,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	Tools                   []Tool         `json:"tools,omitempty"`
	ToolChoice              string         `json:"tool_choice,omitempty"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

type Transcription struct {
	Model string `json:"model"`
}

// Tool describes one callable function in the session tool catalog.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Item is a conversation item; only function_call_output items are created
// by this bridge.
type Item struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

// ResponseParams optionally scopes a response.create, e.g. for the forced
// greeting.
type ResponseParams struct {
	Instructions string `json:"instructions,omitempty"`
}

// ServerEvent is one inbound message, decoded just enough for dispatch.
type ServerEvent struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Name       string       `json:"name,omitempty"`
	Arguments  string       `json:"arguments,omitempty"`
	CallID     string       `json:"call_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// AppendAudio builds an input_audio_buffer.append event around an opaque
// base64 payload.
func AppendAudio(payload string) ClientEvent {
	return ClientEvent{Type: TypeInputAudioAppend, Audio: payload}
}

// FunctionOutput builds the conversation item carrying a tool result.
func FunctionOutput(callID, output string) ClientEvent {
	return ClientEvent{
		Type: TypeConversationItem,
		Item: &Item{Type: "function_call_output", CallID: callID, Output: output},
	}
}

// ParseServerEvent decodes a raw inbound frame.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ServerEvent{}, err
	}
	return ev, nil
}
