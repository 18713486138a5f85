package session

import (
	"github.com/ardelia/frontdesk/pkg/realtime"
)

// The three tools the assistant may call. Dispatch goes through toolKind so
// adding a tool forces the switch in dispatchTool to be revisited.
const (
	toolNameSendCode  = "send_verification_sms"
	toolNameCheckCode = "check_verification_code"
	toolNameBook      = "book_appointment"
)

type toolKind int

const (
	toolUnknown toolKind = iota
	toolSendCode
	toolCheckCode
	toolBook
)

func toolKindFromName(name string) toolKind {
	switch name {
	case toolNameSendCode:
		return toolSendCode
	case toolNameCheckCode:
		return toolCheckCode
	case toolNameBook:
		return toolBook
	default:
		return toolUnknown
	}
}

func toolCatalog() []realtime.Tool {
	return []realtime.Tool{
		{
			Type:        "function",
			Name:        toolNameSendCode,
			Description: "Send a one-time verification code to the caller's phone via SMS. Must be done before booking.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Type:        "function",
			Name:        toolNameCheckCode,
			Description: "Check the verification code the caller read back. The caller must pass this before any appointment can be booked.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code": map[string]any{
						"type":        "string",
						"description": "The digits the caller read back",
					},
				},
				"required": []string{"code"},
			},
		},
		{
			Type:        "function",
			Name:        toolNameBook,
			Description: "Book an appointment for a verified caller.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date_time": map[string]any{
						"type":        "string",
						"description": "Requested date and time, ISO 8601",
					},
					"client_name": map[string]any{
						"type":        "string",
						"description": "Name the appointment is booked under",
					},
					"service": map[string]any{
						"type":        "string",
						"description": "Requested service",
					},
					"staff": map[string]any{
						"type":        "string",
						"description": "Preferred staff member (optional)",
					},
				},
				"required": []string{"date_time", "client_name", "service"},
			},
		},
	}
}
