package call

import "testing"

func TestResolveAppliesDefaults(t *testing.T) {
	def := Defaults{Prompt: "default prompt", Voice: "alloy", Greeting: "Hello!"}
	cfg := Resolve(map[string]string{
		ParamCallSID: "CA123",
		ParamFrom:    "+15550001111",
		ParamTo:      "+15550002222",
	}, def)

	if cfg.Prompt != "default prompt" || cfg.Voice != "alloy" || cfg.Greeting != "Hello!" {
		t.Fatalf("expected defaults applied, got %+v", cfg)
	}
	if cfg.BookingEnabled {
		t.Fatalf("expected booking disabled without flag")
	}
	if cfg.AssistantNumber != "+15550002222" {
		t.Fatalf("expected assistant number to fall back to called number, got %q", cfg.AssistantNumber)
	}
}

func TestResolveOverrides(t *testing.T) {
	cfg := Resolve(map[string]string{
		ParamPrompt:          "be terse",
		ParamVoice:           "verse",
		ParamGreeting:        "Hi there",
		ParamCallSID:         "CA9",
		ParamFrom:            "+15550001111",
		ParamTo:              "+15550002222",
		ParamBookingEnabled:  "true",
		ParamAssistantNumber: "+15550009999",
	}, Defaults{Prompt: "x", Voice: "y", Greeting: "z"})

	if cfg.Prompt != "be terse" || cfg.Voice != "verse" || cfg.Greeting != "Hi there" {
		t.Fatalf("expected params to win over defaults, got %+v", cfg)
	}
	if !cfg.BookingEnabled {
		t.Fatalf("expected booking enabled")
	}
	if cfg.AssistantNumber != "+15550009999" {
		t.Fatalf("expected assistant override, got %q", cfg.AssistantNumber)
	}
}

func TestResolveBookingFlagSpellings(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on", "TRUE"} {
		cfg := Resolve(map[string]string{ParamBookingEnabled: v}, Defaults{})
		if !cfg.BookingEnabled {
			t.Fatalf("expected %q to enable booking", v)
		}
	}
	for _, v := range []string{"", "false", "0", "off", "nope"} {
		cfg := Resolve(map[string]string{ParamBookingEnabled: v}, Defaults{})
		if cfg.BookingEnabled {
			t.Fatalf("expected %q to leave booking disabled", v)
		}
	}
}
