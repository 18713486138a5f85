package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	base := errors.New("upstream rejected booking")
	err := Wrap(base, ReasonBookingUpstream)
	if Reason(err) != ReasonBookingUpstream {
		t.Fatalf("expected booking_upstream, got %q", Reason(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to match base")
	}
}

func TestWrapKeepsFirstReason(t *testing.T) {
	err := Wrap(errors.New("dial tcp: refused"), ReasonRealtimeConnect)
	err = Wrap(fmt.Errorf("connect: %w", err), ReasonRealtimeSend)
	if Reason(err) != ReasonRealtimeConnect {
		t.Fatalf("expected first reason to stick, got %q", Reason(err))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ReasonSMSDispatch) != nil {
		t.Fatalf("expected nil passthrough")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil error")
	}
	if HasReason(nil, ReasonSMSDispatch) {
		t.Fatalf("expected HasReason false for nil error")
	}
}
