package backoffice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ardelia/frontdesk/pkg/verify"
)

func TestBookSuccessPassesPayloadThrough(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"apt-42","confirmed":true}`))
	}))
	defer srv.Close()

	c := NewBookingClient(BookingConfig{URL: srv.URL}, nil)
	outcome, err := c.Book(context.Background(), verify.BookingRequest{
		Appointment: verify.Appointment{
			DateTime:   "2026-09-02T10:00",
			ClientName: "Ada Lovelace",
			Service:    "consultation",
		},
		AssistantNumber: "+15550002222",
		CallerNumber:    "+15550001111",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !outcome.OK {
		t.Fatalf("expected OK outcome")
	}
	if string(outcome.Payload) != `{"id":"apt-42","confirmed":true}` {
		t.Fatalf("expected verbatim payload, got %s", outcome.Payload)
	}

	var req verify.BookingRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if req.ClientName != "Ada Lovelace" || req.CallerNumber != "+15550001111" {
		t.Fatalf("unexpected request body: %+v", req)
	}
}

func TestBookUpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"slot taken"}`))
	}))
	defer srv.Close()

	c := NewBookingClient(BookingConfig{URL: srv.URL}, nil)
	outcome, err := c.Book(context.Background(), verify.BookingRequest{})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if outcome.OK {
		t.Fatalf("expected rejected outcome")
	}
	if string(outcome.Payload) != `{"error":"slot taken"}` {
		t.Fatalf("expected rejection payload, got %s", outcome.Payload)
	}
}

func TestBookWrapsNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewBookingClient(BookingConfig{URL: srv.URL}, nil)
	outcome, err := c.Book(context.Background(), verify.BookingRequest{})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	var wrapped map[string]string
	if err := json.Unmarshal(outcome.Payload, &wrapped); err != nil {
		t.Fatalf("expected JSON-wrapped body, got %s", outcome.Payload)
	}
	if wrapped["message"] != "upstream exploded" {
		t.Fatalf("unexpected wrapped message: %+v", wrapped)
	}
}

func TestBookBreakerFailsFastAfterServerErrors(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewBookingClient(BookingConfig{URL: srv.URL, BreakerThreshold: 1}, nil)
	if _, err := c.Book(context.Background(), verify.BookingRequest{}); err != nil {
		t.Fatalf("first book: %v", err)
	}
	if _, err := c.Book(context.Background(), verify.BookingRequest{}); err == nil {
		t.Fatalf("expected fail-fast while breaker open")
	}
	if requests != 1 {
		t.Fatalf("expected no request while breaker open, got %d", requests)
	}
}

func TestBookTransportError(t *testing.T) {
	c := NewBookingClient(BookingConfig{URL: "http://127.0.0.1:1", TimeoutMS: 200}, nil)
	if _, err := c.Book(context.Background(), verify.BookingRequest{}); err == nil {
		t.Fatalf("expected transport error")
	}
}
