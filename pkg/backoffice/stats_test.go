package backoffice

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ardelia/frontdesk/pkg/redact"
)

func TestStatsSinkPostsEvents(t *testing.T) {
	var mu sync.Mutex
	var got []StatsEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev StatsEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}))
	defer srv.Close()

	sink := NewStatsSink(StatsConfig{URL: srv.URL}, nil)
	sink.CallStatus("CA123", "trace-1", "started")
	sink.Transcript("CA123", "trace-1", "caller", "I'd like an appointment")
	if err := sink.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Kind != "status" || got[0].Status != "started" || got[0].CallSID != "CA123" {
		t.Fatalf("unexpected status event: %+v", got[0])
	}
	if got[1].Kind != "transcript" || got[1].Role != "caller" {
		t.Fatalf("unexpected transcript event: %+v", got[1])
	}
}

func TestStatsSinkRetriesFailedPost(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		first := requests == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewStatsSink(StatsConfig{URL: srv.URL}, nil)
	sink.CallStatus("CA123", "trace-1", "started")
	if err := sink.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if requests != 2 {
		t.Fatalf("expected retry after server error, got %d requests", requests)
	}
}

func TestStatsSinkRedactsTranscripts(t *testing.T) {
	redact.SetEnabled(true)
	defer redact.SetEnabled(false)

	var mu sync.Mutex
	var got []StatsEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev StatsEvent
		_ = json.Unmarshal(body, &ev)
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}))
	defer srv.Close()

	sink := NewStatsSink(StatsConfig{URL: srv.URL}, nil)
	sink.Transcript("CA123", "trace-1", "caller", "the code was 1234")
	if err := sink.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if strings.Contains(got[0].Text, "1234") {
		t.Fatalf("expected code redacted, got %q", got[0].Text)
	}
}

func TestStatsSinkDropsWhenFull(t *testing.T) {
	sink := &StatsSink{
		cfg:  StatsConfig{},
		ch:   make(chan StatsEvent, 1),
		done: make(chan struct{}),
	}
	// No loop running: the second record has nowhere to go.
	sink.CallStatus("CA1", "", "started")
	sink.CallStatus("CA1", "", "completed")
	if sink.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", sink.Dropped())
	}
}

func TestStatsSinkRecordDuringCloseIsSafe(t *testing.T) {
	sink := NewStatsSink(StatsConfig{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			sink.CallStatus("CA1", "", "started")
		}
	}()

	if err := sink.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	<-done
	sink.CallStatus("CA1", "", "completed")
}

func TestStatsSinkRecordAfterCloseIsNoop(t *testing.T) {
	sink := NewStatsSink(StatsConfig{}, nil)
	if err := sink.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	sink.CallStatus("CA1", "", "completed")
	sink.Close()
}
