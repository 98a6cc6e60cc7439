package httppoll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sweeney/callwatch/internal/call"
	"github.com/sweeney/callwatch/internal/engine"
	"github.com/sweeney/callwatch/internal/notify"
	"github.com/sweeney/callwatch/internal/store"
)

func newTestEngine(t *testing.T) (*engine.Engine, *store.Mock) {
	t.Helper()
	st := store.NewMock()
	bus := notify.NewBus(32)
	t.Cleanup(bus.Close)
	return engine.New(st, bus), st
}

func snapshotServer(t *testing.T, calls *[]CallStatus) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/call_status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/calls", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(*calls)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe(t *testing.T) {
	var calls []CallStatus
	srv := snapshotServer(t, &calls)
	if err := NewClient(srv.URL).Probe(context.Background()); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if err := NewClient(srv.URL).Probe(context.Background()); err == nil {
		t.Fatal("expected probe failure")
	}
}

func TestPollAppliesSnapshot(t *testing.T) {
	calls := []CallStatus{
		{CallID: "r1", Extension: "101", CallerID: "0770000000", Status: "ringing", Direction: "incoming"},
	}
	srv := snapshotServer(t, &calls)
	eng, st := newTestEngine(t)
	p := NewPoller(NewClient(srv.URL), eng, 5*time.Second, 30*time.Second)

	if wait := p.poll(context.Background()); wait != 5*time.Second {
		t.Errorf("expected interval wait after success, got %s", wait)
	}
	rec, ok := eng.OpenCall("101")
	if !ok {
		t.Fatal("expected tracked call from snapshot")
	}
	if rec.ID != "r1" || rec.Direction != call.Incoming {
		t.Errorf("unexpected record %+v", rec)
	}

	// The call answers, then disappears from the snapshot.
	calls[0].Status = "up"
	p.poll(context.Background())
	rec, _ = eng.OpenCall("101")
	if rec.Status != call.StatusOnCall {
		t.Errorf("expected oncall, got %s", rec.Status)
	}

	calls = nil
	p.poll(context.Background())
	if _, ok := eng.OpenCall("101"); ok {
		t.Error("expected call ended when gone from snapshot")
	}
	stored := st.Calls()
	if len(stored) != 1 || stored[0].Status != call.StatusOffline {
		t.Fatalf("expected 1 offline call, got %+v", stored)
	}
}

func TestPollFailureBacksOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	eng, _ := newTestEngine(t)
	p := NewPoller(NewClient(srv.URL), eng, 5*time.Second, 30*time.Second)

	if wait := p.poll(context.Background()); wait != 30*time.Second {
		t.Errorf("expected backoff wait after failure, got %s", wait)
	}
}

func TestRunCancellable(t *testing.T) {
	var calls []CallStatus
	srv := snapshotServer(t, &calls)
	eng, _ := newTestEngine(t)
	p := NewPoller(NewClient(srv.URL), eng, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

func TestOriginatePost(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/calls/originate", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	if err := NewClient(srv.URL).Originate(context.Background(), "101", "0770000000"); err != nil {
		t.Fatalf("originate: %v", err)
	}
	if got["extension"] != "101" || got["destination"] != "0770000000" {
		t.Errorf("unexpected body %v", got)
	}
}

func TestOriginateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusConflict)
	}))
	t.Cleanup(srv.Close)
	if err := NewClient(srv.URL).Originate(context.Background(), "101", "202"); err == nil {
		t.Fatal("expected rejection error")
	}
}
