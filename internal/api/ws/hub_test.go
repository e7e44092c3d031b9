package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/api/middleware"
	"github.com/dvloznov/quantoda/internal/jobs"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(middleware.Session(http.HandlerFunc(hub.ServeWS)))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var hello Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("reading hello: %v", err)
	}
	if hello.Type != "connected" || hello.SessionID != session {
		t.Fatalf("hello = %+v", hello)
	}
	return conn
}

func TestHub_DeliversOnlyToOwningSession(t *testing.T) {
	hub, srv := newTestHub(t)

	alice := dial(t, srv, "alice")
	dial(t, srv, "bob")

	hub.BroadcastJobUpdate(jobs.AnalysisJob{JobID: "job-bob", SessionID: "bob", Status: jobs.JobStatusRunning})
	hub.BroadcastJobUpdate(jobs.AnalysisJob{JobID: "job-alice", SessionID: "alice", Status: jobs.JobStatusCompleted})

	var msg Message
	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := alice.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != "job_update" || msg.Job == nil || msg.Job.JobID != "job-alice" {
		t.Errorf("alice received %+v", msg)
	}
	if msg.Job != nil && msg.Job.Status != jobs.JobStatusCompleted {
		t.Errorf("status = %s", msg.Job.Status)
	}
}

func TestHub_RequiresSession(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHub_BroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		hub.BroadcastJobUpdate(jobs.AnalysisJob{JobID: "j", SessionID: "s"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastJobUpdate blocked after hub stopped")
	}
}
