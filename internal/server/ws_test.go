package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/posecam/internal/detector"
	"github.com/ayusman/posecam/internal/metrics"
	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	return conn
}

func TestLandmarksHandler_Broadcast(t *testing.T) {
	p := &fakePipeline{result: detector.Detected(detector.StandingPoseLandmarks())}
	m := metrics.New()
	h := NewLandmarksHandler(p, 5*time.Millisecond, m)

	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialWS(t, ts.URL)
	defer conn.Close()

	waitFor(t, time.Second, func() bool { return h.Clients() == 1 })
	if m.ActiveClients.Load() != 1 {
		t.Errorf("ActiveClients = %d, want 1", m.ActiveClients.Load())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var resp LandmarksResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		t.Fatalf("failed to decode push: %v", err)
	}
	if len(resp.Landmarks) != detector.NumLandmarks {
		t.Errorf("expected %d landmarks, got %d", detector.NumLandmarks, len(resp.Landmarks))
	}

	conn.Close()
	waitFor(t, time.Second, func() bool { return h.Clients() == 0 })
	if m.ActiveClients.Load() != 0 {
		t.Errorf("ActiveClients = %d after disconnect, want 0", m.ActiveClients.Load())
	}
}

func TestLandmarksHandler_SentinelPush(t *testing.T) {
	h := NewLandmarksHandler(&fakePipeline{}, 5*time.Millisecond, nil)

	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialWS(t, ts.URL)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(msg) != `{"landmarks":-1}` {
		t.Errorf("expected sentinel push, got %s", msg)
	}
}

func TestLandmarksHandler_IdleWithoutClients(t *testing.T) {
	p := &fakePipeline{}
	h := NewLandmarksHandler(p, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if p.Calls() != 0 {
		t.Errorf("pipeline invoked %d times with no clients", p.Calls())
	}
}

func TestLandmarksHandler_ClosesClientsOnShutdown(t *testing.T) {
	h := NewLandmarksHandler(&fakePipeline{}, time.Hour, nil)

	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	conn := dialWS(t, ts.URL)
	defer conn.Close()
	waitFor(t, time.Second, func() bool { return h.Clients() == 1 })

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
