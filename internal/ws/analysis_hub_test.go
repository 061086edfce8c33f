package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"monuguard/internal/pipeline"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *AnalysisHub, videoID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		got := len(hub.clients[videoID])
		hub.mu.RUnlock()
		if got == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients on %s", n, videoID)
}

func TestHubRoutesEventsByVideo(t *testing.T) {
	hub := NewAnalysisHub()
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	a := dial(t, srv, "/ws/analysis/video-a")
	b := dial(t, srv, "/ws/analysis/video-b")
	waitForClients(t, hub, "video-a", 1)
	waitForClients(t, hub, "video-b", 1)

	hub.OnEvent(&pipeline.Event{
		Type:       pipeline.EventAlertRaised,
		RunID:      "run-1",
		Label:      "video-a",
		FrameIndex: 60,
		Time:       2,
		Alert:      &pipeline.Alert{Type: pipeline.AlertIntrusion, Severity: pipeline.SeverityHigh, Message: "Person detected at 2.0s (confidence 90%)"},
	})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg["type"] != "alert" || msg["video_id"] != "video-a" || msg["frame"] != 60.0 {
		t.Fatalf("message = %s", data)
	}
	if !strings.Contains(string(data), `"time":2.0`) {
		t.Fatalf("time not formatted with a decimal: %s", data)
	}

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Fatal("video-b client received video-a event")
	}
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewAnalysisHub()
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	c := dial(t, srv, "/ws/analysis/v")
	waitForClients(t, hub, "v", 1)

	c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.Close()
	waitForClients(t, hub, "v", 0)

	if hub.ClientCount() != 0 {
		t.Fatalf("client count = %d", hub.ClientCount())
	}
}

func TestHandlerRequiresVideoID(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewAnalysisHub()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analysis/"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != 400 {
		t.Fatalf("expected 400, got resp=%v err=%v", resp, err)
	}
}

func TestNewProgressMessageFinished(t *testing.T) {
	summary := pipeline.NewSummary()
	summary.Inc("car")
	msg := NewProgressMessage(&pipeline.Event{
		Type:   pipeline.EventRunFinished,
		Label:  "v",
		Report: &pipeline.Report{TotalFrames: 90, Summary: summary, Alerts: []pipeline.Alert{{}}},
	})

	if msg.Type != "finished" || msg.TotalFrames != 90 || msg.Alerts != 1 || msg.Summary.Count("car") != 1 {
		t.Fatalf("msg = %+v", msg)
	}
	if msg.Frame != nil {
		t.Fatal("finished message should not carry a frame")
	}
}
