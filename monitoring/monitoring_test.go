package monitoring

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ObservePrediction("trajectory", "Normal", 2*time.Millisecond)
		}()
	}
	wg.Wait()
	m.ObservePrediction("activity", "Walking (1 min)", 4*time.Millisecond)
	m.ObserveError("trajectory", "invalid_shape", 0)

	snap := m.Snapshot()
	if snap.Requests["trajectory"] != 11 || snap.Requests["activity"] != 1 {
		t.Fatalf("unexpected request counts: %v", snap.Requests)
	}
	if snap.Labels["trajectory"]["Normal"] != 10 {
		t.Fatalf("unexpected label counts: %v", snap.Labels)
	}
	if snap.Errors["invalid_shape"] != 1 {
		t.Fatalf("unexpected error counts: %v", snap.Errors)
	}
	if snap.Latency.Count != 12 || snap.Latency.MaxMS != 4 {
		t.Fatalf("unexpected latency: %+v", snap.Latency)
	}

	// snapshots are copies
	snap.Labels["trajectory"]["Normal"] = 0
	if m.Snapshot().Labels["trajectory"]["Normal"] != 10 {
		t.Fatal("snapshot shares state with metrics")
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(Event{Type: "prediction", Variant: "trajectory", Label: "Drop-Off", ClassIndex: 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if event.Label != "Drop-Off" || event.ClassIndex != 1 || event.Timestamp.IsZero() {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < 300; i++ {
		hub.Publish(Event{Type: "prediction", Variant: "activity"})
	}
}
