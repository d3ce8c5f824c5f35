package streaming

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for hub.ClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	stopCh := make(chan struct{})
	defer close(stopCh)
	go hub.Run(stopCh)

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Publish(EventRecommendation, map[string]string{"market_id": "0xabc"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Type != EventRecommendation {
		t.Errorf("type = %s, want %s", evt.Type, EventRecommendation)
	}
	data, ok := evt.Data.(map[string]interface{})
	if !ok || data["market_id"] != "0xabc" {
		t.Errorf("data = %v", evt.Data)
	}
	if evt.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	stopCh := make(chan struct{})
	defer close(stopCh)
	go hub.Run(stopCh)

	server := httptest.NewServer(hub)
	defer server.Close()

	a := dial(t, server)
	defer a.Close()
	b := dial(t, server)
	defer b.Close()
	waitForClients(t, hub, 2)

	hub.Publish(EventStatus, "running")

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var evt Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Type != EventStatus {
			t.Errorf("type = %s", evt.Type)
		}
	}
}

func TestDisconnectUpdatesCount(t *testing.T) {
	hub := NewHub()
	stopCh := make(chan struct{})
	defer close(stopCh)
	go hub.Run(stopCh)

	var counts []int
	hub.OnClientCount(func(n int) { counts = append(counts, n) })

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	if len(counts) < 2 {
		t.Errorf("count callback fired %d times, want at least 2", len(counts))
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	stopCh := make(chan struct{})
	defer close(stopCh)
	go hub.Run(stopCh)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Publish(EventHeartbeat, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}
