package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func runHub(t *testing.T, origins ...string) *Hub {
	t.Helper()
	h := NewHub(nil, origins...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func registerClient(t *testing.T, h *Hub, sub Subscription) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan []byte, 16), sub: sub}
	h.register <- c
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubscription_Matches(t *testing.T) {
	detected := &Event{Type: "contract_detected", Protocol: "bucket"}
	report := &Event{Type: "risk_report", Protocol: "navi"}

	tests := []struct {
		name string
		sub  Subscription
		want [2]bool
	}{
		{"all", Subscription{AllEvents: true}, [2]bool{true, true}},
		{"empty", Subscription{}, [2]bool{true, true}},
		{"type", Subscription{EventTypes: []string{"risk_report"}}, [2]bool{false, true}},
		{"protocol", Subscription{Protocols: []string{"bucket"}}, [2]bool{true, false}},
		{"both", Subscription{EventTypes: []string{"risk_report"}, Protocols: []string{"bucket"}}, [2]bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.matches(detected); got != tt.want[0] {
				t.Errorf("detected: got %v, want %v", got, tt.want[0])
			}
			if got := tt.sub.matches(report); got != tt.want[1] {
				t.Errorf("report: got %v, want %v", got, tt.want[1])
			}
		})
	}
}

func TestHub_StatsInitial(t *testing.T) {
	s := NewHub(nil).Stats()
	if s.ConnectedClients != 0 || s.TotalEvents != 0 {
		t.Errorf("unexpected initial stats: %+v", s)
	}
}

func TestHub_PublishFiltersByProtocol(t *testing.T) {
	h := runHub(t)
	navi := registerClient(t, h, Subscription{Protocols: []string{"navi"}})
	all := registerClient(t, h, Subscription{AllEvents: true})
	waitFor(t, func() bool { return h.Stats().ConnectedClients == 2 })

	h.Publish("contract_detected", "bucket", map[string]string{"package_id": "0x1"})
	h.Publish("risk_report", "navi", map[string]string{"package_id": "0x2"})

	for i := 0; i < 2; i++ {
		select {
		case <-all.send:
		case <-time.After(time.Second):
			t.Fatal("all-events client missed an event")
		}
	}

	select {
	case msg := <-navi.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != "risk_report" || ev.Protocol != "navi" {
			t.Errorf("navi client got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("navi client missed its event")
	}
	select {
	case msg := <-navi.send:
		t.Errorf("navi client got unexpected %s", msg)
	default:
	}

	if got := h.Stats().TotalEvents; got != 2 {
		t.Errorf("TotalEvents = %d, want 2", got)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := runHub(t)
	c := registerClient(t, h, Subscription{AllEvents: true})
	waitFor(t, func() bool { return h.Stats().ConnectedClients == 1 })

	h.unregister <- c
	waitFor(t, func() bool { return h.Stats().ConnectedClients == 0 })

	if s := h.Stats(); s.PeakClients != 1 || s.TotalClients != 1 {
		t.Errorf("unexpected stats after unregister: %+v", s)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := runHub(t)
	slow := &Client{hub: h, send: make(chan []byte), sub: Subscription{AllEvents: true}} // unbuffered, never read
	h.register <- slow
	waitFor(t, func() bool { return h.Stats().ConnectedClients == 1 })

	h.Publish("risk_report", "bucket", nil)
	waitFor(t, func() bool { return h.Stats().ConnectedClients == 0 })
}

func TestHub_ContextCancellation(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after context cancellation")
	}

	w := httptest.NewRecorder()
	h.HandleWebSocket(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("upgrade after stop: got %d, want 503", w.Code)
	}
}

func TestHub_WebSocketEndToEnd(t *testing.T) {
	h := runHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Subscription{EventTypes: []string{"risk_report"}}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return h.Stats().ConnectedClients == 1 })

	// the subscription update races with the first publish, so retry until
	// only the matching event type arrives
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.Publish("contract_detected", "bucket", nil)
		h.Publish("risk_report", "bucket", map[string]int{"risk_score": 80})

		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		var ev Event
		if err := conn.ReadJSON(&ev); err == nil && ev.Type == "risk_report" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("never received risk_report")
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(nil, "chrome-extension://abc")

	cases := map[string]bool{
		"":                        true,
		"http://example.com":      true,
		"https://example.com":     true,
		"chrome-extension://abc":  true,
		"https://evil.example":    false,
		"chrome-extension://evil": false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := h.checkOrigin(r); got != want {
			t.Errorf("origin %q: got %v, want %v", origin, got, want)
		}
	}
}
