package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"virtual-trader/internal/auth"
)

const testSecret = "ws-test-secret-0123456789"

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newWSServer(t *testing.T) (*httptest.Server, *Realtime) {
	t.Helper()
	rt := newRealtime(newFakeQuotes(map[string]int64{"TCS": 3500}), &fakePortfolios{})
	h := NewWSHandler(rt, auth.NewVerifier(testSecret, "virtual-trader"), "*", zerolog.Nop())
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		rt.Hub().Close()
	})
	return srv, rt
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	srv, rt := newWSServer(t)
	conn := dial(t, srv, "")
	defer conn.Close()

	if ev := readEvent(t, conn); ev.Type != EventError {
		t.Errorf("first event = %s, want error", ev.Type)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed after auth failure")
	}
	if m := rt.Hub().Metrics(); m.Subscribers != 0 {
		t.Errorf("subscribers = %d, want 0", m.Subscribers)
	}
}

func TestWebsocketSubscribeAndDisconnect(t *testing.T) {
	srv, rt := newWSServer(t)
	token, err := auth.NewIssuer(testSecret, "virtual-trader", time.Hour).Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, srv, token)

	if ev := readEvent(t, conn); ev.Type != EventMarketStatus {
		t.Fatalf("greeting = %s, want market:status", ev.Type)
	}

	if err := conn.WriteJSON(map[string]any{"type": MsgSubscribeStock, "symbol": "tcs"}); err != nil {
		t.Fatal(err)
	}
	ev := readEvent(t, conn)
	if ev.Type != EventPriceUpdate {
		t.Fatalf("event = %s, want price:update", ev.Type)
	}
	var upd struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(ev.Data, &upd); err != nil {
		t.Fatal(err)
	}
	if upd.Symbol != "TCS" || upd.Price != "3500" {
		t.Errorf("update = %+v", upd)
	}

	conn.WriteJSON(map[string]any{"type": MsgPing})
	if ev := readEvent(t, conn); ev.Type != EventPong {
		t.Errorf("event = %s, want pong", ev.Type)
	}

	conn.WriteJSON(map[string]any{"type": "subscribe:weather"})
	if ev := readEvent(t, conn); ev.Type != EventError {
		t.Errorf("event = %s, want error", ev.Type)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for rt.Hub().SubscriberCount(StockTopic("TCS")) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("topic membership not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebsocketAcceptsBearerHeader(t *testing.T) {
	srv, _ := newWSServer(t)
	token, _ := auth.NewIssuer(testSecret, "virtual-trader", time.Hour).Issue("bob")

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if ev := readEvent(t, conn); ev.Type != EventMarketStatus {
		t.Errorf("greeting = %s", ev.Type)
	}
}
