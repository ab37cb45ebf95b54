package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mtfcollector/internal/memorystore"

	"github.com/gorilla/websocket"
)

// go test -v --run TestWSClientSubscribesAndDelivers
func TestWSClientSubscribesAndDelivers(t *testing.T) {
	subscribed := make(chan []string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				Op   string   `json:"op"`
				Args []string `json:"args"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Op != "subscribe" {
				continue
			}
			subscribed <- req.Args
			push := KlineMessage{
				Topic: req.Args[0],
				Type:  "snapshot",
				Data:  []Kline{{Start: 1, End: 2, Interval: "15", Open: "1", High: "1", Low: "1", Close: "1", Volume: "1", Confirm: true}},
			}
			if err := conn.WriteJSON(push); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	store := memorystore.NewSymbolStore()
	store.Add("btcusdt")
	store.Add("ETHUSDT")

	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), store, []KlineInterval{Interval15Min, Interval60Min}, nil)
	received := make(chan []byte, 1)
	client.SetMessageHandler(func(msg []byte) {
		select {
		case received <- msg:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	go client.Listen(ctx)

	select {
	case args := <-subscribed:
		want := []string{"kline.15.BTCUSDT", "kline.60.BTCUSDT", "kline.15.ETHUSDT", "kline.60.ETHUSDT"}
		if strings.Join(args, ",") != strings.Join(want, ",") {
			t.Errorf("subscribed to %v, want %v", args, want)
		}
	case <-ctx.Done():
		t.Fatal("no subscription received")
	}

	select {
	case msg := <-received:
		var parsed KlineMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			t.Fatal(err)
		}
		if parsed.Topic != "kline.15.BTCUSDT" || len(parsed.Data) != 1 || !parsed.Data[0].Confirm {
			t.Errorf("unexpected push %+v", parsed)
		}
	case <-ctx.Done():
		t.Fatal("no message delivered")
	}

	if got := len(client.Topics()); got != 4 {
		t.Errorf("Topics() = %d entries", got)
	}

	store.Add("SOLUSDT")
	if err := client.Resubscribe(); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	select {
	case args := <-subscribed:
		if strings.Join(args, ",") != "kline.15.SOLUSDT,kline.60.SOLUSDT" {
			t.Errorf("resubscribed to %v", args)
		}
	case <-ctx.Done():
		t.Fatal("no resubscription received")
	}
	if got := len(client.Topics()); got != 6 {
		t.Errorf("Topics() = %d entries after resubscribe", got)
	}

	client.SetIntervals([]KlineInterval{Interval15Min, Interval60Min, Interval5Min})
	if err := client.Resubscribe(); err != nil {
		t.Fatalf("resubscribe with new interval: %v", err)
	}
	select {
	case args := <-subscribed:
		if strings.Join(args, ",") != "kline.5.BTCUSDT,kline.5.ETHUSDT,kline.5.SOLUSDT" {
			t.Errorf("subscribed new interval as %v", args)
		}
	case <-ctx.Done():
		t.Fatal("no subscription for the new interval")
	}
	if got := len(client.Topics()); got != 9 {
		t.Errorf("Topics() = %d entries after interval change", got)
	}
}
