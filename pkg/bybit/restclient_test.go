package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mtfcollector/pkg/market"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v5/market/instruments-info", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","nextPageCursor":"p2","list":[
				{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT","status":"Trading"},
				{"symbol":"BTCPERP","baseCoin":"BTC","quoteCoin":"USDC","status":"Trading"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","nextPageCursor":"","list":[
			{"symbol":"ETHUSDT","baseCoin":"ETH","quoteCoin":"USDT","status":"Trading"},
			{"symbol":"OLDUSDT","baseCoin":"OLD","quoteCoin":"USDT","status":"Closed"}]}}`))
	})
	mux.HandleFunc("/v5/market/kline", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") == "FAIL" {
			_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
			return
		}
		if q.Get("interval") != "240" || q.Get("limit") != "2" {
			http.Error(w, "unexpected query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","time":1700017200000,"result":{"category":"linear","symbol":"BTCUSDT","list":[
			["1700006400000","2","3","1","2.5","100","250"],
			["1699992000000","1","2","0.5","2","80","160"]]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// go test -v --run TestGetUSDTSymbols
func TestGetUSDTSymbols(t *testing.T) {
	client := NewRESTClient(newTestServer(t).URL, 5*time.Second)
	symbols, err := client.GetUSDTSymbols(context.Background(), "linear")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "ETHUSDT" {
		t.Fatalf("symbols = %v", symbols)
	}
}

// go test -v --run TestGetKlines
func TestGetKlines(t *testing.T) {
	client := NewRESTClient(newTestServer(t).URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	klines, serverTime, err := client.GetKlines(ctx, "linear", "BTCUSDT", market.H4, 2)
	if err != nil {
		t.Fatalf("GetKlines returned error: %v", err)
	}
	if len(klines) != 2 {
		t.Fatalf("expected 2 klines, got %d", len(klines))
	}
	if !serverTime.Equal(time.UnixMilli(1700017200000)) {
		t.Errorf("server time = %s", serverTime)
	}
	// the newest candle is still forming at server time
	if !klines[0].Confirm || klines[1].Confirm {
		t.Errorf("confirm flags = %v, %v", klines[0].Confirm, klines[1].Confirm)
	}
	bar, err := klines[1].ToBar()
	if err != nil || bar.Close != 2.5 || bar.Timeframe != market.H4 {
		t.Errorf("bar = %+v, err = %v", bar, err)
	}

	if _, _, err := client.GetKlines(ctx, "linear", "FAIL", market.H4, 2); err == nil {
		t.Error("expected retCode error")
	}
	if _, _, err := client.GetKlines(ctx, "linear", "BTCUSDT", market.H1, 2); err == nil {
		t.Error("expected HTTP status error")
	}
}
