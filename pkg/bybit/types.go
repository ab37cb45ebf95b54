package bybit

import "encoding/json"

// BybitResponse represents a generic response from Bybit's V5 REST API.
type BybitResponse struct {
	RetCode    int                    `json:"retCode"` // 0 means success
	RetMsg     string                 `json:"retMsg"`
	Result     json.RawMessage        `json:"result"` // decoded per endpoint
	RetExtInfo map[string]interface{} `json:"retExtInfo"`
	Time       int64                  `json:"time"` // server time, ms
}

type InstrumentListResponse struct {
	Category       string `json:"category"` // e.g., "linear", "spot"
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol    string `json:"symbol"`    // e.g., "BTCUSDT"
		BaseCoin  string `json:"baseCoin"`  // e.g., "BTC"
		QuoteCoin string `json:"quoteCoin"` // e.g., "USDT"
		Status    string `json:"status"`    // "Trading"
	} `json:"list"`
}

// KlinesResponse rows are [start, open, high, low, close, volume, turnover], newest first.
type KlinesResponse struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// Kline is one candle as Bybit sends it over the websocket. Prices are decimal strings.
type Kline struct {
	Start     int64  `json:"start"` // ms
	End       int64  `json:"end"`   // ms, inclusive
	Interval  string `json:"interval"`
	Open      string `json:"open"`
	Close     string `json:"close"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    string `json:"volume"`
	Turnover  string `json:"turnover"`
	Confirm   bool   `json:"confirm"`   // true once the candle has closed
	Timestamp int64  `json:"timestamp"` // ms, time of the last update
}

// KlineMessage is a websocket push on a "kline.<interval>.<symbol>" topic.
type KlineMessage struct {
	Topic string  `json:"topic"`
	Data  []Kline `json:"data"`
	Ts    int64   `json:"ts"`   // server send time, ms
	Type  string  `json:"type"` // "snapshot"
}
