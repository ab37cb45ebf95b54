package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mtfcollector/pkg/market"
)

// maxKlineLimit is the largest page the kline endpoint returns.
const maxKlineLimit = 1000

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// get performs a GET on path and decodes the response envelope.
func (c *RESTClient) get(ctx context.Context, path string, query url.Values) (*BybitResponse, error) {
	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bybit error: status %d: %s", resp.StatusCode, body)
	}

	var rawResp BybitResponse
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rawResp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error: retCode %d: %s", rawResp.RetCode, rawResp.RetMsg)
	}
	return &rawResp, nil
}

// GetUSDTSymbols fetches every trading symbol in category quoted in USDT.
func (c *RESTClient) GetUSDTSymbols(ctx context.Context, category string) ([]string, error) {
	var symbols []string
	cursor := ""
	for {
		q := url.Values{}
		q.Set("category", category)
		q.Set("limit", "1000")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		rawResp, err := c.get(ctx, "/v5/market/instruments-info", q)
		if err != nil {
			return nil, err
		}

		var result InstrumentListResponse
		if err := json.Unmarshal(rawResp.Result, &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		for _, s := range result.List {
			if s.QuoteCoin == "USDT" && (s.Status == "" || s.Status == "Trading") {
				symbols = append(symbols, s.Symbol)
			}
		}
		if result.NextPageCursor == "" || result.NextPageCursor == cursor {
			return symbols, nil
		}
		cursor = result.NextPageCursor
	}
}

// GetKlines fetches up to limit of the most recent candles of tf, oldest first,
// together with the server time of the response.
// The still-forming candle is included with Confirm=false.
func (c *RESTClient) GetKlines(ctx context.Context, category, symbol string, tf market.Timeframe, limit int) ([]Kline, time.Time, error) {
	interval, err := IntervalFor(tf)
	if err != nil {
		return nil, time.Time{}, err
	}
	limit = min(max(limit, 1), maxKlineLimit)

	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	q.Set("limit", strconv.Itoa(limit))

	rawResp, err := c.get(ctx, "/v5/market/kline", q)
	if err != nil {
		return nil, time.Time{}, err
	}

	var result KlinesResponse
	if err := json.Unmarshal(rawResp.Result, &result); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode result: %w", err)
	}

	serverTime := time.Now()
	if rawResp.Time > 0 {
		serverTime = time.UnixMilli(rawResp.Time)
	}
	klines, err := ParseKlineList(interval, result.List, serverTime)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse result: %w", err)
	}
	return klines, serverTime, nil
}
