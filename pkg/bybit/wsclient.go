package bybit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Bybit drops public connections idle for more than 30s without a ping.
	pingInterval   = 20 * time.Second
	reconnectDelay = 3 * time.Second
	// subscribeBatch caps the args per subscribe request.
	subscribeBatch = 10
)

// TopicSource supplies the current subscription topics.
type TopicSource interface {
	GetKlineTopics(intervals []string) []string
}

// WSClient handles WebSocket connection to Bybit and message routing.
type WSClient struct {
	url     string
	topics  TopicSource
	handler func([]byte)
	logger  *zap.Logger

	mu        sync.Mutex // guards conn and intervals; serializes writes
	conn      *websocket.Conn
	intervals []string
	args      []string
}

// NewWSClient creates a client subscribing to kline topics of intervals for every symbol in topics.
func NewWSClient(url string, topics TopicSource, intervals []KlineInterval, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{
		url:       url,
		intervals: intervalNames(intervals),
		topics:    topics,
		logger:    logger,
	}
}

func intervalNames(intervals []KlineInterval) []string {
	names := make([]string, len(intervals))
	for i, k := range intervals {
		names[i] = string(k)
	}
	return names
}

// SetIntervals replaces the subscribed intervals. Topics of new intervals are
// sent on the next Resubscribe or reconnect; dropped ones stay subscribed
// until the next reconnect.
func (c *WSClient) SetIntervals(intervals []KlineInterval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intervals = intervalNames(intervals)
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Topics returns the arguments of the last subscription.
func (c *WSClient) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.args...)
}

// Connect establishes the WebSocket connection and subscribes to kline topics.
// It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.logger.Info("WebSocket connected", zap.String("url", c.url))

	c.args = c.topics.GetKlineTopics(c.intervals)
	if err := subscribe(conn, c.args); err != nil {
		c.logger.Error("Failed to send subscription", zap.Error(err))
		return err
	}
	c.logger.Info("WebSocket subscribed", zap.Int("topics", len(c.args)))
	return nil
}

// Resubscribe subscribes to topics that appeared since the last subscription,
// e.g. after new symbols were added to the topic source or new intervals were set.
func (c *WSClient) Resubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("websocket not connected")
	}

	have := make(map[string]struct{}, len(c.args))
	for _, a := range c.args {
		have[a] = struct{}{}
	}
	current := c.topics.GetKlineTopics(c.intervals)
	var added []string
	for _, topic := range current {
		if _, ok := have[topic]; !ok {
			added = append(added, topic)
		}
	}
	if len(added) == 0 {
		return nil
	}
	if err := subscribe(c.conn, added); err != nil {
		return err
	}
	c.args = current
	c.logger.Info("WebSocket subscribed to new topics", zap.Strings("topics", added))
	return nil
}

func subscribe(conn *websocket.Conn, args []string) error {
	for start := 0; start < len(args); start += subscribeBatch {
		subMsg := map[string]interface{}{
			"op":   "subscribe",
			"args": args[start:min(start+subscribeBatch, len(args))],
		}
		if err := conn.WriteJSON(subMsg); err != nil {
			return fmt.Errorf("websocket subscribe failed: %w", err)
		}
	}
	return nil
}

// Listen reads messages until ctx is cancelled, reconnecting and resubscribing on read errors.
func (c *WSClient) Listen(ctx context.Context) {
	go c.keepAlive(ctx)
	go func() {
		<-ctx.Done()
		c.close()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("WebSocket read error", zap.Error(err))
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// reconnect retries until it succeeds or ctx is cancelled.
func (c *WSClient) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(reconnectDelay):
		}
		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("Retrying reconnect...", zap.Error(err))
			continue
		}
		c.logger.Info("Reconnected successfully")
		return true
	}
}

func (c *WSClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil {
				if err := c.conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					c.logger.Warn("WebSocket ping failed", zap.Error(err))
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
