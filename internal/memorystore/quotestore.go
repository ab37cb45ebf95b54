package memorystore

import (
	"strings"
	"sync"
	"time"
)

// Quote is the latest mid price seen for a symbol.
type Quote struct {
	Mid       float64
	Timestamp time.Time
}

// QuoteStore keeps one quote per symbol. Updates older than the stored quote are ignored.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

func (s *QuoteStore) Update(symbol string, q Quote) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" || q.Mid <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.quotes[key]; ok && q.Timestamp.Before(cur.Timestamp) {
		return
	}
	s.quotes[key] = q
}

func (s *QuoteStore) Get(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[strings.ToUpper(strings.TrimSpace(symbol))]
	return q, ok
}
