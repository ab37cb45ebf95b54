package memorystore

import (
	"fmt"
	"strings"
	"sync"
)

// MemorySymbolStore is the deduplicated, insertion-ordered set of tracked symbols.
type MemorySymbolStore struct {
	mu      sync.Mutex
	symbols []string
	seen    map[string]struct{}
}

func NewSymbolStore() *MemorySymbolStore {
	return &MemorySymbolStore{
		symbols: make([]string, 0),
		seen:    make(map[string]struct{}),
	}
}

// Add stores symbol and reports whether it was new.
func (s *MemorySymbolStore) Add(symbol string) bool {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.symbols = append(s.symbols, key)
	return true
}

// StartWorker drains ch into the store and closes done, if non-nil, once ch is closed.
func (s *MemorySymbolStore) StartWorker(ch <-chan string, done chan<- struct{}) {
	go func() {
		for symbol := range ch {
			s.Add(symbol)
		}
		if done != nil {
			close(done)
		}
	}()
}

func (s *MemorySymbolStore) GetAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *MemorySymbolStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}

// GetKlineTopics builds websocket subscription topics ("kline.15.BTCUSDT") for
// every symbol and interval.
func (s *MemorySymbolStore) GetKlineTopics(intervals []string) []string {
	symbols := s.GetAll()
	out := make([]string, 0, len(symbols)*len(intervals))
	for _, symbol := range symbols {
		for _, interval := range intervals {
			out = append(out, fmt.Sprintf("kline.%s.%s", interval, symbol))
		}
	}
	return out
}
