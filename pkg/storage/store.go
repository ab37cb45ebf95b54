// Package storage defines the write-only archive for closed bars and
// confirmation results. The postgres subpackage is the durable backend;
// MemoryArchive serves tests and runs without a database.
package storage

import (
	"context"
	"sync"
	"time"

	"mtfcollector/pkg/market"

	"github.com/google/uuid"
)

// ConfirmationRecord is one evaluated snapshot.
type ConfirmationRecord struct {
	EvaluationID    uuid.UUID
	Symbol          string
	SnapshotTime    time.Time
	Aligned         bool
	AlignmentReason string
	Trend           float64
	KeyLevel        float64
	Volume          float64
	Momentum        float64
	Overall         float64
	Threshold       float64
	Confirmed       bool
}

// Archive persists accepted bars and evaluation outcomes.
type Archive interface {
	SaveBar(ctx context.Context, symbol string, bar market.Bar) error
	SaveConfirmation(ctx context.Context, rec ConfirmationRecord) error
}

// StoredBar pairs a bar with its symbol.
type StoredBar struct {
	Symbol string
	Bar    market.Bar
}

type MemoryArchive struct {
	mu            sync.Mutex
	bars          []StoredBar
	confirmations []ConfirmationRecord
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

func (m *MemoryArchive) SaveBar(_ context.Context, symbol string, bar market.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars = append(m.bars, StoredBar{Symbol: symbol, Bar: bar})
	return nil
}

func (m *MemoryArchive) SaveConfirmation(_ context.Context, rec ConfirmationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, rec)
	return nil
}

func (m *MemoryArchive) Bars() []StoredBar {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredBar, len(m.bars))
	copy(out, m.bars)
	return out
}

func (m *MemoryArchive) Confirmations() []ConfirmationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConfirmationRecord, len(m.confirmations))
	copy(out, m.confirmations)
	return out
}
