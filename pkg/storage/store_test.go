package storage

import (
	"context"
	"testing"
	"time"

	"mtfcollector/pkg/market"

	"github.com/google/uuid"
)

// go test -v --run TestMemoryArchive
func TestMemoryArchive(t *testing.T) {
	var archive Archive = NewMemoryArchive()
	ctx := context.Background()

	bar := market.Bar{OpenTime: time.Unix(0, 0).UTC(), Close: 45000, Timeframe: market.H1}
	if err := archive.SaveBar(ctx, "BTCUSDT", bar); err != nil {
		t.Fatal(err)
	}
	id := uuid.New()
	if err := archive.SaveConfirmation(ctx, ConfirmationRecord{EvaluationID: id, Symbol: "BTCUSDT", Overall: 0.8}); err != nil {
		t.Fatal(err)
	}

	mem := archive.(*MemoryArchive)
	bars := mem.Bars()
	if len(bars) != 1 || bars[0].Symbol != "BTCUSDT" || bars[0].Bar != bar {
		t.Fatalf("unexpected bars: %+v", bars)
	}
	recs := mem.Confirmations()
	if len(recs) != 1 || recs[0].EvaluationID != id {
		t.Fatalf("unexpected confirmations: %+v", recs)
	}

	bars[0].Symbol = "MUTATED"
	if mem.Bars()[0].Symbol != "BTCUSDT" {
		t.Error("Bars must return a copy")
	}
}
