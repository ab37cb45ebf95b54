package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mtfcollector/pkg/market"
	"mtfcollector/pkg/storage"

	"gorm.io/gorm/clause"
)

// ErrDuplicate is returned when a unique row already exists.
var ErrDuplicate = errors.New("duplicate record skipped")

var _ storage.Archive = (*PostgresClient)(nil)

func (p *PostgresClient) InsertKline(ctx context.Context, record *KlineRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "interval"},
			{Name: "start"},
		},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: symbol=%s interval=%s start=%s",
			ErrDuplicate, record.Symbol, record.Interval, record.Start.Format(time.RFC3339))
	}
	return nil
}

func (p *PostgresClient) GetKline(ctx context.Context, symbol, interval string, start time.Time) (*KlineRecord, error) {
	var kline KlineRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND interval = ? AND start = ?", symbol, interval, start).
		First(&kline).Error
	if err != nil {
		return nil, err
	}
	return &kline, nil
}

// DeleteOldKlines removes bars opened before the cutoff and returns how many were deleted.
func (p *PostgresClient) DeleteOldKlines(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("start < ?", before).
		Delete(&KlineRecord{})
	return tx.RowsAffected, tx.Error
}

// SaveBar archives a closed bar. Re-archiving the same bar is not an error.
func (p *PostgresClient) SaveBar(ctx context.Context, symbol string, bar market.Bar) error {
	err := p.InsertKline(ctx, ToKlineRecord(symbol, bar))
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

func (p *PostgresClient) SaveConfirmation(ctx context.Context, rec storage.ConfirmationRecord) error {
	return p.DB.WithContext(ctx).Create(ToConfirmationModel(rec)).Error
}

// ToKlineRecord converts a bar and symbol into a KlineRecord for DB insertion.
func ToKlineRecord(symbol string, bar market.Bar) *KlineRecord {
	return &KlineRecord{
		Symbol:   symbol,
		Interval: bar.Timeframe.Short(),
		Start:    bar.OpenTime.UTC(),
		End:      bar.CloseTime().UTC(),
		Open:     bar.Open,
		Close:    bar.Close,
		High:     bar.High,
		Low:      bar.Low,
		Volume:   bar.Volume,
	}
}

func ToConfirmationModel(rec storage.ConfirmationRecord) *ConfirmationModel {
	return &ConfirmationModel{
		EvaluationID:    rec.EvaluationID.String(),
		Symbol:          rec.Symbol,
		SnapshotTime:    rec.SnapshotTime.UTC(),
		Aligned:         rec.Aligned,
		AlignmentReason: rec.AlignmentReason,
		Trend:           rec.Trend,
		KeyLevel:        rec.KeyLevel,
		Volume:          rec.Volume,
		Momentum:        rec.Momentum,
		Overall:         rec.Overall,
		Threshold:       rec.Threshold,
		Confirmed:       rec.Confirmed,
	}
}
