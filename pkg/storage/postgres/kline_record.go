package postgres

import "time"

// KlineRecord represents a closed bar stored in the database.
type KlineRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol   string    `gorm:"type:text;not null;index:idx_kline_symbol;index:idx_symbol_interval_start,unique"`
	Interval string    `gorm:"type:varchar(10);not null;index:idx_symbol_interval_start,unique"`
	Start    time.Time `gorm:"not null;index:idx_symbol_interval_start,unique"`

	End time.Time `gorm:"not null"`

	Open  float64 `gorm:"type:numeric;not null"`
	Close float64 `gorm:"type:numeric;not null"`
	High  float64 `gorm:"type:numeric;not null"`
	Low   float64 `gorm:"type:numeric;not null"`

	Volume float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (KlineRecord) TableName() string {
	return "kline_record"
}

// ConfirmationModel is one archived evaluation.
type ConfirmationModel struct {
	ID uint `gorm:"primaryKey"`

	EvaluationID string    `gorm:"type:uuid;not null;uniqueIndex"`
	Symbol       string    `gorm:"type:text;not null;index:idx_confirmation_symbol_time"`
	SnapshotTime time.Time `gorm:"not null;index:idx_confirmation_symbol_time"`

	Aligned         bool   `gorm:"not null"`
	AlignmentReason string `gorm:"type:text"`

	Trend     float64 `gorm:"type:numeric;not null"`
	KeyLevel  float64 `gorm:"type:numeric;not null"`
	Volume    float64 `gorm:"type:numeric;not null"`
	Momentum  float64 `gorm:"type:numeric;not null"`
	Overall   float64 `gorm:"type:numeric;not null"`
	Threshold float64 `gorm:"type:numeric;not null"`
	Confirmed bool    `gorm:"not null;index"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

func (ConfirmationModel) TableName() string {
	return "confirmation_record"
}
