// Package gormstore is an AuditStore on gorm, for Postgres deployments or
// SQLite through the gorm driver.
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type signalModel struct {
	ID             string  `gorm:"primaryKey;size:64"`
	Symbol         string  `gorm:"size:32;not null;index"`
	Side           string  `gorm:"size:8;not null"`
	Confidence     float64 `gorm:"not null"`
	SharpeEstimate float64 `gorm:"not null"`
	EntryPrice     float64 `gorm:"not null"`
	StopLoss       *float64
	TakeProfit     *float64
	Strategy       string    `gorm:"size:64;not null"`
	GeneratedAt    time.Time `gorm:"not null"`
}

func (signalModel) TableName() string { return "signals" }

type resultModel struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	SignalID        string `gorm:"size:64;not null;index:idx_results_signal"`
	Status          string `gorm:"size:16;not null;index:idx_results_status"`
	RiskCheckPassed bool
	PositionSize    int64
	OrderID         string `gorm:"size:64"`
	RejectionReason string
	QualityScore    float64
	AllowedFraction float64
	StopLoss        float64
	CreatedAt       time.Time `gorm:"not null;index:idx_results_status"`
	CompletedAt     *time.Time
}

func (resultModel) TableName() string { return "execution_results" }

// resultRow is the joined shape read back by ListResults.
type resultRow struct {
	SignalID        string
	Symbol          string
	Side            string
	Confidence      float64
	SharpeEstimate  float64
	EntryPrice      float64
	SignalStopLoss  *float64
	TakeProfit      *float64
	Strategy        string
	GeneratedAt     time.Time
	Status          string
	RiskCheckPassed bool
	PositionSize    int64
	OrderID         string
	RejectionReason string
	QualityScore    float64
	AllowedFraction float64
	StopLoss        float64
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Config selects the driver and its data source.
type Config struct {
	Driver string // "postgres" or "sqlite"
	DSN    string // connection string, or file path for sqlite
	Logger ports.Logger
}

// Store implements ports.AuditStore and ports.AuditReader.
type Store struct {
	db     *gorm.DB
	logger ports.Logger
}

// New opens the database and migrates the audit tables.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for gorm audit store", ports.ErrConfiguration)
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: gorm audit store needs a DSN", ports.ErrConfiguration)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dsn), err)
		}
		dialector = sqlite.Open(dsn + "?_journal_mode=WAL&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("%w: unknown gorm driver %q", ports.ErrConfiguration, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ports.ErrDBConnection, cfg.Driver, err)
	}
	if err := db.AutoMigrate(&signalModel{}, &resultModel{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ports.ErrDBConnection, err)
	}
	if cfg.Driver == DriverSQLite {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	cfg.Logger.Info(context.Background(), "Gorm audit store ready", map[string]interface{}{"driver": cfg.Driver})
	return &Store{db: db, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSignal inserts the signal unless its ID is already stored.
func (s *Store) SaveSignal(ctx context.Context, sig domain.TradingSignal) error {
	m := signalModel{
		ID:             sig.ID,
		Symbol:         sig.Symbol,
		Side:           string(sig.Side),
		Confidence:     sig.Confidence,
		SharpeEstimate: sig.SharpeEstimate,
		EntryPrice:     sig.EntryPrice,
		StopLoss:       sig.StopLoss,
		TakeProfit:     sig.TakeProfit,
		Strategy:       sig.StrategyName,
		GeneratedAt:    sig.GeneratedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("%w: insert signal %s: %v", ports.ErrQueryFailed, sig.ID, err)
	}
	return nil
}

// SaveExecutionResult appends a status row.
func (s *Store) SaveExecutionResult(ctx context.Context, r domain.ExecutionResult) error {
	m := resultModel{
		SignalID:        r.Signal.ID,
		Status:          string(r.Status),
		RiskCheckPassed: r.RiskCheckPassed,
		PositionSize:    r.PositionSize,
		OrderID:         r.OrderID,
		RejectionReason: r.RejectionReason,
		QualityScore:    r.QualityScore,
		AllowedFraction: r.AllowedFraction,
		StopLoss:        r.StopLoss,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if !r.CompletedAt.IsZero() {
		done := r.CompletedAt.UTC()
		m.CompletedAt = &done
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("%w: insert execution result for %s: %v", ports.ErrQueryFailed, r.Signal.ID, err)
	}
	return nil
}

// ListResults returns result rows joined with their signal, newest first.
func (s *Store) ListResults(ctx context.Context, f ports.ResultFilter) ([]domain.ExecutionResult, error) {
	q := s.db.WithContext(ctx).
		Table("execution_results AS e").
		Select(`s.id AS signal_id, s.symbol, s.side, s.confidence, s.sharpe_estimate, s.entry_price,
			s.stop_loss AS signal_stop_loss, s.take_profit, s.strategy, s.generated_at,
			e.status, e.risk_check_passed, e.position_size, e.order_id, e.rejection_reason,
			e.quality_score, e.allowed_fraction, e.stop_loss, e.created_at, e.completed_at`).
		Joins("JOIN signals s ON s.id = e.signal_id")
	if f.Symbol != "" {
		q = q.Where("s.symbol = ?", f.Symbol)
	}
	if f.Status != "" {
		q = q.Where("e.status = ?", string(f.Status))
	}
	if !f.Since.IsZero() {
		q = q.Where("e.created_at >= ?", f.Since.UTC())
	}
	q = q.Order("e.id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []resultRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list results: %v", ports.ErrQueryFailed, err)
	}
	out := make([]domain.ExecutionResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CountByStatus counts signals by the status of their latest row.
func (s *Store) CountByStatus(ctx context.Context) (map[domain.ExecutionStatus]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT e.status AS status, COUNT(*) AS n
		FROM execution_results e
		WHERE e.id = (SELECT MAX(id) FROM execution_results WHERE signal_id = e.signal_id)
		GROUP BY e.status`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: count by status: %v", ports.ErrQueryFailed, err)
	}
	counts := make(map[domain.ExecutionStatus]int64, len(rows))
	for _, r := range rows {
		counts[domain.ExecutionStatus(r.Status)] = r.N
	}
	return counts, nil
}

func (r resultRow) toDomain() domain.ExecutionResult {
	out := domain.ExecutionResult{
		Signal: domain.TradingSignal{
			ID:             r.SignalID,
			Symbol:         r.Symbol,
			Side:           domain.OrderSide(r.Side),
			Confidence:     r.Confidence,
			SharpeEstimate: r.SharpeEstimate,
			EntryPrice:     r.EntryPrice,
			StopLoss:       r.SignalStopLoss,
			TakeProfit:     r.TakeProfit,
			StrategyName:   r.Strategy,
			GeneratedAt:    r.GeneratedAt,
		},
		Status:          domain.ExecutionStatus(r.Status),
		RiskCheckPassed: r.RiskCheckPassed,
		PositionSize:    r.PositionSize,
		OrderID:         r.OrderID,
		RejectionReason: r.RejectionReason,
		QualityScore:    r.QualityScore,
		AllowedFraction: r.AllowedFraction,
		StopLoss:        r.StopLoss,
		CreatedAt:       r.CreatedAt,
	}
	if r.CompletedAt != nil {
		out.CompletedAt = *r.CompletedAt
	}
	return out
}
