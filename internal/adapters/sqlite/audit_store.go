package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// AuditStore implements ports.AuditStore and ports.AuditReader on SQLite.
// Rows are only ever inserted.
type AuditStore struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite audit store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewAuditStore opens (creating if needed) the database and its schema.
func NewAuditStore(cfg Config) (*AuditStore, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite audit store", ports.ErrConfiguration)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_pilot.db"
	}
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(ctx, err, "SQLite audit store initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(ctx, err, "SQLite audit store initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(ctx, err, "SQLite audit store initialization failed")
		return nil, err
	}

	// A single connection serialises writers; SQLite locks the file anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &AuditStore{db: db, logger: cfg.Logger}
	if err := store.initializeSchema(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(ctx, err, "SQLite audit store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(ctx, "SQLite audit store ready", map[string]interface{}{"path": dbPath})
	return store, nil
}

func (s *AuditStore) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		confidence REAL NOT NULL,
		sharpe_estimate REAL NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NULL,
		take_profit REAL NULL,
		strategy TEXT NOT NULL,
		generated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS execution_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id TEXT NOT NULL,
		status TEXT NOT NULL,
		risk_check_passed INTEGER NOT NULL,
		position_size INTEGER NOT NULL,
		order_id TEXT NULL,
		rejection_reason TEXT NULL,
		quality_score REAL NOT NULL,
		allowed_fraction REAL NOT NULL,
		stop_loss REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NULL
	);
	CREATE INDEX IF NOT EXISTS idx_execution_results_signal ON execution_results (signal_id, id);
	CREATE INDEX IF NOT EXISTS idx_execution_results_status ON execution_results (status, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite audit store")
		return s.db.Close()
	}
	return nil
}

// SaveSignal records a signal once; saving the same ID again leaves the
// stored row untouched.
func (s *AuditStore) SaveSignal(ctx context.Context, sig domain.TradingSignal) error {
	const query = `
	INSERT OR IGNORE INTO signals (id, symbol, side, confidence, sharpe_estimate, entry_price,
	                               stop_loss, take_profit, strategy, generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		sig.ID, sig.Symbol, string(sig.Side), sig.Confidence, sig.SharpeEstimate, sig.EntryPrice,
		nullFloat(sig.StopLoss), nullFloat(sig.TakeProfit), sig.StrategyName, sig.GeneratedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: insert signal %s: %v", ports.ErrQueryFailed, sig.ID, err)
	}
	s.logger.Debug(ctx, "Signal recorded", map[string]interface{}{"signalID": sig.ID, "symbol": sig.Symbol})
	return nil
}

// SaveExecutionResult appends a status row for the result's signal.
func (s *AuditStore) SaveExecutionResult(ctx context.Context, r domain.ExecutionResult) error {
	const query = `
	INSERT INTO execution_results (signal_id, status, risk_check_passed, position_size, order_id,
	                               rejection_reason, quality_score, allowed_fraction, stop_loss,
	                               created_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var completed sql.NullTime
	if !r.CompletedAt.IsZero() {
		completed = sql.NullTime{Time: r.CompletedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		r.Signal.ID, string(r.Status), r.RiskCheckPassed, r.PositionSize, nullString(r.OrderID),
		nullString(r.RejectionReason), r.QualityScore, r.AllowedFraction, r.StopLoss,
		r.CreatedAt.UTC(), completed)
	if err != nil {
		return fmt.Errorf("%w: insert execution result for %s: %v", ports.ErrQueryFailed, r.Signal.ID, err)
	}
	return nil
}

// ListResults returns result rows joined with their signal, newest first.
func (s *AuditStore) ListResults(ctx context.Context, f ports.ResultFilter) ([]domain.ExecutionResult, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Symbol != "" {
		where = append(where, "s.symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Status != "" {
		where = append(where, "e.status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		where = append(where, "e.created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `
	SELECT s.id, s.symbol, s.side, s.confidence, s.sharpe_estimate, s.entry_price, s.stop_loss,
	       s.take_profit, s.strategy, s.generated_at,
	       e.status, e.risk_check_passed, e.position_size, e.order_id, e.rejection_reason,
	       e.quality_score, e.allowed_fraction, e.stop_loss, e.created_at, e.completed_at
	FROM execution_results e
	JOIN signals s ON s.id = e.signal_id`
	if len(where) > 0 {
		query += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\tORDER BY e.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list results: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	results := make([]domain.ExecutionResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", ports.ErrQueryFailed, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate results: %v", ports.ErrQueryFailed, err)
	}
	return results, nil
}

// CountByStatus counts signals by the status of their latest row.
func (s *AuditStore) CountByStatus(ctx context.Context) (map[domain.ExecutionStatus]int64, error) {
	const query = `
	SELECT e.status, COUNT(*)
	FROM execution_results e
	WHERE e.id = (SELECT MAX(id) FROM execution_results WHERE signal_id = e.signal_id)
	GROUP BY e.status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: count by status: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	counts := make(map[domain.ExecutionStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%w: scan count: %v", ports.ErrQueryFailed, err)
		}
		counts[domain.ExecutionStatus(status)] = n
	}
	return counts, rows.Err()
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(sc scanner) (domain.ExecutionResult, error) {
	var (
		r                    domain.ExecutionResult
		side, status         string
		stopLoss, takeProfit sql.NullFloat64
		orderID, reason      sql.NullString
		completed            sql.NullTime
	)
	err := sc.Scan(
		&r.Signal.ID, &r.Signal.Symbol, &side, &r.Signal.Confidence, &r.Signal.SharpeEstimate,
		&r.Signal.EntryPrice, &stopLoss, &takeProfit, &r.Signal.StrategyName, &r.Signal.GeneratedAt,
		&status, &r.RiskCheckPassed, &r.PositionSize, &orderID, &reason,
		&r.QualityScore, &r.AllowedFraction, &r.StopLoss, &r.CreatedAt, &completed)
	if err != nil {
		return r, err
	}
	r.Signal.Side = domain.OrderSide(side)
	r.Status = domain.ExecutionStatus(status)
	if stopLoss.Valid {
		r.Signal.StopLoss = &stopLoss.Float64
	}
	if takeProfit.Valid {
		r.Signal.TakeProfit = &takeProfit.Float64
	}
	r.OrderID = orderID.String
	r.RejectionReason = reason.String
	if completed.Valid {
		r.CompletedAt = completed.Time
	}
	return r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
