package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guyghost/cryptosim/internal/backtesting"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL UNIQUE,
	strategy_id TEXT NOT NULL,
	status TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	final_equity TEXT NOT NULL,
	total_trades INTEGER NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_input_hash ON results(input_hash);`

// SQLiteStore is a ResultStore backed by a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	// SQLite allows one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements ResultStore.
func (s *SQLiteStore) Save(ctx context.Context, res *backtesting.Result) error {
	if err := checkResult(res); err != nil {
		return err
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", res.RunID, err)
	}

	sum := summarize(res)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (run_id, strategy_id, status, input_hash, final_equity, total_trades, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.StrategyID, string(sum.Status), sum.InputHash, sum.FinalEquity.String(), sum.TotalTrades, payload)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert result %s: %w", res.RunID, err)
	}
	return nil
}

// Get implements ResultStore.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*backtesting.Result, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM results WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query result %s: %w", runID, err)
	}

	var res backtesting.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", runID, err)
	}
	return &res, nil
}

// List implements ResultStore.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	return s.query(ctx, `SELECT run_id, strategy_id, status, input_hash, final_equity, total_trades
		FROM results ORDER BY seq`)
}

// FindByInputHash implements ResultStore.
func (s *SQLiteStore) FindByInputHash(ctx context.Context, inputHash string) ([]Summary, error) {
	return s.query(ctx, `SELECT run_id, strategy_id, status, input_hash, final_equity, total_trades
		FROM results WHERE input_hash = ? ORDER BY seq`, inputHash)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	result := make([]Summary, 0)
	for rows.Next() {
		var (
			sum    Summary
			status string
			equity string
		)
		if err := rows.Scan(&sum.RunID, &sum.StrategyID, &status, &sum.InputHash, &equity, &sum.TotalTrades); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		sum.Status = backtesting.State(status)
		if sum.FinalEquity, err = decimal.NewFromString(equity); err != nil {
			return nil, fmt.Errorf("parse final equity of %s: %w", sum.RunID, err)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Close implements ResultStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
