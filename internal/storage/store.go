// Package storage keeps run results so identical inputs can be looked up and
// compared later.
package storage

import (
	"context"
	"errors"

	"github.com/guyghost/cryptosim/internal/backtesting"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested result does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a run ID is saved twice. Results are immutable.
	ErrDuplicateKey = errors.New("duplicate key: results are immutable")

	// ErrInvalidInput is returned for nil results or empty run IDs.
	ErrInvalidInput = errors.New("invalid input")
)

// Summary is the indexed part of a stored result.
type Summary struct {
	RunID       string            `json:"run_id"`
	StrategyID  string            `json:"strategy_id"`
	Status      backtesting.State `json:"status"`
	InputHash   string            `json:"input_hash"`
	FinalEquity decimal.Decimal   `json:"final_equity"`
	TotalTrades int               `json:"total_trades"`
}

// ResultStore persists run results.
type ResultStore interface {
	// Save stores res. Returns ErrDuplicateKey if its run ID exists.
	Save(ctx context.Context, res *backtesting.Result) error

	// Get retrieves a result by run ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, runID string) (*backtesting.Result, error)

	// List returns every stored result in save order.
	List(ctx context.Context) ([]Summary, error)

	// FindByInputHash returns results computed over the same bars, in save order.
	FindByInputHash(ctx context.Context, inputHash string) ([]Summary, error)

	Close() error
}

func summarize(res *backtesting.Result) Summary {
	return Summary{
		RunID:       res.RunID,
		StrategyID:  res.StrategyID,
		Status:      res.Status,
		InputHash:   res.Manifest.InputHash,
		FinalEquity: res.FinalEquity,
		TotalTrades: len(res.Trades),
	}
}

func checkResult(res *backtesting.Result) error {
	if res == nil || res.RunID == "" {
		return ErrInvalidInput
	}
	return nil
}
