package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/guyghost/cryptosim/internal/backtesting"
	"github.com/guyghost/cryptosim/internal/costs"
	"github.com/guyghost/cryptosim/internal/logger"
	"github.com/guyghost/cryptosim/internal/strategy"
	"github.com/guyghost/cryptosim/internal/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runResult(t *testing.T, size int64, bars int) *backtesting.Result {
	t.Helper()
	cfg := backtesting.DefaultRunConfig()
	cfg.Costs = costs.Config{}
	cfg.Logger = logger.Discard()

	engine, err := backtesting.NewEngine(strategy.Strategy{
		ID:                  "dip",
		Instruments:         []string{"BTC-USD"},
		EntryConditions:     []string{"CLOSE < SMA(5)"},
		ExitConditions:      []string{"CLOSE > SMA(5)"},
		PositionSizePercent: decimal.NewFromInt(size),
	}, cfg)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), testutils.SampleBars()[:bars])
	require.NoError(t, err)
	return res
}

func stores(t *testing.T) map[string]ResultStore {
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]ResultStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestResultStore(t *testing.T) {
	first := runResult(t, 50, 100)
	second := runResult(t, 25, 100)
	third := runResult(t, 50, 60)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, res := range []*backtesting.Result{first, second, third} {
				require.NoError(t, store.Save(ctx, res))
			}
			assert.ErrorIs(t, store.Save(ctx, first), ErrDuplicateKey)
			assert.ErrorIs(t, store.Save(ctx, nil), ErrInvalidInput)
			assert.ErrorIs(t, store.Save(ctx, &backtesting.Result{}), ErrInvalidInput)

			got, err := store.Get(ctx, first.RunID)
			require.NoError(t, err)
			want, err := json.Marshal(first)
			require.NoError(t, err)
			have, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(have))

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			all, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, first.RunID, all[0].RunID)
			assert.Equal(t, third.RunID, all[2].RunID)
			assert.Equal(t, "dip", all[0].StrategyID)
			assert.Equal(t, backtesting.StateCompleted, all[0].Status)
			assert.Equal(t, len(first.Trades), all[0].TotalTrades)
			assert.True(t, first.FinalEquity.Equal(all[0].FinalEquity))

			same, err := store.FindByInputHash(ctx, first.Manifest.InputHash)
			require.NoError(t, err)
			require.Len(t, same, 2)
			assert.Equal(t, first.RunID, same[0].RunID)
			assert.Equal(t, second.RunID, same[1].RunID)

			none, err := store.FindByInputHash(ctx, "nope")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	res := runResult(t, 50, 100)
	require.NoError(t, store.Save(ctx, res))

	got, err := store.Get(ctx, res.RunID)
	require.NoError(t, err)
	got.StrategyID = "mutated"

	again, err := store.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "dip", again.StrategyID)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	res := runResult(t, 50, 100)

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, res))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, got.RunID)
	assert.True(t, res.FinalEquity.Equal(got.FinalEquity))
}
