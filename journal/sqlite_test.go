package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"runs", "trades", "equity", "decisions"} {
		assert.True(t, found[table], table)
	}
}

func sampleTrade(runID, id string, closeAt time.Time, pl float64) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    id,
		Symbol:     "XRPUSDT",
		Side:       "short",
		Size:       20,
		Leverage:   1,
		EntryPrice: 0.61,
		ExitPrice:  0.6,
		OpenTime:   closeAt.Add(-time.Hour),
		CloseTime:  closeAt,
		RealizedPL: pl,
		PnLPct:     pl,
		Fee:        0.04,
		Reason:     "signal",
	}
}

func TestSQLiteTrades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("R1", "T2", base.Add(2*time.Hour), -1)))
	require.NoError(t, j.RecordTrade(sampleTrade("R1", "T1", base.Add(time.Hour), 2.5)))
	require.NoError(t, j.RecordTrade(sampleTrade("R2", "T3", base.Add(3*time.Hour), 1)))

	got, err := j.GetTrade(ctx, "T1")
	require.NoError(t, err)
	want := sampleTrade("R1", "T1", base.Add(time.Hour), 2.5)
	assert.True(t, want.CloseTime.Equal(got.CloseTime))
	assert.True(t, want.OpenTime.Equal(got.OpenTime))
	got.OpenTime, got.CloseTime = want.OpenTime, want.CloseTime
	assert.Equal(t, want, got)

	_, err = j.GetTrade(ctx, "nope")
	assert.ErrorContains(t, err, `trade "nope" not found`)

	byRun, err := j.ListTradesByRun(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	assert.Equal(t, "T1", byRun[0].TradeID)
	assert.Equal(t, "T2", byRun[1].TradeID)

	between, err := j.ListTradesClosedBetween(ctx, base.Add(90*time.Minute), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, "T2", between[0].TradeID)
}

func TestSQLiteEquityAndDecisions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2024, 2, 3, 4, 5, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := ts.Add(time.Duration(i) * 5 * time.Minute)
		require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: at, Balance: 100, Equity: 100 + float64(i), Unrealized: float64(i)}))
		require.NoError(t, j.RecordDecision(DecisionRecord{RunID: "R1", Time: at, Bar: 10 + i, Price: 1.5, Decision: "HOLD", Reasoning: "wait", Position: "long", Unrealized: float64(i)}))
	}
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R2", Time: ts, Balance: 1, Equity: 1}))

	eq, err := j.ListEquityByRun(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, eq, 3)
	assert.InDelta(t, 102, eq[2].Equity, 1e-9)
	assert.True(t, eq[1].Time.Equal(ts.Add(5*time.Minute)))

	ds, err := j.ListDecisionsByRun(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, ds, 3)
	assert.Equal(t, 12, ds[2].Bar)
	assert.Equal(t, "long", ds[2].Position)
}

func TestSQLiteRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, _ := newTestSQLite(t)
	defer j.Close()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r1 := RunRecord{RunID: "A", Created: created, Symbol: "XRPUSDT", Timeframe: "5m", Dataset: "csv", Agent: "momentum", Params: "{}", Status: "finished",
		Start: created.Add(-time.Hour), End: created, Bars: 12, Trades: 2, Wins: 1, Losses: 1, StartBalance: 100, EndBalance: 101, NetPL: 1, ReturnPct: 1, WinRate: 50, ProfitFactor: 2, MaxDDPct: 0.5}
	r2 := r1
	r2.RunID, r2.Created, r2.Status = "B", created.Add(time.Hour), "liquidated"

	require.NoError(t, j.RecordRun(ctx, r1))
	require.NoError(t, j.RecordRun(ctx, r2))

	got, err := j.GetRun(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "momentum", got.Agent)
	assert.Equal(t, 12, got.Bars)
	assert.InDelta(t, 2, got.ProfitFactor, 1e-9)
	assert.True(t, got.Start.Equal(r1.Start))

	_, err = j.GetRun(ctx, "Z")
	assert.ErrorContains(t, err, `run "Z" not found`)

	runs, err := j.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "B", runs[0].RunID)

	runs, err = j.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	// replacing a run keeps one row
	r1.Status = "stopped"
	require.NoError(t, j.RecordRun(ctx, r1))
	got, err = j.GetRun(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "stopped", got.Status)
}
