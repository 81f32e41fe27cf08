package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tp, ep, dp := filepath.Join(dir, "trades.csv"), filepath.Join(dir, "equity.csv"), filepath.Join(dir, "decisions.csv")

	j, err := NewCSV(tp, ep, dp)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, tp))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, ep))
	assert.Equal(t, [][]string{decisionHeader}, readCSV(t, dp))
}

func TestCSVJournalRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tp, ep := filepath.Join(dir, "trades.csv"), filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tp, ep, "")
	require.NoError(t, err)

	open := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	closeT := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)

	require.NoError(t, j.RecordTrade(TradeRecord{
		RunID:      "R1",
		TradeID:    "T1",
		Symbol:     "XRPUSDT",
		Side:       "long",
		Size:       20,
		Leverage:   2,
		EntryPrice: 0.5123456,
		ExitPrice:  0.5234567,
		OpenTime:   open,
		CloseTime:  closeT,
		RealizedPL: -12.5,
		PnLPct:     -12.5,
		Fee:        0.08,
		Reason:     "signal",
	}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: closeT, Balance: 87.5, Equity: 87.5}))
	// no decisions file configured
	require.NoError(t, j.RecordDecision(DecisionRecord{RunID: "R1", Decision: "BUY"}))
	require.NoError(t, j.Close())

	trades := readCSV(t, tp)
	require.Len(t, trades, 2)
	assert.Equal(t, []string{
		"R1", "T1", "XRPUSDT", "long", "20.000000", "2.000000", "0.512346", "0.523457",
		"2024-01-02T03:04:05Z", "2024-01-02T04:05:06Z", "-12.500000", "-12.500000", "0.080000", "signal",
	}, trades[1])

	equity := readCSV(t, ep)
	require.Len(t, equity, 2)
	assert.Equal(t, []string{"R1", "2024-01-02T04:05:06Z", "87.500000", "87.500000", "0.000000"}, equity[1])
}

func TestNewCSVBadPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewCSV(filepath.Join(dir, "trades.csv"), filepath.Join(dir, "missing", "equity.csv"), "")
	assert.Error(t, err)
}
