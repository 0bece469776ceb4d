package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoedge/cryptoedge/trading"
)

func TestNewCreatesLogDirAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(dir)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.LogSkip("m1", "below-min-edge")
	require.NoError(t, logger.Sync())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestLogOpenAndCloseTallyCounts(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir)
	require.NoError(t, err)

	reason := trading.CloseReasonEdgeAligned
	pos := trading.Position{
		MarketID:   "m1",
		Symbol:     "BTC",
		Side:       trading.SideShort,
		EntryPrice: 0.40,
		Notional:   75,
		Shares:     125,
		ClosePrice: 0.32,
		RealizedPnl: 10,
		CloseReason: &reason,
	}
	logger.LogOpen(pos)
	logger.LogClose(pos)
	require.NoError(t, logger.Sync())

	assert.Equal(t, 1, logger.entriesLogged)
	assert.Equal(t, 1, logger.exitsLogged)
}

func TestLogCycleDoesNotPanicOnEmptyState(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir)
	require.NoError(t, err)

	state := trading.NewBotState(trading.DefaultBotConfig())
	state.LastUpdate = time.Now()
	logger.LogCycle(state)
	require.NoError(t, logger.Sync())
}

func TestLogErrorIncrementsErrorCount(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir)
	require.NoError(t, err)

	logger.LogError("fetch failed", assert.AnError)
	require.NoError(t, logger.Sync())
	assert.Equal(t, 1, logger.errorsLogged)
}

func TestPerformanceTrackerTracksWinRateAndDrawdown(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir)
	require.NoError(t, err)
	tracker := NewPerformanceTracker(logger)

	tracker.UpdateBalance(1000)
	tracker.RecordTrade(50)
	tracker.UpdateBalance(1050)
	tracker.RecordTrade(-20)
	tracker.UpdateBalance(1030)

	assert.Equal(t, 2, tracker.trades)
	assert.Equal(t, 1, tracker.winningTrades)
	assert.Equal(t, 1, tracker.losingTrades)
	assert.InDelta(t, 30.0, tracker.totalPnl, 1e-9)
	assert.InDelta(t, 20.0/1050.0*100, tracker.maxDrawdown*100, 1e-6)

	tracker.LogSummary()
	require.NoError(t, logger.Sync())
}
