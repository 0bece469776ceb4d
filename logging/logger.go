// Package logging builds the strategy logger every cycle of the Trading
// State Machine writes through. Grounded on
// Praying-binance-grid-bot-go/internal/logger (zap core tee'd across a
// lumberjack-rotated file and the console) and on the teacher's
// utils/logging/logger.go (the StrategyLogger type and its domain-specific
// LogEntry/LogExit/LogStatus methods), rewritten here against
// go.uber.org/zap's structured fields instead of the teacher's
// printf-style fmt.Sprintf lines.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cryptoedge/cryptoedge/trading"
)

// StrategyLogger wraps a zap.SugaredLogger with the cycle/signal/open/close
// vocabulary the Trading State Machine speaks, plus a running tally of
// entries, exits, and errors for LogCycle's summary line.
type StrategyLogger struct {
	*zap.SugaredLogger

	entriesLogged int
	exitsLogged   int
	errorsLogged  int
}

// New builds a StrategyLogger that writes JSON lines to a lumberjack-rotated
// file under logDir (debug level and up, so LogSkip and LogSignal entries
// land there) and human-readable lines to stdout (info level and up), per
// the grid bot's tee'd-core shape.
func New(logDir string) (*StrategyLogger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "cryptoedge.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	})
	// Stdout is written but not fsynced: fsync on a pipe or terminal fails
	// with EINVAL, which would make every Sync call return an error.
	consoleWriter := zapcore.AddSync(struct{ io.Writer }{os.Stdout})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, zapcore.DebugLevel),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), consoleWriter, zapcore.InfoLevel),
	)

	zapLogger := zap.New(core, zap.AddCaller())
	return &StrategyLogger{SugaredLogger: zapLogger.Sugar()}, nil
}

// LogOpen records a position entry.
func (sl *StrategyLogger) LogOpen(pos trading.Position) {
	sl.entriesLogged++
	sl.Infow("position opened",
		"marketID", pos.MarketID,
		"symbol", pos.Symbol,
		"side", pos.Side,
		"entryPrice", pos.EntryPrice,
		"notional", pos.Notional,
		"shares", pos.Shares,
		"entryEdge", pos.EntryEdge,
	)
}

// LogClose records a position exit.
func (sl *StrategyLogger) LogClose(pos trading.Position) {
	sl.exitsLogged++
	reason := ""
	if pos.CloseReason != nil {
		reason = string(*pos.CloseReason)
	}
	sl.Infow("position closed",
		"marketID", pos.MarketID,
		"symbol", pos.Symbol,
		"side", pos.Side,
		"entryPrice", pos.EntryPrice,
		"closePrice", pos.ClosePrice,
		"realizedPnl", pos.RealizedPnl,
		"closeReason", reason,
	)
}

// LogSkip records an opportunity that failed an entry gate. reason should
// name the gate, e.g. "below-min-edge" or "market-already-open".
func (sl *StrategyLogger) LogSkip(marketID, reason string) {
	sl.Debugw("opportunity skipped", "marketID", marketID, "reason", reason)
}

// LogSignal records a ranked opportunity surfaced by the pipeline, before
// any entry-gate evaluation.
func (sl *StrategyLogger) LogSignal(marketID string, edge, confidence float64) {
	sl.Debugw("signal", "marketID", marketID, "edge", edge, "confidence", confidence)
}

// LogError increments the error tally and logs at error level.
func (sl *StrategyLogger) LogError(msg string, err error) {
	sl.errorsLogged++
	sl.Errorw(msg, "error", err)
}

// LogCycle logs a one-line summary of a completed trading cycle.
func (sl *StrategyLogger) LogCycle(state trading.BotState) {
	sl.Infow("cycle complete",
		"balance", state.CurrentBalance,
		"openPositions", len(state.OpenPositions),
		"totalRealizedPnl", state.TotalRealizedPnl,
		"winCount", state.WinCount,
		"lossCount", state.LossCount,
		"entriesLogged", sl.entriesLogged,
		"exitsLogged", sl.exitsLogged,
		"errorsLogged", sl.errorsLogged,
	)
}

// PerformanceTracker accumulates win/loss/drawdown stats across a run for
// the shutdown summary. Adapted from the teacher's
// utils/logging/logger.go's PerformanceTracker, over StrategyLogger's
// structured fields instead of its printf-style Info lines.
type PerformanceTracker struct {
	logger *StrategyLogger

	startTime     time.Time
	trades        int
	winningTrades int
	losingTrades  int
	totalPnl      float64
	peakBalance   float64
	maxDrawdown   float64
}

// NewPerformanceTracker builds a tracker that logs through logger.
func NewPerformanceTracker(logger *StrategyLogger) *PerformanceTracker {
	return &PerformanceTracker{logger: logger, startTime: time.Now()}
}

// RecordTrade records one closed position's realized P&L.
func (pt *PerformanceTracker) RecordTrade(pnl float64) {
	pt.trades++
	pt.totalPnl += pnl
	if pnl > 0 {
		pt.winningTrades++
	} else if pnl < 0 {
		pt.losingTrades++
	}
}

// UpdateBalance records a new balance reading and tracks drawdown from the
// peak balance observed so far.
func (pt *PerformanceTracker) UpdateBalance(balance float64) {
	if balance > pt.peakBalance {
		pt.peakBalance = balance
	}
	if pt.peakBalance <= 0 {
		return
	}
	drawdown := (pt.peakBalance - balance) / pt.peakBalance
	if drawdown > pt.maxDrawdown {
		pt.maxDrawdown = drawdown
	}
}

// LogSummary logs a run's aggregate performance, meant to be called once at
// shutdown.
func (pt *PerformanceTracker) LogSummary() {
	winRate := 0.0
	avgPnl := 0.0
	if pt.trades > 0 {
		winRate = float64(pt.winningTrades) / float64(pt.trades) * 100
		avgPnl = pt.totalPnl / float64(pt.trades)
	}
	pt.logger.Infow("performance summary",
		"runtime", time.Since(pt.startTime).String(),
		"totalTrades", pt.trades,
		"winRatePct", winRate,
		"totalPnl", pt.totalPnl,
		"maxDrawdownPct", pt.maxDrawdown*100,
		"avgPnlPerTrade", avgPnl,
	)
}
