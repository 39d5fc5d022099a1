package game

import "log/slog"

// flushTelemetry closes the current stats window over the freshly read frame
// and hands it to the callback, the log and the CSV output. Output errors are
// logged and do not stop the run.
func (g *Game) flushTelemetry() {
	stats := g.collector.Flush(g.orch.TickCount(), g.frame.Cells)
	perf := g.perfCollector.Stats()
	g.lastWindow, g.haveWindow = stats, true

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}
	if g.logStats {
		stats.LogStats()
		slog.Info("perf window", "run_id", g.runID, "tick", stats.WindowEndTick, "perf", perf)
	}
	if err := g.outputManager.WriteWindow(stats, perf); err != nil {
		slog.Error("failed to write stats window", "tick", stats.WindowEndTick, "error", err)
	}
}
