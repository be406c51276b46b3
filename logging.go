package ssar

import (
	"context"
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func logSummary(ctx context.Context, logger *slog.Logger, summary Summary) {
	level := slog.LevelInfo
	if summary.Failed > 0 || summary.Canceled {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "operation completed",
		slog.String("operation", summary.Operation),
		slog.String("plan", summary.Plan),
		slog.Int("changed", summary.Changed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Int("missing", summary.Missing),
		slog.Int("not_applicable", summary.NotApplicable),
		slog.Bool("canceled", summary.Canceled),
	)
}
