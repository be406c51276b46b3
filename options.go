package ssar

import (
	"log/slog"
	"time"
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger          *slog.Logger
	evaluatorLogger EvaluatorLogger
	store           BackupStore
	progress        ProgressReporter
	confirmer       Confirmer
	now             func() time.Time
	activityHooks   activityHooks
	activityConfig  *activityConfig
}

func applyOptions(opts []Option) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}
	if cfg.evaluatorLogger == nil {
		cfg.evaluatorLogger = SlogEvaluatorLogger(cfg.logger)
	}
	if cfg.progress == nil {
		cfg.progress = noopProgress{}
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return cfg
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) {
		cfg.logger = logger
	}
}

// WithEvaluatorLogger overrides where predicate evaluations are reported.
// Defaults to the engine logger at debug level.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *engineConfig) {
		cfg.evaluatorLogger = logger
	}
}

// WithBackupStore sets the durable backup store. Without one the engine keeps
// backups in memory for the life of the process.
func WithBackupStore(store BackupStore) Option {
	return func(cfg *engineConfig) {
		cfg.store = store
	}
}

// WithProgress sets the progress reporter.
func WithProgress(progress ProgressReporter) Option {
	return func(cfg *engineConfig) {
		cfg.progress = progress
	}
}

// WithConfirmer asks confirmer before every apply.
func WithConfirmer(confirmer Confirmer) Option {
	return func(cfg *engineConfig) {
		cfg.confirmer = confirmer
	}
}

// WithClock overrides time.Now for snapshot and backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) {
		cfg.now = now
	}
}
