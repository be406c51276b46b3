package ssar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-ssar/pkg/backup"
)

// BackupEntry is the durable record of an attribute's original value.
type BackupEntry = backup.Entry

// BackupStore persists backup entries, namespaced by plan name.
type BackupStore = backup.Store

// BackupLedger records original values before durable edits and restores
// them later.
type BackupLedger struct {
	store    BackupStore
	host     Host
	progress ProgressReporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewBackupLedger wires store to host. Nil progress, logger and clock fall
// back to no-op, discard and time.Now.
func NewBackupLedger(store BackupStore, host Host, progress ProgressReporter, logger *slog.Logger, now func() time.Time) *BackupLedger {
	if progress == nil {
		progress = noopProgress{}
	}
	if logger == nil {
		logger = discardLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &BackupLedger{store: store, host: host, progress: progress, logger: logger, now: now}
}

// EnsureBackedUp stores original for (key, attribute) unless an entry exists.
// It reports whether a new entry was written. Only durable keys are accepted.
func (l *BackupLedger) EnsureBackedUp(ctx context.Context, namespace string, key Key, attribute, path string, original any) (bool, error) {
	if key.Identity != IdentityDurable {
		return false, fmt.Errorf("%w: backup requires a durable key, got %s", ErrIdentityMismatch, key)
	}
	stored, err := l.store.PutIfAbsent(ctx, namespace, BackupEntry{
		GUID:      key.ID,
		Attribute: attribute,
		Path:      path,
		Original:  NormalizeValue(original),
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("ssar: back up %s: %w", path, err)
	}
	if stored {
		l.logger.Debug("original backed up", "plan", namespace, "path", path, "attribute", attribute, "value", formatValue(original))
	}
	return stored, nil
}

// Restore writes every recorded original back. Entries stay in the store so
// a restore can be repeated.
func (l *BackupLedger) Restore(ctx context.Context, namespace string) (RestoreReport, error) {
	entries, err := l.store.List(ctx, namespace)
	if err != nil {
		return RestoreReport{Plan: namespace}, fmt.Errorf("ssar: list backups %s: %w", namespace, err)
	}
	items := make([]writeItem, len(entries))
	for i, entry := range entries {
		items[i] = writeItem{
			Key:       DurableKey(entry.GUID),
			Path:      entry.Path,
			Attribute: entry.Attribute,
			Value:     NormalizeValue(entry.Original),
		}
	}
	return writeBack(ctx, l.host, l.progress, l.logger, OpRestore, namespace, items), nil
}

// Entries lists the recorded originals of namespace.
func (l *BackupLedger) Entries(ctx context.Context, namespace string) ([]BackupEntry, error) {
	entries, err := l.store.List(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("ssar: list backups %s: %w", namespace, err)
	}
	return entries, nil
}

// Clear forgets every recorded original of namespace.
func (l *BackupLedger) Clear(ctx context.Context, namespace string) (int, error) {
	n, err := l.store.Clear(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("ssar: clear backups %s: %w", namespace, err)
	}
	return n, nil
}
