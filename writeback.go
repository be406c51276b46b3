package ssar

import (
	"context"
	"log/slog"
)

// writeItem is one value to put back on a host object.
type writeItem struct {
	Key       Key
	Path      string
	Attribute string
	Value     any
}

// writeBack restores items inside one batch and refreshes each restored
// object once after the batch is released. Objects that no longer resolve or
// no longer carry the attribute are counted missing.
func writeBack(ctx context.Context, host Host, progress ProgressReporter, logger *slog.Logger, op, plan string, items []writeItem) RestoreReport {
	report := RestoreReport{Plan: plan}
	var restored []ObjectRef

	func() {
		host.BeginBatch()
		defer host.EndBatch()

		seen := make(map[Key]struct{})
		for i, item := range items {
			if ctx.Err() != nil {
				report.Canceled = true
				return
			}
			progress.Report(ProgressEvent{Operation: op, Plan: plan, Done: i + 1, Total: len(items), Path: item.Path})

			ref, ok := host.Resolve(item.Key)
			if !ok || !host.HasAttribute(ref, item.Attribute) {
				report.Missing++
				logger.Debug("object missing", "op", op, "plan", plan, "key", item.Key.String(), "path", item.Path)
				continue
			}
			current, err := host.GetAttribute(ref, item.Attribute)
			if err == nil && ValuesEqual(current, item.Value) {
				report.Unchanged++
				continue
			}
			if err := host.SetAttribute(ref, item.Attribute, item.Value); err != nil {
				report.Failed++
				report.Failures = append(report.Failures, writeFailure(op, item.Key, ref.Path, item.Attribute, err))
				logger.Warn("restore write failed", "op", op, "plan", plan, "path", ref.Path, "error", err)
				continue
			}
			report.Restored++
			if _, dup := seen[ref.Key]; !dup {
				seen[ref.Key] = struct{}{}
				restored = append(restored, ref)
			}
		}
	}()

	refreshAll(ctx, host, logger, op, restored)
	return report
}

// refreshAll runs the deferred per-object refresh. It ignores cancellation:
// every object that was written gets refreshed.
func refreshAll(ctx context.Context, host Host, logger *slog.Logger, op string, refs []ObjectRef) {
	for _, ref := range refs {
		if err := host.Refresh(context.WithoutCancel(ctx), ref); err != nil {
			logger.Warn("refresh failed", "op", op, "path", ref.Path, "error", err)
		}
	}
}
