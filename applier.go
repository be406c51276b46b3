package ssar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Applier writes scanned proposals back to the host.
type Applier struct {
	host     Host
	ledger   *BackupLedger
	progress ProgressReporter
	logger   *slog.Logger
}

// NewApplier builds an applier. ledger may be nil when only volatile plans
// are applied.
func NewApplier(host Host, ledger *BackupLedger, progress ProgressReporter, logger *slog.Logger) *Applier {
	if progress == nil {
		progress = noopProgress{}
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Applier{host: host, ledger: ledger, progress: progress, logger: logger}
}

// Apply mutates every candidate marked WillChange. Each object is re-read
// right before the write; if it already holds the proposed value, or no
// longer resolves, it is skipped as stale. Durable plans back up the fresh
// value first. Write failures are collected and processing continues. All
// writes share one batch and every changed object is refreshed once after it.
func (a *Applier) Apply(ctx context.Context, plan Plan, candidates []Candidate) (ApplyReport, error) {
	report := ApplyReport{Plan: plan.Name, Total: len(candidates)}
	if plan.Identity == IdentityDurable && a.ledger == nil {
		return report, fmt.Errorf("ssar: plan %q is durable but no backup store is configured", plan.Name)
	}

	pending := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.WillChange {
			pending = append(pending, c)
		} else {
			report.Skipped++
		}
	}
	if len(pending) == 0 {
		return report, nil
	}

	var changed []ObjectRef
	func() {
		a.host.BeginBatch()
		defer a.host.EndBatch()

		seen := make(map[Key]struct{})
		for i, c := range pending {
			if ctx.Err() != nil {
				report.Canceled = true
				return
			}
			a.progress.Report(ProgressEvent{Operation: OpApply, Plan: plan.Name, Done: i + 1, Total: len(pending), Path: c.Path})

			ref, err := a.applyOne(ctx, plan, c)
			switch {
			case err == nil:
				report.Changed++
				if _, dup := seen[ref.Key]; !dup {
					seen[ref.Key] = struct{}{}
					changed = append(changed, ref)
				}
			case isStale(err):
				report.Skipped++
				a.logger.Debug("candidate skipped", "plan", plan.Name, "path", c.Path, "reason", err)
			default:
				report.Failed++
				report.Failures = append(report.Failures, objectError(OpApply, c.Key, c.Path, c.Attribute, err))
				a.logger.Warn("apply failed", "plan", plan.Name, "path", c.Path, "error", err)
			}
		}
	}()

	refreshAll(ctx, a.host, a.logger, OpApply, changed)
	return report, nil
}

func (a *Applier) applyOne(ctx context.Context, plan Plan, c Candidate) (ObjectRef, error) {
	ref, ok := a.host.Resolve(c.Key)
	if !ok {
		return ObjectRef{}, objectError(OpApply, c.Key, c.Path, c.Attribute, ErrResolutionFailure)
	}
	if !a.host.HasAttribute(ref, c.Attribute) {
		return ObjectRef{}, objectError(OpApply, c.Key, ref.Path, c.Attribute, ErrStaleCandidate)
	}
	fresh, err := a.host.GetAttribute(ref, c.Attribute)
	if err != nil {
		return ObjectRef{}, objectError(OpApply, c.Key, ref.Path, c.Attribute, fmt.Errorf("%w: %w", ErrStaleCandidate, err))
	}
	if ValuesEqual(fresh, c.Proposed) {
		return ObjectRef{}, objectError(OpApply, c.Key, ref.Path, c.Attribute, ErrStaleCandidate)
	}

	if plan.Identity == IdentityDurable {
		if _, err := a.ledger.EnsureBackedUp(ctx, plan.Name, c.Key, c.Attribute, ref.Path, fresh); err != nil {
			return ObjectRef{}, err
		}
	}

	if plan.Write != nil {
		err = plan.Write(ctx, a.host, ref, c.Attribute, c.Proposed)
	} else {
		err = a.host.SetAttribute(ref, c.Attribute, c.Proposed)
	}
	if err != nil {
		return ObjectRef{}, writeFailure(OpApply, c.Key, ref.Path, c.Attribute, err)
	}
	return ref, nil
}

func isStale(err error) bool {
	return errors.Is(err, ErrStaleCandidate) || errors.Is(err, ErrResolutionFailure)
}

// ApplyTarget returns a copy of candidates proposing target for every object.
// Candidates already at target stop being marked WillChange.
func ApplyTarget(candidates []Candidate, target any) []Candidate {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Proposed = NormalizeValue(target)
		if ValuesEqual(c.Current, c.Proposed) {
			c.WillChange = false
		}
		out[i] = c
	}
	return out
}
