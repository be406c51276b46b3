package ssar

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is the coordinator's baseline state.
type State int

const (
	// StateNoBaseline means nothing was captured yet, or the baseline was
	// forgotten.
	StateNoBaseline State = iota
	// StateBaselineCaptured means revert has something to restore.
	StateBaselineCaptured
)

func (s State) String() string {
	if s == StateBaselineCaptured {
		return "baseline_captured"
	}
	return "no_baseline"
}

// Label is derived from the live host, never stored.
type Label string

const (
	LabelApplied  Label = "applied"
	LabelReverted Label = "reverted"
)

// Observation compares the live host against the baseline.
type Observation struct {
	State    State
	Label    Label
	Total    int
	Diverged int
	Missing  int
}

// Coordinator owns the session baseline of one volatile plan.
type Coordinator struct {
	host      Host
	scanner   *Scanner
	snapshots *SnapshotStore
	progress  ProgressReporter
	logger    *slog.Logger
	plan      string
}

// NewCoordinator builds a coordinator for the plan named plan.
func NewCoordinator(host Host, plan string, progress ProgressReporter, logger *slog.Logger, now func() time.Time) *Coordinator {
	if progress == nil {
		progress = noopProgress{}
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Coordinator{
		host:      host,
		scanner:   NewScanner(host, nil, logger),
		snapshots: NewSnapshotStore(now),
		progress:  progress,
		logger:    logger,
		plan:      plan,
	}
}

// State reports whether a baseline exists.
func (c *Coordinator) State() State {
	if c.snapshots.HasBaseline() {
		return StateBaselineCaptured
	}
	return StateNoBaseline
}

// Baseline returns a copy of the captured baseline.
func (c *Coordinator) Baseline() (SnapshotSet, bool) {
	return c.snapshots.Baseline()
}

// CaptureIfAbsent records the current value of plan.Attribute on every
// in-scope object unless a baseline already exists. It reports whether a new
// baseline was captured.
func (c *Coordinator) CaptureIfAbsent(ctx context.Context, plan Plan) (SnapshotSet, bool, error) {
	if plan.Identity != IdentityVolatile {
		return SnapshotSet{}, false, fmt.Errorf("%w: plan %q is not session scoped", ErrIdentityMismatch, plan.Name)
	}
	if existing, ok := c.snapshots.Baseline(); ok {
		return existing, false, nil
	}
	refs, err := c.scanner.Members(ctx, plan.Scope)
	if err != nil {
		return SnapshotSet{}, false, err
	}
	entries := make([]AttributeSnapshot, 0, len(refs))
	for _, ref := range refs {
		if !c.host.HasAttribute(ref, plan.Attribute) {
			continue
		}
		key, ok := c.host.VolatileKey(ref)
		if !ok {
			continue
		}
		value, err := c.host.GetAttribute(ref, plan.Attribute)
		if err != nil {
			c.logger.Debug("capture read failed", "plan", plan.Name, "path", ref.Path, "error", err)
			continue
		}
		entries = append(entries, AttributeSnapshot{
			Key:       key,
			Path:      ref.Path,
			Kind:      ref.Kind,
			Attribute: plan.Attribute,
			Value:     value,
		})
	}
	return c.snapshots.CaptureIfAbsent(plan.Name, entries)
}

// Observe diffs the live values against the baseline.
func (c *Coordinator) Observe(_ context.Context) (Observation, error) {
	set, ok := c.snapshots.Baseline()
	if !ok {
		return Observation{State: StateNoBaseline}, ErrNoBaseline
	}
	obs := Observation{State: StateBaselineCaptured, Total: len(set.Entries)}
	for _, entry := range set.Entries {
		ref, ok := c.host.Resolve(entry.Key)
		if !ok || !c.host.HasAttribute(ref, entry.Attribute) {
			obs.Missing++
			continue
		}
		value, err := c.host.GetAttribute(ref, entry.Attribute)
		if err != nil || !ValuesEqual(value, entry.Value) {
			obs.Diverged++
		}
	}
	obs.Label = LabelReverted
	if obs.Diverged > 0 {
		obs.Label = LabelApplied
	}
	return obs, nil
}

// Revert writes every baseline value back. The baseline is kept, so revert
// can be repeated and a later apply reuses the original baseline.
func (c *Coordinator) Revert(ctx context.Context) (RestoreReport, error) {
	set, ok := c.snapshots.Baseline()
	if !ok {
		return RestoreReport{Plan: c.plan}, ErrNoBaseline
	}
	items := make([]writeItem, len(set.Entries))
	for i, entry := range set.Entries {
		items[i] = writeItem{Key: entry.Key, Path: entry.Path, Attribute: entry.Attribute, Value: entry.Value}
	}
	return writeBack(ctx, c.host, c.progress, c.logger, OpRevert, c.plan, items), nil
}

// ForgetBaseline drops the baseline. The next apply captures a new one from
// whatever values are live at that point.
func (c *Coordinator) ForgetBaseline() bool {
	return c.snapshots.ForgetBaseline()
}
