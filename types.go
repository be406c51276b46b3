package ssar

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Candidate is a proposed mutation derived from a scan. Candidates are never
// persisted; rescan instead of caching them across host changes.
type Candidate struct {
	Key        Key
	Path       string
	Kind       string
	Attribute  string
	Current    any
	Proposed   any
	WillChange bool
	Reason     string
}

// AttributeSnapshot is one captured attribute value. Immutable once captured.
type AttributeSnapshot struct {
	Key       Key
	Path      string
	Kind      string
	Attribute string
	Value     any
}

// SnapshotSet is the session baseline used by revert. It is keyed by volatile
// ids and therefore refuses every serialisation path.
type SnapshotSet struct {
	ID        string
	Plan      string
	CreatedAt time.Time
	Committed bool
	Entries   []AttributeSnapshot
}

// Len returns the number of captured entries.
func (s SnapshotSet) Len() int { return len(s.Entries) }

// MarshalJSON implements json.Marshaler and always fails.
func (SnapshotSet) MarshalJSON() ([]byte, error) { return nil, ErrVolatilePersist }

// MarshalText implements encoding.TextMarshaler and always fails.
func (SnapshotSet) MarshalText() ([]byte, error) { return nil, ErrVolatilePersist }

// MarshalYAML implements yaml.Marshaler and always fails.
func (SnapshotSet) MarshalYAML() (any, error) { return nil, ErrVolatilePersist }

// ReadFunc gives proposers and predicates read-only access to other objects.
type ReadFunc func(key Key, attribute string) (any, bool)

// ProposeInput carries what a proposer needs to compute a per-object value.
type ProposeInput struct {
	Object  ObjectRef
	Current any
	Target  any
	Inputs  map[string]any
	Read    ReadFunc
}

// ProposeFunc returns the value an object should end up with. Returning
// ErrNotApplicable drops the object from the candidate list.
type ProposeFunc func(ctx context.Context, in ProposeInput) (any, error)

// WriteFunc replaces the default SetAttribute call when a plan needs host side
// work around the write.
type WriteFunc func(ctx context.Context, host Host, ref ObjectRef, attribute string, value any) error

// Plan describes one scan/apply/revert cycle.
type Plan struct {
	// Name identifies the plan in logs, events and as the backup namespace.
	Name      string
	Scope     Scope
	Attribute string
	Target    any
	// Identity selects the revert mechanism: volatile plans use the session
	// baseline, durable plans use the backup ledger.
	Identity  Identity
	// Inputs are extra attributes bound for proposers and predicates when the
	// object exposes them. Requires lists inputs without which the object is
	// not applicable.
	Inputs    []string
	Requires  []string
	Predicate Predicate
	Propose   ProposeFunc
	Write     WriteFunc
}

// Validate checks the plan is complete enough to scan.
func (p Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("ssar: plan name is required")
	}
	if strings.TrimSpace(p.Attribute) == "" {
		return fmt.Errorf("ssar: plan %q: attribute is required", p.Name)
	}
	if p.Identity != IdentityVolatile && p.Identity != IdentityDurable {
		return fmt.Errorf("ssar: plan %q: identity must be volatile or durable", p.Name)
	}
	if len(p.Scope.Kinds) == 0 {
		return fmt.Errorf("ssar: plan %q: scope kinds are required", p.Name)
	}
	if p.Scope.reachable() && len(p.Scope.From) == 0 {
		return fmt.Errorf("ssar: plan %q: reachable scope needs source kinds", p.Name)
	}
	return nil
}

// ScanResult is the ordered output of one scan.
type ScanResult struct {
	Plan          string
	Scope         string
	Candidates    []Candidate
	Scanned       int
	NotApplicable int
	Fingerprint   string
	Canceled      bool
}

// Changes returns the candidates that would be mutated.
func (r ScanResult) Changes() []Candidate {
	out := make([]Candidate, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		if c.WillChange {
			out = append(out, c)
		}
	}
	return out
}

// ChangeCount returns the number of candidates with WillChange set.
func (r ScanResult) ChangeCount() int {
	n := 0
	for _, c := range r.Candidates {
		if c.WillChange {
			n++
		}
	}
	return n
}

// ApplyReport summarises an apply run.
type ApplyReport struct {
	Plan     string
	Total    int
	Changed  int
	Skipped  int
	Failed   int
	Failures []*ObjectError
	Canceled bool
}

// Summary converts the report into the common end-of-operation summary.
func (r ApplyReport) Summary() Summary {
	return Summary{
		Operation: OpApply,
		Plan:      r.Plan,
		Changed:   r.Changed,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Canceled:  r.Canceled,
	}
}

// RestoreReport summarises a revert or restore run.
type RestoreReport struct {
	Plan      string
	Restored  int
	Unchanged int
	Missing   int
	Failed    int
	Failures  []*ObjectError
	Canceled  bool
}

// Summary converts the report into the common end-of-operation summary.
func (r RestoreReport) Summary(op string) Summary {
	return Summary{
		Operation: op,
		Plan:      r.Plan,
		Changed:   r.Restored,
		Skipped:   r.Unchanged,
		Failed:    r.Failed,
		Missing:   r.Missing,
		Canceled:  r.Canceled,
	}
}

// Operation names used in summaries, progress and activity events.
const (
	OpScan    = "scan"
	OpApply   = "apply"
	OpRevert  = "revert"
	OpRestore = "restore"
	OpClear   = "clear"
)

// Summary is the single end-of-operation count report.
type Summary struct {
	Operation     string
	Plan          string
	Changed       int
	Skipped       int
	Failed        int
	Missing       int
	NotApplicable int
	Canceled      bool
}

func (s Summary) String() string {
	out := fmt.Sprintf("%s %s: changed=%d skipped=%d failed=%d missing=%d",
		s.Operation, s.Plan, s.Changed, s.Skipped, s.Failed, s.Missing)
	if s.NotApplicable > 0 {
		out += fmt.Sprintf(" not_applicable=%d", s.NotApplicable)
	}
	if s.Canceled {
		out += " (canceled)"
	}
	return out
}
