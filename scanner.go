package ssar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

// Scanner computes candidate lists. It only reads from the host.
type Scanner struct {
	host     Host
	progress ProgressReporter
	logger   *slog.Logger
}

// NewScanner builds a scanner over host. Nil progress and logger are allowed.
func NewScanner(host Host, progress ProgressReporter, logger *slog.Logger) *Scanner {
	if progress == nil {
		progress = noopProgress{}
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Scanner{host: host, progress: progress, logger: logger}
}

// Scan enumerates the plan scope and proposes a value for every applicable
// object. Only a missing live scope aborts the scan; per-object problems are
// counted as not applicable.
func (s *Scanner) Scan(ctx context.Context, plan Plan) (ScanResult, error) {
	if err := plan.Validate(); err != nil {
		return ScanResult{}, err
	}
	result := ScanResult{Plan: plan.Name, Scope: plan.Scope.label()}
	if err := ctx.Err(); err != nil {
		result.Canceled = true
		return result, nil
	}

	refs, err := s.Members(ctx, plan.Scope)
	if err != nil {
		return result, err
	}
	result.Scanned = len(refs)

	predicate := plan.Predicate
	if predicate == nil {
		predicate = NotEqual()
	}

	for i, ref := range refs {
		if ctx.Err() != nil {
			result.Canceled = true
			break
		}
		candidate, ok := s.candidate(ctx, plan, predicate, ref)
		if ok {
			result.Candidates = append(result.Candidates, candidate)
		} else {
			result.NotApplicable++
		}
		s.progress.Report(ProgressEvent{Operation: OpScan, Plan: plan.Name, Done: i + 1, Total: len(refs), Path: ref.Path})
	}

	sortCandidates(result.Candidates)
	result.Fingerprint = Fingerprint(result.Candidates)
	return result, nil
}

func (s *Scanner) candidate(ctx context.Context, plan Plan, predicate Predicate, ref ObjectRef) (Candidate, bool) {
	log := s.logger.With("plan", plan.Name, "path", ref.Path)
	if !s.host.HasAttribute(ref, plan.Attribute) {
		return Candidate{}, false
	}
	for _, name := range plan.Requires {
		if !s.host.HasAttribute(ref, name) {
			return Candidate{}, false
		}
	}
	key, ok := s.keyFor(plan.Identity, ref)
	if !ok {
		log.Debug("object has no key in plan identity space", "identity", plan.Identity)
		return Candidate{}, false
	}
	current, err := s.host.GetAttribute(ref, plan.Attribute)
	if err != nil {
		log.Debug("attribute read failed", "attribute", plan.Attribute, "error", err)
		return Candidate{}, false
	}
	current = NormalizeValue(current)
	inputs := s.inputs(ref, plan)

	proposed := NormalizeValue(plan.Target)
	if plan.Propose != nil {
		value, err := plan.Propose(ctx, ProposeInput{
			Object:  ref,
			Current: current,
			Target:  plan.Target,
			Inputs:  inputs,
			Read:    s.read,
		})
		if err != nil {
			if !errors.Is(err, ErrNotApplicable) {
				log.Warn("proposer failed", "error", err)
			}
			return Candidate{}, false
		}
		proposed = NormalizeValue(value)
	}

	c := Candidate{
		Key:       key,
		Path:      ref.Path,
		Kind:      ref.Kind,
		Attribute: plan.Attribute,
		Current:   current,
		Proposed:  proposed,
	}
	match, err := predicate.Match(ctx, PredicateInput{
		Object:    ref,
		Key:       key,
		Attribute: plan.Attribute,
		Current:   current,
		Target:    plan.Target,
		Proposed:  proposed,
		Inputs:    inputs,
		Scope:     plan.Scope.label(),
	})
	switch {
	case err != nil:
		c.Reason = "predicate error: " + err.Error()
		log.Warn("predicate failed", "error", err)
	case match && ValuesEqual(current, proposed):
		c.Reason = "already at proposed value"
	case match:
		c.WillChange = true
		c.Reason = fmt.Sprintf("%s -> %s", formatValue(current), formatValue(proposed))
	default:
		c.Reason = "predicate not satisfied"
	}
	return c, true
}

func (s *Scanner) inputs(ref ObjectRef, plan Plan) map[string]any {
	names := append(slices.Clone(plan.Requires), plan.Inputs...)
	inputs := make(map[string]any, len(names))
	for _, name := range names {
		if _, seen := inputs[name]; seen || !s.host.HasAttribute(ref, name) {
			continue
		}
		value, err := s.host.GetAttribute(ref, name)
		if err != nil {
			continue
		}
		inputs[name] = NormalizeValue(value)
	}
	return inputs
}

func (s *Scanner) read(key Key, attribute string) (any, bool) {
	ref, ok := s.host.Resolve(key)
	if !ok || !s.host.HasAttribute(ref, attribute) {
		return nil, false
	}
	value, err := s.host.GetAttribute(ref, attribute)
	if err != nil {
		return nil, false
	}
	return NormalizeValue(value), true
}

func (s *Scanner) keyFor(identity Identity, ref ObjectRef) (Key, bool) {
	if identity == IdentityDurable {
		return s.host.DurableKey(ref)
	}
	return s.host.VolatileKey(ref)
}

// Members resolves scope to the objects it contains, in enumeration order.
func (s *Scanner) Members(ctx context.Context, scope Scope) ([]ObjectRef, error) {
	if !scope.reachable() {
		refs, err := s.host.Enumerate(ctx, scope.Kinds, scope.IncludeInactive)
		if err != nil {
			return nil, fmt.Errorf("ssar: enumerate %s: %w", scope.label(), err)
		}
		return liveOnly(refs, scope.Kinds), nil
	}

	roots, err := s.host.Enumerate(ctx, scope.From, scope.IncludeInactive)
	if err != nil {
		return nil, fmt.Errorf("ssar: enumerate %s: %w", scope.label(), err)
	}
	frontier := liveOnly(roots, scope.From)
	for _, attribute := range scope.Via {
		frontier = s.follow(frontier, attribute)
	}
	out := frontier[:0]
	for _, ref := range frontier {
		if slices.Contains(scope.Kinds, ref.Kind) {
			out = append(out, ref)
		}
	}
	return out, nil
}

// follow resolves the references stored under attribute on every ref and
// returns the distinct targets.
func (s *Scanner) follow(refs []ObjectRef, attribute string) []ObjectRef {
	seen := make(map[Key]struct{})
	var next []ObjectRef
	for _, ref := range refs {
		if !s.host.HasAttribute(ref, attribute) {
			continue
		}
		value, err := s.host.GetAttribute(ref, attribute)
		if err != nil {
			continue
		}
		for _, key := range ReferenceKeys(value) {
			target, ok := s.host.Resolve(key)
			if !ok {
				continue
			}
			if _, dup := seen[target.Key]; dup {
				continue
			}
			seen[target.Key] = struct{}{}
			next = append(next, target)
		}
	}
	return next
}

// ReferenceKeys accepts a Key, a slice of keys, or a slice of any holding
// keys. Anything else carries no references.
func ReferenceKeys(value any) []Key {
	switch typed := value.(type) {
	case Key:
		if typed.IsZero() {
			return nil
		}
		return []Key{typed}
	case []Key:
		return typed
	case []any:
		keys := make([]Key, 0, len(typed))
		for _, item := range typed {
			if key, ok := item.(Key); ok && !key.IsZero() {
				keys = append(keys, key)
			}
		}
		return keys
	default:
		return nil
	}
}

func liveOnly(refs []ObjectRef, kinds []string) []ObjectRef {
	out := make([]ObjectRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Persistent || !ref.InLiveScope {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, ref.Kind) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Attribute != b.Attribute {
			return a.Attribute < b.Attribute
		}
		return a.Key.String() < b.Key.String()
	})
}
