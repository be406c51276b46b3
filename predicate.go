package ssar

import (
	"context"
	"fmt"
	"time"
)

// PredicateInput is what a predicate sees for one scanned object.
type PredicateInput struct {
	Object    ObjectRef
	Key       Key
	Attribute string
	Current   any
	Target    any
	Proposed  any
	Inputs    map[string]any
	Scope     string
}

// Predicate decides whether an object should be changed.
type Predicate interface {
	Match(ctx context.Context, in PredicateInput) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx context.Context, in PredicateInput) (bool, error)

// Match implements Predicate.
func (fn PredicateFunc) Match(ctx context.Context, in PredicateInput) (bool, error) {
	if fn == nil {
		return false, nil
	}
	return fn(ctx, in)
}

// NotEqual matches when the current value is not equal to the proposed value.
// It is the default predicate for plans that leave Predicate unset.
func NotEqual() Predicate {
	return PredicateFunc(func(_ context.Context, in PredicateInput) (bool, error) {
		return !ValuesEqual(in.Current, in.Proposed), nil
	})
}

// GreaterThan matches numeric values strictly above the target.
func GreaterThan() Predicate {
	return PredicateFunc(func(_ context.Context, in PredicateInput) (bool, error) {
		return compareToTarget(in, func(c int) bool { return c > 0 })
	})
}

// AtLeast matches numeric values at or above the target.
func AtLeast() Predicate {
	return PredicateFunc(func(_ context.Context, in PredicateInput) (bool, error) {
		return compareToTarget(in, func(c int) bool { return c >= 0 })
	})
}

// All matches when every predicate matches. Evaluation stops at the first
// mismatch or error.
func All(predicates ...Predicate) Predicate {
	return PredicateFunc(func(ctx context.Context, in PredicateInput) (bool, error) {
		for _, p := range predicates {
			if p == nil {
				continue
			}
			ok, err := p.Match(ctx, in)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

func compareToTarget(in PredicateInput, accept func(int) bool) (bool, error) {
	c, ok := CompareNumbers(in.Current, in.Target)
	if !ok {
		return false, fmt.Errorf("ssar: numeric comparison of %s with %s", formatValue(in.Current), formatValue(in.Target))
	}
	return accept(c), nil
}

// RuleOption configures a rule predicate.
type RuleOption func(*rulePredicate)

// RuleWithLogger records every evaluation.
func RuleWithLogger(logger EvaluatorLogger) RuleOption {
	return func(r *rulePredicate) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RuleWithArgs exposes args to the expression as the "args" binding.
func RuleWithArgs(args map[string]any) RuleOption {
	return func(r *rulePredicate) {
		r.args = args
	}
}

// RuleWithClock overrides the "now" binding.
func RuleWithClock(now func() time.Time) RuleOption {
	return func(r *rulePredicate) {
		if now != nil {
			r.now = now
		}
	}
}

type rulePredicate struct {
	engine     string
	expression string
	rule       CompiledRule
	logger     EvaluatorLogger
	args       map[string]any
	now        func() time.Time
}

// RulePredicate compiles expression with evaluator. The expression sees the
// bindings current (alias value), target, proposed, kind, path, name,
// attribute and inputs, plus every plan input the object exposes as a top
// level name. It must yield a bool.
func RulePredicate(evaluator Evaluator, expression string, opts ...RuleOption) (Predicate, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("ssar: rule predicate requires an evaluator")
	}
	rule, err := evaluator.Compile(expression)
	if err != nil {
		return nil, err
	}
	r := &rulePredicate{
		engine:     evaluatorEngineName(evaluator),
		expression: expression,
		rule:       rule,
		logger:     noopEvaluatorLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *rulePredicate) Match(_ context.Context, in PredicateInput) (bool, error) {
	now := r.now()
	rc := RuleContext{
		Object:    objectBindings(in),
		Now:       &now,
		Args:      r.args,
		ScopeName: in.Scope,
	}
	start := time.Now()
	result, err := r.rule.Evaluate(rc)
	object := in.Key.String()
	if err != nil {
		err = withObject(wrapEvaluationError(r.engine, r.expression, rc.scopeLabel(), err), object)
	} else if _, ok := result.(bool); !ok {
		err = &EvaluationError{
			Engine: r.engine,
			Expr:   r.expression,
			Scope:  rc.scopeLabel(),
			Object: object,
			Err:    fmt.Errorf("result %T is not a bool", result),
		}
	}
	r.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   r.engine,
		Expr:     r.expression,
		Scope:    rc.scopeLabel(),
		Object:   object,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func objectBindings(in PredicateInput) map[string]any {
	bindings := make(map[string]any, len(in.Inputs)+9)
	inputs := make(map[string]any, len(in.Inputs))
	for name, value := range in.Inputs {
		inputs[name] = NormalizeValue(value)
		bindings[name] = inputs[name]
	}
	bindings["inputs"] = inputs
	bindings["attribute"] = in.Attribute
	bindings["current"] = NormalizeValue(in.Current)
	bindings["value"] = bindings["current"]
	bindings["target"] = NormalizeValue(in.Target)
	bindings["proposed"] = NormalizeValue(in.Proposed)
	bindings["kind"] = in.Object.Kind
	bindings["path"] = in.Object.Path
	bindings["name"] = in.Object.Name
	return bindings
}
