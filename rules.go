package ssar

import (
	"sort"
	"strings"
	"time"
)

// RuleContext carries inputs needed when evaluating a predicate expression.
//
// Object holds the bindings for one scanned object: current (alias value),
// target, proposed, kind, path, name, attribute and inputs, plus every
// declared plan input that the object exposes.
type RuleContext struct {
	Object    map[string]any
	Now       *time.Time
	Args      map[string]any
	ScopeName string
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Object == nil {
		ctx.Object = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) scopeLabel() string {
	if ctx.ScopeName != "" {
		return ctx.ScopeName
	}
	return "unknown"
}

func (ctx RuleContext) scopeBinding() map[string]any {
	if ctx.ScopeName == "" {
		return nil
	}
	return map[string]any{"name": ctx.ScopeName}
}

// bindingSignature identifies the variable set an object exposes. Engines that
// type-check against declared variables cache one program per signature.
func (ctx RuleContext) bindingSignature() string {
	keys := make([]string, 0, len(ctx.Object))
	for key := range ctx.Object {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}
