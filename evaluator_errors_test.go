package ssar

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapEvaluationErrorCreatesMetadata(t *testing.T) {
	base := errors.New("boom")
	err := wrapEvaluationError("expr", "value > target && missing", "scene", base)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", err)
	}
	if evalErr.Engine != "expr" {
		t.Fatalf("expected engine expr, got %q", evalErr.Engine)
	}
	if evalErr.Expr != "value > target && missing" {
		t.Fatalf("expected expression metadata, got %q", evalErr.Expr)
	}
	if evalErr.Scope != "scene" {
		t.Fatalf("expected scope metadata, got %q", evalErr.Scope)
	}
	if !errors.Is(evalErr.Err, base) {
		t.Fatalf("wrapped error should unwrap to base error")
	}
}

func TestWrapEvaluationErrorAugmentsExisting(t *testing.T) {
	base := errors.New("compile failure")
	existing := &EvaluationError{
		Engine: "expr",
		Err:    base,
	}

	err := wrapEvaluationError("cel", "value >= 1024", "textures", existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if existing.Engine != "expr" {
		t.Fatalf("existing engine should not be overwritten, got %q", existing.Engine)
	}
	if existing.Expr != "value >= 1024" {
		t.Fatalf("expression should be filled, got %q", existing.Expr)
	}
	if existing.Scope != "textures" {
		t.Fatalf("scope should be filled, got %q", existing.Scope)
	}
}

func TestWithObjectTagsEvaluationError(t *testing.T) {
	err := withObject(wrapEvaluationError("expr", "value", "scene", errors.New("bad")), "d:tex-1")
	if !strings.Contains(err.Error(), "object=d:tex-1") {
		t.Fatalf("expected object in message, got %q", err.Error())
	}
	plain := withObject(errors.New("plain"), "d:tex-1")
	if plain.Error() != "plain" {
		t.Fatalf("non evaluation errors must pass through, got %q", plain.Error())
	}
}

func TestWrapEvaluatorErrorKeepsPrefixedErrors(t *testing.T) {
	err := wrapEvaluatorError("cel", errors.New("ssar: already wrapped"))
	if err.Error() != "ssar: already wrapped" {
		t.Fatalf("unexpected rewrap: %q", err.Error())
	}
	err = wrapEvaluatorError("cel", errors.New("raw"))
	if err.Error() != "ssar: cel evaluator: raw" {
		t.Fatalf("unexpected wrap: %q", err.Error())
	}
}
