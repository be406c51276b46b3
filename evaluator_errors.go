package ssar

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError captures predicate evaluation metadata alongside the
// originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Scope  string
	Object string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("ssar: %s predicate %s scope=%s", e.Engine, describeExpression(e.Expr), e.Scope)
	if e.Object != "" {
		msg += " object=" + e.Object
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	if strings.HasPrefix(err.Error(), "ssar:") {
		return err
	}
	return fmt.Errorf("ssar: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, scope string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Scope == "" {
			evalErr.Scope = scope
		}
		return evalErr
	}
	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Scope:  scope,
		Err:    err,
	}
}

// withObject tags an evaluation failure with the object it was evaluated for.
func withObject(err error, object string) error {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) && evalErr.Object == "" {
		evalErr.Object = object
	}
	return err
}
