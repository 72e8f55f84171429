package engine

import (
	"fmt"

	"github.com/wbrown/janus-cep/cep"
)

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// EvaluationContext resolves the non-immediate leaves of an expression.
// The three implementations differ only in what Reference, Aggregate and
// Parameter mean: a tuple alone, a partial result plus the current tuple,
// or a partial result plus the current aggregate.
type EvaluationContext interface {
	// Attribute reads attribute i of the current tuple
	Attribute(i int) cep.Value
	// AggregateValue reads the current aggregation predicate's result
	AggregateValue() cep.Value
	// ParameterValue resolves a parameter declared by predicate pred
	ParameterValue(pred, par int) cep.Value
}

// Evaluate walks an expression under a context. Operand type mismatches and
// unresolvable leaves raise an evaluation error, recovered at the per-rule
// boundary.
func Evaluate(ctx EvaluationContext, expr cep.Expression) cep.Value {
	switch n := expr.(type) {
	case *cep.Immediate:
		return n.Value
	case *cep.Reference:
		return ctx.Attribute(n.Attribute)
	case *cep.Aggregate:
		return ctx.AggregateValue()
	case *cep.Parameter:
		return ctx.ParameterValue(n.Predicate, n.Parameter)
	case *cep.Cast:
		return Evaluate(ctx, n.Expression).Cast(n.Ty)
	case *cep.UnaryOp:
		return cep.ApplyUnary(n.Operator, Evaluate(ctx, n.Expression))
	case *cep.BinaryOp:
		return cep.ApplyBinary(n.Operator, Evaluate(ctx, n.Left), Evaluate(ctx, n.Right))
	default:
		evalPanic("unknown expression node %T", expr)
		return cep.Value{}
	}
}

// EvaluateBool evaluates a boolean expression under a context
func EvaluateBool(ctx EvaluationContext, expr cep.Expression) bool {
	return Evaluate(ctx, expr).MustBool()
}

// SimpleContext evaluates expressions against a single tuple. Aggregate and
// Parameter leaves are evaluation errors; it serves trigger checks, local
// constraint checks at ingest, and subscription content filters.
type SimpleContext struct {
	tuple *cep.Tuple
}

// NewSimpleContext builds a tuple-only context
func NewSimpleContext(tuple *cep.Tuple) SimpleContext {
	return SimpleContext{tuple: tuple}
}

func (c SimpleContext) Attribute(i int) cep.Value {
	if i < 0 || i >= len(c.tuple.Data) {
		evalPanic("attribute %d out of bounds", i)
	}
	return c.tuple.Data[i]
}

func (c SimpleContext) AggregateValue() cep.Value {
	evalPanic("aggregate reference in a tuple-only context")
	return cep.Value{}
}

func (c SimpleContext) ParameterValue(pred, par int) cep.Value {
	evalPanic("parameter (%d, %d) in a tuple-only context", pred, par)
	return cep.Value{}
}

// CompleteContext evaluates expressions against a partial result, with an
// optional current tuple (the candidate event being tested) or a current
// aggregate value.
//
// Parameter resolution is lazy: unless the declaring predicate bound its
// output values directly (static predicates), the defining expression is
// re-evaluated on demand against the event already bound for that
// predicate.
type CompleteContext struct {
	predicates []*cep.Predicate
	result     *PartialResult
	current    int
	tuple      *cep.Tuple
	aggregate  cep.Value
	hasAggr    bool
}

// NewCompleteContext builds a context over a rule's predicates and one
// partial result.
func NewCompleteContext(predicates []*cep.Predicate, result *PartialResult) CompleteContext {
	return CompleteContext{predicates: predicates, result: result, current: -1}
}

// Result returns the underlying partial result
func (c CompleteContext) Result() *PartialResult { return c.result }

// WithCurrent returns a derived context whose current predicate is idx,
// resolving the current tuple from the event bound there (if any).
func (c CompleteContext) WithCurrent(idx int) CompleteContext {
	c.current = idx
	c.tuple = nil
	c.hasAggr = false
	if ev := c.result.EventAt(idx); ev != nil {
		c.tuple = &ev.Tuple
	}
	return c
}

// WithTuple returns a derived context whose current tuple is the candidate
// being tested for predicate idx.
func (c CompleteContext) WithTuple(tuple *cep.Tuple, idx int) CompleteContext {
	c.current = idx
	c.tuple = tuple
	return c
}

// WithAggregateValue returns a derived context whose Aggregate leaf
// resolves to v; used while a node computes an aggregate that is not yet
// bound into the result.
func (c CompleteContext) WithAggregateValue(v cep.Value) CompleteContext {
	c.aggregate = v
	c.hasAggr = true
	return c
}

func (c CompleteContext) Attribute(i int) cep.Value {
	if c.tuple == nil {
		evalPanic("attribute reference without a current tuple")
	}
	if i < 0 || i >= len(c.tuple.Data) {
		evalPanic("attribute %d out of bounds", i)
	}
	return c.tuple.Data[i]
}

func (c CompleteContext) AggregateValue() cep.Value {
	if c.hasAggr {
		return c.aggregate
	}
	if c.current >= 0 && c.current < len(c.result.steps) {
		s := c.result.steps[c.current]
		if s.kind == stepAggregate {
			return s.aggregate
		}
	}
	evalPanic("no aggregate bound at predicate %d", c.current)
	return cep.Value{}
}

func (c CompleteContext) ParameterValue(pred, par int) cep.Value {
	if pred < 0 || pred >= len(c.predicates) {
		evalPanic("parameter predicate %d out of bounds", pred)
	}
	if s := c.result.steps[pred]; s.kind == stepStatic {
		if par < 0 || par >= len(s.values) {
			evalPanic("parameter (%d, %d) out of bounds", pred, par)
		}
		return s.values[par]
	}
	params := c.predicates[pred].Kind.Parameters()
	if par < 0 || par >= len(params) {
		evalPanic("parameter (%d, %d) is not declared", pred, par)
	}
	return Evaluate(c.WithCurrent(pred), params[par].Expression)
}
