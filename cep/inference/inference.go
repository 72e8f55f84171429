// Package inference validates rules ahead of time and derives the type of
// every declared parameter. It runs once per rule at definition; nodes and
// evaluation contexts rely on the resulting parameter type map and never
// re-check types on the hot path.
package inference

import (
	"fmt"

	"github.com/wbrown/janus-cep/cep"
)

// ParamTypes maps each declared parameter to its inferred type
type ParamTypes map[cep.ParamKey]cep.BasicType

// currentType is what Reference and Aggregate leaves resolve against while
// typing one predicate: a tuple declaration, an aggregate result type, or
// nothing (filters and templates).
type currentType struct {
	tuple *cep.TupleDeclaration
	aggr  cep.BasicType
	kind  currentKind
}

type currentKind uint8

const (
	currentEmpty currentKind = iota
	currentTuple
	currentAggr
)

type checker struct {
	tuples  map[int]*cep.TupleDeclaration
	params  ParamTypes
	current currentType
}

// CheckRule validates a rule against the declared tuples and returns the
// parameter type map. The rule is rejected when a predicate references an
// unknown tuple, a constraint is not boolean, an expression is ill-typed,
// a parameter points forward, or the template does not produce a declared
// event tuple with matching arity and attribute types.
func CheckRule(rule *cep.Rule, tuples map[int]*cep.TupleDeclaration) (ParamTypes, error) {
	if len(rule.Predicates) == 0 {
		return nil, fmt.Errorf("rule has no predicates")
	}
	if _, ok := rule.Predicates[0].Kind.(*cep.Trigger); !ok {
		return nil, fmt.Errorf("predicate 0 must be the trigger")
	}

	c := &checker{tuples: tuples, params: make(ParamTypes)}
	for i, pred := range rule.Predicates {
		if err := c.checkPredicate(i, pred); err != nil {
			return nil, fmt.Errorf("predicate %d: %w", i, err)
		}
		if err := checkTimeAnchors(i, pred, rule.Predicates); err != nil {
			return nil, fmt.Errorf("predicate %d: %w", i, err)
		}
	}

	c.current = currentType{}
	for i, f := range rule.Filters {
		if err := c.checkConstraint(f); err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
	}
	if err := c.checkTemplate(&rule.Template); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	for _, idx := range rule.Consuming {
		if idx <= 0 || idx >= len(rule.Predicates) {
			return nil, fmt.Errorf("consuming index %d out of range", idx)
		}
		if rule.Predicates[idx].Kind.Timing() == nil {
			return nil, fmt.Errorf("consuming index %d is not an event predicate", idx)
		}
	}
	return c.params, nil
}

func (c *checker) checkPredicate(i int, pred *cep.Predicate) error {
	tuple, ok := c.tuples[pred.Tuple.TyID]
	if !ok {
		return fmt.Errorf("unknown tuple id %d", pred.Tuple.TyID)
	}

	if err := checkTiming(i, pred.Kind.Timing()); err != nil {
		return err
	}
	if err := checkBackwardParams(i, pred); err != nil {
		return err
	}

	switch kind := pred.Kind.(type) {
	case *cep.Trigger, *cep.EventPred, *cep.OrderedStatic, *cep.UnorderedStatic:
		if _, isTrigger := kind.(*cep.Trigger); !isTrigger {
			if isStatic(pred.Kind) != (tuple.Kind == cep.StaticTuple) {
				return fmt.Errorf("predicate kind does not match tuple kind of %q", tuple.Name)
			}
		} else if tuple.Kind != cep.EventTuple {
			return fmt.Errorf("trigger must match an event tuple")
		}
		c.current = currentType{kind: currentTuple, tuple: tuple}
		for j, param := range pred.Kind.Parameters() {
			ty, err := c.typeOf(param.Expression)
			if err != nil {
				return fmt.Errorf("parameter %d: %w", j, err)
			}
			c.params[cep.ParamKey{Predicate: i, Parameter: j}] = ty
		}
		return c.checkConstraints(pred.Tuple.Constraints)

	case *cep.EventAggregate:
		return c.checkAggregate(i, pred, tuple, kind.Aggregator, kind.Param)
	case *cep.StaticAggregate:
		return c.checkAggregate(i, pred, tuple, kind.Aggregator, kind.Param)

	case *cep.EventNegation, *cep.StaticNegation:
		if isStatic(pred.Kind) != (tuple.Kind == cep.StaticTuple) {
			return fmt.Errorf("predicate kind does not match tuple kind of %q", tuple.Name)
		}
		c.current = currentType{kind: currentTuple, tuple: tuple}
		return c.checkConstraints(pred.Tuple.Constraints)

	default:
		return fmt.Errorf("unknown predicate kind %T", kind)
	}
}

func (c *checker) checkAggregate(i int, pred *cep.Predicate, tuple *cep.TupleDeclaration, aggr cep.Aggregator, param cep.ParameterDeclaration) error {
	if isStatic(pred.Kind) != (tuple.Kind == cep.StaticTuple) {
		return fmt.Errorf("predicate kind does not match tuple kind of %q", tuple.Name)
	}
	c.current = currentType{kind: currentTuple, tuple: tuple}
	if err := c.checkConstraints(pred.Tuple.Constraints); err != nil {
		return err
	}
	aggrTy, err := AggregateResultType(aggr, tuple)
	if err != nil {
		return err
	}
	c.current = currentType{kind: currentAggr, aggr: aggrTy}
	ty, err := c.typeOf(param.Expression)
	if err != nil {
		return fmt.Errorf("aggregate parameter: %w", err)
	}
	c.params[cep.ParamKey{Predicate: i, Parameter: 0}] = ty
	return nil
}

func (c *checker) checkConstraints(constraints []cep.Expression) error {
	for i, expr := range constraints {
		if err := c.checkConstraint(expr); err != nil {
			return fmt.Errorf("constraint %d: %w", i, err)
		}
	}
	return nil
}

func (c *checker) checkConstraint(expr cep.Expression) error {
	ty, err := c.typeOf(expr)
	if err != nil {
		return err
	}
	if ty != cep.TypeBool {
		return fmt.Errorf("constraint is %s, want bool", ty)
	}
	return nil
}

func (c *checker) checkTemplate(tmpl *cep.EventTemplate) error {
	tuple, ok := c.tuples[tmpl.TyID]
	if !ok {
		return fmt.Errorf("rule produces unknown tuple id %d", tmpl.TyID)
	}
	if tuple.Kind != cep.EventTuple {
		return fmt.Errorf("rule produces static tuple %q", tuple.Name)
	}
	if len(tmpl.Attributes) != len(tuple.Attributes) {
		return fmt.Errorf("template has %d attributes, %q declares %d",
			len(tmpl.Attributes), tuple.Name, len(tuple.Attributes))
	}
	c.current = currentType{}
	for i, expr := range tmpl.Attributes {
		ty, err := c.typeOf(expr)
		if err != nil {
			return fmt.Errorf("attribute %d: %w", i, err)
		}
		if ty != tuple.Attributes[i].Type {
			return fmt.Errorf("attribute %d is %s, %q declares %s",
				i, ty, tuple.Attributes[i].Name, tuple.Attributes[i].Type)
		}
	}
	return nil
}

func (c *checker) typeOf(expr cep.Expression) (cep.BasicType, error) {
	switch n := expr.(type) {
	case *cep.Immediate:
		return n.Value.Type(), nil
	case *cep.Reference:
		if c.current.kind != currentTuple {
			return 0, fmt.Errorf("attribute reference outside a tuple context")
		}
		if n.Attribute < 0 || n.Attribute >= len(c.current.tuple.Attributes) {
			return 0, fmt.Errorf("attribute %d out of bounds for %q", n.Attribute, c.current.tuple.Name)
		}
		return c.current.tuple.Attributes[n.Attribute].Type, nil
	case *cep.Aggregate:
		if c.current.kind != currentAggr {
			return 0, fmt.Errorf("aggregate reference outside an aggregation predicate")
		}
		return c.current.aggr, nil
	case *cep.Parameter:
		ty, ok := c.params[cep.ParamKey{Predicate: n.Predicate, Parameter: n.Parameter}]
		if !ok {
			return 0, fmt.Errorf("no such parameter (%d, %d)", n.Predicate, n.Parameter)
		}
		return ty, nil
	case *cep.Cast:
		inner, err := c.typeOf(n.Expression)
		if err != nil {
			return 0, err
		}
		if n.Ty == cep.TypeFloat && inner == cep.TypeInt {
			return cep.TypeFloat, nil
		}
		return 0, fmt.Errorf("illegal cast from %s to %s", inner, n.Ty)
	case *cep.UnaryOp:
		inner, err := c.typeOf(n.Expression)
		if err != nil {
			return 0, err
		}
		return cep.UnaryResultType(n.Operator, inner)
	case *cep.BinaryOp:
		left, err := c.typeOf(n.Left)
		if err != nil {
			return 0, err
		}
		right, err := c.typeOf(n.Right)
		if err != nil {
			return 0, err
		}
		return cep.BinaryResultType(n.Operator, left, right)
	default:
		return 0, fmt.Errorf("unknown expression node %T", expr)
	}
}

// AggregateResultType returns the type an aggregator yields over a tuple:
// Avg is always float, Sum/Min/Max keep the attribute's numeric type,
// Count is int.
func AggregateResultType(aggr cep.Aggregator, tuple *cep.TupleDeclaration) (cep.BasicType, error) {
	if aggr.Fn == cep.AggCount {
		return cep.TypeInt, nil
	}
	if aggr.Attribute < 0 || aggr.Attribute >= len(tuple.Attributes) {
		return 0, fmt.Errorf("aggregate attribute %d out of bounds for %q", aggr.Attribute, tuple.Name)
	}
	ty := tuple.Attributes[aggr.Attribute].Type
	if ty != cep.TypeInt && ty != cep.TypeFloat {
		return 0, fmt.Errorf("aggregate over non-numeric attribute %q", tuple.Attributes[aggr.Attribute].Name)
	}
	if aggr.Fn == cep.AggAvg {
		return cep.TypeFloat, nil
	}
	return ty, nil
}

func checkTiming(i int, timing *cep.Timing) error {
	if timing == nil {
		return nil
	}
	if timing.Upper >= i {
		return fmt.Errorf("window upper bound %d does not precede predicate %d", timing.Upper, i)
	}
	if between, ok := timing.Bound.(cep.Between); ok {
		if between.Lower >= timing.Upper {
			return fmt.Errorf("window lower bound %d does not precede upper bound %d", between.Lower, timing.Upper)
		}
	}
	return nil
}

// checkBackwardParams rejects parameters that point at this predicate or a
// later one. A predicate may reference its own parameters only inside a
// static predicate's constraints, where the SQL builder inlines them.
func checkBackwardParams(i int, pred *cep.Predicate) error {
	ownOK := isStatic(pred.Kind)
	for _, key := range pred.UsedParameters() {
		if key.Predicate > i || (key.Predicate == i && !ownOK) {
			return fmt.Errorf("parameter (%d, %d) is not declared by an earlier predicate", key.Predicate, key.Parameter)
		}
	}
	return nil
}

// checkTimeAnchors verifies that a window's bounds reference predicates
// that bind an event time: the trigger or a selecting event predicate.
// Aggregates, negations and static predicates bind no time.
func checkTimeAnchors(i int, pred *cep.Predicate, predicates []*cep.Predicate) error {
	timing := pred.Kind.Timing()
	if timing == nil {
		return nil
	}
	if !bindsEventTime(predicates, timing.Upper) {
		return fmt.Errorf("window upper bound %d binds no event time", timing.Upper)
	}
	if between, ok := timing.Bound.(cep.Between); ok {
		if !bindsEventTime(predicates, between.Lower) {
			return fmt.Errorf("window lower bound %d binds no event time", between.Lower)
		}
	}
	return nil
}

func bindsEventTime(predicates []*cep.Predicate, idx int) bool {
	if idx < 0 || idx >= len(predicates) {
		return false
	}
	switch predicates[idx].Kind.(type) {
	case *cep.Trigger, *cep.EventPred:
		return true
	default:
		return false
	}
}

func isStatic(kind cep.PredicateKind) bool {
	switch kind.(type) {
	case *cep.OrderedStatic, *cep.UnorderedStatic, *cep.StaticAggregate, *cep.StaticNegation:
		return true
	default:
		return false
	}
}
