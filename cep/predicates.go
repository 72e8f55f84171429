package cep

import "time"

// EventSelection picks which events in a predicate's window contribute to
// a match.
type EventSelection uint8

const (
	// SelectEach matches every admissible event
	SelectEach EventSelection = iota
	// SelectFirst matches the least recent admissible event
	SelectFirst
	// SelectLast matches the most recent admissible event
	SelectLast
)

// AggregateFn enumerates the aggregate functions
type AggregateFn uint8

const (
	AggAvg AggregateFn = iota
	AggSum
	AggMin
	AggMax
	AggCount
)

// Aggregator is an aggregate function over one attribute. Count ignores
// the attribute index.
type Aggregator struct {
	Fn        AggregateFn
	Attribute int
}

// ParameterDeclaration names a value computed from the predicate's tuple
// (or aggregate) that later predicates can reference.
type ParameterDeclaration struct {
	Name       string
	Expression Expression
}

// TimingBound is the lower bound of an event predicate's time window
type TimingBound interface {
	timingBound()
}

// Within bounds the window by a fixed duration below the upper event
type Within struct {
	Window time.Duration
}

// Between bounds the window by the event matched at an earlier predicate
type Between struct {
	Lower int
}

func (Within) timingBound()  {}
func (Between) timingBound() {}

// Timing is the time constraint of an event predicate: the event bound at
// predicate Upper closes the window from above, Bound opens it from below.
// Upper must precede the predicate itself, and a Between lower must precede
// Upper.
type Timing struct {
	Upper int
	Bound TimingBound
}

// Order is a sort direction for ordered static predicates
type Order uint8

const (
	Asc Order = iota
	Desc
)

// Ordering sorts static tuples by one attribute
type Ordering struct {
	Attribute int
	Direction Order
}

// PredicateKind discriminates the predicate variants.
//
// Parameters returns the parameter declarations of the variant (nil for
// negations); Timing returns the event-window constraint or nil for
// non-event variants.
type PredicateKind interface {
	predicateKind()
	Parameters() []ParameterDeclaration
	Timing() *Timing
}

// Trigger is the entry predicate of a rule; the event matching it starts
// a match attempt.
type Trigger struct {
	Params []ParameterDeclaration
}

// EventPred matches events within a time window under a selection policy
type EventPred struct {
	Selection EventSelection
	Params    []ParameterDeclaration
	Window    Timing
}

// OrderedStatic selects the single first static tuple under an ordering
type OrderedStatic struct {
	Params    []ParameterDeclaration
	Orderings []Ordering
}

// UnorderedStatic selects every matching static tuple
type UnorderedStatic struct {
	Params []ParameterDeclaration
}

// EventAggregate folds the admissible events into one aggregate value,
// exposed through the declared parameter.
type EventAggregate struct {
	Aggregator Aggregator
	Param      ParameterDeclaration
	Window     Timing
}

// StaticAggregate folds the matching static tuples into one aggregate
// value, exposed through the declared parameter.
type StaticAggregate struct {
	Aggregator Aggregator
	Param      ParameterDeclaration
}

// EventNegation matches when no admissible event exists in the window
type EventNegation struct {
	Window Timing
}

// StaticNegation matches when no static tuple satisfies the constraints
type StaticNegation struct{}

func (*Trigger) predicateKind()         {}
func (*EventPred) predicateKind()       {}
func (*OrderedStatic) predicateKind()   {}
func (*UnorderedStatic) predicateKind() {}
func (*EventAggregate) predicateKind()  {}
func (*StaticAggregate) predicateKind() {}
func (*EventNegation) predicateKind()   {}
func (*StaticNegation) predicateKind()  {}

func (k *Trigger) Parameters() []ParameterDeclaration         { return k.Params }
func (k *EventPred) Parameters() []ParameterDeclaration       { return k.Params }
func (k *OrderedStatic) Parameters() []ParameterDeclaration   { return k.Params }
func (k *UnorderedStatic) Parameters() []ParameterDeclaration { return k.Params }
func (k *EventAggregate) Parameters() []ParameterDeclaration {
	return []ParameterDeclaration{k.Param}
}
func (k *StaticAggregate) Parameters() []ParameterDeclaration {
	return []ParameterDeclaration{k.Param}
}
func (k *EventNegation) Parameters() []ParameterDeclaration  { return nil }
func (k *StaticNegation) Parameters() []ParameterDeclaration { return nil }

func (k *Trigger) Timing() *Timing         { return nil }
func (k *EventPred) Timing() *Timing       { return &k.Window }
func (k *OrderedStatic) Timing() *Timing   { return nil }
func (k *UnorderedStatic) Timing() *Timing { return nil }
func (k *EventAggregate) Timing() *Timing  { return &k.Window }
func (k *StaticAggregate) Timing() *Timing { return nil }
func (k *EventNegation) Timing() *Timing   { return &k.Window }
func (k *StaticNegation) Timing() *Timing  { return nil }

// ConstrainedTuple names the tuple a predicate ranges over and the boolean
// expressions it must satisfy.
type ConstrainedTuple struct {
	TyID        int
	Constraints []Expression
	Alias       string
}

// Predicate pairs a variant with the tuple it constrains
type Predicate struct {
	Kind  PredicateKind
	Tuple ConstrainedTuple
}

// UsedParameters returns the parameters referenced by the predicate's
// constraints and parameter definitions, sorted and deduplicated.
func (p *Predicate) UsedParameters() []ParamKey {
	var keys []ParamKey
	for _, decl := range p.Kind.Parameters() {
		keys = append(keys, collectParameters(decl.Expression, nil)...)
	}
	for _, c := range p.Tuple.Constraints {
		keys = collectParameters(c, keys)
	}
	sortKeys(keys)
	return dedupKeys(keys)
}
