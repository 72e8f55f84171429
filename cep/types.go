package cep

import "time"

// TupleKind distinguishes persistent static data from event notifications
type TupleKind uint8

const (
	// StaticTuple marks a tuple backed by a persistent data source
	StaticTuple TupleKind = iota
	// EventTuple marks a tuple carried by the event stream
	EventTuple
)

// AttributeDeclaration declares one typed attribute of a tuple
type AttributeDeclaration struct {
	Name string
	Type BasicType
}

// TupleDeclaration binds a unique numeric id to a name, a kind and an
// ordered attribute list. Declarations are immutable once registered with
// the engine.
type TupleDeclaration struct {
	Kind       TupleKind
	ID         int
	Name       string
	Attributes []AttributeDeclaration
}

// Tuple is an instance of a declared tuple
type Tuple struct {
	TyID int
	Data []Value
}

// Event is an event tuple instance with its occurrence time. Events are
// shared between the engine, event stacks and partial results; their
// content is frozen after publication.
type Event struct {
	Tuple Tuple
	Time  time.Time
}

// EventTemplate generates a new event from a successful rule evaluation:
// one expression per attribute of the output tuple.
type EventTemplate struct {
	TyID       int
	Attributes []Expression
}

// Rule is a declarative pattern over the event stream and static tables.
// Predicates[0] is always the trigger. Once defined on an engine, a rule
// is immutable.
type Rule struct {
	Predicates []*Predicate
	Filters    []Expression
	Template   EventTemplate
	// Consuming lists the indices of event predicates whose matched
	// events are removed from their stacks after emission.
	Consuming []int
}

// SubscrFilter narrows which events a listener receives
type SubscrFilter interface {
	subscrFilter()
}

// FilterAny delivers every event
type FilterAny struct{}

// FilterTopic delivers events of one tuple type
type FilterTopic struct {
	TyID int
}

// FilterContent delivers events of one tuple type whose content satisfies
// every filter expression. The expressions must be local (no parameters).
type FilterContent struct {
	TyID    int
	Filters []Expression
}

func (FilterAny) subscrFilter()     {}
func (FilterTopic) subscrFilter()   {}
func (FilterContent) subscrFilter() {}

// Listener receives events that pass a subscription's filter
type Listener interface {
	Receive(event *Event)
}
