package engine

import (
	"time"

	"github.com/wbrown/janus-cep/cep"
)

type stepKind uint8

const (
	stepNone stepKind = iota
	stepEvent
	stepAggregate
	stepStatic
)

// step records what a single predicate contributed to a match attempt
type step struct {
	kind      stepKind
	event     *cep.Event
	aggregate cep.Value
	values    []cep.Value
}

// PartialResult is the row of bindings accumulated while the pipeline walks
// a rule's predicates: per predicate index, the matched event, the computed
// aggregate, or the static output values.
//
// Extension is copy-on-write: every With* method returns a new result whose
// step vector is a shallow copy, so results can fan out and be shared freely
// across workers. Once a predicate's slot is filled it never changes within
// that chain.
type PartialResult struct {
	steps []step
}

// NewPartialResult seeds a result for a rule with n predicates from its
// trigger event.
func NewPartialResult(n int, trigger *cep.Event) *PartialResult {
	steps := make([]step, n)
	steps[0] = step{kind: stepEvent, event: trigger}
	return &PartialResult{steps: steps}
}

func (r *PartialResult) clone() *PartialResult {
	steps := make([]step, len(r.steps))
	copy(steps, r.steps)
	return &PartialResult{steps: steps}
}

// WithEvent binds an event at predicate idx
func (r *PartialResult) WithEvent(idx int, event *cep.Event) *PartialResult {
	next := r.clone()
	next.steps[idx] = step{kind: stepEvent, event: event}
	return next
}

// WithAggregate binds an aggregate value at predicate idx
func (r *PartialResult) WithAggregate(idx int, value cep.Value) *PartialResult {
	next := r.clone()
	next.steps[idx] = step{kind: stepAggregate, aggregate: value}
	return next
}

// WithStaticRow binds a static predicate's output parameter values at
// predicate idx.
func (r *PartialResult) WithStaticRow(idx int, values []cep.Value) *PartialResult {
	next := r.clone()
	next.steps[idx] = step{kind: stepStatic, values: values}
	return next
}

// EventAt returns the event bound at predicate idx, or nil
func (r *PartialResult) EventAt(idx int) *cep.Event {
	if idx < 0 || idx >= len(r.steps) {
		return nil
	}
	return r.steps[idx].event
}

// Time returns the occurrence time of the event bound at predicate idx.
// Referencing a predicate that bound no event is an evaluation error.
func (r *PartialResult) Time(idx int) time.Time {
	ev := r.EventAt(idx)
	if ev == nil {
		evalPanic("no event bound at predicate %d", idx)
	}
	return ev.Time
}

func evalPanic(format string, args ...interface{}) {
	panic(&cep.EvalError{Msg: sprintf(format, args...)})
}
