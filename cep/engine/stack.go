package engine

import (
	"sort"
	"time"

	"github.com/wbrown/janus-cep/cep"
)

// Stack is the evaluation node of one event predicate: a chronologically
// ordered buffer of events that satisfy the predicate's local constraints,
// evicted against the longest window that can cover the predicate.
type Stack struct {
	idx         int
	tuple       *cep.TupleDeclaration
	predicate   *cep.Predicate
	localExprs  []cep.Expression
	globalExprs []cep.Expression
	timing      cep.Timing
	maxWindow   time.Duration
	events      []*cep.Event
}

// NewStack builds an event stack for an Event, EventAggregate or
// EventNegation predicate; it returns nil for any other predicate kind.
func NewStack(idx int, tuple *cep.TupleDeclaration, predicate *cep.Predicate) *Stack {
	timing := predicate.Kind.Timing()
	if timing == nil {
		return nil
	}
	s := &Stack{
		idx:       idx,
		tuple:     tuple,
		predicate: predicate,
		timing:    *timing,
	}
	// Split once at construction: an expression is local iff it has no
	// Parameter subexpression.
	for _, expr := range predicate.Tuple.Constraints {
		if cep.IsLocal(expr) {
			s.localExprs = append(s.localExprs, expr)
		} else {
			s.globalExprs = append(s.globalExprs, expr)
		}
	}
	return s
}

// SetMaxWindow records the longest window that can cover this predicate,
// propagated along Between chains at rule assembly.
func (s *Stack) SetMaxWindow(d time.Duration) { s.maxWindow = d }

// MaxWindow returns the propagated window span
func (s *Stack) MaxWindow() time.Duration { return s.maxWindow }

// Process appends the event when its tuple matches and every local
// constraint holds. Events arrive in the order the engine observed them,
// which keeps the buffer chronologically ordered.
func (s *Stack) Process(event *cep.Event) {
	if event.Tuple.TyID != s.predicate.Tuple.TyID {
		return
	}
	ctx := NewSimpleContext(&event.Tuple)
	for _, expr := range s.localExprs {
		if !EvaluateBool(ctx, expr) {
			return
		}
	}
	s.events = append(s.events, event)
}

// Consume removes the exact event instance from the buffer
func (s *Stack) Consume(event *cep.Event) {
	kept := s.events[:0]
	for _, ev := range s.events {
		if ev != event {
			kept = append(kept, ev)
		}
	}
	s.events = kept
}

// EvictOlderThan drops buffered events older than cutoff and returns the
// oldest remaining event time; ok is false when the buffer is empty.
func (s *Stack) EvictOlderThan(cutoff time.Time) (time.Time, bool) {
	first := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Time.Before(cutoff)
	})
	if first > 0 {
		s.events = append(s.events[:0], s.events[first:]...)
	}
	if len(s.events) == 0 {
		return time.Time{}, false
	}
	return s.events[0].Time, true
}

// window computes the predicate's admission interval from the rule-scoped
// result. Admission is strictly inside (lower, upper): an event whose age
// exactly equals the window is excluded, and so is one simultaneous with
// the upper-bound event.
func (s *Stack) window(result *PartialResult) (lower, upper time.Time) {
	upper = result.Time(s.timing.Upper)
	switch bound := s.timing.Bound.(type) {
	case cep.Within:
		lower = upper.Add(-bound.Window)
	case cep.Between:
		lower = result.Time(bound.Lower)
	default:
		evalPanic("unknown timing bound %T", s.timing.Bound)
	}
	return lower, upper
}

// Evaluate scans the admissible interval of the buffer, applies the global
// constraints under the candidate tuple, and extends the context's result
// according to the predicate kind and selection policy.
func (s *Stack) Evaluate(ctx CompleteContext) []*PartialResult {
	result := ctx.Result()
	lower, upper := s.window(result)

	// Binary-search the interval endpoints; the buffer is time-ordered.
	lo := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Time.After(lower)
	})
	hi := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Time.Before(upper)
	})
	if lo > hi {
		hi = lo
	}

	var matched []*cep.Event
	for _, ev := range s.events[lo:hi] {
		if s.globallySatisfied(ctx, ev) {
			matched = append(matched, ev)
		}
	}

	switch kind := s.predicate.Kind.(type) {
	case *cep.EventPred:
		switch kind.Selection {
		case cep.SelectEach:
			out := make([]*PartialResult, 0, len(matched))
			for _, ev := range matched {
				out = append(out, result.WithEvent(s.idx, ev))
			}
			return out
		case cep.SelectFirst:
			if len(matched) == 0 {
				return nil
			}
			return []*PartialResult{result.WithEvent(s.idx, matched[0])}
		case cep.SelectLast:
			if len(matched) == 0 {
				return nil
			}
			return []*PartialResult{result.WithEvent(s.idx, matched[len(matched)-1])}
		}
		evalPanic("unknown selection policy %d", kind.Selection)
		return nil

	case *cep.EventAggregate:
		value, ok := ComputeAggregate(kind.Aggregator, matched, s.tuple.Attributes)
		if !ok {
			return nil
		}
		return []*PartialResult{result.WithAggregate(s.idx, value)}

	case *cep.EventNegation:
		if len(matched) == 0 {
			return []*PartialResult{result}
		}
		return nil

	default:
		evalPanic("event stack evaluated for %T", kind)
		return nil
	}
}

func (s *Stack) globallySatisfied(ctx CompleteContext, event *cep.Event) bool {
	if len(s.globalExprs) == 0 {
		return true
	}
	derived := ctx.WithTuple(&event.Tuple, s.idx)
	for _, expr := range s.globalExprs {
		if !EvaluateBool(derived, expr) {
			return false
		}
	}
	return true
}

// Len reports the number of buffered events
func (s *Stack) Len() int { return len(s.events) }
