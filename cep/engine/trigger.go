package engine

import (
	"github.com/wbrown/janus-cep/cep"
)

// trigger matches a rule's entry predicate. Trigger constraints are always
// local (there are no earlier predicates to bind parameters), so they
// evaluate in a tuple-only context.
type trigger struct {
	predicate *cep.Predicate
}

func newTrigger(predicate *cep.Predicate) *trigger {
	return &trigger{predicate: predicate}
}

func (t *trigger) satisfied(event *cep.Event) bool {
	if event.Tuple.TyID != t.predicate.Tuple.TyID {
		return false
	}
	ctx := NewSimpleContext(&event.Tuple)
	for _, expr := range t.predicate.Tuple.Constraints {
		if !EvaluateBool(ctx, expr) {
			return false
		}
	}
	return true
}
