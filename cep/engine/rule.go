package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wbrown/janus-cep/cep"
)

// RuleStacks is the per-rule pipeline: the trigger, the ordered evaluation
// nodes keyed by predicate index, and the rule itself. The engine guards
// each RuleStacks with its own mutex; within one instance the state is
// single-threaded.
type RuleStacks struct {
	rule    *cep.Rule
	trigger *trigger
	nodes   []indexedNode
	// maxWindows[i] is the longest window that can cover predicate i,
	// propagated along Between chains so stacks can evict using only the
	// trigger time.
	maxWindows []time.Duration
	logger     *zap.Logger
}

// NewRuleStacks assembles the pipeline for a validated rule
func NewRuleStacks(rule *cep.Rule, nodes []indexedNode, logger *zap.Logger) (*RuleStacks, error) {
	maxWindows, err := propagateWindows(rule)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if wn, ok := n.node.(WindowNode); ok {
			wn.SetMaxWindow(maxWindows[n.idx])
		}
	}
	return &RuleStacks{
		rule:       rule,
		trigger:    newTrigger(rule.Predicates[0]),
		nodes:      nodes,
		maxWindows: maxWindows,
		logger:     logger,
	}, nil
}

// propagateWindows computes, in one forward sweep, the longest span below
// the trigger time that each event predicate's window can reach: Within
// adds its duration to the upper predicate's span, Between inherits the
// lower predicate's span.
func propagateWindows(rule *cep.Rule) ([]time.Duration, error) {
	spans := make([]time.Duration, len(rule.Predicates))
	for i, pred := range rule.Predicates {
		timing := pred.Kind.Timing()
		if timing == nil {
			continue
		}
		switch bound := timing.Bound.(type) {
		case cep.Within:
			spans[i] = spans[timing.Upper] + bound.Window
		case cep.Between:
			spans[i] = spans[bound.Lower]
		default:
			return nil, fmt.Errorf("predicate %d: unknown timing bound %T", i, timing.Bound)
		}
	}
	return spans, nil
}

// Process offers the event to every node, then runs the match pipeline if
// the trigger fires. It returns the batch of events the rule emits for
// this input, in trigger-seeded order.
func (rs *RuleStacks) Process(event *cep.Event) (emitted []*cep.Event) {
	// A type mismatch anywhere in this invocation is fatal to it but
	// isolated: the rule just emits nothing for this event.
	defer func() {
		if r := recover(); r != nil {
			if evalErr, ok := r.(*cep.EvalError); ok {
				rs.logger.Error("rule evaluation failed",
					zap.Int("trigger_tuple", event.Tuple.TyID),
					zap.Error(evalErr))
				emitted = nil
				return
			}
			panic(r)
		}
	}()

	// Offer first, then check the trigger, so a rule can match events of
	// its own trigger type at later predicates.
	for _, n := range rs.nodes {
		n.node.Process(event)
	}
	if !rs.trigger.satisfied(event) {
		return nil
	}

	rs.evict(event.Time)

	results := []*PartialResult{NewPartialResult(len(rs.rule.Predicates), event)}
	for _, n := range rs.nodes {
		var next []*PartialResult
		for _, r := range results {
			ctx := NewCompleteContext(rs.rule.Predicates, r)
			next = append(next, n.node.Evaluate(ctx)...)
		}
		results = next
		if len(results) == 0 {
			return nil
		}
	}

	results = rs.applyFilters(results)
	rs.applyConsuming(results)

	for _, r := range results {
		emitted = append(emitted, rs.render(r, event.Time))
	}
	return emitted
}

// evict removes stale events from every window node, anchored on the
// trigger time.
func (rs *RuleStacks) evict(triggerTime time.Time) {
	for _, n := range rs.nodes {
		wn, ok := n.node.(WindowNode)
		if !ok {
			continue
		}
		wn.EvictOlderThan(triggerTime.Add(-rs.maxWindows[n.idx]))
	}
}

func (rs *RuleStacks) applyFilters(results []*PartialResult) []*PartialResult {
	if len(rs.rule.Filters) == 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		ctx := NewCompleteContext(rs.rule.Predicates, r)
		ok := true
		for _, f := range rs.rule.Filters {
			if !EvaluateBool(ctx, f) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept
}

// applyConsuming removes, for each listed predicate index, the event bound
// there in each surviving result from the corresponding stack. Removal is
// by instance identity, so an event consumed through one result is simply
// gone for the rest.
func (rs *RuleStacks) applyConsuming(results []*PartialResult) {
	for _, idx := range rs.rule.Consuming {
		node := rs.nodeAt(idx)
		if node == nil {
			continue
		}
		for _, r := range results {
			if ev := r.EventAt(idx); ev != nil {
				node.Consume(ev)
			}
		}
	}
}

func (rs *RuleStacks) nodeAt(idx int) Node {
	for _, n := range rs.nodes {
		if n.idx == idx {
			return n.node
		}
	}
	return nil
}

// render materializes one surviving result through the rule's template,
// stamped with the trigger event's time.
func (rs *RuleStacks) render(result *PartialResult, triggerTime time.Time) *cep.Event {
	ctx := NewCompleteContext(rs.rule.Predicates, result)
	data := make([]cep.Value, len(rs.rule.Template.Attributes))
	for i, expr := range rs.rule.Template.Attributes {
		data[i] = Evaluate(ctx, expr)
	}
	return &cep.Event{
		Tuple: cep.Tuple{TyID: rs.rule.Template.TyID, Data: data},
		Time:  triggerTime,
	}
}

// Rule returns the rule this pipeline evaluates
func (rs *RuleStacks) Rule() *cep.Rule { return rs.rule }
