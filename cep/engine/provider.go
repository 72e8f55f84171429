package engine

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-cep/cep"
	"github.com/wbrown/janus-cep/cep/inference"
)

// Node evaluates one predicate of a rule. Process offers an incoming event
// to the node's state (a no-op for static backends); Evaluate transforms
// one partial result into the next set; Consume removes a previously
// matched event instance (again a no-op for static backends).
type Node interface {
	Process(event *cep.Event)
	Consume(event *cep.Event)
	Evaluate(ctx CompleteContext) []*PartialResult
}

// WindowNode is implemented by nodes that buffer events under a time
// window and take part in eviction.
type WindowNode interface {
	Node
	SetMaxWindow(d time.Duration)
	EvictOlderThan(cutoff time.Time) (time.Time, bool)
}

// NodeProvider maps a predicate to a concrete evaluation node. A provider
// returns (nil, nil) to decline a predicate; the registry asks providers in
// order and the first node wins.
type NodeProvider interface {
	Provide(idx int, tuple *cep.TupleDeclaration, predicate *cep.Predicate, paramTypes inference.ParamTypes) (Node, error)
}

// StackProvider serves every event predicate with an in-memory event stack
type StackProvider struct{}

// Provide returns an event stack for Event, EventAggregate and
// EventNegation predicates and declines everything else.
func (StackProvider) Provide(idx int, tuple *cep.TupleDeclaration, predicate *cep.Predicate, _ inference.ParamTypes) (Node, error) {
	if predicate.Kind.Timing() == nil {
		return nil, nil
	}
	if tuple.Kind != cep.EventTuple {
		return nil, fmt.Errorf("event predicate %d over static tuple %q", idx, tuple.Name)
	}
	return NewStack(idx, tuple, predicate), nil
}

// buildNodes walks the rule's predicates past the trigger and asks the
// providers, in order, for a node each.
func buildNodes(rule *cep.Rule, tuples map[int]*cep.TupleDeclaration, paramTypes inference.ParamTypes, providers []NodeProvider) ([]indexedNode, error) {
	var nodes []indexedNode
	for i, pred := range rule.Predicates {
		if i == 0 {
			continue
		}
		tuple := tuples[pred.Tuple.TyID]
		var node Node
		for _, p := range providers {
			n, err := p.Provide(i, tuple, pred, paramTypes)
			if err != nil {
				return nil, fmt.Errorf("provider for predicate %d: %w", i, err)
			}
			if n != nil {
				node = n
				break
			}
		}
		if node == nil {
			return nil, fmt.Errorf("no provider accepts predicate %d", i)
		}
		nodes = append(nodes, indexedNode{idx: i, node: node})
	}
	return nodes, nil
}

type indexedNode struct {
	idx  int
	node Node
}
