package engine

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wbrown/janus-cep/cep"
	"github.com/wbrown/janus-cep/cep/inference"
)

// DefaultWorkers is the worker-pool size used when Options leaves it zero
const DefaultWorkers = 4

// DefaultMaxRecursion caps how deep synthesized events may re-trigger
// rules within one external publish.
const DefaultMaxRecursion = 64

// Options configures an Engine
type Options struct {
	// Workers is the fixed worker-pool size; DefaultWorkers when zero
	Workers int
	// MaxRecursionDepth bounds recursive publication; DefaultMaxRecursion
	// when zero.
	MaxRecursionDepth int
	// Logger defaults to a no-op logger
	Logger *zap.Logger
	// Metrics defaults to unregistered collectors
	Metrics *Metrics
}

// ruleHandle pairs a rule pipeline with its mutex. The engine serializes
// publishes, so a given rule sees at most one event at a time; the mutex
// protects the state against the worker pool's fan-out.
type ruleHandle struct {
	mu     sync.Mutex
	stacks *RuleStacks
}

type subscription struct {
	id       uint64
	filter   cep.SubscrFilter
	listener cep.Listener
}

// Engine dispatches events across rules. Declarations, rules and
// subscriptions are owned by the engine and mutated only through its API;
// rule state is shared with the worker pool behind per-rule mutexes.
type Engine struct {
	mu        sync.Mutex
	tuples    map[int]*cep.TupleDeclaration
	providers []NodeProvider
	// reverseIndex links every tuple id referenced by a rule's predicates
	// to that rule's pipeline.
	reverseIndex map[int][]*ruleHandle
	subs         []subscription
	nextSubID    uint64

	tasks    chan func()
	maxDepth int
	logger   *zap.Logger
	metrics  *Metrics
	closed   bool
}

// New creates an engine with the given node providers. The provider order
// matters: the first provider to accept a predicate serves it.
func New(providers []NodeProvider, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	maxDepth := opts.MaxRecursionDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxRecursion
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := &Engine{
		tuples:       make(map[int]*cep.TupleDeclaration),
		providers:    providers,
		reverseIndex: make(map[int][]*ruleHandle),
		tasks:        make(chan func()),
		maxDepth:     maxDepth,
		logger:       logger,
		metrics:      metrics,
	}
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

func (e *Engine) worker() {
	for task := range e.tasks {
		task()
	}
}

// Close stops the worker pool. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
}

// Declare registers a tuple declaration. Redeclaring an id fails and
// leaves the registry unchanged.
func (e *Engine) Declare(tuple cep.TupleDeclaration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tuples[tuple.ID]; exists {
		return fmt.Errorf("tuple id %d already declared", tuple.ID)
	}
	td := tuple
	e.tuples[tuple.ID] = &td
	return nil
}

// Define validates a rule, assembles its pipeline through the provider
// registry, and links it into the reverse index under every tuple id its
// predicates reference.
func (e *Engine) Define(rule *cep.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	paramTypes, err := inference.CheckRule(rule, e.tuples)
	if err != nil {
		return fmt.Errorf("rule rejected: %w", err)
	}

	nodes, err := buildNodes(rule, e.tuples, paramTypes, e.providers)
	if err != nil {
		return err
	}
	stacks, err := NewRuleStacks(rule, nodes, e.logger)
	if err != nil {
		return err
	}
	handle := &ruleHandle{stacks: stacks}

	ids := make([]int, 0, len(rule.Predicates))
	for _, pred := range rule.Predicates {
		ids = append(ids, pred.Tuple.TyID)
	}
	sort.Ints(ids)
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		e.reverseIndex[id] = append(e.reverseIndex[id], handle)
	}
	return nil
}

// Subscribe registers a listener under a filter and returns the
// subscription id. Content filter expressions must be local: they evaluate
// against the event tuple alone.
func (e *Engine) Subscribe(filter cep.SubscrFilter, listener cep.Listener) (uint64, error) {
	if content, ok := filter.(cep.FilterContent); ok {
		for i, expr := range content.Filters {
			if !cep.IsLocal(expr) {
				return 0, fmt.Errorf("content filter %d references parameters", i)
			}
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSubID++
	e.subs = append(e.subs, subscription{id: e.nextSubID, filter: filter, listener: listener})
	return e.nextSubID, nil
}

// Unsubscribe removes a subscription; the listener receives nothing
// afterwards.
func (e *Engine) Unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.subs {
		if sub.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Publish feeds an event to the engine: listeners are notified first, then
// the event fans out in parallel across every rule whose predicates
// reference its tuple id, and finally events produced by those rules are
// published recursively, depth-first, on the calling goroutine.
func (e *Engine) Publish(event *cep.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishAt(event, 0)
}

func (e *Engine) publishAt(event *cep.Event, depth int) {
	e.metrics.EventsPublished.Inc()
	e.notify(event)

	handles := e.reverseIndex[event.Tuple.TyID]
	// The channel is buffered to the fan-out so workers never block on it,
	// which keeps the pool draining even when rules outnumber workers.
	results := make(chan []*cep.Event, len(handles))
	for _, h := range handles {
		h := h
		e.metrics.RuleEvaluations.Inc()
		e.tasks <- func() {
			h.mu.Lock()
			batch := h.stacks.Process(event)
			h.mu.Unlock()
			results <- batch
		}
	}

	var produced []*cep.Event
	for range handles {
		produced = append(produced, <-results...)
	}

	if len(produced) == 0 {
		return
	}
	e.metrics.EventsEmitted.Add(float64(len(produced)))
	if depth >= e.maxDepth {
		e.metrics.RecursionDrops.Inc()
		e.logger.Error("recursion depth cap exceeded, dropping produced events",
			zap.Int("depth", depth),
			zap.Int("dropped", len(produced)))
		return
	}
	for _, ev := range produced {
		e.publishAt(ev, depth+1)
	}
}

// notify delivers the event to every subscription whose filter accepts it,
// in subscription order. A content filter that fails to evaluate counts as
// a non-match.
func (e *Engine) notify(event *cep.Event) {
	for _, sub := range e.subs {
		if e.filterAccepts(sub.filter, event) {
			sub.listener.Receive(event)
		}
	}
}

func (e *Engine) filterAccepts(filter cep.SubscrFilter, event *cep.Event) (accepts bool) {
	switch f := filter.(type) {
	case cep.FilterAny:
		return true
	case cep.FilterTopic:
		return f.TyID == event.Tuple.TyID
	case cep.FilterContent:
		if f.TyID != event.Tuple.TyID {
			return false
		}
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(*cep.EvalError); ok {
					accepts = false
					return
				}
				panic(r)
			}
		}()
		ctx := NewSimpleContext(&event.Tuple)
		for _, expr := range f.Filters {
			if !EvaluateBool(ctx, expr) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
