package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-cep/cep"
)

// collectListener gathers delivered events; the engine serializes
// notification, so no locking is needed.
type collectListener struct {
	events []*cep.Event
}

func (l *collectListener) Receive(event *cep.Event) {
	l.events = append(l.events, event)
}

func (l *collectListener) ofType(tyID int) []*cep.Event {
	var out []*cep.Event
	for _, ev := range l.events {
		if ev.Tuple.TyID == tyID {
			out = append(out, ev)
		}
	}
	return out
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng := New([]NodeProvider{StackProvider{}}, Options{Workers: 1})
	t.Cleanup(eng.Close)
	return eng
}

func declareChainTuples(t *testing.T, eng *Engine) {
	t.Helper()
	intAttr := []cep.AttributeDeclaration{{Name: "id", Type: cep.TypeInt}}
	for id, name := range map[int]string{1: "a", 2: "b", 3: "c", 4: "d"} {
		require.NoError(t, eng.Declare(cep.TupleDeclaration{
			Kind:       cep.EventTuple,
			ID:         id,
			Name:       name,
			Attributes: intAttr,
		}))
	}
}

// chainRule triggers on A, requires one B within 1s under the given
// selection, then one C.last within 1s, and emits D carrying the trigger's
// id attribute.
func chainRule(selection cep.EventSelection) *cep.Rule {
	return &cep.Rule{
		Predicates: []*cep.Predicate{
			{
				Kind: &cep.Trigger{Params: []cep.ParameterDeclaration{
					{Name: "x", Expression: cep.Attr(0)},
				}},
				Tuple: cep.ConstrainedTuple{TyID: 1},
			},
			{
				Kind: &cep.EventPred{
					Selection: selection,
					Window:    cep.Timing{Upper: 0, Bound: cep.Within{Window: time.Second}},
				},
				Tuple: cep.ConstrainedTuple{TyID: 2},
			},
			{
				Kind: &cep.EventPred{
					Selection: cep.SelectLast,
					Window:    cep.Timing{Upper: 0, Bound: cep.Within{Window: time.Second}},
				},
				Tuple: cep.ConstrainedTuple{TyID: 3},
			},
		},
		Template: cep.EventTemplate{
			TyID:       4,
			Attributes: []cep.Expression{cep.Param(0, 0)},
		},
	}
}

func TestSimpleChain(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)
	require.NoError(t, eng.Define(chainRule(cep.SelectEach)))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	eng.Publish(eventAt(2, t0.Add(-500*time.Millisecond), cep.Int(7)))
	eng.Publish(eventAt(3, t0.Add(-200*time.Millisecond), cep.Int(8)))
	eng.Publish(eventAt(1, t0, cep.Int(9)))

	require.Len(t, listener.events, 1)
	emitted := listener.events[0]
	require.True(t, emitted.Time.Equal(t0), "emission must carry the trigger time")
	require.Equal(t, cep.Int(9), emitted.Tuple.Data[0])
}

func TestSelectionPolicyLast(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			{
				Kind:  &cep.Trigger{},
				Tuple: cep.ConstrainedTuple{TyID: 1},
			},
			{
				Kind: &cep.EventPred{
					Selection: cep.SelectLast,
					Params: []cep.ParameterDeclaration{
						{Name: "bid", Expression: cep.Attr(0)},
					},
					Window: cep.Timing{Upper: 0, Bound: cep.Within{Window: time.Second}},
				},
				Tuple: cep.ConstrainedTuple{TyID: 2},
			},
		},
		Template: cep.EventTemplate{
			TyID:       4,
			Attributes: []cep.Expression{cep.Param(1, 0)},
		},
	}))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	eng.Publish(eventAt(2, t0.Add(-800*time.Millisecond), cep.Int(1)))
	eng.Publish(eventAt(2, t0.Add(-300*time.Millisecond), cep.Int(2)))
	eng.Publish(eventAt(1, t0, cep.Int(0)))

	require.Len(t, listener.events, 1)
	require.Equal(t, cep.Int(2), listener.events[0].Tuple.Data[0],
		"last selection must bind the most recent admissible event")
}

func TestWindowExclusionAtBoundary(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			{Kind: &cep.Trigger{}, Tuple: cep.ConstrainedTuple{TyID: 1}},
			{
				Kind: &cep.EventPred{
					Selection: cep.SelectEach,
					Window:    cep.Timing{Upper: 0, Bound: cep.Within{Window: time.Second}},
				},
				Tuple: cep.ConstrainedTuple{TyID: 2},
			},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Const(cep.Int(0))}},
	}))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	eng.Publish(eventAt(2, t0.Add(-time.Second), cep.Int(1)))
	eng.Publish(eventAt(1, t0, cep.Int(0)))

	require.Empty(t, listener.events,
		"an event whose age equals the window must be excluded")
}

func TestTriggerExclusivity(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)

	rule := &cep.Rule{
		Predicates: []*cep.Predicate{
			{
				Kind: &cep.Trigger{},
				Tuple: cep.ConstrainedTuple{
					TyID: 1,
					Constraints: []cep.Expression{
						cep.Binary(cep.OpEqual, cep.Attr(0), cep.Const(cep.Int(1))),
					},
				},
			},
			{
				Kind: &cep.EventPred{
					Selection: cep.SelectEach,
					Window:    cep.Timing{Upper: 0, Bound: cep.Within{Window: time.Minute}},
				},
				Tuple: cep.ConstrainedTuple{TyID: 1},
			},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Const(cep.Int(0))}},
	}
	require.NoError(t, eng.Define(rule))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	// Fails the trigger constraint: no match attempt, but the event is
	// still offered to the stacks.
	eng.Publish(eventAt(1, t0.Add(-100*time.Millisecond), cep.Int(2)))
	require.Empty(t, listener.events)

	// Passes the trigger: the earlier non-trigger event is matchable.
	eng.Publish(eventAt(1, t0, cep.Int(1)))
	require.Len(t, listener.events, 1)
}

func TestConsumingRemovesMatchedEvents(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)
	rule := chainRule(cep.SelectEach)
	rule.Consuming = []int{1}
	require.NoError(t, eng.Define(rule))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	eng.Publish(eventAt(2, t0.Add(-500*time.Millisecond), cep.Int(7)))
	eng.Publish(eventAt(3, t0.Add(-200*time.Millisecond), cep.Int(8)))
	eng.Publish(eventAt(1, t0, cep.Int(9)))
	require.Len(t, listener.events, 1)

	// The B event was consumed: a second trigger inside the window finds
	// nothing at predicate 1.
	eng.Publish(eventAt(1, t0.Add(100*time.Millisecond), cep.Int(9)))
	require.Len(t, listener.events, 1)
}

func TestRuleFilters(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)
	rule := chainRule(cep.SelectEach)
	// Drop matches whose trigger id is not 9.
	rule.Filters = []cep.Expression{
		cep.Binary(cep.OpEqual, cep.Param(0, 0), cep.Const(cep.Int(9))),
	}
	require.NoError(t, eng.Define(rule))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	eng.Publish(eventAt(2, t0.Add(-500*time.Millisecond), cep.Int(7)))
	eng.Publish(eventAt(3, t0.Add(-200*time.Millisecond), cep.Int(8)))
	eng.Publish(eventAt(1, t0, cep.Int(1)))
	require.Empty(t, listener.events, "filter must drop the non-matching trigger")

	eng.Publish(eventAt(1, t0.Add(10*time.Millisecond), cep.Int(9)))
	require.Len(t, listener.events, 1)
}

func TestDeclareConflict(t *testing.T) {
	eng := newTestEngine(t)
	td := cep.TupleDeclaration{Kind: cep.EventTuple, ID: 1, Name: "a"}
	require.NoError(t, eng.Declare(td))
	require.Error(t, eng.Declare(td), "redeclaring an id must fail")

	// The registry is unchanged: the original declaration still serves.
	require.Error(t, eng.Declare(cep.TupleDeclaration{Kind: cep.StaticTuple, ID: 1, Name: "other"}))
}

func TestSubscribeUnsubscribe(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)

	listener := &collectListener{}
	id, err := eng.Subscribe(cep.FilterAny{}, listener)
	require.NoError(t, err)

	eng.Publish(eventAt(1, time.Unix(0, 0), cep.Int(1)))
	require.Len(t, listener.events, 1)

	eng.Unsubscribe(id)
	eng.Publish(eventAt(1, time.Unix(1, 0), cep.Int(1)))
	require.Len(t, listener.events, 1, "no delivery after unsubscribe")
}

func TestSubscriptionFilters(t *testing.T) {
	eng := newTestEngine(t)
	declareChainTuples(t, eng)

	any := &collectListener{}
	topic := &collectListener{}
	content := &collectListener{}
	_, err := eng.Subscribe(cep.FilterAny{}, any)
	require.NoError(t, err)
	_, err = eng.Subscribe(cep.FilterTopic{TyID: 2}, topic)
	require.NoError(t, err)
	_, err = eng.Subscribe(cep.FilterContent{
		TyID: 2,
		Filters: []cep.Expression{
			cep.Binary(cep.OpGreaterThan, cep.Attr(0), cep.Const(cep.Int(5))),
		},
	}, content)
	require.NoError(t, err)

	eng.Publish(eventAt(1, time.Unix(0, 0), cep.Int(10)))
	eng.Publish(eventAt(2, time.Unix(1, 0), cep.Int(3)))
	eng.Publish(eventAt(2, time.Unix(2, 0), cep.Int(7)))

	require.Len(t, any.events, 3)
	require.Len(t, topic.events, 2)
	require.Len(t, content.events, 1)
}

func TestContentFilterRejectsParameters(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Subscribe(cep.FilterContent{
		TyID:    1,
		Filters: []cep.Expression{cep.Binary(cep.OpEqual, cep.Param(0, 0), cep.Const(cep.Int(1)))},
	}, &collectListener{})
	require.Error(t, err)
}

func TestRecursivePublicationDepthCap(t *testing.T) {
	eng := New([]NodeProvider{StackProvider{}}, Options{Workers: 1, MaxRecursionDepth: 5})
	defer eng.Close()

	require.NoError(t, eng.Declare(cep.TupleDeclaration{
		Kind:       cep.EventTuple,
		ID:         4,
		Name:       "d",
		Attributes: []cep.AttributeDeclaration{{Name: "id", Type: cep.TypeInt}},
	}))
	// D triggers a rule that emits D again: unbounded without the cap.
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			{Kind: &cep.Trigger{}, Tuple: cep.ConstrainedTuple{TyID: 4}},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Const(cep.Int(0))}},
	}))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterAny{}, listener)
	require.NoError(t, err)

	eng.Publish(eventAt(4, time.Unix(0, 0), cep.Int(1)))

	// The external event plus one synthesized event per depth level.
	require.Len(t, listener.events, 6)
}

func TestRuleInvocationIsolation(t *testing.T) {
	// A rule whose template divides by a trigger attribute: publishing a
	// zero attribute kills that invocation but not the engine or later
	// invocations.
	eng := newTestEngine(t)
	declareChainTuples(t, eng)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			{
				Kind: &cep.Trigger{Params: []cep.ParameterDeclaration{
					{Name: "x", Expression: cep.Attr(0)},
				}},
				Tuple: cep.ConstrainedTuple{TyID: 1},
			},
		},
		Template: cep.EventTemplate{
			TyID: 4,
			Attributes: []cep.Expression{
				cep.Binary(cep.OpDivision, cep.Const(cep.Int(100)), cep.Param(0, 0)),
			},
		},
	}))

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	eng.Publish(eventAt(1, time.Unix(0, 0), cep.Int(0))) // division by zero
	require.Empty(t, listener.events)

	eng.Publish(eventAt(1, time.Unix(1, 0), cep.Int(4)))
	require.Len(t, listener.events, 1)
	require.Equal(t, cep.Int(25), listener.events[0].Tuple.Data[0])
}

func TestParallelFanOutAcrossRules(t *testing.T) {
	eng := New([]NodeProvider{StackProvider{}}, Options{Workers: 4})
	defer eng.Close()
	declareChainTuples(t, eng)

	const rules = 16
	for i := 0; i < rules; i++ {
		require.NoError(t, eng.Define(&cep.Rule{
			Predicates: []*cep.Predicate{
				{Kind: &cep.Trigger{}, Tuple: cep.ConstrainedTuple{TyID: 1}},
			},
			Template: cep.EventTemplate{
				TyID:       4,
				Attributes: []cep.Expression{cep.Const(cep.Int(int64(i)))},
			},
		}))
	}

	listener := &collectListener{}
	_, err := eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)

	eng.Publish(eventAt(1, time.Unix(0, 0), cep.Int(1)))
	require.Len(t, listener.events, rules)

	// Every rule emitted exactly once, in some interleaving.
	seen := map[cep.Value]bool{}
	for _, ev := range listener.events {
		seen[ev.Tuple.Data[0]] = true
	}
	require.Len(t, seen, rules)
}
