package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-cep/cep"
	"github.com/wbrown/janus-cep/cep/engine"
)

type collectListener struct {
	events []*cep.Event
}

func (l *collectListener) Receive(event *cep.Event) {
	l.events = append(l.events, event)
}

func TestRowRoundTrip(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	rows := [][]cep.Value{
		{cep.Int(1), cep.Str("alpha"), cep.Bool(true), cep.Float(1.5)},
		{cep.Int(-2), cep.Str(""), cep.Bool(false), cep.Float(-0.25)},
	}
	require.NoError(t, store.Insert(7, rows))

	got, err := store.Rows(7)
	require.NoError(t, err)
	require.Equal(t, rows, got)

	// Tables are isolated by id.
	other, err := store.Rows(8)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestInsertAppends(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Insert(1, [][]cep.Value{{cep.Int(1)}}))
	require.NoError(t, store.Insert(1, [][]cep.Value{{cep.Int(2)}}))

	rows, err := store.Rows(1)
	require.NoError(t, err)
	require.Equal(t, [][]cep.Value{{cep.Int(1)}, {cep.Int(2)}}, rows)
}

// kvFixture builds an engine whose static predicates resolve against a
// Badger table limits(col0) = [1, 2, 3].
func kvFixture(t *testing.T) (*engine.Engine, *collectListener) {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Insert(10, [][]cep.Value{
		{cep.Int(1)}, {cep.Int(2)}, {cep.Int(3)},
	}))

	eng := engine.New(
		[]engine.NodeProvider{engine.StackProvider{}, NewProvider(store, nil)},
		engine.Options{Workers: 1},
	)
	t.Cleanup(eng.Close)

	require.NoError(t, eng.Declare(cep.TupleDeclaration{
		Kind: cep.EventTuple,
		ID:   1,
		Name: "a",
		Attributes: []cep.AttributeDeclaration{
			{Name: "x", Type: cep.TypeInt},
			{Name: "y", Type: cep.TypeInt},
		},
	}))
	require.NoError(t, eng.Declare(cep.TupleDeclaration{
		Kind:       cep.StaticTuple,
		ID:         10,
		Name:       "limits",
		Attributes: []cep.AttributeDeclaration{{Name: "col0", Type: cep.TypeInt}},
	}))
	require.NoError(t, eng.Declare(cep.TupleDeclaration{
		Kind:       cep.EventTuple,
		ID:         4,
		Name:       "d",
		Attributes: []cep.AttributeDeclaration{{Name: "v", Type: cep.TypeInt}},
	}))

	listener := &collectListener{}
	_, err = eng.Subscribe(cep.FilterTopic{TyID: 4}, listener)
	require.NoError(t, err)
	return eng, listener
}

func kvTrigger() *cep.Predicate {
	return &cep.Predicate{
		Kind: &cep.Trigger{Params: []cep.ParameterDeclaration{
			{Name: "x", Expression: cep.Attr(0)},
			{Name: "y", Expression: cep.Attr(1)},
		}},
		Tuple: cep.ConstrainedTuple{TyID: 1},
	}
}

func kvRange() []cep.Expression {
	return []cep.Expression{
		cep.Binary(cep.OpGreaterEqual, cep.Attr(0), cep.Param(0, 0)),
		cep.Binary(cep.OpLowerThan, cep.Attr(0), cep.Param(0, 1)),
	}
}

func kvPublish(eng *engine.Engine, x, y int64) {
	eng.Publish(&cep.Event{
		Tuple: cep.Tuple{TyID: 1, Data: []cep.Value{cep.Int(x), cep.Int(y)}},
		Time:  time.Now(),
	})
}

func TestKvUnorderedStatic(t *testing.T) {
	eng, listener := kvFixture(t)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			kvTrigger(),
			{
				Kind: &cep.UnorderedStatic{Params: []cep.ParameterDeclaration{
					{Name: "z", Expression: cep.Attr(0)},
				}},
				Tuple: cep.ConstrainedTuple{TyID: 10, Constraints: kvRange()},
			},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Param(1, 0)}},
	}))

	kvPublish(eng, 1, 3)
	require.Len(t, listener.events, 2)
}

func TestKvOrderedStatic(t *testing.T) {
	eng, listener := kvFixture(t)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			kvTrigger(),
			{
				Kind: &cep.OrderedStatic{
					Params: []cep.ParameterDeclaration{
						{Name: "best", Expression: cep.Attr(0)},
					},
					Orderings: []cep.Ordering{{Attribute: 0, Direction: cep.Desc}},
				},
				Tuple: cep.ConstrainedTuple{TyID: 10, Constraints: kvRange()},
			},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Param(1, 0)}},
	}))

	kvPublish(eng, 1, 4)
	require.Len(t, listener.events, 1)
	require.Equal(t, cep.Int(3), listener.events[0].Tuple.Data[0])
}

func TestKvStaticAggregate(t *testing.T) {
	eng, listener := kvFixture(t)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			kvTrigger(),
			{
				Kind: &cep.StaticAggregate{
					Aggregator: cep.Aggregator{Fn: cep.AggSum, Attribute: 0},
					Param:      cep.ParameterDeclaration{Name: "total", Expression: &cep.Aggregate{}},
				},
				Tuple: cep.ConstrainedTuple{TyID: 10, Constraints: kvRange()},
			},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Param(1, 0)}},
	}))

	kvPublish(eng, 1, 4)
	require.Len(t, listener.events, 1)
	require.Equal(t, cep.Int(6), listener.events[0].Tuple.Data[0])
}

func TestKvStaticNegation(t *testing.T) {
	eng, listener := kvFixture(t)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			kvTrigger(),
			{
				Kind: &cep.StaticNegation{},
				Tuple: cep.ConstrainedTuple{
					TyID: 10,
					Constraints: []cep.Expression{
						cep.Binary(cep.OpEqual, cep.Attr(0), cep.Const(cep.Int(99))),
					},
				},
			},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Const(cep.Int(0))}},
	}))

	kvPublish(eng, 0, 0)
	require.Len(t, listener.events, 1)
}

func TestKvCountFanOut(t *testing.T) {
	eng, listener := kvFixture(t)
	require.NoError(t, eng.Define(&cep.Rule{
		Predicates: []*cep.Predicate{
			kvTrigger(),
			{
				Kind:  &cep.UnorderedStatic{},
				Tuple: cep.ConstrainedTuple{TyID: 10, Constraints: kvRange()},
			},
		},
		Template: cep.EventTemplate{TyID: 4, Attributes: []cep.Expression{cep.Const(cep.Int(0))}},
	}))

	kvPublish(eng, 1, 4)
	require.Len(t, listener.events, 3)
}
