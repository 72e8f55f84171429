package kv

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wbrown/janus-cep/cep"
	"github.com/wbrown/janus-cep/cep/engine"
	"github.com/wbrown/janus-cep/cep/inference"
)

// Provider serves static predicates from a Store. Register it after the
// event-stack provider and before (or instead of) the SQLite provider to
// route static tuples to Badger-resident tables.
type Provider struct {
	store  *Store
	logger *zap.Logger
}

// NewProvider wraps a store
func NewProvider(store *Store, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{store: store, logger: logger}
}

// Provide accepts static predicates over static tuples
func (p *Provider) Provide(idx int, tuple *cep.TupleDeclaration, pred *cep.Predicate, paramTypes inference.ParamTypes) (engine.Node, error) {
	if tuple.Kind != cep.StaticTuple {
		return nil, nil
	}
	switch pred.Kind.(type) {
	case *cep.OrderedStatic, *cep.UnorderedStatic, *cep.StaticAggregate, *cep.StaticNegation:
	default:
		return nil, nil
	}
	return &node{
		idx:       idx,
		tuple:     tuple,
		predicate: pred,
		store:     p.store,
		logger:    p.logger,
	}, nil
}

// node evaluates one static predicate by scanning the table's rows and
// applying the constraints in process.
type node struct {
	idx       int
	tuple     *cep.TupleDeclaration
	predicate *cep.Predicate
	store     *Store
	logger    *zap.Logger
}

func (n *node) Process(*cep.Event) {}
func (n *node) Consume(*cep.Event) {}

func (n *node) Evaluate(ctx engine.CompleteContext) []*engine.PartialResult {
	rows, err := n.store.Rows(n.tuple.ID)
	if err != nil {
		n.logger.Error("table scan failed",
			zap.Int("table", n.tuple.ID),
			zap.Error(err))
		panic(&cep.EvalError{Msg: fmt.Sprintf("kv scan: %v", err)})
	}

	matched := rows[:0]
	for _, row := range rows {
		if n.rowSatisfied(ctx, row) {
			matched = append(matched, row)
		}
	}

	result := ctx.Result()
	switch kind := n.predicate.Kind.(type) {
	case *cep.UnorderedStatic:
		if len(kind.Params) == 0 {
			out := make([]*engine.PartialResult, len(matched))
			for i := range out {
				out[i] = result
			}
			return out
		}
		out := make([]*engine.PartialResult, 0, len(matched))
		for _, row := range matched {
			out = append(out, result.WithStaticRow(n.idx, n.bindOutputs(ctx, kind.Params, row)))
		}
		return out

	case *cep.OrderedStatic:
		if len(matched) == 0 {
			return nil
		}
		best := n.selectFirst(matched, kind.Orderings)
		return []*engine.PartialResult{
			result.WithStaticRow(n.idx, n.bindOutputs(ctx, kind.Params, best)),
		}

	case *cep.StaticAggregate:
		value, ok := engine.AggregateRows(kind.Aggregator, matched, n.tuple.Attributes)
		if !ok {
			return nil
		}
		bound := engine.Evaluate(ctx.WithAggregateValue(value), kind.Param.Expression)
		return []*engine.PartialResult{result.WithStaticRow(n.idx, []cep.Value{bound})}

	case *cep.StaticNegation:
		if len(matched) == 0 {
			return []*engine.PartialResult{result}
		}
		return nil

	default:
		panic(&cep.EvalError{Msg: fmt.Sprintf("kv node evaluated for %T", kind)})
	}
}

func (n *node) rowSatisfied(ctx engine.CompleteContext, row []cep.Value) bool {
	if len(n.predicate.Tuple.Constraints) == 0 {
		return true
	}
	tuple := &cep.Tuple{TyID: n.tuple.ID, Data: row}
	derived := ctx.WithTuple(tuple, n.idx)
	for _, expr := range n.predicate.Tuple.Constraints {
		if !engine.EvaluateBool(derived, expr) {
			return false
		}
	}
	return true
}

func (n *node) bindOutputs(ctx engine.CompleteContext, params []cep.ParameterDeclaration, row []cep.Value) []cep.Value {
	tuple := &cep.Tuple{TyID: n.tuple.ID, Data: row}
	derived := ctx.WithTuple(tuple, n.idx)
	values := make([]cep.Value, len(params))
	for i, p := range params {
		values[i] = engine.Evaluate(derived, p.Expression)
	}
	return values
}

// selectFirst returns the row ranking first under the orderings
func (n *node) selectFirst(rows [][]cep.Value, orderings []cep.Ordering) []cep.Value {
	sorted := make([][]cep.Value, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		for _, ord := range orderings {
			c := compareValues(sorted[i][ord.Attribute], sorted[j][ord.Attribute])
			if c == 0 {
				continue
			}
			if ord.Direction == cep.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sorted[0]
}

func compareValues(left, right cep.Value) int {
	less, _ := cep.ApplyBinary(cep.OpLowerThan, left, right).AsBool()
	if less {
		return -1
	}
	if left == right {
		return 0
	}
	return 1
}
