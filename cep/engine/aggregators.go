package engine

import (
	"github.com/wbrown/janus-cep/cep"
)

// ComputeAggregate folds the attribute values of a sequence of events into
// one value. The second result is false when the aggregate is undefined
// over the input: Min, Max and Avg over an empty sequence. Sum and Count
// yield zero over an empty sequence.
func ComputeAggregate(aggr cep.Aggregator, events []*cep.Event, attributes []cep.AttributeDeclaration) (cep.Value, bool) {
	if aggr.Fn == cep.AggCount {
		return cep.Int(int64(len(events))), true
	}
	ty := attributes[aggr.Attribute].Type
	switch ty {
	case cep.TypeInt:
		return aggregateInts(aggr, events)
	case cep.TypeFloat:
		return aggregateFloats(aggr, events)
	default:
		evalPanic("aggregate over non-numeric attribute type %s", ty)
		return cep.Value{}, false
	}
}

func aggregateInts(aggr cep.Aggregator, events []*cep.Event) (cep.Value, bool) {
	attr := aggr.Attribute
	switch aggr.Fn {
	case cep.AggSum:
		var sum int64
		for _, ev := range events {
			sum += ev.Tuple.Data[attr].MustInt()
		}
		return cep.Int(sum), true
	case cep.AggAvg:
		if len(events) == 0 {
			return cep.Value{}, false
		}
		var sum int64
		for _, ev := range events {
			sum += ev.Tuple.Data[attr].MustInt()
		}
		return cep.Float(float64(sum) / float64(len(events))), true
	case cep.AggMin:
		if len(events) == 0 {
			return cep.Value{}, false
		}
		min := events[0].Tuple.Data[attr].MustInt()
		for _, ev := range events[1:] {
			if v := ev.Tuple.Data[attr].MustInt(); v < min {
				min = v
			}
		}
		return cep.Int(min), true
	case cep.AggMax:
		if len(events) == 0 {
			return cep.Value{}, false
		}
		max := events[0].Tuple.Data[attr].MustInt()
		for _, ev := range events[1:] {
			if v := ev.Tuple.Data[attr].MustInt(); v > max {
				max = v
			}
		}
		return cep.Int(max), true
	}
	evalPanic("unknown aggregator %d", aggr.Fn)
	return cep.Value{}, false
}

func aggregateFloats(aggr cep.Aggregator, events []*cep.Event) (cep.Value, bool) {
	attr := aggr.Attribute
	switch aggr.Fn {
	case cep.AggSum:
		var sum float64
		for _, ev := range events {
			sum += ev.Tuple.Data[attr].MustFloat()
		}
		return cep.Float(sum), true
	case cep.AggAvg:
		if len(events) == 0 {
			return cep.Value{}, false
		}
		var sum float64
		for _, ev := range events {
			sum += ev.Tuple.Data[attr].MustFloat()
		}
		return cep.Float(sum / float64(len(events))), true
	case cep.AggMin:
		if len(events) == 0 {
			return cep.Value{}, false
		}
		min := events[0].Tuple.Data[attr].MustFloat()
		for _, ev := range events[1:] {
			if v := ev.Tuple.Data[attr].MustFloat(); v < min {
				min = v
			}
		}
		return cep.Float(min), true
	case cep.AggMax:
		if len(events) == 0 {
			return cep.Value{}, false
		}
		max := events[0].Tuple.Data[attr].MustFloat()
		for _, ev := range events[1:] {
			if v := ev.Tuple.Data[attr].MustFloat(); v > max {
				max = v
			}
		}
		return cep.Float(max), true
	}
	evalPanic("unknown aggregator %d", aggr.Fn)
	return cep.Value{}, false
}

// AggregateRows folds attribute values of raw tuples; the key-value static
// backend aggregates table rows with it.
func AggregateRows(aggr cep.Aggregator, rows [][]cep.Value, attributes []cep.AttributeDeclaration) (cep.Value, bool) {
	events := make([]*cep.Event, len(rows))
	for i, row := range rows {
		events[i] = &cep.Event{Tuple: cep.Tuple{Data: row}}
	}
	return ComputeAggregate(aggr, events, attributes)
}
