package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wbrown/janus-cep/cep"
	"github.com/wbrown/janus-cep/cep/cache"
	"github.com/wbrown/janus-cep/cep/engine"
	"github.com/wbrown/janus-cep/cep/inference"
)

// Driver is the evaluation node of one static predicate: a precompiled
// statement, the input/output parameter split, and a cached fetcher over
// the connection pool.
type Driver struct {
	idx       int
	predicate *cep.Predicate
	statement string
	// inputParams are parameters referenced by the constraints but
	// declared by earlier predicates; their values key the cache.
	inputParams []cep.ParamKey
	// outputTypes are the declared output parameters' types, used to
	// decode result columns.
	outputTypes []cep.BasicType
	stmt        *sql.Stmt
	fetcher     *cache.CachedFetcher[CacheKey, *Entry]
	logger      *zap.Logger
}

func newDriver(idx int, tuple *cep.TupleDeclaration, pred *cep.Predicate, paramTypes inference.ParamTypes,
	db *sql.DB, fetcher *cache.CachedFetcher[CacheKey, *Entry], logger *zap.Logger) (*Driver, error) {

	statement, err := BuildStatement(idx, tuple, pred)
	if err != nil {
		return nil, err
	}
	stmt, err := db.Prepare(statement)
	if err != nil {
		return nil, fmt.Errorf("preparing %q: %w", statement, err)
	}

	var inputs []cep.ParamKey
	for _, key := range pred.UsedParameters() {
		if key.Predicate != idx {
			inputs = append(inputs, key)
		}
	}

	var outputs []cep.BasicType
	switch pred.Kind.(type) {
	case *cep.OrderedStatic, *cep.UnorderedStatic:
		for j := range pred.Kind.Parameters() {
			outputs = append(outputs, paramTypes[cep.ParamKey{Predicate: idx, Parameter: j}])
		}
	case *cep.StaticAggregate:
		outputs = []cep.BasicType{paramTypes[cep.ParamKey{Predicate: idx, Parameter: 0}]}
	}

	return &Driver{
		idx:         idx,
		predicate:   pred,
		statement:   statement,
		inputParams: inputs,
		outputTypes: outputs,
		stmt:        stmt,
		fetcher:     fetcher,
		logger:      logger,
	}, nil
}

// Process is a no-op: static data does not ride the event stream
func (d *Driver) Process(*cep.Event) {}

// Consume is a no-op for the same reason
func (d *Driver) Consume(*cep.Event) {}

// Statement returns the compiled SQL
func (d *Driver) Statement() string { return d.statement }

// CacheStats exposes the node's fetcher counters
func (d *Driver) CacheStats() cache.Stats { return d.fetcher.Stats() }

// Evaluate binds the input parameters from the partial result, fetches
// through the cache, and materializes the entry into extended results.
func (d *Driver) Evaluate(ctx engine.CompleteContext) []*engine.PartialResult {
	values := make([]cep.Value, len(d.inputParams))
	for i, key := range d.inputParams {
		values[i] = ctx.ParameterValue(key.Predicate, key.Parameter)
	}
	key := CacheKey{Statement: d.statement, Params: EncodeValues(values)}

	entry, err := d.fetcher.Fetch(key, func(CacheKey) (*Entry, error) {
		return d.query(values)
	})
	if err != nil {
		d.logger.Error("static query failed",
			zap.String("statement", d.statement),
			zap.Error(err))
		// Fatal to this rule invocation, isolated at the rule boundary.
		panic(&cep.EvalError{Msg: fmt.Sprintf("static query: %v", err)})
	}

	result := ctx.Result()
	switch entry.kind {
	case entryRows:
		rows := len(entry.values) / entry.chunk
		out := make([]*engine.PartialResult, 0, rows)
		for i := 0; i < rows; i++ {
			row := entry.values[i*entry.chunk : (i+1)*entry.chunk]
			out = append(out, result.WithStaticRow(d.idx, row))
		}
		return out
	case entryCount:
		// n identical copies control the fan-out for downstream nodes;
		// results are immutable, so sharing the pointer is safe.
		out := make([]*engine.PartialResult, entry.count)
		for i := range out {
			out[i] = result
		}
		return out
	case entryAggregate:
		if !entry.aggregateOK {
			return nil
		}
		return []*engine.PartialResult{result.WithStaticRow(d.idx, []cep.Value{entry.aggregate})}
	case entryExists:
		if entry.exists {
			return nil
		}
		return []*engine.PartialResult{result}
	default:
		panic(&cep.EvalError{Msg: fmt.Sprintf("unknown cache entry kind %d", entry.kind)})
	}
}

// query runs the prepared statement on a pooled connection and builds the
// cache entry, measuring the elapsed wall time as the entry's cost.
func (d *Driver) query(values []cep.Value) (*Entry, error) {
	start := time.Now()
	args := make([]interface{}, len(d.inputParams))
	for i, key := range d.inputParams {
		args[i] = sql.Named(ParamName(key), sqlArg(values[i]))
	}

	entry := &Entry{}
	switch kind := d.predicate.Kind.(type) {
	case *cep.OrderedStatic, *cep.UnorderedStatic:
		rows, err := d.stmt.Query(args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		if len(d.outputTypes) > 0 {
			entry.kind = entryRows
			entry.chunk = len(d.outputTypes)
			for rows.Next() {
				decoded, err := scanRow(rows, d.outputTypes)
				if err != nil {
					return nil, err
				}
				entry.values = append(entry.values, decoded...)
			}
		} else {
			entry.kind = entryCount
			for rows.Next() {
				entry.count++
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

	case *cep.StaticAggregate:
		value, ok, err := d.queryAggregate(kind, args)
		if err != nil {
			return nil, err
		}
		entry.kind = entryAggregate
		entry.aggregate = value
		entry.aggregateOK = ok

	case *cep.StaticNegation:
		rows, err := d.stmt.Query(args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		entry.kind = entryExists
		entry.exists = rows.Next()
		if err := rows.Err(); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("predicate kind %T has no query form", kind)
	}

	entry.cost = time.Since(start)
	return entry, nil
}

// queryAggregate reads the single aggregate column. SQL yields NULL for
// Min/Max/Avg over no rows (no partial result is emitted then) and for
// Sum, which the engine defines as 0 over an empty set.
func (d *Driver) queryAggregate(kind *cep.StaticAggregate, args []interface{}) (cep.Value, bool, error) {
	row := d.stmt.QueryRow(args...)
	ty := d.outputTypes[0]
	switch ty {
	case cep.TypeInt:
		var v sql.NullInt64
		if err := row.Scan(&v); err != nil {
			return cep.Value{}, false, err
		}
		if !v.Valid {
			if kind.Aggregator.Fn == cep.AggSum {
				return cep.Int(0), true, nil
			}
			return cep.Value{}, false, nil
		}
		return cep.Int(v.Int64), true, nil
	case cep.TypeFloat:
		var v sql.NullFloat64
		if err := row.Scan(&v); err != nil {
			return cep.Value{}, false, err
		}
		if !v.Valid {
			if kind.Aggregator.Fn == cep.AggSum {
				return cep.Float(0), true, nil
			}
			return cep.Value{}, false, nil
		}
		return cep.Float(v.Float64), true, nil
	default:
		return cep.Value{}, false, fmt.Errorf("aggregate parameter has non-numeric type %s", ty)
	}
}

// scanRow decodes one result row according to the declared output types:
// integers as 64-bit, floats as double, booleans as nonzero integers,
// strings as text.
func scanRow(rows *sql.Rows, types []cep.BasicType) ([]cep.Value, error) {
	holders := make([]interface{}, len(types))
	for i, ty := range types {
		switch ty {
		case cep.TypeInt, cep.TypeBool:
			holders[i] = new(int64)
		case cep.TypeFloat:
			holders[i] = new(float64)
		case cep.TypeStr:
			holders[i] = new(string)
		}
	}
	if err := rows.Scan(holders...); err != nil {
		return nil, err
	}
	out := make([]cep.Value, len(types))
	for i, ty := range types {
		switch ty {
		case cep.TypeInt:
			out[i] = cep.Int(*holders[i].(*int64))
		case cep.TypeBool:
			out[i] = cep.Bool(*holders[i].(*int64) != 0)
		case cep.TypeFloat:
			out[i] = cep.Float(*holders[i].(*float64))
		case cep.TypeStr:
			out[i] = cep.Str(*holders[i].(*string))
		}
	}
	return out, nil
}

func sqlArg(v cep.Value) interface{} {
	switch v.Type() {
	case cep.TypeInt:
		n, _ := v.AsInt()
		return n
	case cep.TypeFloat:
		f, _ := v.AsFloat()
		return f
	case cep.TypeBool:
		b, _ := v.AsBool()
		if b {
			return int64(1)
		}
		return int64(0)
	case cep.TypeStr:
		s, _ := v.AsStr()
		return s
	default:
		return nil
	}
}
