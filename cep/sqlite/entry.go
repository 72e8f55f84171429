package sqlite

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wbrown/janus-cep/cep"
)

// CacheKey identifies one query result: the compiled statement plus a
// canonical encoding of the input parameter values. The struct is
// comparable and hashes totally (Value canonicalizes float NaN), so it
// serves directly as a cache map key.
type CacheKey struct {
	Statement string
	Params    string
}

// HashBytes feeds the collision cache's slot hash
func (k CacheKey) HashBytes() []byte {
	return []byte(k.Statement + "\x00" + k.Params)
}

// EncodeValues produces the canonical parameter encoding: a type tag and
// payload per value, length-prefixed so distinct vectors never collide.
func EncodeValues(values []cep.Value) string {
	var b strings.Builder
	for _, v := range values {
		switch v.Type() {
		case cep.TypeInt:
			n, _ := v.AsInt()
			b.WriteByte('i')
			b.WriteString(strconv.FormatInt(n, 10))
		case cep.TypeFloat:
			f, _ := v.AsFloat()
			b.WriteByte('f')
			b.WriteString(strconv.FormatUint(math.Float64bits(f), 16))
		case cep.TypeBool:
			x, _ := v.AsBool()
			if x {
				b.WriteString("b1")
			} else {
				b.WriteString("b0")
			}
		case cep.TypeStr:
			s, _ := v.AsStr()
			b.WriteByte('s')
			b.WriteString(strconv.Itoa(len(s)))
			b.WriteByte(':')
			b.WriteString(s)
		}
		b.WriteByte(';')
	}
	return b.String()
}

type entryKind uint8

const (
	entryRows entryKind = iota
	entryAggregate
	entryCount
	entryExists
)

// Entry is one cached query result. Cost is the wall time of the miss that
// produced it; Size derives from the row count. Both drive GDSF eviction.
type Entry struct {
	kind entryKind
	// chunk is the output arity of a rows entry; values holds the rows
	// flattened in row-major order.
	chunk  int
	values []cep.Value
	// aggregate carries the bound parameter value of an aggregate query;
	// aggregateOK is false when SQL returned NULL (empty input for
	// Min/Max/Avg).
	aggregate   cep.Value
	aggregateOK bool
	count       int
	exists      bool
	cost        time.Duration
}

// Size reports the entry footprint in rows, never below 1
func (e *Entry) Size() int {
	size := 1
	switch e.kind {
	case entryRows:
		if e.chunk > 0 {
			size = len(e.values) / e.chunk
		}
	case entryCount:
		size = e.count
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Cost reports the measured miss cost in nanoseconds
func (e *Entry) Cost() int {
	return int(e.cost.Nanoseconds())
}
