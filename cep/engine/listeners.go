package engine

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wbrown/janus-cep/cep"
)

// DebugListener logs every received event
type DebugListener struct {
	Logger *zap.Logger
}

func (l *DebugListener) Receive(event *cep.Event) {
	logger := l.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("event received",
		zap.Int("tuple", event.Tuple.TyID),
		zap.Time("time", event.Time),
		zap.Stringers("data", event.Tuple.Data))
}

// CountListener counts received events; benchmark drivers read the total
// to compute sustained throughput.
type CountListener struct {
	count int64
}

func (l *CountListener) Receive(*cep.Event) {
	atomic.AddInt64(&l.count, 1)
}

// Count returns the number of events received so far
func (l *CountListener) Count() int64 {
	return atomic.LoadInt64(&l.count)
}
