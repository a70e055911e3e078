// Package egress delivers output records to the configured sinks. From
// the gateway's perspective every sink is fire-and-forget: a failing sink
// is logged and counted, never allowed to stall the poll loop.
package egress

import (
	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/metrics"
	"github.com/fieldgate/fieldgate/internal/record"
)

// Sink is one delivery target for output records.
type Sink interface {
	Name() string
	Emit(rec *record.Record) error
	Close() error
}

// Fanout hands every record to every sink. Zero sinks is a valid
// configuration (the gateway still stores and serves records locally).
type Fanout struct {
	sinks []Sink
	log   *zap.Logger
}

// NewFanout builds a Fanout over the given sinks.
func NewFanout(log *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, log: log}
}

// Emit delivers rec to all sinks, logging and counting failures.
func (f *Fanout) Emit(rec *record.Record) {
	for _, s := range f.sinks {
		if err := s.Emit(rec); err != nil {
			metrics.EgressErrorsTotal.WithLabelValues(s.Name()).Inc()
			f.log.Warn("egress: emit failed",
				zap.String("sink", s.Name()),
				zap.Error(err),
			)
			continue
		}
		metrics.EgressPublishedTotal.WithLabelValues(s.Name()).Inc()
	}
}

// Close shuts down all sinks, keeping the first error.
func (f *Fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Len returns the number of configured sinks.
func (f *Fanout) Len() int { return len(f.sinks) }
