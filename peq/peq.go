// Package peq implements the payload event queue: a per-participant deferred delivery queue
// that hands a (transaction, phase) pair back to its owner after an annotated delay.
//
// Deliveries are scheduled on the shared sim.Kernel, so they happen in non-decreasing time
// order and in notification order among ties. A zero delay still defers the delivery to a
// later kernel step; Notify never calls the callback itself.
package peq

import (
	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/tlm"
)

// Callback receives a delivered (transaction, phase) pair.
type Callback func(t *tlm.Transaction, phase tlm.Phase)

// Queue is a deferred delivery queue owned by one participant.
type Queue struct {
	name      string
	kernel    *sim.Kernel
	callback  Callback
	logger    logger.Logger
	pending   int
	byPhase   map[tlm.Phase]int
	delivered uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a queue delivering to callback through kernel.
func New(name string, kernel *sim.Kernel, callback Callback, opts ...Option) *Queue {
	q := &Queue{
		name:     name,
		kernel:   kernel,
		callback: callback,
		logger:   kernel.Logger(),
		byPhase:  make(map[tlm.Phase]int, 4),
	}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Notify schedules delivery of (t, phase) at now+delay.
func (q *Queue) Notify(t *tlm.Transaction, phase tlm.Phase, delay sim.Time) {
	q.pending++
	q.byPhase[phase]++

	q.logger.Debug("peq notify", "participant", q.name, "time", q.kernel.Now(), "phase", phase,
		"delay", delay, "txn", t.ID())

	q.kernel.Schedule(delay, func() {
		q.pending--
		q.byPhase[phase]--
		q.delivered++
		q.callback(t, phase)
	})
}

// Pending returns the number of notifications not yet delivered.
func (q *Queue) Pending() int { return q.pending }

// PendingPhase returns the number of undelivered notifications carrying phase.
func (q *Queue) PendingPhase(phase tlm.Phase) int { return q.byPhase[phase] }

// Delivered returns the number of notifications delivered so far.
func (q *Queue) Delivered() uint64 { return q.delivered }
