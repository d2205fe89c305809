package sim

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-tlm/logger"
)

var (
	// ErrStopped indicates that the kernel was stopped by Stop before reaching quiescence.
	ErrStopped = errors.New("simulation stopped")

	// ErrTimeLimit indicates that the run reached the configured time limit with events still pending.
	ErrTimeLimit = errors.New("simulation time limit reached")
)

// event is a closure scheduled at an absolute time.
// seq breaks ties between events scheduled for the same time in scheduling order.
type event struct {
	at  Time
	seq uint64
	fn  func()
}

// eventHeap implements heap.Interface ordered by (at, seq).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	ev, _ := x.(*event)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]

	return ev
}

// Kernel is a single-threaded discrete-event scheduler.
//
// Callbacks run one at a time in non-decreasing time order; callbacks scheduled for the same
// time run in the order they were scheduled. A callback is never run from inside Schedule,
// even with a zero delay, so chains of zero-delay notifications do not grow the call stack.
//
// A Kernel is not safe for concurrent use. All participants of a simulation share one Kernel
// and are only ever driven from its Run loop.
type Kernel struct {
	now       Time
	seq       uint64
	events    eventHeap
	stopped   bool
	running   bool
	timeLimit Time
	executed  uint64
	logger    logger.Logger
}

// KernelOption configures a Kernel.
type KernelOption func(*Kernel)

// WithKernelLogger sets the logger used by the kernel.
func WithKernelLogger(l logger.Logger) KernelOption {
	return func(k *Kernel) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithTimeLimit makes Run return ErrTimeLimit instead of executing events scheduled after limit.
func WithTimeLimit(limit Time) KernelOption {
	return func(k *Kernel) { k.timeLimit = limit }
}

// NewKernel creates a kernel at time zero with no pending events.
func NewKernel(opts ...KernelOption) *Kernel {
	k := &Kernel{
		events: make(eventHeap, 0, 64),
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(k)
	}

	return k
}

// Now returns the current simulated time.
func (k *Kernel) Now() Time {
	return k.now
}

// Pending returns the number of scheduled callbacks not yet executed.
func (k *Kernel) Pending() int {
	return len(k.events)
}

// Executed returns the number of callbacks executed so far.
func (k *Kernel) Executed() uint64 {
	return k.executed
}

// Logger returns the kernel logger.
func (k *Kernel) Logger() logger.Logger {
	return k.logger
}

// Schedule arranges for fn to run at Now()+delay.
func (k *Kernel) Schedule(delay Time, fn func()) {
	if fn == nil {
		return
	}

	k.seq++
	heap.Push(&k.events, &event{at: k.now + delay, seq: k.seq, fn: fn})
}

// Stop makes Run return after the currently executing callback.
func (k *Kernel) Stop() {
	k.stopped = true
}

// Run executes scheduled callbacks until no events remain.
//
// Run returns nil on quiescence, the error passed to Halt when a callback halts the
// simulation, ErrStopped after Stop, ErrTimeLimit when the time limit is reached, or the
// context error when ctx is done.
func (k *Kernel) Run(ctx context.Context) (err error) {
	if k.running {
		return errors.New("kernel is already running")
	}
	k.running = true
	k.stopped = false
	defer func() { k.running = false }()

	defer func() {
		if r := recover(); r != nil {
			h, ok := r.(halt)
			if !ok {
				panic(r)
			}
			k.logger.Debug("simulation halted", "time", k.now, "error", h.err)
			err = h.err
		}
	}()

	for len(k.events) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if k.stopped {
			return ErrStopped
		}

		next := k.events[0]
		if k.timeLimit > 0 && next.at > k.timeLimit {
			k.now = k.timeLimit
			return ErrTimeLimit
		}

		ev, _ := heap.Pop(&k.events).(*event)
		k.now = ev.at
		k.executed++
		ev.fn()
	}

	return nil
}

// halt carries a fatal error from a callback up to Run.
type halt struct {
	err error
}

// Halt aborts the running simulation: Run unwinds and returns err.
//
// Halt never returns. Called outside Run it panics with an unrecovered value.
func Halt(err error) {
	if err == nil {
		err = errors.New("simulation halted")
	}
	panic(halt{err: err})
}

// HaltCause returns the error carried by v, a value recovered from a panic raised by Halt.
// It returns nil when v was not raised by Halt.
func HaltCause(v any) error {
	h, ok := v.(halt)
	if !ok {
		return nil
	}
	return h.err
}

// Catch runs fn outside of a kernel and returns the error passed to Halt while fn ran.
// It returns nil when fn completed normally. Panics not raised by Halt are propagated.
func Catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause := HaltCause(r)
			if cause == nil {
				panic(r)
			}
			err = cause
		}
	}()
	fn()

	return nil
}

// String describes the kernel state.
func (k *Kernel) String() string {
	return fmt.Sprintf("kernel@%s pending=%d executed=%d", k.now, len(k.events), k.executed)
}
