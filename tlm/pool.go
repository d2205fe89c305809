package tlm

import (
	"fmt"

	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
)

// Pool is the memory manager of pool-owned transactions.
//
// Allocate hands out a reset transaction from the free list, or constructs a new one bound to
// the pool. The transaction returns to the free list by itself when its reference count drops
// to zero, no matter which participant released it last.
//
// A Pool belongs to one simulation and is not safe for concurrent use.
type Pool struct {
	name      string
	logger    logger.Logger
	clock     func() sim.Time
	freeList  []*Transaction
	allocated int
	reclaimed uint64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolName sets the participant name used in logs and protocol errors.
func WithPoolName(name string) PoolOption {
	return func(p *Pool) { p.name = name }
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPoolClock sets the time source reported in protocol errors raised by pooled transactions,
// usually Kernel.Now.
func WithPoolClock(clock func() sim.Time) PoolOption {
	return func(p *Pool) { p.clock = clock }
}

// WithPoolPrealloc constructs n transactions up front and puts them on the free list.
func WithPoolPrealloc(n int) PoolOption {
	return func(p *Pool) {
		for range n {
			t := p.newTransaction()
			t.inPool = true
			p.freeList = append(p.freeList, t)
		}
	}
}

// NewPool creates an empty transaction pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		name:     "pool",
		logger:   logger.GetLogger(),
		freeList: make([]*Transaction, 0, 16),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Allocate returns a transaction with every attribute reset to its default.
// The returned transaction has a zero reference count; callers acquire it before use.
func (p *Pool) Allocate() *Transaction {
	var t *Transaction
	if n := len(p.freeList); n > 0 {
		t = p.freeList[n-1]
		p.freeList[n-1] = nil
		p.freeList = p.freeList[:n-1]
	} else {
		t = p.newTransaction()
	}

	t.inPool = false
	t.Reset()
	p.logger.Debug("transaction allocated", "participant", p.name, "time", p.now(), "txn", t.id,
		"free", len(p.freeList))

	return t
}

// FreeCount returns the number of transactions on the free list.
func (p *Pool) FreeCount() int {
	return len(p.freeList)
}

// Allocated returns the number of transactions ever constructed by the pool.
func (p *Pool) Allocated() int {
	return p.allocated
}

// Outstanding returns the number of transactions currently handed out.
func (p *Pool) Outstanding() int {
	return p.allocated - len(p.freeList)
}

// Reclaimed returns how many times a transaction returned to the free list.
func (p *Pool) Reclaimed() uint64 {
	return p.reclaimed
}

// Verify checks the free list: every transaction on it must belong to the pool, be marked as
// free and have a zero reference count.
func (p *Pool) Verify() error {
	for i, t := range p.freeList {
		switch {
		case t.pool != p:
			return fmt.Errorf("%w: free list entry %d belongs to another pool", ErrRefCount, i)
		case !t.inPool:
			return fmt.Errorf("%w: free list entry %d is not marked free", ErrUseAfterFree, i)
		case t.refCount != 0:
			return fmt.Errorf("%w: free list entry %d has count %d", ErrRefCount, i, t.refCount)
		}
	}

	return nil
}

func (p *Pool) newTransaction() *Transaction {
	p.allocated++
	return &Transaction{pool: p}
}

// free is the release callback invoked by Transaction.Release on the zero transition.
func (p *Pool) free(t *Transaction) {
	t.clearAutoExtensions()
	t.inPool = true
	p.freeList = append(p.freeList, t)
	p.reclaimed++

	p.logger.Debug("transaction reclaimed", "participant", p.name, "time", p.now(), "txn", t.id,
		"free", len(p.freeList))
}

func (p *Pool) now() sim.Time {
	if p.clock == nil {
		return sim.ZeroTime
	}
	return p.clock()
}
