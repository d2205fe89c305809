package tlm

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/arloliu/go-tlm/internal/util"
	"github.com/arloliu/go-tlm/sim"
)

// Transaction is the payload exchanged between initiators, routers and targets.
//
// A transaction is shared by pointer and mutated in place by whichever participant currently
// owns the phase. Participants that need the transaction beyond the current call stack frame
// call Acquire, and Release once their interest ends; a pool-owned transaction returns to its
// pool when the count reaches zero.
type Transaction struct {
	id             uuid.UUID
	command        Command
	address        uint64
	data           []byte
	streamingWidth uint32
	byteEnable     []byte
	dmiAllowed     bool
	responseStatus ResponseStatus

	refCount int32
	pool     *Pool
	inPool   bool

	extensions map[extensionKey]*extensionSlot
}

// NewTransaction creates a transaction that is not owned by a pool.
//
// Such transactions are typically used for blocking or debug transport calls and live on the
// caller's stack; reaching a zero reference count has no effect.
func NewTransaction() *Transaction {
	return &Transaction{id: uuid.New()}
}

// ID returns the trace identifier assigned on allocation.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Command returns the command.
func (t *Transaction) Command() Command { return t.command }

// SetCommand sets the command.
func (t *Transaction) SetCommand(cmd Command) { t.command = cmd }

// IsRead returns if the command is ReadCommand.
func (t *Transaction) IsRead() bool { return t.command == ReadCommand }

// IsWrite returns if the command is WriteCommand.
func (t *Transaction) IsWrite() bool { return t.command == WriteCommand }

// Address returns the address. Routers may rewrite it on the forward path.
func (t *Transaction) Address() uint64 { return t.address }

// SetAddress sets the address.
func (t *Transaction) SetAddress(addr uint64) { t.address = addr }

// Data returns the data buffer. The buffer is shared, not copied.
func (t *Transaction) Data() []byte { return t.data }

// SetData sets the data buffer; the data length is len(data).
func (t *Transaction) SetData(data []byte) { t.data = data }

// DataLength returns the length of the data buffer in bytes.
func (t *Transaction) DataLength() uint32 { return uint32(len(t.data)) } //nolint:gosec

// StreamingWidth returns the streaming width.
func (t *Transaction) StreamingWidth() uint32 { return t.streamingWidth }

// SetStreamingWidth sets the streaming width.
func (t *Transaction) SetStreamingWidth(width uint32) { t.streamingWidth = width }

// ByteEnable returns the byte enable mask, nil when byte enables are not used.
func (t *Transaction) ByteEnable() []byte { return t.byteEnable }

// SetByteEnable sets the byte enable mask.
func (t *Transaction) SetByteEnable(mask []byte) { t.byteEnable = mask }

// DMIAllowed returns the hint set by a target that direct memory access is possible for this address.
func (t *Transaction) DMIAllowed() bool { return t.dmiAllowed }

// SetDMIAllowed sets the DMI hint.
func (t *Transaction) SetDMIAllowed(allowed bool) { t.dmiAllowed = allowed }

// ResponseStatus returns the response status.
func (t *Transaction) ResponseStatus() ResponseStatus { return t.responseStatus }

// SetResponseStatus sets the response status.
func (t *Transaction) SetResponseStatus(status ResponseStatus) { t.responseStatus = status }

// IsResponseOK returns if the response status is OKResponse.
func (t *Transaction) IsResponseOK() bool { return t.responseStatus.IsOK() }

// IsResponseError returns if the response status is an error status.
func (t *Transaction) IsResponseError() bool { return t.responseStatus.IsError() }

// RefCount returns the current reference count.
func (t *Transaction) RefCount() int { return int(t.refCount) }

// HasPool returns if the transaction is owned by a pool.
func (t *Transaction) HasPool() bool { return t.pool != nil }

// InPool returns if the transaction currently sits on its pool's free list.
func (t *Transaction) InPool() bool { return t.inPool }

// Acquire increments the reference count.
func (t *Transaction) Acquire() {
	if t.inPool {
		t.fatal(ErrUseAfterFree, "acquire")
	}
	t.refCount++
}

// Release decrements the reference count. When a pool-owned transaction reaches zero it is
// returned to its pool; this happens exactly once per allocation.
func (t *Transaction) Release() {
	if t.inPool {
		t.fatal(ErrUseAfterFree, "release")
	}
	if t.refCount <= 0 {
		t.fatal(ErrRefCount, fmt.Sprintf("release with count %d", t.refCount))
	}

	t.refCount--
	if t.refCount == 0 && t.pool != nil {
		t.pool.free(t)
	}
}

// Reset restores every attribute to its default: incomplete status, zero reference count, no
// data and no extensions. A new trace ID is assigned.
func (t *Transaction) Reset() {
	t.id = uuid.New()
	t.command = ReadCommand
	t.address = 0
	t.data = nil
	t.streamingWidth = 0
	t.byteEnable = nil
	t.dmiAllowed = false
	t.responseStatus = IncompleteResponse
	t.refCount = 0
	clear(t.extensions)
}

// DeepCopyFrom copies every attribute of other into t, cloning the data buffer, byte enables
// and extensions. The reference count and pool ownership of t are left untouched.
func (t *Transaction) DeepCopyFrom(other *Transaction) {
	t.command = other.command
	t.address = other.address
	t.data = cloneBytes(other.data)
	t.streamingWidth = other.streamingWidth
	t.byteEnable = cloneBytes(other.byteEnable)
	t.dmiAllowed = other.dmiAllowed
	t.responseStatus = other.responseStatus

	clear(t.extensions)
	for key, slot := range other.extensions {
		t.setSlot(key, slot.ext.Clone(), false)
	}
}

// UpdateOriginalFrom copies the outcome of a copied transaction back into the original t:
// response status, DMI hint, and for reads the data bytes.
func (t *Transaction) UpdateOriginalFrom(other *Transaction) {
	t.responseStatus = other.responseStatus
	t.dmiAllowed = other.dmiAllowed
	if t.IsRead() {
		copy(t.data, other.data)
	}

	for key, slot := range other.extensions {
		if own, ok := t.extensions[key]; ok {
			own.ext.CopyFrom(slot.ext)
		}
	}
}

// String returns a short description used in logs.
func (t *Transaction) String() string {
	return fmt.Sprintf("%s addr=0x%08x len=%d status=%s refs=%d",
		t.command, t.address, len(t.data), t.responseStatus, t.refCount)
}

func (t *Transaction) fatal(err error, detail string) {
	var now sim.Time
	var pool *Pool
	if t.pool != nil {
		pool = t.pool
		now = pool.now()
	}

	participant := "transaction"
	if pool != nil {
		participant = pool.name
	}

	Fatal(nil, participant, now, t, UninitializedPhase, err, detail)
}

func cloneBytes(src []byte) []byte {
	return util.CloneSlice(src, 0)
}
