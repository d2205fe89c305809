package tlm

import "github.com/arloliu/go-tlm/sim"

// ForwardTransport is the capability set a target-side participant implements.
type ForwardTransport interface {
	// NBTransportFW is the non-blocking forward call. It returns the synchronous result together
	// with the possibly updated phase and delay.
	NBTransportFW(t *Transaction, phase Phase, delay sim.Time) (SyncResult, Phase, sim.Time)
	// BTransport executes t synchronously and returns the annotated delay after completion.
	BTransport(t *Transaction, delay sim.Time) sim.Time
	// TransportDbg performs an untimed debug access and returns the number of bytes transferred.
	TransportDbg(t *Transaction) uint32
	// GetDirectMemPtr requests direct memory access for the address of t.
	// It returns true when dmi describes a granted region.
	GetDirectMemPtr(t *Transaction, dmi *DMI) bool
}

// BackwardTransport is the capability set an initiator-side participant implements.
type BackwardTransport interface {
	// NBTransportBW is the non-blocking backward call.
	NBTransportBW(t *Transaction, phase Phase, delay sim.Time) (SyncResult, Phase, sim.Time)
	// InvalidateDirectMemPtr revokes every DMI grant overlapping [start, end].
	InvalidateDirectMemPtr(start, end uint64)
}

// DMIAccess describes the access rights of a direct memory region.
type DMIAccess uint8

const (
	DMIAccessNone  DMIAccess = 0
	DMIAccessRead  DMIAccess = 1
	DMIAccessWrite DMIAccess = 2
	DMIAccessRW    DMIAccess = DMIAccessRead | DMIAccessWrite
)

func (a DMIAccess) String() string {
	switch a {
	case DMIAccessRead:
		return "read"
	case DMIAccessWrite:
		return "write"
	case DMIAccessRW:
		return "read/write"
	default:
		return "none"
	}
}

// DMI describes a direct memory region granted by a target.
//
// Memory aliases the target's backing store for [StartAddress, EndAddress], both inclusive and
// expressed in the address space of the caller.
type DMI struct {
	Memory       []byte
	StartAddress uint64
	EndAddress   uint64
	Access       DMIAccess
	ReadLatency  sim.Time
	WriteLatency sim.Time
}

// Reset clears d to a "nothing granted" region covering the whole address space.
func (d *DMI) Reset() {
	d.Memory = nil
	d.StartAddress = 0
	d.EndAddress = ^uint64(0)
	d.Access = DMIAccessNone
	d.ReadLatency = 0
	d.WriteLatency = 0
}

// AllowsRead returns if the region grants read access.
func (d *DMI) AllowsRead() bool { return d.Access&DMIAccessRead != 0 }

// AllowsWrite returns if the region grants write access.
func (d *DMI) AllowsWrite() bool { return d.Access&DMIAccessWrite != 0 }

// Contains returns if addr lies inside the region.
func (d *DMI) Contains(addr uint64) bool {
	return addr >= d.StartAddress && addr <= d.EndAddress
}
