package initiator

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/arloliu/go-tlm/tlm"
)

// Request describes one transaction to issue.
type Request struct {
	Command tlm.Command
	Address uint64
	// Data is written by write commands. Read commands use a zeroed buffer of Length bytes.
	Data []byte
	// Length defaults to len(Data), or 4 when Data is empty.
	Length uint32
	// StreamingWidth defaults to Length.
	StreamingWidth uint32
	ByteEnable     []byte
}

func (r *Request) length() uint32 {
	switch {
	case r.Length > 0:
		return r.Length
	case len(r.Data) > 0:
		return uint32(len(r.Data)) //nolint:gosec
	default:
		return 4
	}
}

// fill copies the request into a freshly allocated transaction.
func (r *Request) fill(t *tlm.Transaction) {
	n := r.length()
	data := make([]byte, n)
	if r.Command == tlm.WriteCommand {
		copy(data, r.Data)
	}

	width := r.StreamingWidth
	if width == 0 {
		width = n
	}

	t.SetCommand(r.Command)
	t.SetAddress(r.Address)
	t.SetData(data)
	t.SetStreamingWidth(width)
	t.SetByteEnable(r.ByteEnable)
	t.SetDMIAllowed(false)
	t.SetResponseStatus(tlm.IncompleteResponse)
}

// Generator supplies the requests of an initiator.
type Generator interface {
	// Next returns the next request, or false when the sequence is exhausted.
	Next() (Request, bool)
}

// SliceGenerator issues a fixed list of requests in order.
type SliceGenerator struct {
	requests []Request
	next     int
}

// NewSliceGenerator creates a generator issuing reqs in order.
func NewSliceGenerator(reqs ...Request) *SliceGenerator {
	return &SliceGenerator{requests: reqs}
}

// Next implements Generator.
func (g *SliceGenerator) Next() (Request, bool) {
	if g.next >= len(g.requests) {
		return Request{}, false
	}
	r := g.requests[g.next]
	g.next++

	return r, true
}

// RandomGenerator issues count random reads and writes of wordSize bytes at word aligned
// addresses in [0, addrSpace). A write stores the little endian encoding of its address.
type RandomGenerator struct {
	rng       *rand.Rand
	remaining int
	addrSpace uint64
	wordSize  uint32
}

// NewRandomGenerator creates a random request generator.
// wordSize defaults to 4 when zero.
func NewRandomGenerator(rng *rand.Rand, count int, addrSpace uint64, wordSize uint32) *RandomGenerator {
	if wordSize == 0 {
		wordSize = 4
	}

	return &RandomGenerator{rng: rng, remaining: count, addrSpace: addrSpace, wordSize: wordSize}
}

// Next implements Generator.
func (g *RandomGenerator) Next() (Request, bool) {
	if g.remaining <= 0 {
		return Request{}, false
	}
	g.remaining--

	words := g.addrSpace / uint64(g.wordSize)
	var addr uint64
	if words > 0 {
		addr = g.rng.Uint64N(words) * uint64(g.wordSize)
	}

	req := Request{Command: tlm.ReadCommand, Address: addr, Length: g.wordSize}
	if g.rng.IntN(2) == 1 {
		req.Command = tlm.WriteCommand
		req.Data = AddressPattern(addr, g.wordSize)
	}

	return req, true
}

// AddressPattern returns n bytes holding the little endian encoding of addr, truncated or
// zero padded to n.
func AddressPattern(addr uint64, n uint32) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], addr)

	data := make([]byte, n)
	copy(data, buf[:])

	return data
}
