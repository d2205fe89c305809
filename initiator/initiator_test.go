package initiator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/target"
	"github.com/arloliu/go-tlm/tlm"
)

type fwCall struct {
	txn   *tlm.Transaction
	phase tlm.Phase
	now   sim.Time
}

// stubTarget records forward calls; tests script the backward path by hand.
type stubTarget struct {
	sock       *tlm.TargetSocket
	kernel     *sim.Kernel
	calls      []fwCall
	onBeginReq func(trans *tlm.Transaction, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time)
}

func newStubTarget(k *sim.Kernel) *stubTarget {
	return &stubTarget{kernel: k, sock: tlm.NewTargetSocket("stub", k.Now, nil)}
}

func (s *stubTarget) TargetSocket() *tlm.TargetSocket { return s.sock }

func (s *stubTarget) NBTransportFW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	s.calls = append(s.calls, fwCall{txn: trans, phase: phase, now: s.kernel.Now()})
	if phase == tlm.BeginReq && s.onBeginReq != nil {
		return s.onBeginReq(trans, delay)
	}
	if phase == tlm.EndResp {
		return tlm.Completed, phase, delay
	}
	return tlm.Accepted, phase, delay
}

func (s *stubTarget) BTransport(_ *tlm.Transaction, delay sim.Time) sim.Time { return delay }
func (s *stubTarget) TransportDbg(*tlm.Transaction) uint32                   { return 0 }
func (s *stubTarget) GetDirectMemPtr(*tlm.Transaction, *tlm.DMI) bool        { return false }

func (s *stubTarget) beginReqs() []*tlm.Transaction {
	var out []*tlm.Transaction
	for _, c := range s.calls {
		if c.phase == tlm.BeginReq {
			out = append(out, c.txn)
		}
	}
	return out
}

func newWithStub(t *testing.T, gen Generator, opts ...Option) (*sim.Kernel, *Initiator, *stubTarget) {
	t.Helper()

	k := sim.NewKernel()
	ini, err := New("initiator", k, gen, opts...)
	require.NoError(t, err)
	stub := newStubTarget(k)
	require.NoError(t, tlm.Bind(ini, stub))

	return k, ini, stub
}

func newWithTarget(t *testing.T, gen Generator, iopts []Option, topts ...target.Option) (*sim.Kernel, *Initiator, *target.Target) {
	t.Helper()

	k := sim.NewKernel()
	ini, err := New("initiator", k, gen, iopts...)
	require.NoError(t, err)
	tgt, err := target.New("target", k, topts...)
	require.NoError(t, err)
	require.NoError(t, tlm.Bind(ini, tgt))

	return k, ini, tgt
}

// patternCheck accepts reads returning either zeroes or the address pattern of their own
// address, the only values RandomGenerator ever writes there.
func patternCheck(trans *tlm.Transaction) error {
	if trans.IsWrite() {
		return nil
	}
	data := trans.Data()
	if bytes.Equal(data, make([]byte, len(data))) ||
		bytes.Equal(data, AddressPattern(trans.Address(), trans.DataLength())) {
		return nil
	}
	return fmt.Errorf("unexpected data % x at 0x%x", data, trans.Address())
}

func TestInitiatorSequentialRandomTraffic(t *testing.T) {
	require := require.New(t)

	rng := rand.New(rand.NewPCG(7, 11)) //nolint:gosec
	gen := NewRandomGenerator(rng, 100, 1024, 4)
	done := 0
	k, ini, tgt := newWithTarget(t, gen,
		[]Option{
			WithResponseCheck(patternCheck),
			WithBeginReqDelay(sim.Uniform(rng, 20)),
			WithInterRequestDelay(sim.Uniform(rng, 20)),
			WithDoneHandler(func() { done++ }),
		},
		target.WithBufferCapacity(8),
	)

	ini.Start()
	ini.Start()
	require.NoError(k.Run(context.Background()))

	require.True(ini.Done())
	require.Equal(1, done)
	require.Empty(ini.Errors())
	require.Equal(uint64(100), ini.Metrics().IssuedCount.Load())
	require.Equal(uint64(100), ini.Metrics().CompletedCount.Load())
	require.Zero(ini.Metrics().Outstanding.Load())
	require.Zero(ini.Outstanding())
	require.Zero(tgt.InFlight())
	require.Zero(ini.Pool().Outstanding())
	require.NoError(ini.Pool().Verify())
	require.LessOrEqual(ini.Pool().Allocated(), 100)
}

func TestInitiatorStallsUntilEndRequest(t *testing.T) {
	require := require.New(t)

	gen := NewSliceGenerator(
		Request{Command: tlm.WriteCommand, Address: 0, Data: []byte{1, 2, 3, 4}},
		Request{Command: tlm.ReadCommand, Address: 4},
	)
	k, ini, stub := newWithStub(t, gen,
		WithBeginReqDelay(sim.Fixed(0)),
		WithInterRequestDelay(sim.Fixed(sim.Nanosecond)),
	)
	ini.Start()

	var first *tlm.Transaction
	k.Schedule(5*sim.Nanosecond, func() {
		reqs := stub.beginReqs()
		require.Len(reqs, 1, "second BEGIN_REQ must wait for END_REQ")
		first = reqs[0]
		require.Same(first, ini.RequestInProgress())
		require.Equal(uint64(1), ini.Metrics().StallCount.Load())

		res, _, _ := stub.sock.NBTransportBW(first, tlm.EndReq, 45*sim.Nanosecond)
		require.Equal(tlm.Accepted, res)
	})
	k.Schedule(60*sim.Nanosecond, func() {
		reqs := stub.beginReqs()
		require.Len(reqs, 2)
		first.SetResponseStatus(tlm.OKResponse)
		stub.sock.NBTransportBW(first, tlm.BeginResp, 0)
	})
	k.Schedule(70*sim.Nanosecond, func() {
		second := stub.beginReqs()[1]
		second.SetResponseStatus(tlm.OKResponse)
		// BEGIN_RESP without END_REQ ends the request window implicitly
		stub.sock.NBTransportBW(second, tlm.BeginResp, 0)
	})
	require.NoError(k.Run(context.Background()))

	var phases []tlm.Phase
	var secondIssued sim.Time
	for _, c := range stub.calls {
		phases = append(phases, c.phase)
		if c.phase == tlm.BeginReq && c.txn != first {
			secondIssued = c.now
		}
	}
	require.Equal([]tlm.Phase{tlm.BeginReq, tlm.BeginReq, tlm.EndResp, tlm.EndResp}, phases)
	require.Equal(50*sim.Nanosecond, secondIssued, "woken at END_REQ delivery time")
	require.True(ini.Done())
	require.Nil(ini.RequestInProgress())
	require.Zero(ini.Pool().Outstanding())
}

func TestInitiatorCompletedResult(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		require := require.New(t)

		gen := NewSliceGenerator(Request{Command: tlm.ReadCommand}, Request{Command: tlm.ReadCommand})
		k, ini, stub := newWithStub(t, gen)
		stub.onBeginReq = func(trans *tlm.Transaction, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
			trans.SetResponseStatus(tlm.OKResponse)
			return tlm.Completed, tlm.BeginReq, delay
		}
		ini.Start()
		require.NoError(k.Run(context.Background()))

		require.True(ini.Done())
		require.Len(stub.calls, 2, "no END_RESP after COMPLETED")
		require.Equal(uint64(2), ini.Metrics().ShortcutCount.Load())
		require.Zero(ini.Metrics().StallCount.Load())
		require.Equal(1, ini.Pool().Allocated(), "transaction recycled")
	})

	t.Run("incomplete status", func(t *testing.T) {
		require := require.New(t)

		k, ini, stub := newWithStub(t, NewSliceGenerator(Request{Command: tlm.ReadCommand}))
		stub.onBeginReq = func(_ *tlm.Transaction, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
			return tlm.Completed, tlm.BeginReq, delay
		}
		ini.Start()
		require.ErrorIs(k.Run(context.Background()), tlm.ErrIncompleteResponse)
	})
}

func TestInitiatorErrorResponses(t *testing.T) {
	failing := func(trans *tlm.Transaction, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
		trans.SetResponseStatus(tlm.AddressErrorResponse)
		return tlm.Completed, tlm.BeginReq, delay
	}

	t.Run("reported", func(t *testing.T) {
		require := require.New(t)

		gen := NewSliceGenerator(Request{Command: tlm.ReadCommand, Address: 0x1000}, Request{Command: tlm.ReadCommand})
		k, ini, stub := newWithStub(t, gen)
		stub.onBeginReq = failing
		ini.Start()
		require.NoError(k.Run(context.Background()))

		require.True(ini.Done())
		require.Len(ini.Errors(), 2)
		require.Equal(uint64(2), ini.Metrics().ErrorCount.Load())

		var rerr *tlm.ResponseError
		require.ErrorAs(ini.Errors()[0], &rerr)
		require.ErrorIs(rerr, tlm.ErrResponse)
		require.Equal(tlm.AddressErrorResponse, rerr.Status)
		require.Equal(uint64(0x1000), rerr.Address)
		require.Equal("initiator", rerr.Participant)
	})

	t.Run("escalated", func(t *testing.T) {
		require := require.New(t)

		k, ini, stub := newWithStub(t, NewSliceGenerator(Request{Command: tlm.ReadCommand}), WithEscalateErrors(true))
		stub.onBeginReq = failing
		ini.Start()

		err := k.Run(context.Background())
		var rerr *tlm.ResponseError
		require.ErrorAs(err, &rerr)
		require.False(errors.Is(err, tlm.ErrProtocolViolation))
	})

	t.Run("failed response check", func(t *testing.T) {
		require := require.New(t)

		errMismatch := errors.New("mismatch")
		k, ini, stub := newWithStub(t, NewSliceGenerator(Request{Command: tlm.ReadCommand}),
			WithResponseCheck(func(*tlm.Transaction) error { return errMismatch }))
		stub.onBeginReq = func(trans *tlm.Transaction, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
			trans.SetResponseStatus(tlm.OKResponse)
			return tlm.Completed, tlm.BeginReq, delay
		}
		ini.Start()
		require.NoError(k.Run(context.Background()))

		require.Len(ini.Errors(), 1)
		require.ErrorIs(ini.Errors()[0], errMismatch)
		require.ErrorIs(ini.Errors()[0], tlm.ErrResponse)
	})
}

func TestInitiatorProtocolViolations(t *testing.T) {
	t.Run("forward phase on backward path", func(t *testing.T) {
		require := require.New(t)

		_, _, stub := newWithStub(t, NewSliceGenerator())
		err := sim.Catch(func() { stub.sock.NBTransportBW(tlm.NewTransaction(), tlm.BeginReq, 0) })
		require.ErrorIs(err, tlm.ErrIllegalPhase)

		var perr *tlm.ProtocolError
		require.ErrorAs(err, &perr)
		require.Equal("initiator", perr.Participant)
		require.Equal(tlm.BeginReq, perr.Phase)
	})

	t.Run("END_REQ outside request window", func(t *testing.T) {
		require := require.New(t)

		k, _, stub := newWithStub(t, NewSliceGenerator())
		k.Schedule(0, func() { stub.sock.NBTransportBW(tlm.NewTransaction(), tlm.EndReq, 0) })
		require.ErrorIs(k.Run(context.Background()), tlm.ErrIllegalPhase)
	})
}

func TestInitiatorWithShortcutTargets(t *testing.T) {
	tests := []struct {
		desc       string
		returnPath bool
		policy     target.Policy
	}{
		{desc: "queued", policy: target.QueuedPolicy},
		{desc: "backward return path", returnPath: true, policy: target.QueuedPolicy},
		{desc: "forward return path", policy: target.ReturnPathPolicy},
		{desc: "skip END_REQ", policy: target.SkipEndReqPolicy},
		{desc: "early completion", policy: target.EarlyCompletionPolicy},
		{desc: "both return paths", returnPath: true, policy: target.ReturnPathPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			require := require.New(t)

			rng := rand.New(rand.NewPCG(3, 5)) //nolint:gosec
			k, ini, tgt := newWithTarget(t, NewRandomGenerator(rng, 50, 1024, 4),
				[]Option{
					WithReturnPathShortcut(tt.returnPath),
					WithResponseCheck(patternCheck),
					WithInterRequestDelay(sim.Uniform(rng, 30)),
				},
				target.WithPolicy(tt.policy),
				target.WithBufferCapacity(2),
			)
			ini.Start()
			require.NoError(k.Run(context.Background()))

			require.True(ini.Done())
			require.Empty(ini.Errors())
			require.Equal(uint64(50), ini.Metrics().CompletedCount.Load())
			require.Zero(tgt.InFlight())
			require.False(tgt.ResponseInProgress())
			require.Zero(ini.Pool().Outstanding())
			require.NoError(ini.Pool().Verify())

			if tt.returnPath || tt.policy != target.QueuedPolicy {
				require.Positive(ini.Metrics().ShortcutCount.Load() + tgt.Metrics().ShortcutCount.Load())
			}
		})
	}
}

func TestInitiatorDebugAndDMI(t *testing.T) {
	require := require.New(t)

	k, ini, tgt := newWithTarget(t, NewSliceGenerator(), nil, target.WithMemorySize(256), target.WithDMI(true))

	image := []byte("program image")
	require.Equal(uint32(len(image)), ini.TransportDbg(tlm.WriteCommand, 16, image))
	require.Equal(image, tgt.Memory()[16:16+len(image)])

	dump := make([]byte, len(image))
	require.Equal(uint32(len(image)), ini.TransportDbg(tlm.ReadCommand, 16, dump))
	require.Equal(image, dump)

	dmi, ok := ini.DirectMemPtr(32)
	require.True(ok)
	require.Equal(uint64(255), dmi.EndAddress)

	again, ok := ini.DirectMemPtr(64)
	require.True(ok)
	require.Equal(dmi.StartAddress, again.StartAddress)

	k.Schedule(0, tgt.InvalidateDMI)
	require.NoError(k.Run(context.Background()))
	require.False(ini.dmiValid)
}

func TestNewValidation(t *testing.T) {
	require := require.New(t)

	k := sim.NewKernel()
	_, err := New("x", k, nil)
	require.ErrorIs(err, ErrNilGenerator)

	_, err = New("x", k, NewSliceGenerator(), WithBeginReqDelay(nil))
	require.ErrorIs(err, ErrInvalidOption)

	_, err = New("x", k, NewSliceGenerator(), WithPool(nil))
	require.ErrorIs(err, ErrInvalidOption)

	pool := tlm.NewPool()
	ini, err := New("x", k, NewSliceGenerator(), WithPool(pool), WithEscalateErrors(true), WithReturnPathShortcut(true))
	require.NoError(err)
	require.Same(pool, ini.Pool())
	require.True(ini.Config().EscalateErrors())
	require.True(ini.Config().ReturnPathShortcut())
}

func TestGenerators(t *testing.T) {
	require := require.New(t)

	rng := rand.New(rand.NewPCG(1, 1)) //nolint:gosec
	gen := NewRandomGenerator(rng, 200, 1024, 4)
	n := 0
	for {
		req, ok := gen.Next()
		if !ok {
			break
		}
		n++
		require.Less(req.Address, uint64(1024))
		require.Zero(req.Address % 4)
		if req.Command == tlm.WriteCommand {
			require.Equal(AddressPattern(req.Address, 4), req.Data)
		}
	}
	require.Equal(200, n)

	sg := NewSliceGenerator(Request{Address: 1}, Request{Address: 2})
	r, ok := sg.Next()
	require.True(ok)
	require.Equal(uint64(1), r.Address)
	_, _ = sg.Next()
	_, ok = sg.Next()
	require.False(ok)

	trans := tlm.NewTransaction()
	req := Request{Command: tlm.WriteCommand, Data: []byte{1, 2}, StreamingWidth: 1}
	req.fill(trans)
	require.Equal(uint32(2), trans.DataLength())
	require.Equal(uint32(1), trans.StreamingWidth())
	require.Equal([]byte{1, 2}, trans.Data())

	require.Equal([]byte{0x34, 0x12, 0, 0}, AddressPattern(0x1234, 4))
}
