package checker

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tlm/initiator"
	"github.com/arloliu/go-tlm/sim"
	"github.com/arloliu/go-tlm/target"
	"github.com/arloliu/go-tlm/tlm"
)

type transportFunc func(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time)

func accept(_ *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	return tlm.Accepted, phase, delay
}

type stubTarget struct {
	sock   *tlm.TargetSocket
	fw     transportFunc
	status tlm.ResponseStatus
}

func (s *stubTarget) TargetSocket() *tlm.TargetSocket { return s.sock }

func (s *stubTarget) NBTransportFW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	if s.fw != nil {
		return s.fw(trans, phase, delay)
	}
	return accept(trans, phase, delay)
}

func (s *stubTarget) BTransport(trans *tlm.Transaction, delay sim.Time) sim.Time {
	trans.SetResponseStatus(s.status)
	return delay
}

func (s *stubTarget) TransportDbg(trans *tlm.Transaction) uint32 { return trans.DataLength() }

func (s *stubTarget) GetDirectMemPtr(_ *tlm.Transaction, dmi *tlm.DMI) bool {
	dmi.Reset()
	return false
}

type stubInitiator struct {
	sock          *tlm.InitiatorSocket
	bw            transportFunc
	invalidations int
}

func (s *stubInitiator) InitiatorSocket() *tlm.InitiatorSocket { return s.sock }

func (s *stubInitiator) NBTransportBW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	if s.bw != nil {
		return s.bw(trans, phase, delay)
	}
	return accept(trans, phase, delay)
}

func (s *stubInitiator) InvalidateDirectMemPtr(uint64, uint64) { s.invalidations++ }

// link binds stubInitiator -> Checker -> stubTarget.
func link(t *testing.T) (*Checker, *stubInitiator, *stubTarget) {
	t.Helper()

	k := sim.NewKernel()
	chk, err := New("checker", k)
	require.NoError(t, err)

	ini := &stubInitiator{sock: tlm.NewInitiatorSocket("ini", k.Now, nil)}
	tgt := &stubTarget{sock: tlm.NewTargetSocket("tgt", k.Now, nil)}
	require.NoError(t, tlm.Bind(ini, chk))
	require.NoError(t, tlm.Bind(chk, tgt))

	return chk, ini, tgt
}

func newRequest() *tlm.Transaction {
	trans := tlm.NewTransaction()
	trans.SetCommand(tlm.ReadCommand)
	trans.SetData(make([]byte, 4))
	trans.SetStreamingWidth(4)

	return trans
}

func TestCheckerCleanRuns(t *testing.T) {
	tests := []struct {
		desc       string
		policy     target.Policy
		returnPath bool
	}{
		{desc: "queued", policy: target.QueuedPolicy},
		{desc: "return path", policy: target.ReturnPathPolicy, returnPath: true},
		{desc: "skip END_REQ", policy: target.SkipEndReqPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			require := require.New(t)

			k := sim.NewKernel()
			rng := rand.New(rand.NewPCG(2, 4)) //nolint:gosec
			ini, err := initiator.New("initiator", k, initiator.NewRandomGenerator(rng, 60, 1024, 4),
				initiator.WithReturnPathShortcut(tt.returnPath),
				initiator.WithInterRequestDelay(sim.Uniform(rng, 10)),
			)
			require.NoError(err)
			chk, err := New("checker", k, WithTrace(true))
			require.NoError(err)
			tgt, err := target.New("target", k, target.WithPolicy(tt.policy), target.WithBufferCapacity(2))
			require.NoError(err)
			require.NoError(tlm.Bind(ini, chk))
			require.NoError(tlm.Bind(chk, tgt))

			ini.Start()
			require.NoError(k.Run(context.Background()))

			require.True(ini.Done())
			require.Zero(chk.Open())
			require.Equal(uint64(60), chk.Observed(tlm.BeginReq))
			require.Equal(uint64(60), chk.Observed(tlm.BeginResp))
			require.Equal(uint64(60), chk.Observed(tlm.EndResp))
			require.Equal(uint64(60), chk.Metrics().FinishedCount.Load())
			if tt.policy == target.SkipEndReqPolicy {
				require.Less(chk.Observed(tlm.EndReq), uint64(60))
			} else {
				require.Equal(uint64(60), chk.Observed(tlm.EndReq))
			}
		})
	}
}

func TestCheckerEarlyCompletion(t *testing.T) {
	require := require.New(t)

	k := sim.NewKernel()
	rng := rand.New(rand.NewPCG(8, 8)) //nolint:gosec
	ini, err := initiator.New("initiator", k, initiator.NewRandomGenerator(rng, 25, 1024, 4))
	require.NoError(err)
	chk, err := New("checker", k)
	require.NoError(err)
	tgt, err := target.New("target", k, target.WithPolicy(target.EarlyCompletionPolicy))
	require.NoError(err)
	require.NoError(tlm.Bind(ini, chk))
	require.NoError(tlm.Bind(chk, tgt))

	ini.Start()
	require.NoError(k.Run(context.Background()))

	require.True(ini.Done())
	require.Equal(uint64(25), chk.Observed(tlm.BeginReq))
	require.Zero(chk.Observed(tlm.EndReq))
	require.Zero(chk.Observed(tlm.BeginResp))
	require.Zero(chk.Observed(tlm.EndResp))
	require.Equal(uint64(25), chk.Metrics().CompletedCount.Load())
	require.Zero(chk.Observed(tlm.InternalPhase))
}

// doubleResponder answers every request with END_REQ and then two BEGIN_RESP calls in a row.
type doubleResponder struct {
	stubTarget
	kernel *sim.Kernel
}

func (d *doubleResponder) NBTransportFW(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
	if phase == tlm.BeginReq {
		d.kernel.Schedule(delay+10*sim.Nanosecond, func() {
			trans.SetResponseStatus(tlm.OKResponse)
			d.sock.NBTransportBW(trans, tlm.BeginResp, 0)
			d.sock.NBTransportBW(trans, tlm.BeginResp, 0)
		})
	}
	return tlm.Accepted, phase, delay
}

func TestCheckerRepeatedBeginResponse(t *testing.T) {
	require := require.New(t)

	k := sim.NewKernel()
	ini, err := initiator.New("initiator", k, initiator.NewSliceGenerator(initiator.Request{Command: tlm.ReadCommand}))
	require.NoError(err)
	chk, err := New("checker", k)
	require.NoError(err)
	bad := &doubleResponder{stubTarget: stubTarget{sock: tlm.NewTargetSocket("bad", k.Now, nil)}, kernel: k}
	require.NoError(tlm.Bind(ini, chk))
	require.NoError(tlm.Bind(chk, bad))

	ini.Start()
	err = k.Run(context.Background())
	require.ErrorIs(err, tlm.ErrProtocolViolation)
	require.ErrorIs(err, tlm.ErrIllegalPhase)

	var perr *tlm.ProtocolError
	require.ErrorAs(err, &perr)
	require.Equal("checker", perr.Participant)
	require.Equal(tlm.BeginResp, perr.Phase)
	require.Equal(20*sim.Nanosecond, perr.Time)
	require.Equal(uint64(1), chk.Observed(tlm.BeginResp))
}

func TestCheckerViolations(t *testing.T) {
	tests := []struct {
		desc string
		run  func(chk *Checker, ini *stubInitiator, tgt *stubTarget)
		err  error
	}{
		{
			desc: "END_REQ before BEGIN_REQ",
			run: func(_ *Checker, _ *stubInitiator, tgt *stubTarget) {
				tgt.sock.NBTransportBW(newRequest(), tlm.EndReq, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "backward phase on forward path",
			run: func(_ *Checker, ini *stubInitiator, _ *stubTarget) {
				ini.sock.NBTransportFW(newRequest(), tlm.BeginResp, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "internal phase on the wire",
			run: func(_ *Checker, _ *stubInitiator, tgt *stubTarget) {
				tgt.sock.NBTransportBW(newRequest(), tlm.InternalPhase, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "second BEGIN_REQ before END_REQ",
			run: func(_ *Checker, ini *stubInitiator, _ *stubTarget) {
				ini.sock.NBTransportFW(newRequest(), tlm.BeginReq, 0)
				ini.sock.NBTransportFW(newRequest(), tlm.BeginReq, 0)
			},
			err: tlm.ErrExclusion,
		},
		{
			desc: "repeated BEGIN_REQ",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				trans := newRequest()
				ini.sock.NBTransportFW(trans, tlm.BeginReq, 0)
				tgt.sock.NBTransportBW(trans, tlm.EndReq, 0)
				ini.sock.NBTransportFW(trans, tlm.BeginReq, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "BEGIN_REQ with response status",
			run: func(_ *Checker, ini *stubInitiator, _ *stubTarget) {
				trans := newRequest()
				trans.SetResponseStatus(tlm.OKResponse)
				ini.sock.NBTransportFW(trans, tlm.BeginReq, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "unacquired pooled transaction",
			run: func(_ *Checker, ini *stubInitiator, _ *stubTarget) {
				ini.sock.NBTransportFW(tlm.NewPool().Allocate(), tlm.BeginReq, 0)
			},
			err: tlm.ErrRefCount,
		},
		{
			desc: "COMPLETED without response status",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				tgt.fw = func(_ *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
					return tlm.Completed, phase, delay
				}
				ini.sock.NBTransportFW(newRequest(), tlm.BeginReq, 0)
			},
			err: tlm.ErrIncompleteResponse,
		},
		{
			desc: "BEGIN_RESP without response status",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				trans := newRequest()
				ini.sock.NBTransportFW(trans, tlm.BeginReq, 0)
				tgt.sock.NBTransportBW(trans, tlm.BeginResp, 0)
			},
			err: tlm.ErrIncompleteResponse,
		},
		{
			desc: "second response window",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				a, b := newRequest(), newRequest()
				ini.sock.NBTransportFW(a, tlm.BeginReq, 0)
				tgt.sock.NBTransportBW(a, tlm.EndReq, 0)
				ini.sock.NBTransportFW(b, tlm.BeginReq, 0)
				tgt.sock.NBTransportBW(b, tlm.EndReq, 0)

				a.SetResponseStatus(tlm.OKResponse)
				b.SetResponseStatus(tlm.OKResponse)
				tgt.sock.NBTransportBW(a, tlm.BeginResp, 0)
				tgt.sock.NBTransportBW(b, tlm.BeginResp, 0)
			},
			err: tlm.ErrExclusion,
		},
		{
			desc: "annotated time goes backwards",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				trans := newRequest()
				ini.sock.NBTransportFW(trans, tlm.BeginReq, 50*sim.Nanosecond)
				tgt.sock.NBTransportBW(trans, tlm.EndReq, 10*sim.Nanosecond)
			},
			err: tlm.ErrTimingOrder,
		},
		{
			desc: "BEGIN_RESP answered with COMPLETED",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				ini.bw = func(_ *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
					return tlm.Completed, phase, delay
				}
				trans := newRequest()
				ini.sock.NBTransportFW(trans, tlm.BeginReq, 0)
				trans.SetResponseStatus(tlm.OKResponse)
				tgt.sock.NBTransportBW(trans, tlm.BeginResp, 0)
			},
			err: tlm.ErrDeprecatedTransition,
		},
		{
			desc: "UPDATED with an illegal phase",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				tgt.fw = func(_ *tlm.Transaction, _ tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
					return tlm.Updated, tlm.EndResp, delay
				}
				ini.sock.NBTransportFW(newRequest(), tlm.BeginReq, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "ACCEPTED with a changed phase",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				tgt.fw = func(_ *tlm.Transaction, _ tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
					return tlm.Accepted, tlm.EndReq, delay
				}
				ini.sock.NBTransportFW(newRequest(), tlm.BeginReq, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "END_RESP twice",
			run: func(_ *Checker, ini *stubInitiator, tgt *stubTarget) {
				trans := newRequest()
				ini.sock.NBTransportFW(trans, tlm.BeginReq, 0)
				trans.SetResponseStatus(tlm.OKResponse)
				tgt.sock.NBTransportBW(trans, tlm.BeginResp, 0)
				ini.sock.NBTransportFW(trans, tlm.EndResp, 0)
				ini.sock.NBTransportFW(trans, tlm.EndResp, 0)
			},
			err: tlm.ErrIllegalPhase,
		},
		{
			desc: "b_transport without response status",
			run: func(_ *Checker, ini *stubInitiator, _ *stubTarget) {
				ini.sock.BTransport(newRequest(), 0)
			},
			err: tlm.ErrIncompleteResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			chk, ini, tgt := link(t)
			err := sim.Catch(func() { tt.run(chk, ini, tgt) })
			require.ErrorIs(t, err, tt.err)
			require.ErrorIs(t, err, tlm.ErrProtocolViolation)
		})
	}
}

func TestCheckerShortcutSequences(t *testing.T) {
	require := require.New(t)

	chk, ini, tgt := link(t)
	err := sim.Catch(func() {
		// END_REQ folded into the return value, END_RESP on the backward return path
		tgt.fw = func(_ *tlm.Transaction, _ tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
			return tlm.Updated, tlm.EndReq, delay + sim.Nanosecond
		}
		ini.bw = func(_ *tlm.Transaction, _ tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
			return tlm.Updated, tlm.EndResp, delay
		}
		a := newRequest()
		ini.sock.NBTransportFW(a, tlm.BeginReq, 0)
		a.SetResponseStatus(tlm.OKResponse)
		tgt.sock.NBTransportBW(a, tlm.BeginResp, sim.Nanosecond)

		// BEGIN_RESP folded into the return value of BEGIN_REQ
		tgt.fw = func(trans *tlm.Transaction, phase tlm.Phase, delay sim.Time) (tlm.SyncResult, tlm.Phase, sim.Time) {
			if phase == tlm.EndResp {
				return tlm.Completed, phase, delay
			}
			trans.SetResponseStatus(tlm.OKResponse)
			return tlm.Updated, tlm.BeginResp, delay
		}
		b := newRequest()
		ini.sock.NBTransportFW(b, tlm.BeginReq, 0)
		ini.sock.NBTransportFW(b, tlm.EndResp, 0)
	})
	require.NoError(err)

	require.Zero(chk.Open())
	require.Equal(uint64(2), chk.Observed(tlm.BeginReq))
	require.Equal(uint64(1), chk.Observed(tlm.EndReq))
	require.Equal(uint64(2), chk.Observed(tlm.BeginResp))
	require.Equal(uint64(2), chk.Observed(tlm.EndResp))
	require.Equal(uint64(2), chk.Metrics().FinishedCount.Load())
}

func TestCheckerPassThrough(t *testing.T) {
	require := require.New(t)

	chk, ini, tgt := link(t)
	tgt.status = tlm.OKResponse

	trans := newRequest()
	require.Equal(sim.Time(7), ini.sock.BTransport(trans, 7))
	require.Equal(uint32(4), ini.sock.TransportDbg(trans))

	var dmi tlm.DMI
	require.False(ini.sock.GetDirectMemPtr(trans, &dmi))

	tgt.sock.InvalidateDirectMemPtr(0, 10)
	require.Equal(1, ini.invalidations)
	require.Equal("checker", chk.Name())

	_, err := New("c", sim.NewKernel(), WithLogger(nil))
	require.ErrorIs(err, ErrInvalidOption)
}
