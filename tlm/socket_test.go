package tlm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tlm/sim"
)

type echoTarget struct {
	sock   *TargetSocket
	phases []Phase
}

func (e *echoTarget) TargetSocket() *TargetSocket { return e.sock }

func (e *echoTarget) NBTransportFW(t *Transaction, phase Phase, delay sim.Time) (SyncResult, Phase, sim.Time) {
	e.phases = append(e.phases, phase)
	t.SetResponseStatus(OKResponse)
	return Completed, phase, delay + sim.Nanosecond
}

func (e *echoTarget) BTransport(t *Transaction, delay sim.Time) sim.Time {
	t.SetResponseStatus(OKResponse)
	return delay + 10*sim.Nanosecond
}

func (e *echoTarget) TransportDbg(t *Transaction) uint32 { return t.DataLength() }

func (e *echoTarget) GetDirectMemPtr(_ *Transaction, dmi *DMI) bool {
	dmi.Reset()
	return false
}

type recordingInitiator struct {
	sock        *InitiatorSocket
	invalidated [][2]uint64
}

func (r *recordingInitiator) InitiatorSocket() *InitiatorSocket { return r.sock }

func (r *recordingInitiator) NBTransportBW(_ *Transaction, phase Phase, delay sim.Time) (SyncResult, Phase, sim.Time) {
	return Accepted, phase, delay
}

func (r *recordingInitiator) InvalidateDirectMemPtr(start, end uint64) {
	r.invalidated = append(r.invalidated, [2]uint64{start, end})
}

func TestBind(t *testing.T) {
	require := require.New(t)

	ini := &recordingInitiator{sock: NewInitiatorSocket("init", nil, nil)}
	tgt := &echoTarget{sock: NewTargetSocket("tgt", nil, nil)}

	require.ErrorIs(Bind(nil, tgt), ErrNilPort)
	require.NoError(Bind(ini, tgt))
	require.True(ini.sock.IsBound())
	require.True(tgt.sock.IsBound())
	require.ErrorIs(Bind(ini, tgt), ErrAlreadyBound)

	trans := NewTransaction()
	trans.SetData(make([]byte, 4))

	res, phase, delay := ini.sock.NBTransportFW(trans, BeginReq, 5*sim.Nanosecond)
	require.Equal(Completed, res)
	require.Equal(BeginReq, phase)
	require.Equal(6*sim.Nanosecond, delay)
	require.Equal([]Phase{BeginReq}, tgt.phases)

	require.Equal(10*sim.Nanosecond, ini.sock.BTransport(trans, 0))
	require.Equal(uint32(4), ini.sock.TransportDbg(trans))

	var dmi DMI
	require.False(ini.sock.GetDirectMemPtr(trans, &dmi))
	require.Equal(^uint64(0), dmi.EndAddress)

	res, _, _ = tgt.sock.NBTransportBW(trans, EndReq, 0)
	require.Equal(Accepted, res)

	tgt.sock.InvalidateDirectMemPtr(0, 1023)
	require.Equal([][2]uint64{{0, 1023}}, ini.invalidated)
}

func TestUnboundSocket(t *testing.T) {
	require := require.New(t)

	is := NewInitiatorSocket("lonely", func() sim.Time { return 3 * sim.Nanosecond }, nil)
	trans := NewTransaction()

	err := sim.Catch(func() { is.NBTransportFW(trans, BeginReq, 0) })
	require.ErrorIs(err, ErrUnbound)

	var perr *ProtocolError
	require.ErrorAs(err, &perr)
	require.Equal("lonely", perr.Participant)
	require.Equal(BeginReq, perr.Phase)
	require.Equal(3*sim.Nanosecond, perr.Time)

	ts := NewTargetSocket("lonely-target", nil, nil)
	require.ErrorIs(sim.Catch(func() { ts.NBTransportBW(trans, EndReq, 0) }), ErrUnbound)
	require.ErrorIs(sim.Catch(func() { ts.InvalidateDirectMemPtr(0, 1) }), ErrUnbound)
}

func TestDMIAccess(t *testing.T) {
	require := require.New(t)

	dmi := DMI{StartAddress: 0x100, EndAddress: 0x1ff, Access: DMIAccessRead}
	require.True(dmi.AllowsRead())
	require.False(dmi.AllowsWrite())
	require.True(dmi.Contains(0x100))
	require.True(dmi.Contains(0x1ff))
	require.False(dmi.Contains(0x200))
	require.Equal("read", dmi.Access.String())
	require.Equal("read/write", DMIAccessRW.String())
}

func TestTypeStrings(t *testing.T) {
	require := require.New(t)

	require.Equal("BEGIN_REQ", BeginReq.String())
	require.Equal("END_RESP", EndResp.String())
	require.Equal("INTERNAL", InternalPhase.String())
	require.True(BeginReq.IsForward())
	require.True(EndResp.IsForward())
	require.True(EndReq.IsBackward())
	require.True(BeginResp.IsBackward())
	require.False(InternalPhase.IsForward())
	require.False(InternalPhase.IsBackward())

	require.Equal("UPDATED", Updated.String())
	require.Equal("BURST_ERROR_RESPONSE", BurstErrorResponse.String())
	require.Equal("WRITE", WriteCommand.String())
}
