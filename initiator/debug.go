package initiator

import "github.com/arloliu/go-tlm/tlm"

// TransportDbg performs an untimed debug access through the socket, e.g. to load a memory image
// before a run or dump it afterwards. It returns the number of bytes transferred.
func (i *Initiator) TransportDbg(cmd tlm.Command, addr uint64, buf []byte) uint32 {
	trans := tlm.NewTransaction()
	trans.SetCommand(cmd)
	trans.SetAddress(addr)
	trans.SetData(buf)
	trans.SetStreamingWidth(uint32(len(buf))) //nolint:gosec

	n := i.socket.TransportDbg(trans)
	i.logger.Debug("debug transport", "time", i.kernel.Now(), "command", cmd, "address", addr, "bytes", n)

	return n
}

// DirectMemPtr returns a direct memory region covering addr. A cached grant is reused;
// otherwise one is requested through the socket.
func (i *Initiator) DirectMemPtr(addr uint64) (tlm.DMI, bool) {
	if i.dmiValid && i.dmi.Contains(addr) {
		return i.dmi, true
	}

	trans := tlm.NewTransaction()
	trans.SetCommand(tlm.ReadCommand)
	trans.SetAddress(addr)

	var dmi tlm.DMI
	if !i.socket.GetDirectMemPtr(trans, &dmi) {
		return dmi, false
	}

	i.dmi = dmi
	i.dmiValid = true
	i.logger.Debug("dmi granted", "time", i.kernel.Now(), "start", dmi.StartAddress, "end", dmi.EndAddress,
		"access", dmi.Access)

	return dmi, true
}

// InvalidateDirectMemPtr implements tlm.BackwardTransport. A cached grant overlapping
// [start, end] is dropped.
func (i *Initiator) InvalidateDirectMemPtr(start, end uint64) {
	i.logger.Debug("dmi invalidated", "time", i.kernel.Now(), "start", start, "end", end)

	if i.dmiValid && start <= i.dmi.EndAddress && end >= i.dmi.StartAddress {
		i.dmiValid = false
		i.dmi.Reset()
	}
}
