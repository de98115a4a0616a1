package candata

import (
	"candash-go/drivers/can"
	"candash-go/drivers/can/sdo"
	"candash-go/x/mathx"
)

// decode dispatches f and reports whether it was accepted. Rejected frames
// leave the table and cell array untouched.
func (m *Manager) decode(f *can.Frame, now int64) bool {
	switch m.cls.Classify(*f) {
	case KindSDO:
		return m.decodeSDO(f, now)
	case KindBroadcast:
		return m.decodeBroadcast(f, now)
	case KindCells:
		return m.decodeCells(f, now)
	}
	m.stats.Generic++
	return true
}

func (m *Manager) decodeSDO(f *can.Frame, now int64) bool {
	msg, ok := sdo.ParseResponse(*f)
	if !ok {
		return false
	}
	switch msg.Kind {
	case sdo.KindUpload:
		if m.table.SetBits(msg.Index, msg.Data, msg.Size, now) {
			if p, ok := m.table.Get(msg.Index); ok {
				m.pending.uploaded(msg.Index, p.Int32(), now, m.emit)
			}
		}
	case sdo.KindDownloadAck:
		if m.pending.acked(msg.Index) {
			// Read back so the table reflects what the device kept.
			if err := m.RequestRead(msg.Index); err != nil {
				m.log.WithError(err).WithField("id", msg.Index).Warn("read-back not queued")
			}
		}
	case sdo.KindAbort:
		m.pending.aborted(msg.Index, msg.Data, now, m.emit)
	default:
		return false
	}
	return true
}

func (m *Manager) decodeBroadcast(f *can.Frame, now int64) bool {
	fields := m.layout.Broadcasts[f.ID]
	n := 0
	for _, fd := range fields {
		end := int(fd.Offset) + int(fd.Width)
		if end > int(f.Len) || fd.Width == 0 || fd.Width > 4 || fd.Width == 3 {
			continue
		}
		v := extract(f.Data[fd.Offset:end], fd.Signed) + fd.Bias
		m.table.SetRaw(fd.Param, v, now)
		n++
	}
	return n > 0
}

func (m *Manager) decodeCells(f *can.Frame, now int64) bool {
	b := m.layout.Cells
	off := int(f.ID - b.Base)
	module, part := off/b.FramesPerModule, off%b.FramesPerModule
	within := part * b.CellsPerFrame
	if within >= b.CellsPerModule {
		return false
	}
	n := mathx.Min(int(f.Len)/2, mathx.Min(b.CellsPerFrame, b.CellsPerModule-within))
	if n == 0 {
		return false
	}
	var mv [8]uint16
	for i := 0; i < n; i++ {
		mv[i] = uint16(f.Data[2*i]) | uint16(f.Data[2*i+1])<<8
	}
	return m.cells.store(module*b.CellsPerModule+within, mv[:n], now)
}

// extract reads a little-endian integer of len(b) bytes.
func extract(b []byte, signed bool) int32 {
	var u uint32
	for i := len(b) - 1; i >= 0; i-- {
		u = u<<8 | uint32(b[i])
	}
	if signed && len(b) < 4 {
		w := uint(len(b) * 8)
		if u&(1<<(w-1)) != 0 {
			u |= ^uint32(0) << w
		}
	}
	return int32(u)
}
