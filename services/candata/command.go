package candata

import (
	"candash-go/drivers/can"
	"candash-go/drivers/can/sdo"
	"candash-go/errcode"
	"candash-go/services/candata/params"
)

// RequestRead queues an SDO upload request for parameter id. The id need
// not be in the table; the response is ignored if it is not.
func (m *Manager) RequestRead(id uint16) error {
	return m.send(sdo.UploadRequest(m.layout.Node, id, 0))
}

// RequestWrite queues an expedited download of value to parameter id. The
// table is not touched; it follows the device's read-back.
func (m *Manager) RequestWrite(id uint16, value int32) error {
	p, ok := m.table.Get(id)
	if !ok {
		return errcode.NotFound
	}
	if !p.Editable {
		return errcode.NotEditable
	}
	v := params.FromInt32(p.Type, value)
	f, err := sdo.DownloadRequest(m.layout.Node, id, 0, v.Bits(), p.Type.Size())
	if err != nil {
		return err
	}
	if err := m.send(f); err != nil {
		return err
	}
	now := m.now()
	m.pending.add(id, value, v.Int32(), now, now+m.timeout)
	return nil
}

func (m *Manager) send(f can.Frame) error {
	if !m.tx.Push(f) {
		m.stats.TxDropped++
		return errcode.QueueFull
	}
	return nil
}
