// Package sim is an in-process stand-in for the motor controller and BMS.
// It implements can.Port: frames sent to it are treated as SDO requests for
// its register map, and Run emits the periodic BMS broadcasts and cell
// frames a real pack would.
package sim

import (
	"context"
	"sync"
	"time"

	"candash-go/drivers/can"
	"candash-go/drivers/can/sdo"
	"candash-go/x/timex"
)

// Register is one SDO-addressable value on the simulated controller.
type Register struct {
	Bits     uint32
	Size     int // 1..4 bytes
	ReadOnly bool
}

// Pack is the BMS state the broadcasts are built from.
type Pack struct {
	SOC, SOH  uint16   // percent
	VoltageCV int16    // 0.01 V
	CurrentDA int16    // 0.1 A
	TempDC    int16    // 0.1 degC
	TempMinK  uint16   // kelvin
	TempMaxK  uint16   // kelvin
	Cells     []uint16 // mV, module-major, CellsPerModule per module
}

const (
	IDSocSoh    = 0x355
	IDPack      = 0x356
	IDCellStats = 0x373
	CellBase    = 0x460

	CellsPerModule  = 6
	CellsPerFrame   = 4
	FramesPerModule = 2
)

type Device struct {
	node uint8
	now  timex.Clock
	out  chan can.Frame

	mu   sync.Mutex
	regs map[uint16]Register
	pack Pack
	step int

	closeOnce sync.Once
	done      chan struct{}
}

var _ can.Port = (*Device)(nil)

// New returns a device answering on node with an outbound queue of depth
// frames; responses that do not fit are dropped as on a congested bus.
func New(node uint8, depth int) *Device {
	if depth <= 0 {
		depth = 64
	}
	return &Device{
		node: node,
		now:  timex.NowMs,
		out:  make(chan can.Frame, depth),
		regs: make(map[uint16]Register),
		done: make(chan struct{}),
	}
}

// SetRegister installs or replaces a register.
func (d *Device) SetRegister(index uint16, r Register) {
	d.mu.Lock()
	d.regs[index] = r
	d.mu.Unlock()
}

// Register reports the current content of index.
func (d *Device) Register(index uint16) (Register, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regs[index]
	return r, ok
}

// SetPack replaces the BMS state.
func (d *Device) SetPack(p Pack) {
	d.mu.Lock()
	p.Cells = append([]uint16(nil), p.Cells...)
	d.pack = p
	d.mu.Unlock()
}

// Inject queues f as if the device had transmitted it.
func (d *Device) Inject(f can.Frame) bool {
	if f.TS == 0 {
		f.TS = d.now()
	}
	select {
	case d.out <- f:
		return true
	default:
		return false
	}
}

func (d *Device) Recv(ctx context.Context) (can.Frame, error) {
	select {
	case f := <-d.out:
		return f, nil
	case <-d.done:
		return can.Frame{}, can.ErrClosed
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	}
}

// Send handles one client frame. Frames not addressed to this node's SDO
// server are ignored.
func (d *Device) Send(f can.Frame) error {
	select {
	case <-d.done:
		return can.ErrClosed
	default:
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID != sdo.RequestID(d.node) {
		return nil
	}
	if resp, ok := d.serve(f); ok {
		d.Inject(resp)
	}
	return nil
}

func (d *Device) serve(f can.Frame) (can.Frame, bool) {
	m, ok := sdo.ParseRequest(f)
	if !ok {
		if f.Len >= 4 {
			idx := uint16(f.Data[1]) | uint16(f.Data[2])<<8
			return sdo.AbortResponse(d.node, idx, f.Data[3], sdo.AbortCmdSpecifier), true
		}
		return can.Frame{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	r, exists := d.regs[m.Index]
	if !exists {
		return sdo.AbortResponse(d.node, m.Index, m.Sub, sdo.AbortNoObject), true
	}
	switch m.Kind {
	case sdo.KindUploadReq:
		resp, err := sdo.UploadResponse(d.node, m.Index, m.Sub, r.Bits, r.Size)
		if err != nil {
			return sdo.AbortResponse(d.node, m.Index, m.Sub, sdo.AbortValueRange), true
		}
		return resp, true
	case sdo.KindUpload:
		if r.ReadOnly {
			return sdo.AbortResponse(d.node, m.Index, m.Sub, sdo.AbortReadOnly), true
		}
		if m.Size != r.Size {
			return sdo.AbortResponse(d.node, m.Index, m.Sub, sdo.AbortValueRange), true
		}
		r.Bits = m.Data
		d.regs[m.Index] = r
		return sdo.DownloadAck(d.node, m.Index, m.Sub), true
	}
	return can.Frame{}, false
}

func (d *Device) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	return nil
}

// Run emits one broadcast cycle every period until ctx is done or the
// device is closed. Cell voltages ripple by a few mV per cycle.
func (d *Device) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		for _, f := range d.Broadcast() {
			d.Inject(f)
		}
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-t.C:
		}
	}
}

// Broadcast builds one cycle of BMS frames from the current pack state.
func (d *Device) Broadcast() []can.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &d.pack
	d.step++
	ripple := uint16(d.step % 5)

	var lo, hi uint16
	cells := make([]uint16, len(p.Cells))
	for i, mv := range p.Cells {
		v := mv + ripple
		cells[i] = v
		if i == 0 || v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	frames := make([]can.Frame, 0, 3+FramesPerModule*(len(cells)/CellsPerModule+1))
	frames = append(frames,
		le16Frame(IDSocSoh, p.SOC, p.SOH),
		le16Frame(IDPack, uint16(p.VoltageCV), uint16(p.CurrentDA), uint16(p.TempDC)),
		le16Frame(IDCellStats, lo, hi, p.TempMinK, p.TempMaxK),
	)
	for first := 0; first < len(cells); first += CellsPerModule {
		module := first / CellsPerModule
		end := first + CellsPerModule
		if end > len(cells) {
			end = len(cells)
		}
		for part := 0; part < FramesPerModule; part++ {
			s := first + part*CellsPerFrame
			if s >= end {
				break
			}
			e := s + CellsPerFrame
			if e > end {
				e = end
			}
			id := uint32(CellBase + module*FramesPerModule + part)
			frames = append(frames, le16Frame(id, cells[s:e]...))
		}
	}
	now := d.now()
	for i := range frames {
		frames[i].TS = now
	}
	return frames
}

func le16Frame(id uint32, vals ...uint16) can.Frame {
	var f can.Frame
	f.ID = id
	for i, v := range vals {
		if i >= 4 {
			break
		}
		f.Data[2*i] = byte(v)
		f.Data[2*i+1] = byte(v >> 8)
		f.Len += 2
	}
	return f
}

// Default returns a device preloaded with a small controller register map
// and a 16-cell pack, matching the shipped definition document.
func Default(node uint8) *Device {
	d := New(node, 128)
	for idx, r := range map[uint16]Register{
		2:   {Bits: 1520, Size: 4, ReadOnly: true}, // power W
		5:   {Bits: 41, Size: 2, ReadOnly: true},   // motor temp
		6:   {Bits: 37, Size: 2, ReadOnly: true},   // inverter temp
		27:  {Bits: 1, Size: 1},                    // gear
		61:  {Bits: 30, Size: 1},                   // regen %
		129: {Bits: 0, Size: 1},                    // motor select
	} {
		d.SetRegister(idx, r)
	}
	cells := make([]uint16, 16)
	for i := range cells {
		cells[i] = 3700 + uint16(i%3)
	}
	d.SetPack(Pack{
		SOC: 82, SOH: 98,
		VoltageCV: 5920, CurrentDA: -125, TempDC: 231,
		TempMinK: 294, TempMaxK: 297,
		Cells: cells,
	})
	return d
}
