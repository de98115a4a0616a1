// Package candata is the CAN acquisition core: it drains inbound frames,
// decodes them into the parameter table and cell array, sends queued
// commands and tracks whether the controller is talking.
package candata

import (
	"sync/atomic"
	"time"

	"candash-go/drivers/can"
	"candash-go/services/candata/params"
	"candash-go/types"
	"candash-go/x/ring"
	"candash-go/x/timex"

	"github.com/sirupsen/logrus"
)

// Defaults for Options fields left zero.
const (
	DefaultRxQueue       = 64
	DefaultTxQueue       = 16
	DefaultRecencyWindow = 3 * time.Second
	DefaultWriteTimeout  = 2 * time.Second
)

type Options struct {
	Layout        Layout
	RxQueue       int // power of two
	TxQueue       int // power of two
	RecencyWindow time.Duration
	WriteTimeout  time.Duration
	Clock         timex.Clock
	Log           *logrus.Entry
}

func (o *Options) defaults() {
	if o.RxQueue <= 0 {
		o.RxQueue = DefaultRxQueue
	}
	if o.TxQueue <= 0 {
		o.TxQueue = DefaultTxQueue
	}
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = DefaultRecencyWindow
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Clock == nil {
		o.Clock = timex.NowMs
	}
	if o.Log == nil {
		o.Log = logrus.WithField("svc", "candata")
	}
	if o.Layout.Broadcasts == nil {
		o.Layout.Broadcasts = DefaultBroadcasts
	}
}

// Manager owns the table, the cell array and both frame rings. Apart from
// Deliver, every method must be called from the one goroutine that owns it.
type Manager struct {
	layout  Layout
	cls     Classifier
	table   *params.Table
	cells   Cells
	rx      *ring.Ring[can.Frame]
	tx      *ring.Ring[can.Frame]
	port    can.Port
	now     timex.Clock
	log     *logrus.Entry
	window  int64 // ms
	timeout int64 // ms

	connected bool
	lastFrame int64
	pending   pendingSet
	results   []types.WriteResult

	stats  types.Stats // owner goroutine only
	rxIn   atomic.Uint64
	rxDrop atomic.Uint64
}

// NewManager builds a manager sending on port; port may be nil, in which
// case outbound frames stay queued.
func NewManager(port can.Port, opts Options) *Manager {
	opts.defaults()
	return &Manager{
		layout:  opts.Layout,
		cls:     NewClassifier(opts.Layout),
		table:   params.New(),
		rx:      ring.New[can.Frame](opts.RxQueue),
		tx:      ring.New[can.Frame](opts.TxQueue),
		port:    port,
		now:     opts.Clock,
		log:     opts.Log,
		window:  opts.RecencyWindow.Milliseconds(),
		timeout: opts.WriteTimeout.Milliseconds(),
	}
}

func (m *Manager) Table() *params.Table   { return m.table }
func (m *Manager) Cells() *Cells          { return &m.cells }
func (m *Manager) Classifier() Classifier { return m.cls }

// Deliver is the inbound producer entry point, called by exactly one
// goroutine (the port pump). A full ring drops f.
func (m *Manager) Deliver(f can.Frame) bool {
	m.rxIn.Add(1)
	if !m.rx.Push(f) {
		m.rxDrop.Add(1)
		return false
	}
	return true
}

// Readable fires when inbound frames become available.
func (m *Manager) Readable() <-chan struct{} { return m.rx.Readable() }

// RxLen and TxLen report queued frames.
func (m *Manager) RxLen() int { return m.rx.Len() }
func (m *Manager) TxLen() int { return m.tx.Len() }

// Load replaces the parameter definitions. Pending writes are dropped
// since their ids may no longer exist.
func (m *Manager) Load(doc []byte) error {
	if err := m.table.Load(doc); err != nil {
		return err
	}
	m.pending.reset()
	return nil
}

// Tick runs one acquisition pass at time now.
func (m *Manager) Tick(now int64) {
	decoded := false
	for {
		f, ok := m.rx.Pop()
		if !ok {
			break
		}
		m.stats.LastID = f.ID
		if m.decode(&f, now) {
			m.stats.Decoded++
			decoded = true
		} else {
			m.stats.Malformed++
		}
	}

	if m.port != nil {
		for {
			f, ok := m.tx.Pop()
			if !ok {
				break
			}
			if err := m.port.Send(f); err != nil {
				m.stats.TxErrors++
				m.log.WithError(err).WithField("id", f.ID).Debug("send failed")
				continue
			}
			m.stats.TxFrames++
		}
	}

	m.pending.expire(now, m.emit)

	if decoded {
		m.lastFrame = now
		m.connected = true
	} else if m.connected && now-m.lastFrame > m.window {
		m.connected = false
	}
}

// Connected reports the link state as of the last Tick.
func (m *Manager) Connected() bool { return m.connected }

// LastFrame is the tick time of the last decoded frame, 0 if none.
func (m *Manager) LastFrame() int64 { return m.lastFrame }

// Stats returns a copy of the counters.
func (m *Manager) Stats() types.Stats {
	s := m.stats
	s.RxFrames = m.rxIn.Load()
	s.RxDropped = m.rxDrop.Load()
	return s
}

func (m *Manager) emit(r types.WriteResult) {
	m.results = append(m.results, r)
}

// TakeResults returns resolved writes since the last call.
func (m *Manager) TakeResults() []types.WriteResult {
	out := m.results
	m.results = nil
	return out
}

// PendingWrites reports writes awaiting confirmation.
func (m *Manager) PendingWrites() int { return m.pending.len() }
