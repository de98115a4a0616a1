package portal

import (
	"context"
	"strconv"

	"candash-go/bus"
	"candash-go/types"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics mirrors the retained candata topics into Prometheus gauges.
type metrics struct {
	reg      *prometheus.Registry
	linkUp   prometheus.Gauge
	counters *prometheus.GaugeVec
	params   *prometheus.GaugeVec
	cells    *prometheus.GaugeVec
	uploads  *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candash_link_up",
			Help: "1 while the controller is sending frames.",
		}),
		counters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candash_frames",
			Help: "Acquisition counters by kind.",
		}, []string{"kind"}),
		params: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candash_param_value",
			Help: "Scaled parameter value.",
		}, []string{"id", "name", "unit"}),
		cells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candash_cell_mv",
			Help: "Cell voltage in millivolts.",
		}, []string{"idx"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candash_definition_uploads_total",
			Help: "Definition uploads by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(m.linkUp, m.counters, m.params, m.cells, m.uploads)
	return m
}

func (m *metrics) status(s types.LinkStatus) {
	if s.Link == types.LinkUp {
		m.linkUp.Set(1)
	} else {
		m.linkUp.Set(0)
	}
	for kind, v := range map[string]uint64{
		"rx":         s.Stats.RxFrames,
		"decoded":    s.Stats.Decoded,
		"generic":    s.Stats.Generic,
		"malformed":  s.Stats.Malformed,
		"rx_dropped": s.Stats.RxDropped,
		"tx":         s.Stats.TxFrames,
		"tx_dropped": s.Stats.TxDropped,
		"tx_errors":  s.Stats.TxErrors,
	} {
		m.counters.WithLabelValues(kind).Set(float64(v))
	}
}

func (m *metrics) param(p types.ParamValue) {
	m.params.WithLabelValues(strconv.Itoa(int(p.ID)), p.Name, p.Unit).Set(p.Value)
}

func (m *metrics) cellSnapshot(c types.CellSnapshot) {
	for i, mv := range c.MV {
		if c.Updated[i] != 0 {
			m.cells.WithLabelValues(strconv.Itoa(i)).Set(float64(mv))
		}
	}
}

// watch feeds the gauges until ctx is done. A parameter removed by a reload
// keeps its last value until restart.
func (m *metrics) watch(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.T("candata", bus.Multi))
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			switch p := msg.Payload.(type) {
			case types.LinkStatus:
				m.status(p)
			case types.ParamValue:
				m.param(p)
			case types.CellSnapshot:
				m.cellSnapshot(p)
			}
		}
	}
}
