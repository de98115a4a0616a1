package candata

import (
	"context"
	"math"
	"time"

	"candash-go/bus"
	"candash-go/drivers/can"
	"candash-go/errcode"
	"candash-go/services/candata/params"
	"candash-go/types"

	"github.com/sirupsen/logrus"
)

const (
	serviceName = "candata"
	topicPrefix = "candata"
)

var (
	topicStatus = bus.T(topicPrefix, "status")
	topicCells  = bus.T(topicPrefix, "cells")
	topicCtrl   = bus.T(topicPrefix, "ctrl", bus.Single)
)

func topicParam(id uint16) bus.Topic { return bus.T(topicPrefix, "param", int(id)) }
func topicWrite(id uint16) bus.Topic { return bus.T(topicPrefix, "write", int(id)) }

// Control verbs, the last token of candata/ctrl/<verb>.
const (
	CtrlRead        = "read"
	CtrlWrite       = "write"
	CtrlLoad        = "load"
	CtrlDefinitions = "definitions"
	CtrlSnapshot    = "snapshot"
)

// CtrlTopic returns the request topic for verb.
func CtrlTopic(verb string) bus.Topic { return bus.T(topicPrefix, "ctrl", verb) }

// ServiceConfig tunes publication. Zero fields take defaults.
type ServiceConfig struct {
	Driver      string
	Tick        time.Duration // polling fallback, default 20ms
	CellPublish time.Duration // cells throttle, default 500ms
	StatusEvery time.Duration // status refresh, default 1s
	Definitions []byte        // loaded at start when non-empty
}

// Service runs a Manager on its own goroutine and exposes it on the bus.
type Service struct {
	m    *Manager
	port can.Port
	cfg  ServiceConfig
	log  *logrus.Entry

	lastStatus   int64
	lastCells    int64
	wasConnected bool
}

func NewService(port can.Port, opts Options, cfg ServiceConfig) *Service {
	if opts.Log == nil {
		opts.Log = logrus.WithField("svc", serviceName)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 20 * time.Millisecond
	}
	if cfg.CellPublish <= 0 {
		cfg.CellPublish = 500 * time.Millisecond
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = time.Second
	}
	return &Service{
		m:    NewManager(port, opts),
		port: port,
		cfg:  cfg,
		log:  opts.Log,
	}
}

// Start loads the definitions and subscribes to the control topics before
// returning, so requests sent right after Start are not lost. The loop runs
// until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	ctrl := s.setup(conn)
	go s.loop(ctx, conn, ctrl)
	return nil
}

// Run is Start without the goroutine.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	s.loop(ctx, conn, s.setup(conn))
}

func (s *Service) setup(conn *bus.Connection) *bus.Subscription {
	if len(s.cfg.Definitions) > 0 {
		if err := s.m.Load(s.cfg.Definitions); err != nil {
			s.log.WithError(err).Error("initial definitions rejected")
		} else {
			s.publishAll(conn)
			s.log.WithField("params", s.m.table.Len()).Info("definitions loaded")
		}
	}
	return conn.Subscribe(topicCtrl)
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection, ctrl *bus.Subscription) {
	defer conn.Unsubscribe(ctrl)

	if s.port != nil {
		go s.pump(ctx)
	}

	tick := time.NewTicker(s.cfg.Tick)
	defer tick.Stop()

	s.publishStatus(conn, s.m.now())
	s.log.WithField("driver", s.cfg.Driver).Info("candata service started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("candata service stopping")
			return
		case <-s.m.Readable():
		case <-tick.C:
		case msg, ok := <-ctrl.Channel():
			if !ok {
				return
			}
			s.handle(conn, msg)
		}
		s.step(conn)
	}
}

// step is one acquisition pass followed by publication of what changed.
func (s *Service) step(conn *bus.Connection) {
	now := s.m.now()
	s.m.Tick(now)

	t := s.m.table
	for i := 0; i < t.Len(); i++ {
		p, _ := t.At(i)
		if !p.Dirty {
			continue
		}
		conn.Publish(conn.NewMessage(topicParam(p.ID), paramValue(p), true))
		p.Dirty = false
	}

	if s.m.cells.dirty && now-s.lastCells >= s.cfg.CellPublish.Milliseconds() {
		conn.Publish(conn.NewMessage(topicCells, s.m.cells.Snapshot(now), true))
		s.m.cells.dirty = false
		s.lastCells = now
	}

	for _, r := range s.m.TakeResults() {
		s.log.WithFields(logrus.Fields{"id": r.ID, "outcome": r.Outcome}).Info("write resolved")
		conn.Publish(conn.NewMessage(topicWrite(r.ID), r, false))
	}

	if c := s.m.Connected(); c != s.wasConnected {
		s.wasConnected = c
		if c {
			s.log.Info("controller connected")
		} else {
			s.log.Warn("controller silent, link down")
		}
		s.publishStatus(conn, now)
	} else if now-s.lastStatus >= s.cfg.StatusEvery.Milliseconds() {
		s.publishStatus(conn, now)
	}
}

func (s *Service) status(now int64) types.LinkStatus {
	link := types.LinkDown
	if s.m.Connected() {
		link = types.LinkUp
	}
	return types.LinkStatus{
		Link:      link,
		Driver:    s.cfg.Driver,
		LastFrame: s.m.LastFrame(),
		Params:    s.m.table.Len(),
		Stats:     s.m.Stats(),
		TS:        now,
	}
}

func (s *Service) publishStatus(conn *bus.Connection, now int64) {
	conn.Publish(conn.NewMessage(topicStatus, s.status(now), true))
	s.lastStatus = now
}

// publishAll republishes every parameter, used after a definition load.
func (s *Service) publishAll(conn *bus.Connection) {
	t := s.m.table
	for i := 0; i < t.Len(); i++ {
		p, _ := t.At(i)
		conn.Publish(conn.NewMessage(topicParam(p.ID), paramValue(p), true))
		p.Dirty = false
	}
}

func (s *Service) handle(conn *bus.Connection, msg *bus.Message) {
	if len(msg.Topic) != 3 {
		return
	}
	verb, _ := msg.Topic[2].(string)
	switch verb {
	case CtrlRead:
		req, ok := msg.Payload.(types.ReadRequest)
		if !ok {
			replyErr(conn, msg, errcode.InvalidPayload)
			return
		}
		replyResult(conn, msg, s.m.RequestRead(req.ID))

	case CtrlWrite:
		req, ok := msg.Payload.(types.WriteRequest)
		if !ok {
			replyErr(conn, msg, errcode.InvalidPayload)
			return
		}
		err := s.m.RequestWrite(req.ID, req.Value)
		s.log.WithFields(logrus.Fields{"id": req.ID, "value": req.Value}).WithError(err).Debug("write requested")
		replyResult(conn, msg, err)

	case CtrlLoad:
		req, ok := msg.Payload.(types.LoadRequest)
		if !ok {
			replyErr(conn, msg, errcode.InvalidPayload)
			return
		}
		conn.Reply(msg, s.load(conn, req.Doc), false)

	case CtrlDefinitions:
		doc, err := s.m.table.Definitions()
		if err != nil {
			replyErr(conn, msg, errcode.Of(err))
			return
		}
		conn.Reply(msg, types.DefinitionsReply{Doc: doc}, false)

	case CtrlSnapshot:
		conn.Reply(msg, s.snapshot(), false)

	default:
		replyErr(conn, msg, errcode.InvalidTopic)
	}
}

func (s *Service) load(conn *bus.Connection, doc []byte) types.LoadReply {
	t := s.m.table
	old := make([]uint16, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		p, _ := t.At(i)
		old = append(old, p.ID)
	}
	if err := s.m.Load(doc); err != nil {
		s.log.WithError(err).Warn("definition load rejected")
		return types.LoadReply{OK: false, Error: string(errcode.Of(err)), Msg: err.Error()}
	}
	for _, id := range old {
		if _, still := t.Get(id); !still {
			conn.Publish(conn.NewMessage(topicParam(id), nil, true))
		}
	}
	s.publishAll(conn)
	s.log.WithField("params", t.Len()).Info("definitions loaded")
	return types.LoadReply{OK: true, Count: t.Len()}
}

func (s *Service) snapshot() types.Snapshot {
	now := s.m.now()
	t := s.m.table
	out := types.Snapshot{
		Status: s.status(now),
		Params: make([]types.ParamValue, 0, t.Len()),
		Cells:  s.m.cells.Snapshot(now),
	}
	for i := 0; i < t.Len(); i++ {
		p, _ := t.At(i)
		out.Params = append(out.Params, paramValue(p))
	}
	return out
}

func paramValue(p *params.Parameter) types.ParamValue {
	v := p.Value.Float64()
	if p.Type != params.Float && p.Decimals > 0 {
		v /= math.Pow10(int(p.Decimals))
	}
	return types.ParamValue{
		ID:       p.ID,
		Name:     p.Name,
		Raw:      p.Int32(),
		Value:    v,
		Display:  p.Display(),
		Unit:     p.Unit,
		Editable: p.Editable,
		Min:      p.Min,
		Max:      p.Max,
		Updated:  p.Updated,
	}
}

func replyResult(conn *bus.Connection, msg *bus.Message, err error) {
	if err != nil {
		replyErr(conn, msg, errcode.Of(err))
		return
	}
	conn.Reply(msg, types.OKReply{OK: true}, false)
}

func replyErr(conn *bus.Connection, msg *bus.Message, code errcode.Code) {
	conn.Reply(msg, types.ErrorReply{OK: false, Error: string(code)}, false)
}
