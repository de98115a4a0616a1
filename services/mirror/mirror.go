// Package mirror copies the retained candata topics into Redis hashes so
// other processes can read live telemetry without joining the bus.
package mirror

import (
	"context"
	"strconv"
	"time"

	"candash-go/bus"
	"candash-go/services/config"
	"candash-go/types"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	topicParams = bus.T("candata", "param", bus.Multi)
	topicCells  = bus.T("candata", "cells")
	topicStatus = bus.T("candata", "status")
)

// Store is the subset of a Redis client the mirror needs.
type Store interface {
	HSet(ctx context.Context, key string, fields map[string]any) error
}

type redisStore struct{ c *redis.Client }

func (r redisStore) HSet(ctx context.Context, key string, fields map[string]any) error {
	return r.c.HSet(ctx, key, fields).Err()
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

type Service struct {
	store    Store
	prefix   string
	interval time.Duration
	log      *logrus.Entry

	params map[string]any
	cells  *types.CellSnapshot
	status *types.LinkStatus
}

// New mirrors into client using cfg's key prefix and flush interval.
func New(client *redis.Client, cfg config.RedisConfig, log *logrus.Entry) *Service {
	return newService(redisStore{client}, cfg, log)
}

func newService(store Store, cfg config.RedisConfig, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.WithField("svc", "mirror")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "candash"
	}
	return &Service{
		store:    store,
		prefix:   prefix,
		interval: cfg.Interval(),
		log:      log,
		params:   map[string]any{},
	}
}

func (s *Service) key(name string) string { return s.prefix + ":" + name }

// Start the mirror service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	paramSub := conn.Subscribe(topicParams)
	defer conn.Unsubscribe(paramSub)
	cellSub := conn.Subscribe(topicCells)
	defer conn.Unsubscribe(cellSub)
	statusSub := conn.Subscribe(topicStatus)
	defer conn.Unsubscribe(statusSub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-paramSub.Channel():
			s.noteParam(msg)
		case msg := <-cellSub.Channel():
			if cs, ok := msg.Payload.(types.CellSnapshot); ok {
				s.cells = &cs
			}
		case msg := <-statusSub.Channel():
			if ls, ok := msg.Payload.(types.LinkStatus); ok {
				s.status = &ls
			}
		case <-tick.C:
			err := s.flush(ctx)
			switch {
			case err != nil && !failing:
				s.log.WithError(err).Warn("redis mirror failing")
				failing = true
			case err == nil && failing:
				s.log.Info("redis mirror recovered")
				failing = false
			}
		}
	}
}

func (s *Service) noteParam(msg *bus.Message) {
	if len(msg.Topic) != 3 {
		return
	}
	if pv, ok := msg.Payload.(types.ParamValue); ok {
		s.params[pv.Name] = pv.Display
	}
}

// flush writes everything collected since the last flush. Collected state is
// only dropped once written.
func (s *Service) flush(ctx context.Context) error {
	if len(s.params) > 0 {
		if err := s.store.HSet(ctx, s.key("params"), s.params); err != nil {
			return err
		}
		s.params = map[string]any{}
	}
	if s.cells != nil {
		fields := map[string]any{
			"count":  s.cells.Count,
			"min_mv": s.cells.MinMV,
			"max_mv": s.cells.MaxMV,
		}
		for i, mv := range s.cells.MV {
			fields[strconv.Itoa(i)] = mv
		}
		if err := s.store.HSet(ctx, s.key("cells"), fields); err != nil {
			return err
		}
		s.cells = nil
	}
	if s.status != nil {
		st := s.status
		fields := map[string]any{
			"link":       string(st.Link),
			"driver":     st.Driver,
			"last_frame": st.LastFrame,
			"params":     st.Params,
			"rx":         st.Stats.RxFrames,
			"decoded":    st.Stats.Decoded,
			"malformed":  st.Stats.Malformed,
			"dropped":    st.Stats.RxDropped + st.Stats.TxDropped,
		}
		if err := s.store.HSet(ctx, s.key("status"), fields); err != nil {
			return err
		}
		s.status = nil
	}
	return nil
}
