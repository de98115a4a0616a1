// Package heartbeat periodically logs the CAN link status and counters.
package heartbeat

import (
	"context"
	"time"

	"candash-go/bus"
	"candash-go/services/config"
	"candash-go/types"
	"candash-go/x/conv"

	"github.com/sirupsen/logrus"
)

var (
	topicConfigHeartbeat = config.Topic("heartbeat")
	topicStatus          = bus.T("candata", "status")
)

const defaultInterval = 10 * time.Second

type Service struct {
	log *logrus.Entry
}

func New(log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.WithField("svc", "heartbeat")
	}
	return &Service{log: log}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	statusSub := conn.Subscribe(topicStatus)
	defer conn.Unsubscribe(statusSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	var last types.LinkStatus
	seen := false

	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat service stopping")
			return
		case <-tick.C:
			if !seen {
				s.log.Info("heartbeat: no link status yet")
				continue
			}
			s.log.WithFields(logrus.Fields{
				"link":      last.Link,
				"params":    last.Params,
				"rx":        last.Stats.RxFrames,
				"decoded":   last.Stats.Decoded,
				"malformed": last.Stats.Malformed,
				"dropped":   last.Stats.RxDropped + last.Stats.TxDropped,
				"last_id":   lastID(last.Stats.LastID),
			}).Info("heartbeat")
		case msg := <-statusSub.Channel():
			if ls, ok := msg.Payload.(types.LinkStatus); ok {
				last, seen = ls, true
			}
		case msg := <-cfgSub.Channel():
			if hb, ok := msg.Payload.(config.HeartbeatConfig); ok && hb.Interval > 0 {
				tick.Reset(time.Duration(hb.Interval) * time.Second)
				s.log.WithField("interval_s", hb.Interval).Info("heartbeat interval set")
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

// lastID renders a CAN id as 0x-prefixed hex, trimmed to 3 digits for
// standard ids.
func lastID(id uint32) string {
	var buf [8]byte
	h := conv.U32Hex(buf[:], id)
	if id <= 0x7FF {
		h = h[5:]
	}
	return "0x" + string(h)
}
