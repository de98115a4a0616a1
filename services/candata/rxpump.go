package candata

import (
	"context"
	"errors"
	"time"

	"candash-go/drivers/can"
)

// pumpBackoff spaces retries after a driver read error.
const pumpBackoff = 200 * time.Millisecond

// pump moves frames from port into the inbound ring until ctx ends or the
// port closes. It is the ring's only producer.
func (s *Service) pump(ctx context.Context) {
	log := s.log.WithField("driver", s.cfg.Driver)
	var dropped uint64
	for {
		f, err := s.port.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, can.ErrClosed) {
				log.Info("port closed, rx pump exiting")
				return
			}
			log.WithError(err).Warn("recv failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(pumpBackoff):
			}
			continue
		}
		if !s.m.Deliver(f) {
			dropped++
			if dropped&(dropped-1) == 0 {
				log.WithField("dropped", dropped).Warn("rx queue full")
			}
		}
	}
}
