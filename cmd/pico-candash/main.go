//go:build rp2040

// Command pico-candash runs the acquisition core on an RP2040 with the
// built-in defaults. Build with -tags slcan to use an SLCAN adapter on UART1
// instead of an MCP2515 on SPI0.
package main

import (
	"context"
	"time"

	"candash-go/bus"
	"candash-go/services/candata"
	"candash-go/services/config"
	"candash-go/services/heartbeat"
	"candash-go/types"

	"github.com/sirupsen/logrus"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.Background()

	cfg := config.Defaults()
	logrus.SetLevel(logrus.InfoLevel)
	log := logrus.WithField("svc", "main")

	port, err := openPort(cfg.CAN)
	if err != nil {
		log.WithError(err).Error("open CAN port")
		for {
			time.Sleep(time.Second)
		}
	}

	b := bus.NewBus(4)
	config.NewConfigService(cfg).Start(ctx, b.NewConnection("config"))

	svc := candata.NewService(port, candata.Options{
		Layout:        candata.DefaultLayout(uint8(cfg.CAN.NodeID)),
		RxQueue:       cfg.CAN.RxQueue,
		TxQueue:       cfg.CAN.TxQueue,
		RecencyWindow: cfg.Candata.Recency(),
		WriteTimeout:  cfg.Candata.WriteTimeout(),
	}, candata.ServiceConfig{
		Driver:      driverName,
		Tick:        cfg.Candata.Tick(),
		CellPublish: cfg.Candata.CellPublish(),
		StatusEvery: cfg.Candata.StatusEvery(),
		Definitions: config.DefaultParams(),
	})
	_ = svc.Start(ctx, b.NewConnection("candata"))
	_ = heartbeat.New(nil).Start(ctx, b.NewConnection("heartbeat"))

	// Print write outcomes; the portal is host-only.
	ui := b.NewConnection("ui")
	writes := ui.Subscribe(bus.T("candata", "write", bus.Single))
	for m := range writes.Channel() {
		if r, ok := m.Payload.(types.WriteResult); ok {
			log.WithFields(logrus.Fields{"id": r.ID, "outcome": r.Outcome, "actual": r.Actual}).Info("write")
		}
	}
}
