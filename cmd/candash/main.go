//go:build !tinygo

// Command candash runs the CAN acquisition core on a host: a socketcan
// interface, a USB SLCAN adapter or the built-in simulator, with the
// configuration portal and optional Redis mirror.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"candash-go/bus"
	"candash-go/services/candata"
	"candash-go/services/config"
	"candash-go/services/heartbeat"
	"candash-go/services/mirror"
	"candash-go/services/portal"
	"candash-go/x/logx"

	"github.com/sirupsen/logrus"
)

var configFile = flag.String("config", "", "YAML config file (built-in defaults when empty)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	lc := cfg.Logger
	closer := logx.Setup(logrus.StandardLogger(), logx.Options{
		Level: lc.Level, Format: lc.Format, File: lc.File,
		MaxSizeMB: lc.MaxSizeMB, MaxBackups: lc.MaxBackups, MaxAgeDays: lc.MaxAgeDays,
		Compress: lc.Compress, Console: lc.Console,
	})
	defer closer.Close()
	log := logx.Service("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port, err := openPort(ctx, cfg.CAN)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.CAN.Driver).Fatal("open CAN port")
	}
	defer port.Close()
	log.WithFields(logrus.Fields{"driver": cfg.CAN.Driver, "if": cfg.CAN.Interface, "node": cfg.CAN.NodeID}).Info("CAN port open")

	defs, err := definitions(cfg.Candata.Definitions)
	if err != nil {
		log.WithError(err).Fatal("read definitions")
	}

	b := bus.NewBus(16)
	config.NewConfigService(cfg).Start(ctx, b.NewConnection("config"))

	node := uint8(cfg.CAN.NodeID)
	svc := candata.NewService(port, candata.Options{
		Layout:        candata.DefaultLayout(node),
		RxQueue:       cfg.CAN.RxQueue,
		TxQueue:       cfg.CAN.TxQueue,
		RecencyWindow: cfg.Candata.Recency(),
		WriteTimeout:  cfg.Candata.WriteTimeout(),
		Log:           logx.Service("candata"),
	}, candata.ServiceConfig{
		Driver:      cfg.CAN.Driver,
		Tick:        cfg.Candata.Tick(),
		CellPublish: cfg.Candata.CellPublish(),
		StatusEvery: cfg.Candata.StatusEvery(),
		Definitions: defs,
	})
	_ = svc.Start(ctx, b.NewConnection("candata"))
	_ = heartbeat.New(logx.Service("heartbeat")).Start(ctx, b.NewConnection("heartbeat"))

	if cfg.Portal.Enabled {
		srv := portal.New(b.NewConnection("portal"), portal.Options{
			Listen:          cfg.Portal.Listen,
			MaxUploadBytes:  cfg.Portal.MaxUploadBytes,
			DefinitionsPath: cfg.Candata.Definitions,
			Mode:            cfg.Portal.Mode,
		}, logx.Service("portal"))
		_ = srv.Start(ctx)
	}

	if cfg.Redis.Enabled {
		client, err := mirror.Dial(ctx, cfg.Redis)
		if err != nil {
			// Telemetry still flows on the bus and portal without Redis.
			log.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("redis unavailable, mirror disabled")
		} else {
			defer client.Close()
			_ = mirror.New(client, cfg.Redis, logx.Service("mirror")).Start(ctx, b.NewConnection("mirror"))
		}
	}

	<-ctx.Done()
	log.Info("shutting down")
}

// definitions reads the configured document, falling back to the built-in
// one when no path is set or the file does not exist yet.
func definitions(path string) ([]byte, error) {
	if path == "" {
		return config.DefaultParams(), nil
	}
	doc, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultParams(), nil
	}
	return doc, err
}
