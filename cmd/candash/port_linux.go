//go:build linux && !tinygo

package main

import (
	"context"
	"time"

	"candash-go/drivers/can"
	"candash-go/drivers/can/sim"
	"candash-go/drivers/can/slcan"
	"candash-go/drivers/can/socketcan"
	"candash-go/errcode"
	"candash-go/services/config"
)

func openPort(ctx context.Context, c config.CANConfig) (can.Port, error) {
	switch c.Driver {
	case "socketcan":
		return socketcan.Open(c.Interface)
	case "slcan":
		tty, err := slcan.OpenSerial(c.Interface, c.Baud)
		if err != nil {
			return nil, err
		}
		p, err := slcan.Open(tty, c.Bitrate)
		if err != nil {
			tty.Close()
			return nil, err
		}
		return p, nil
	case "sim":
		return startSim(ctx, c), nil
	}
	return nil, &errcode.E{C: errcode.Unsupported, Op: "can", Msg: c.Driver}
}

func startSim(ctx context.Context, c config.CANConfig) can.Port {
	dev := sim.Default(uint8(c.NodeID))
	go dev.Run(ctx, 100*time.Millisecond)
	return dev
}
