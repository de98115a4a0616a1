//go:build !linux && !tinygo

package main

import (
	"context"
	"time"

	"candash-go/drivers/can"
	"candash-go/drivers/can/sim"
	"candash-go/errcode"
	"candash-go/services/config"
)

// Only the simulator is available off Linux.
func openPort(ctx context.Context, c config.CANConfig) (can.Port, error) {
	if c.Driver != "sim" {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "can", Msg: c.Driver}
	}
	dev := sim.Default(uint8(c.NodeID))
	go dev.Run(ctx, 100*time.Millisecond)
	return dev, nil
}
