//go:build rp2040 && !slcan

package main

import (
	"machine"

	"candash-go/drivers/can"
	"candash-go/drivers/can/mcp2515adpt"
	"candash-go/services/config"
)

const driverName = "mcp2515"

func openPort(c config.CANConfig) (can.Port, error) {
	spi := machine.SPI0
	if err := spi.Configure(machine.SPIConfig{
		Frequency: 8_000_000,
		SCK:       machine.GP18,
		SDO:       machine.GP19,
		SDI:       machine.GP16,
	}); err != nil {
		return nil, err
	}
	return mcp2515adpt.Open(mcp2515adpt.Config{
		SPI:     spi,
		CS:      machine.GP17,
		Bitrate: c.Bitrate,
		Crystal: 8_000_000,
	})
}
