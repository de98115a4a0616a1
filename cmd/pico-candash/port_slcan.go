//go:build rp2040 && slcan

package main

import (
	"machine"

	"candash-go/drivers/can"
	"candash-go/drivers/can/slcan"
	"candash-go/services/config"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

const driverName = "slcan"

func openPort(c config.CANConfig) (can.Port, error) {
	u := uartx.UART1
	if err := u.Configure(uartx.UARTConfig{
		BaudRate: uint32(c.Baud),
		TX:       machine.GP4,
		RX:       machine.GP5,
	}); err != nil {
		return nil, err
	}
	return slcan.Open(u, c.Bitrate)
}
