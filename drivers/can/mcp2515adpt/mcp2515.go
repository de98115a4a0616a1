//go:build rp2040

// Package mcp2515adpt adapts the tinygo MCP2515 SPI controller to can.Port.
package mcp2515adpt

import (
	"context"
	"machine"
	"sync"
	"time"

	"candash-go/drivers/can"
	"candash-go/errcode"
	"candash-go/x/timex"

	"tinygo.org/x/drivers/mcp2515"
)

// pollEvery is how often Recv checks the controller for a pending frame.
const pollEvery = 2 * time.Millisecond

type Config struct {
	SPI     *machine.SPI
	CS      machine.Pin
	Bitrate int // bit/s
	Crystal int // Hz, 8 or 16 MHz modules
}

type Port struct {
	mu     sync.Mutex // guards dev; Recv and Send share one SPI bus
	dev    *mcp2515.Device
	closed bool
}

var _ can.Port = (*Port)(nil)

func speedCode(bitrate int) (byte, bool) {
	switch bitrate {
	case 125000:
		return mcp2515.CAN125kBps, true
	case 250000:
		return mcp2515.CAN250kBps, true
	case 500000:
		return mcp2515.CAN500kBps, true
	case 1000000:
		return mcp2515.CAN1000kBps, true
	}
	return 0, false
}

func Open(cfg Config) (*Port, error) {
	speed, ok := speedCode(cfg.Bitrate)
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "mcp2515", Msg: "unsupported bitrate"}
	}
	clock := byte(mcp2515.Clock8MHz)
	if cfg.Crystal == 16000000 {
		clock = mcp2515.Clock16MHz
	}
	dev := mcp2515.New(cfg.SPI, cfg.CS)
	dev.Configure()
	if err := dev.Begin(speed, clock); err != nil {
		return nil, err
	}
	return &Port{dev: dev}, nil
}

func (p *Port) Recv(ctx context.Context) (can.Frame, error) {
	t := time.NewTicker(pollEvery)
	defer t.Stop()
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return can.Frame{}, can.ErrClosed
		}
		var (
			msg *mcp2515.CANMsg
			err error
		)
		if p.dev.Received() {
			msg, err = p.dev.Rx()
		}
		p.mu.Unlock()
		if err != nil {
			return can.Frame{}, err
		}
		if msg != nil {
			f := can.New(msg.ID, msg.Data)
			if int(msg.Dlc) < int(f.Len) {
				f.Len = msg.Dlc
			}
			f.TS = timex.NowMs()
			return f, nil
		}
		select {
		case <-ctx.Done():
			return can.Frame{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Port) Send(f can.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return can.ErrClosed
	}
	return p.dev.Tx(f.ID, f.Len, f.Payload())
}

func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
