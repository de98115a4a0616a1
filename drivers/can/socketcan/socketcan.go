//go:build linux

// Package socketcan is the Linux host bus driver: a raw CAN_RAW socket bound
// to one interface (can0, vcan0, ...).
package socketcan

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"candash-go/drivers/can"
	"candash-go/x/timex"

	"golang.org/x/sys/unix"
)

// recvPoll bounds each blocking read so Recv can observe ctx.
const recvPoll = 250 * time.Millisecond

type Port struct {
	fd     int
	ifname string
	closed atomic.Bool
}

var _ can.Port = (*Port)(nil)

// Open binds a raw CAN socket to ifname.
func Open(ifname string) (*Port, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	tv := unix.NsecToTimeval(recvPoll.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Port{fd: fd, ifname: ifname}, nil
}

// Interface returns the bound interface name.
func (p *Port) Interface() string { return p.ifname }

func (p *Port) Recv(ctx context.Context) (can.Frame, error) {
	var buf [can.WireSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return can.Frame{}, err
		}
		if p.closed.Load() {
			return can.Frame{}, can.ErrClosed
		}
		n, err := unix.Read(p.fd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			if p.closed.Load() {
				return can.Frame{}, can.ErrClosed
			}
			return can.Frame{}, err
		}
		if n != can.WireSize {
			continue
		}
		var f can.Frame
		if f.UnmarshalBinary(buf[:]) != nil {
			continue // remote/error frames
		}
		f.TS = timex.NowMs()
		return f, nil
	}
}

func (p *Port) Send(f can.Frame) error {
	if p.closed.Load() {
		return can.ErrClosed
	}
	if err := f.Validate(); err != nil {
		return err
	}
	var buf [can.WireSize]byte
	f.PutWire(buf[:])
	_, err := unix.Write(p.fd, buf[:])
	return err
}

func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.fd)
}
