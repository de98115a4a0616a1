//go:build linux

package slcan

import (
	"context"
	"sync/atomic"

	"candash-go/errcode"

	"golang.org/x/sys/unix"
)

var bauds = map[int]uint32{
	9600: unix.B9600, 19200: unix.B19200, 38400: unix.B38400, 57600: unix.B57600,
	115200: unix.B115200, 230400: unix.B230400, 460800: unix.B460800,
	921600: unix.B921600, 1000000: unix.B1000000, 2000000: unix.B2000000,
	3000000: unix.B3000000,
}

// Serial is a raw-mode tty, for USB SLCAN adapters on a Linux host.
type Serial struct {
	fd     int
	closed atomic.Bool
}

// OpenSerial opens path in raw 8N1 mode at baud. Reads return after at most
// 100ms so RecvSomeContext can observe cancellation.
func OpenSerial(path string, baud int) (*Serial, error) {
	speed, ok := bauds[baud]
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "slcan", Msg: "unsupported baud"}
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed, t.Ospeed = speed, speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Serial{fd: fd}, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, errcode.PortClosed
	}
	n := 0
	for n < len(p) {
		m, err := unix.Write(s.fd, p[n:])
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

// RecvSomeContext blocks until at least one byte arrives, ctx ends or the
// tty is closed.
func (s *Serial) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	for {
		if s.closed.Load() {
			return 0, errcode.PortClosed
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR || err == unix.EAGAIN:
			continue
		case err != nil:
			return 0, err
		case n > 0:
			return n, nil
		}
	}
}

func (s *Serial) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return unix.Close(s.fd)
}
