package can

import (
	"context"

	"candash-go/errcode"
)

// Port is a bus driver as seen by the acquisition core.
//
// Recv blocks until a frame arrives, ctx is done, or the port is closed.
// It is called from exactly one goroutine. Send must not block for long;
// drivers that cannot queue a frame return an error and the core drops it.
type Port interface {
	Recv(ctx context.Context) (Frame, error)
	Send(f Frame) error
	Close() error
}

// ErrClosed is returned by Recv/Send after Close.
var ErrClosed error = errcode.PortClosed
