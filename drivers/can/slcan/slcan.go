// Package slcan speaks the Lawicel serial-line CAN protocol over any byte
// stream: a USB CAN adapter on a host, or a UART on the microcontroller.
//
//	tIIILDD..\r        standard data frame
//	TIIIIIIIILDD..\r   extended data frame
package slcan

import (
	"context"
	"io"
	"sync"

	"candash-go/drivers/can"
	"candash-go/errcode"
	"candash-go/x/timex"
)

// Stream is the subset of a serial port the driver needs. It matches the
// uartx UART and the host serial adapters.
type Stream interface {
	Write(p []byte) (int, error)
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

var errLine = &errcode.E{C: errcode.FrameFormat, Op: "slcan", Msg: "bad line"}

// Bitrate commands S0..S8.
var bitrates = map[int]byte{
	10000: '0', 20000: '1', 50000: '2', 100000: '3', 125000: '4',
	250000: '5', 500000: '6', 800000: '7', 1000000: '8',
}

const maxLine = 1 + 8 + 1 + 16 + 4 // T + id + len + data + timestamp

type Port struct {
	s   Stream
	now timex.Clock

	wmu  sync.Mutex
	wbuf [maxLine + 1]byte

	rbuf [64]byte
	rpos int
	rlen int
	line [maxLine]byte
	n    int
	skip bool // current line overflowed; discard until CR
}

var _ can.Port = (*Port)(nil)

// Open resets the adapter, selects bitrate and opens the channel.
func Open(s Stream, bitrate int) (*Port, error) {
	code, ok := bitrates[bitrate]
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "slcan", Msg: "unsupported bitrate"}
	}
	p := &Port{s: s, now: timex.NowMs}
	for _, cmd := range [][]byte{{'C', '\r'}, {'S', code, '\r'}, {'O', '\r'}} {
		if _, err := s.Write(cmd); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Port) Recv(ctx context.Context) (can.Frame, error) {
	for {
		for p.rpos < p.rlen {
			b := p.rbuf[p.rpos]
			p.rpos++
			switch b {
			case '\r':
				line := p.line[:p.n]
				skip := p.skip
				p.n, p.skip = 0, false
				if skip || len(line) == 0 {
					continue
				}
				if f, err := Decode(line); err == nil {
					f.TS = p.now()
					return f, nil
				}
			case '\a':
				p.n, p.skip = 0, false
			default:
				if p.n < len(p.line) {
					p.line[p.n] = b
					p.n++
				} else {
					p.skip = true
				}
			}
		}
		n, err := p.s.RecvSomeContext(ctx, p.rbuf[:])
		if err != nil {
			return can.Frame{}, err
		}
		p.rpos, p.rlen = 0, n
	}
}

func (p *Port) Send(f can.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	out := Encode(p.wbuf[:0], f)
	_, err := p.s.Write(out)
	return err
}

// Close sends the channel close command.
func (p *Port) Close() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err := p.s.Write([]byte{'C', '\r'})
	if c, ok := p.s.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

const hexd = "0123456789ABCDEF"

// Encode appends the slcan line for f, including the trailing CR.
func Encode(dst []byte, f can.Frame) []byte {
	digits := 3
	if f.Extended {
		dst = append(dst, 'T')
		digits = 8
	} else {
		dst = append(dst, 't')
	}
	for i := digits - 1; i >= 0; i-- {
		dst = append(dst, hexd[(f.ID>>(4*uint(i)))&0xF])
	}
	dst = append(dst, '0'+f.Len)
	for _, b := range f.Payload() {
		dst = append(dst, hexd[b>>4], hexd[b&0xF])
	}
	return append(dst, '\r')
}

// Decode parses one slcan data-frame line without its CR. A trailing
// 4-digit timestamp is tolerated and ignored.
func Decode(line []byte) (can.Frame, error) {
	var f can.Frame
	if len(line) == 0 {
		return f, errLine
	}
	digits := 3
	switch line[0] {
	case 't':
	case 'T':
		digits = 8
		f.Extended = true
	default:
		return f, errLine // remote frames, status replies
	}
	if len(line) < 1+digits+1 {
		return f, errLine
	}
	id, ok := hexVal(line[1 : 1+digits])
	if !ok {
		return f, errLine
	}
	f.ID = id
	l := line[1+digits]
	if l < '0' || l > '8' {
		return f, errLine
	}
	f.Len = l - '0'
	data := line[2+digits:]
	need := int(f.Len) * 2
	if len(data) != need && len(data) != need+4 {
		return f, errLine
	}
	for i := 0; i < int(f.Len); i++ {
		v, ok := hexVal(data[2*i : 2*i+2])
		if !ok {
			return f, errLine
		}
		f.Data[i] = byte(v)
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func hexVal(b []byte) (uint32, bool) {
	var v uint32
	for _, c := range b {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'A' && c <= 'F':
			v |= uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		default:
			return 0, false
		}
	}
	return v, true
}
