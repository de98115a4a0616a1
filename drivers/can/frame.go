// Package can defines the classical CAN frame shared by every bus driver and
// the Port contract the acquisition core consumes.
package can

import (
	"encoding/binary"

	"candash-go/errcode"
)

// Frame is a classical CAN 2.0A/2.0B data frame. It is a value type; copies
// never alias each other's payload.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // true for 29-bit identifier
	Len      uint8  // 0..8
	Data     [8]byte
	TS       int64 // capture time, Unix ms (0 when unknown)
}

// Identifier limits.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

var (
	ErrInvalidID  = &errcode.E{C: errcode.FrameFormat, Msg: "invalid identifier"}
	ErrInvalidLen = &errcode.E{C: errcode.FrameFormat, Msg: "invalid data length"}
)

// New builds a frame for id carrying up to 8 bytes of data; extra bytes are
// ignored. Identifiers above MaxStdID are marked extended.
func New(id uint32, data []byte) Frame {
	var f Frame
	f.ID = id
	f.Extended = id > MaxStdID
	n := copy(f.Data[:], data)
	f.Len = uint8(n)
	return f
}

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	if f.Extended {
		if f.ID > MaxExtID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStdID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the first Len data bytes.
func (f *Frame) Payload() []byte {
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

// Linux SocketCAN struct can_frame layout (16 bytes, host little-endian):
//
//	0..3  can_id (with EFF/RTR/ERR flags)
//	4     can_dlc
//	5..7  padding
//	8..15 data
const (
	WireSize = 16

	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
	canErrFlag = 0x20000000
	canEffMask = 0x1FFFFFFF
	canStdMask = 0x7FF
)

// MarshalBinary encodes the frame in the SocketCAN can_frame layout.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, WireSize)
	f.PutWire(buf)
	return buf, nil
}

// PutWire writes the can_frame layout into buf, which must hold WireSize bytes.
func (f *Frame) PutWire(buf []byte) {
	id := f.ID
	if f.Extended {
		id |= canEffFlag
	}
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	buf[5], buf[6], buf[7] = 0, 0, 0
	copy(buf[8:16], f.Data[:])
}

// UnmarshalBinary decodes a can_frame. Remote and error frames are rejected;
// the acquisition core only consumes data frames.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < WireSize {
		return ErrInvalidLen
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	if id&(canRtrFlag|canErrFlag) != 0 {
		return ErrInvalidID
	}
	f.Extended = id&canEffFlag != 0
	if f.Extended {
		f.ID = id & canEffMask
	} else {
		f.ID = id & canStdMask
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}
