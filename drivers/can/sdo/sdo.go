// Package sdo encodes and parses the expedited subset of the CANopen SDO
// exchange: upload (read) and download (write) of a single register of at
// most four bytes, plus acknowledgements and aborts. Segmented and block
// transfers are not supported; such frames parse as not-ok.
package sdo

import (
	"encoding/binary"

	"candash-go/drivers/can"
	"candash-go/errcode"
)

const (
	RequestBase  = 0x600 // client -> server, + node id
	ResponseBase = 0x580 // server -> client, + node id
)

// Command specifiers (byte 0).
const (
	CmdUploadRequest = 0x40
	CmdDownloadAck   = 0x60
	CmdAbort         = 0x80

	// Expedited download request, size indicated.
	CmdDownload4 = 0x23
	CmdDownload3 = 0x27
	CmdDownload2 = 0x2B
	CmdDownload1 = 0x2F
	// Expedited download request, size not indicated.
	CmdDownloadUnsized = 0x22

	// Expedited upload response, size indicated.
	CmdUpload4 = 0x43
	CmdUpload3 = 0x47
	CmdUpload2 = 0x4B
	CmdUpload1 = 0x4F
	// Expedited upload response, size not indicated (4 bytes assumed).
	CmdUploadUnsized = 0x42
)

// Abort codes used by the simulator and reported in write results.
const (
	AbortNoObject     uint32 = 0x06020000
	AbortReadOnly     uint32 = 0x06010002
	AbortValueRange   uint32 = 0x06090030
	AbortCmdSpecifier uint32 = 0x05040001
)

var errSize = &errcode.E{C: errcode.InvalidParams, Op: "sdo", Msg: "expedited size must be 1..4"}

// RequestID is the CAN id a client uses to address node.
func RequestID(node uint8) uint32 { return RequestBase + uint32(node) }

// ResponseID is the CAN id node answers on.
func ResponseID(node uint8) uint32 { return ResponseBase + uint32(node) }

// Kind classifies a parsed frame.
type Kind uint8

const (
	KindUpload      Kind = iota + 1 // upload response / download request: carries data
	KindDownloadAck                 // download acknowledged
	KindAbort                       // transfer aborted; Data holds the abort code
	KindUploadReq                   // upload request (server side)
)

// Message is a parsed expedited SDO frame.
type Message struct {
	Kind  Kind
	Index uint16
	Sub   uint8
	Size  int    // payload bytes for KindUpload
	Data  uint32 // little-endian payload bits or abort code
}

func frame(id uint32, cmd byte, index uint16, sub uint8) can.Frame {
	var f can.Frame
	f.ID = id
	f.Len = 8
	f.Data[0] = cmd
	binary.LittleEndian.PutUint16(f.Data[1:3], index)
	f.Data[3] = sub
	return f
}

// UploadRequest builds a read request for index/sub on node.
func UploadRequest(node uint8, index uint16, sub uint8) can.Frame {
	return frame(RequestID(node), CmdUploadRequest, index, sub)
}

// DownloadRequest builds an expedited write of size bytes of bits.
func DownloadRequest(node uint8, index uint16, sub uint8, bits uint32, size int) (can.Frame, error) {
	cmd, ok := sizedCmd(0x23, size)
	if !ok {
		return can.Frame{}, errSize
	}
	f := frame(RequestID(node), cmd, index, sub)
	binary.LittleEndian.PutUint32(f.Data[4:8], bits&sizeMask(size))
	return f, nil
}

// UploadResponse builds a server's expedited upload answer.
func UploadResponse(node uint8, index uint16, sub uint8, bits uint32, size int) (can.Frame, error) {
	cmd, ok := sizedCmd(0x43, size)
	if !ok {
		return can.Frame{}, errSize
	}
	f := frame(ResponseID(node), cmd, index, sub)
	binary.LittleEndian.PutUint32(f.Data[4:8], bits&sizeMask(size))
	return f, nil
}

// DownloadAck builds a server's download acknowledgement.
func DownloadAck(node uint8, index uint16, sub uint8) can.Frame {
	return frame(ResponseID(node), CmdDownloadAck, index, sub)
}

// AbortResponse builds a server's abort frame.
func AbortResponse(node uint8, index uint16, sub uint8, code uint32) can.Frame {
	f := frame(ResponseID(node), CmdAbort, index, sub)
	binary.LittleEndian.PutUint32(f.Data[4:8], code)
	return f
}

// ParseResponse decodes a server -> client frame. ok is false for anything
// outside the expedited subset or shorter than its layout requires.
func ParseResponse(f can.Frame) (m Message, ok bool) {
	if f.Len < 4 || f.Len > 8 {
		return m, false
	}
	cmd := f.Data[0]
	m.Index = binary.LittleEndian.Uint16(f.Data[1:3])
	m.Sub = f.Data[3]
	switch {
	case cmd == CmdDownloadAck:
		m.Kind = KindDownloadAck
		return m, true
	case cmd == CmdAbort:
		if f.Len < 8 {
			return m, false
		}
		m.Kind = KindAbort
		m.Data = binary.LittleEndian.Uint32(f.Data[4:8])
		return m, true
	case cmd&0xF0 == 0x40 && cmd != CmdUploadRequest:
		size, ok := expeditedSize(cmd)
		if !ok || int(f.Len) < 4+size {
			return m, false
		}
		m.Kind = KindUpload
		m.Size = size
		m.Data = readLE(f.Data[4:], size)
		return m, true
	}
	return m, false
}

// ParseRequest decodes a client -> server frame (used by the simulator).
func ParseRequest(f can.Frame) (m Message, ok bool) {
	if f.Len < 4 || f.Len > 8 {
		return m, false
	}
	cmd := f.Data[0]
	m.Index = binary.LittleEndian.Uint16(f.Data[1:3])
	m.Sub = f.Data[3]
	switch {
	case cmd == CmdUploadRequest:
		m.Kind = KindUploadReq
		return m, true
	case cmd&0xF0 == 0x20:
		size, ok := expeditedSize(cmd)
		if !ok || int(f.Len) < 4+size {
			return m, false
		}
		m.Kind = KindUpload
		m.Size = size
		m.Data = readLE(f.Data[4:], size)
		return m, true
	}
	return m, false
}

// expeditedSize reads the e/s/n bits of an initiate specifier.
func expeditedSize(cmd byte) (int, bool) {
	if cmd&0x0C != 0 && cmd&0x01 == 0 {
		return 0, false // n set without s
	}
	if cmd&0x02 == 0 {
		return 0, false // segmented
	}
	if cmd&0x01 == 0 {
		return 4, true
	}
	return 4 - int((cmd>>2)&0x03), true
}

func sizedCmd(base byte, size int) (byte, bool) {
	if size < 1 || size > 4 {
		return 0, false
	}
	return base | byte(4-size)<<2, true
}

func sizeMask(size int) uint32 {
	if size >= 4 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << (8 * uint(size))) - 1
}

func readLE(b []byte, size int) uint32 {
	var v uint32
	for i := 0; i < size; i++ {
		v |= uint32(b[i]) << (8 * uint(i))
	}
	return v
}
