package candata

import (
	"candash-go/drivers/can"
	"candash-go/drivers/can/sdo"
)

// Kind selects the decoder for an inbound frame.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindSDO
	KindBroadcast
	KindCells
)

func (k Kind) String() string {
	switch k {
	case KindSDO:
		return "sdo"
	case KindBroadcast:
		return "broadcast"
	case KindCells:
		return "cells"
	}
	return "generic"
}

// Field places one little-endian integer of a broadcast into a parameter.
type Field struct {
	Offset uint8
	Width  uint8 // 1, 2 or 4 bytes
	Signed bool
	Param  uint16
	Bias   int32 // added after extraction, e.g. -273 for kelvin
}

// CellBand describes the battery-module voltage frames. Module m sends
// FramesPerModule consecutive ids starting at Base+m*FramesPerModule; each
// carries up to CellsPerFrame readings.
type CellBand struct {
	Base            uint32
	Modules         int
	FramesPerModule int
	CellsPerModule  int
	CellsPerFrame   int
}

func (b CellBand) contains(id uint32) bool {
	return b.Modules > 0 && id >= b.Base && id < b.Base+uint32(b.Modules*b.FramesPerModule)
}

// Parameter ids the broadcasts feed. They match the shipped definitions.
const (
	ParamPackVoltage  = 3
	ParamPackCurrent  = 4
	ParamSOC          = 7
	ParamSOH          = 8
	ParamCellMaxMV    = 20
	ParamCellMinMV    = 21
	ParamBMSTemp      = 22
	ParamCellTempMin  = 23
	ParamCellTempMax  = 24
	ParamChargeVolt   = 30
	ParamChargeAmps   = 31
	ParamDischargeAmp = 32
	ParamDischargeVol = 33
)

// DefaultBroadcasts is the BMS broadcast family (Victron-style 0x35x
// summaries plus the 0x373 cell statistics frame).
var DefaultBroadcasts = map[uint32][]Field{
	0x351: {
		{Offset: 0, Width: 2, Param: ParamChargeVolt},
		{Offset: 2, Width: 2, Signed: true, Param: ParamChargeAmps},
		{Offset: 4, Width: 2, Signed: true, Param: ParamDischargeAmp},
		{Offset: 6, Width: 2, Param: ParamDischargeVol},
	},
	0x355: {
		{Offset: 0, Width: 2, Param: ParamSOC},
		{Offset: 2, Width: 2, Param: ParamSOH},
	},
	0x356: {
		{Offset: 0, Width: 2, Signed: true, Param: ParamPackVoltage},
		{Offset: 2, Width: 2, Signed: true, Param: ParamPackCurrent},
		{Offset: 4, Width: 2, Signed: true, Param: ParamBMSTemp},
	},
	0x373: {
		{Offset: 0, Width: 2, Param: ParamCellMinMV},
		{Offset: 2, Width: 2, Param: ParamCellMaxMV},
		{Offset: 4, Width: 2, Param: ParamCellTempMin, Bias: -273},
		{Offset: 6, Width: 2, Param: ParamCellTempMax, Bias: -273},
	},
}

// DefaultCellBand covers 16 modules of 6 cells, two frames per module.
var DefaultCellBand = CellBand{
	Base:            0x460,
	Modules:         16,
	FramesPerModule: 2,
	CellsPerModule:  6,
	CellsPerFrame:   4,
}

// Layout is the static routing data for one controller.
type Layout struct {
	Node       uint8
	Broadcasts map[uint32][]Field
	Cells      CellBand
}

// DefaultLayout returns the stock tables for node.
func DefaultLayout(node uint8) Layout {
	return Layout{Node: node, Broadcasts: DefaultBroadcasts, Cells: DefaultCellBand}
}

// Classifier routes frames by identifier only.
type Classifier struct {
	sdoID uint32
	l     Layout
}

func NewClassifier(l Layout) Classifier {
	return Classifier{sdoID: sdo.ResponseID(l.Node), l: l}
}

// Classify is a pure lookup; extended-id frames are always generic.
func (c Classifier) Classify(f can.Frame) Kind {
	if f.Extended {
		return KindGeneric
	}
	switch {
	case f.ID == c.sdoID:
		return KindSDO
	case c.l.Cells.contains(f.ID):
		return KindCells
	}
	if _, ok := c.l.Broadcasts[f.ID]; ok {
		return KindBroadcast
	}
	return KindGeneric
}
