// Package params holds the typed parameter table: the named registers the
// acquisition loop decodes into and the definition document that shapes it.
package params

import (
	"encoding/json"
	"math"
	"strconv"

	"candash-go/errcode"
)

// MaxParameters is the table's hard capacity.
const MaxParameters = 200

// Table is a fixed-capacity set of parameters with unique ids. It is not
// safe for concurrent use; one goroutine owns it.
type Table struct {
	items [MaxParameters]Parameter
	n     int
}

func New() *Table { return &Table{} }

func (t *Table) Len() int { return t.n }

// At returns the parameter at position i in document order.
func (t *Table) At(i int) (*Parameter, bool) {
	if i < 0 || i >= t.n {
		return nil, false
	}
	return &t.items[i], true
}

// Get finds a parameter by id.
func (t *Table) Get(id uint16) (*Parameter, bool) {
	for i := 0; i < t.n; i++ {
		if t.items[i].ID == id {
			return &t.items[i], true
		}
	}
	return nil, false
}

// SetRaw stores v into parameter id with type-correct narrowing and marks
// it updated. It reports false for an unknown id.
func (t *Table) SetRaw(id uint16, v int32, now int64) bool {
	p, ok := t.Get(id)
	if !ok {
		return false
	}
	p.Value = FromInt32(p.Type, v)
	p.Updated, p.Dirty = now, true
	return true
}

// SetBits stores a size-byte payload into parameter id, interpreting it per
// the parameter's type. It reports false for an unknown id or a payload the
// type cannot take.
func (t *Table) SetBits(id uint16, bits uint32, size int, now int64) bool {
	p, ok := t.Get(id)
	if !ok {
		return false
	}
	v, ok := FromBits(p.Type, bits, size)
	if !ok {
		return false
	}
	p.Value = v
	p.Updated, p.Dirty = now, true
	return true
}

// definition is one record of the definition document.
type definition struct {
	ID            *int64  `json:"id"`
	Name          *string `json:"name"`
	DataType      *string `json:"dataType"`
	Editable      bool    `json:"editable"`
	Min           *int64  `json:"min,omitempty"`
	Max           *int64  `json:"max,omitempty"`
	Unit          string  `json:"unit"`
	DecimalPlaces *int    `json:"decimalPlaces,omitempty"`
}

func loadErr(c errcode.Code, entry int, msg string) error {
	if entry >= 0 {
		msg = "entry " + strconv.Itoa(entry) + ": " + msg
	}
	return errcode.New(c, "params.load", msg)
}

// Load replaces the table with the parameters described by doc, a JSON array
// of definition records. Any error leaves the current table untouched.
func (t *Table) Load(doc []byte) error {
	var defs []definition
	if err := json.Unmarshal(doc, &defs); err != nil {
		return &errcode.E{C: errcode.InvalidDocument, Op: "params.load", Msg: err.Error(), Err: err}
	}
	if len(defs) == 0 {
		return loadErr(errcode.InvalidDocument, -1, "no parameters")
	}
	if len(defs) > MaxParameters {
		return loadErr(errcode.CapacityExceeded, -1, strconv.Itoa(len(defs))+" parameters, max "+strconv.Itoa(MaxParameters))
	}

	next := new(Table)
	for i := range defs {
		p, err := defs[i].parameter(i)
		if err != nil {
			return err
		}
		if _, dup := next.Get(p.ID); dup {
			return loadErr(errcode.DuplicateID, i, "duplicate id "+strconv.Itoa(int(p.ID)))
		}
		next.items[next.n] = p
		next.n++
	}
	*t = *next
	return nil
}

func (d *definition) parameter(i int) (Parameter, error) {
	var p Parameter
	switch {
	case d.ID == nil:
		return p, loadErr(errcode.MissingField, i, "id")
	case d.Name == nil:
		return p, loadErr(errcode.MissingField, i, "name")
	case d.DataType == nil:
		return p, loadErr(errcode.MissingField, i, "dataType")
	}
	if *d.ID < 0 || *d.ID > math.MaxUint16 {
		return p, loadErr(errcode.InvalidBounds, i, "id out of range")
	}
	typ, ok := ParseType(*d.DataType)
	if !ok {
		return p, loadErr(errcode.InvalidType, i, "unknown dataType "+strconv.Quote(*d.DataType))
	}
	lo, hi := typ.Range()
	if d.Min != nil {
		if *d.Min < math.MinInt32 || *d.Min > math.MaxInt32 {
			return p, loadErr(errcode.InvalidBounds, i, "min out of range")
		}
		lo = int32(*d.Min)
	}
	if d.Max != nil {
		if *d.Max < math.MinInt32 || *d.Max > math.MaxInt32 {
			return p, loadErr(errcode.InvalidBounds, i, "max out of range")
		}
		hi = int32(*d.Max)
	}
	if lo > hi {
		return p, loadErr(errcode.InvalidBounds, i, "min > max")
	}
	var dec int
	if d.DecimalPlaces != nil {
		dec = *d.DecimalPlaces
	}
	if dec < 0 || dec > MaxDecimals {
		return p, loadErr(errcode.InvalidBounds, i, "decimalPlaces out of range")
	}
	p = Parameter{
		ID:       uint16(*d.ID),
		Name:     clip(*d.Name, MaxName),
		Type:     typ,
		Value:    FromInt32(typ, 0),
		Editable: d.Editable,
		Min:      lo,
		Max:      hi,
		Unit:     clip(d.Unit, MaxUnit),
		Decimals: uint8(dec),
	}
	return p, nil
}

// Definitions serialises the table back into the document shape Load
// accepts. Values are not included.
func (t *Table) Definitions() ([]byte, error) {
	defs := make([]definition, t.n)
	for i := 0; i < t.n; i++ {
		p := &t.items[i]
		id, lo, hi := int64(p.ID), int64(p.Min), int64(p.Max)
		name, typ, dec := p.Name, p.Type.String(), int(p.Decimals)
		defs[i] = definition{
			ID: &id, Name: &name, DataType: &typ, Editable: p.Editable,
			Min: &lo, Max: &hi, Unit: p.Unit, DecimalPlaces: &dec,
		}
	}
	return json.MarshalIndent(defs, "", "  ")
}
