package types

// ---- Values (retained) ----

// ParamValue is published on candata/param/<id>.
type ParamValue struct {
	ID       uint16  `json:"id"`
	Name     string  `json:"name"`
	Raw      int32   `json:"raw"`
	Value    float64 `json:"value"` // Raw scaled by decimal places
	Display  string  `json:"display"`
	Unit     string  `json:"unit,omitempty"`
	Editable bool    `json:"editable"`
	Min      int32   `json:"min"`
	Max      int32   `json:"max"`
	Updated  int64   `json:"updated_ms"`
}

// CellSnapshot is published on candata/cells.
type CellSnapshot struct {
	Count   int      `json:"count"`
	MV      []uint16 `json:"mv"`
	Updated []int64  `json:"updated_ms"`
	MinMV   uint16   `json:"min_mv"`
	MaxMV   uint16   `json:"max_mv"`
	TS      int64    `json:"ts_ms"`
}

// ---- Writes ----

type WriteOutcome string

const (
	WriteConfirmed WriteOutcome = "confirmed"
	WriteRejected  WriteOutcome = "rejected"
	WriteTimeout   WriteOutcome = "timeout"
)

// WriteResult is published on candata/write/<id> when a pending write
// resolves.
type WriteResult struct {
	ID        uint16       `json:"id"`
	Requested int32        `json:"requested"`
	Outcome   WriteOutcome `json:"outcome"`
	Actual    int32        `json:"actual,omitempty"`
	Matched   bool         `json:"matched"`
	AbortCode uint32       `json:"abort_code,omitempty"`
	TS        int64        `json:"ts_ms"`
}

// ---- Controls (request/reply on candata/ctrl/...) ----

type ReadRequest struct {
	ID uint16 `json:"id"`
}

type WriteRequest struct {
	ID    uint16 `json:"id"`
	Value int32  `json:"value"`
}

type LoadRequest struct {
	Doc []byte `json:"doc"`
}

type LoadReply struct {
	OK    bool   `json:"ok"`
	Count int    `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

type DefinitionsReply struct {
	Doc []byte `json:"doc"`
}

type Snapshot struct {
	Status LinkStatus   `json:"status"`
	Params []ParamValue `json:"params"`
	Cells  CellSnapshot `json:"cells"`
}

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
