package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	Busy           Code = "busy"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	InvalidTopic   Code = "invalid_topic"
	Timeout        Code = "timeout"

	// Parameter access.
	NotFound    Code = "not_found"
	NotEditable Code = "not_editable"

	// Queues and link.
	QueueFull   Code = "queue_full"
	PortClosed  Code = "port_closed"
	NotReady    Code = "not_ready"
	FrameFormat Code = "frame_format"

	// Definition documents.
	InvalidDocument  Code = "invalid_document"
	MissingField     Code = "missing_field"
	DuplicateID      Code = "duplicate_id"
	CapacityExceeded Code = "capacity_exceeded"
	InvalidType      Code = "invalid_type"
	InvalidBounds    Code = "invalid_bounds"
	TooLarge         Code = "too_large"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E without a cause.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
