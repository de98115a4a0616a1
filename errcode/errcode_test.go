package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", NotFound, NotFound},
		{"wrapped E", &E{C: DuplicateID, Msg: "id 7", Err: cause}, DuplicateID},
		{"plain error", cause, Error},
		{"fmt wrapped code", fmt.Errorf("x: %w", QueueFull), Error},
	}
	for _, tc := range cases {
		if got := Of(tc.err); got != tc.want {
			t.Errorf("%s: Of = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEMessageAndUnwrap(t *testing.T) {
	cause := errors.New("unexpected EOF")
	e := &E{C: InvalidDocument, Op: "load", Msg: "bad json", Err: cause}
	if e.Error() != "invalid_document: bad json" {
		t.Fatalf("Error() = %q", e.Error())
	}
	if !errors.Is(e, cause) {
		t.Fatal("errors.Is should see the cause")
	}
	if New(NotEditable, "write", "").Error() != "not_editable" {
		t.Fatal("empty message should render the bare code")
	}
}
