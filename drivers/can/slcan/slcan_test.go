package slcan

import (
	"context"
	"sync"
	"testing"

	"candash-go/drivers/can"
)

type fakeStream struct {
	mu    sync.Mutex
	in    [][]byte
	wrote []byte
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrote = append(s.wrote, p...)
	return len(p), nil
}

func (s *fakeStream) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	if len(s.in) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	chunk := s.in[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		s.in[0] = chunk[n:]
	} else {
		s.in = s.in[1:]
	}
	s.mu.Unlock()
	return n, nil
}

func TestEncodeStandardAndExtended(t *testing.T) {
	got := string(Encode(nil, can.New(0x601, []byte{0x40, 0x07, 0x00, 0x00})))
	if got != "t601440070000\r" {
		t.Fatalf("std: %q", got)
	}
	got = string(Encode(nil, can.New(0x18FF50E5, []byte{0xAB})))
	if got != "T18FF50E51AB\r" {
		t.Fatalf("ext: %q", got)
	}
}

func TestDecodeRoundTripAndTimestamp(t *testing.T) {
	f, err := Decode([]byte("t355401020304"))
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != 0x355 || f.Len != 4 || f.Data[3] != 0x04 || f.Extended {
		t.Fatalf("got %+v", f)
	}
	if _, err := Decode([]byte("t3551AA1234")); err != nil {
		t.Fatalf("timestamped line rejected: %v", err)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "x123", "t12", "t1239", "t3552AA", "t35510Z", "r1230", "t8001AA"} {
		if _, err := Decode([]byte(s)); err == nil {
			t.Errorf("%q accepted", s)
		}
	}
}

func TestOpenSendsSetup(t *testing.T) {
	s := &fakeStream{}
	if _, err := Open(s, 500000); err != nil {
		t.Fatal(err)
	}
	if string(s.wrote) != "C\rS6\rO\r" {
		t.Fatalf("setup %q", s.wrote)
	}
	if _, err := Open(s, 33333); err == nil {
		t.Fatal("odd bitrate accepted")
	}
}

func TestRecvAssemblesSplitLinesAndSkipsJunk(t *testing.T) {
	s := &fakeStream{in: [][]byte{
		[]byte("\a\rz\rt35"),
		[]byte("5201"),
		[]byte("02\rT0000058"),
		[]byte("110A\r"),
	}}
	p, err := Open(s, 250000)
	if err != nil {
		t.Fatal(err)
	}
	p.now = func() int64 { return 42 }
	ctx := context.Background()

	f, err := p.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != 0x355 || f.Len != 2 || f.Data[0] != 1 || f.Data[1] != 2 || f.TS != 42 {
		t.Fatalf("first %+v", f)
	}
	f, err = p.Recv(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != 0x581 || !f.Extended || f.Len != 1 || f.Data[0] != 0x0A {
		t.Fatalf("second %+v", f)
	}
}

func TestRecvDiscardsOverlongLine(t *testing.T) {
	long := make([]byte, 0, 80)
	for i := 0; i < 70; i++ {
		long = append(long, '1')
	}
	long = append(long, '\r')
	s := &fakeStream{in: [][]byte{long, []byte("t1230\r")}}
	p, _ := Open(s, 125000)
	f, err := p.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != 0x123 || f.Len != 0 {
		t.Fatalf("got %+v", f)
	}
}

func TestRecvHonoursContext(t *testing.T) {
	s := &fakeStream{}
	p, _ := Open(s, 125000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Recv(ctx); err == nil {
		t.Fatal("expected ctx error")
	}
}
