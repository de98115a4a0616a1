package ring

import (
	"sync"
	"testing"
)

func TestFIFOAcrossWrap(t *testing.T) {
	r := New[int](8)

	// Interleave pushes and pops so indices wrap many times.
	const N = 2000
	next := 0
	want := 0
	for want < N {
		for i := 0; i < 5 && next < N; i++ {
			if !r.Push(next) {
				break
			}
			next++
		}
		for i := 0; i < 3; i++ {
			v, ok := r.Pop()
			if !ok {
				break
			}
			if v != want {
				t.Fatalf("pop order: got %d want %d", v, want)
			}
			want++
		}
	}
	if r.Len() != 0 {
		t.Fatalf("ring should be empty, Len=%d", r.Len())
	}
}

func TestPushFullLeavesRingUnchanged(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d failed below capacity", i)
		}
	}
	rd0, wr0 := r.Watermarks()
	if r.Push(99) {
		t.Fatal("push into full ring succeeded")
	}
	rd1, wr1 := r.Watermarks()
	if rd0 != rd1 || wr0 != wr1 || r.Len() != 4 {
		t.Fatalf("full push mutated ring: (%d,%d) -> (%d,%d) len=%d", rd0, wr0, rd1, wr1, r.Len())
	}
	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("pop %d: got %d ok=%v", i, v, ok)
		}
	}
}

func TestPopEmpty(t *testing.T) {
	r := New[string](2)
	if v, ok := r.Pop(); ok || v != "" {
		t.Fatalf("pop on empty ring = %q, %v", v, ok)
	}
}

func TestReadableEdge(t *testing.T) {
	r := New[int](4)
	select {
	case <-r.Readable():
		t.Fatal("unexpected Readable on empty ring")
	default:
	}
	r.Push(1)
	r.Push(2)
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected Readable after first push")
	}
	select {
	case <-r.Readable():
		t.Fatal("edge should be coalesced")
	default:
	}
	r.Pop()
	r.Pop()
	r.Push(3)
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected Readable after refill")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r := New[uint32](16)
	const N = 100000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(0); i < N; {
			if r.Push(i) {
				i++
			}
		}
	}()

	for want := uint32(0); want < N; {
		v, ok := r.Pop()
		if !ok {
			continue
		}
		if v != want {
			t.Fatalf("got %d want %d", v, want)
		}
		want++
	}
	wg.Wait()
}

func TestNewRejectsBadSize(t *testing.T) {
	for _, n := range []int{0, 1, 3, 12} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("New(%d) did not panic", n)
				}
			}()
			_ = New[int](n)
		}()
	}
}
