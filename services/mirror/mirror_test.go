package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"candash-go/bus"
	"candash-go/services/config"
	"candash-go/types"
)

type fakeStore struct {
	mu     sync.Mutex
	fail   bool
	hashes map[string]map[string]any
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	if f.hashes == nil {
		f.hashes = map[string]map[string]any{}
	}
	h := f.hashes[key]
	if h == nil {
		h = map[string]any{}
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) get(key, field string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.hashes[key][field]
	return v, ok
}

func TestFlushWritesCollectedState(t *testing.T) {
	st := &fakeStore{}
	s := newService(st, config.RedisConfig{Prefix: "car"}, nil)

	s.noteParam(&bus.Message{Topic: bus.T("candata", "param", 7), Payload: types.ParamValue{ID: 7, Name: "SOC", Display: "82 %"}})
	s.cells = &types.CellSnapshot{Count: 2, MV: []uint16{3700, 3702}, MinMV: 3700, MaxMV: 3702}
	s.status = &types.LinkStatus{Link: types.LinkUp, Driver: "sim", Params: 19}

	if err := s.flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := st.get("car:params", "SOC"); v != "82 %" {
		t.Fatalf("params SOC=%v", v)
	}
	if v, _ := st.get("car:cells", "1"); v != uint16(3702) {
		t.Fatalf("cell 1=%v", v)
	}
	if v, _ := st.get("car:status", "link"); v != "up" {
		t.Fatalf("status link=%v", v)
	}
	if len(s.params) != 0 || s.cells != nil || s.status != nil {
		t.Fatal("state not released after flush")
	}
}

func TestFlushKeepsStateOnError(t *testing.T) {
	st := &fakeStore{fail: true}
	s := newService(st, config.RedisConfig{}, nil)
	s.noteParam(&bus.Message{Topic: bus.T("candata", "param", 61), Payload: types.ParamValue{ID: 61, Name: "Regen", Display: "30 %"}})

	if err := s.flush(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(s.params) != 1 {
		t.Fatal("params dropped on failed flush")
	}
	st.fail = false
	if err := s.flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := st.get("candash:params", "Regen"); v != "30 %" {
		t.Fatalf("Regen=%v", v)
	}
}

func TestServiceMirrorsBusTopics(t *testing.T) {
	b := bus.NewBus(16)
	pub := b.NewConnection("candata")
	pub.Publish(pub.NewMessage(bus.T("candata", "param", 8), types.ParamValue{ID: 8, Name: "SOH", Display: "98 %"}, true))
	pub.Publish(pub.NewMessage(bus.T("candata", "status"), types.LinkStatus{Link: types.LinkDown, Driver: "sim"}, true))

	st := &fakeStore{}
	s := newService(st, config.RedisConfig{IntervalMs: 10}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Start(ctx, b.NewConnection("mirror"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		soh, ok1 := st.get("candash:params", "SOH")
		link, ok2 := st.get("candash:status", "link")
		if ok1 && ok2 {
			if soh != "98 %" || link != "down" {
				t.Fatalf("SOH=%v link=%v", soh, link)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("mirror never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
