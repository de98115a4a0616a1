package candata

import "candash-go/types"

// maxPending bounds the writes awaiting confirmation.
const maxPending = 8

type pendingWrite struct {
	used     bool
	id       uint16
	want     int32 // value after narrowing to the parameter type
	asked    int32
	acked    bool
	created  int64
	deadline int64
}

// pendingSet tracks writes until the device confirms, rejects, or the
// deadline passes. A write to an id already pending replaces it; when full
// the oldest entry is evicted without a result.
type pendingSet struct {
	slots [maxPending]pendingWrite
}

func (s *pendingSet) add(id uint16, asked, want int32, now, deadline int64) {
	free, oldest := -1, -1
	for i := range s.slots {
		w := &s.slots[i]
		if w.used && w.id == id {
			free = i
			break
		}
		if !w.used && free < 0 {
			free = i
		}
		if w.used && (oldest < 0 || w.created < s.slots[oldest].created) {
			oldest = i
		}
	}
	if free < 0 {
		free = oldest
	}
	s.slots[free] = pendingWrite{used: true, id: id, asked: asked, want: want, created: now, deadline: deadline}
}

func (s *pendingSet) find(id uint16) *pendingWrite {
	for i := range s.slots {
		if s.slots[i].used && s.slots[i].id == id {
			return &s.slots[i]
		}
	}
	return nil
}

func (s *pendingSet) len() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].used {
			n++
		}
	}
	return n
}

// acked marks id acknowledged and reports whether a read-back is due.
func (s *pendingSet) acked(id uint16) bool {
	w := s.find(id)
	if w == nil || w.acked {
		return false
	}
	w.acked = true
	return true
}

// uploaded resolves an acknowledged write with the value the device holds.
func (s *pendingSet) uploaded(id uint16, actual int32, now int64, emit func(types.WriteResult)) {
	w := s.find(id)
	if w == nil || !w.acked {
		return
	}
	emit(types.WriteResult{
		ID: id, Requested: w.asked, Outcome: types.WriteConfirmed,
		Actual: actual, Matched: actual == w.want, TS: now,
	})
	*w = pendingWrite{}
}

func (s *pendingSet) aborted(id uint16, code uint32, now int64, emit func(types.WriteResult)) {
	w := s.find(id)
	if w == nil {
		return
	}
	emit(types.WriteResult{ID: id, Requested: w.asked, Outcome: types.WriteRejected, AbortCode: code, TS: now})
	*w = pendingWrite{}
}

func (s *pendingSet) expire(now int64, emit func(types.WriteResult)) {
	for i := range s.slots {
		w := &s.slots[i]
		if w.used && now >= w.deadline {
			emit(types.WriteResult{ID: w.id, Requested: w.asked, Outcome: types.WriteTimeout, TS: now})
			*w = pendingWrite{}
		}
	}
}

func (s *pendingSet) reset() { s.slots = [maxPending]pendingWrite{} }
