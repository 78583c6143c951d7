package sequencer

import (
	"container/heap"

	"github.com/cbegin/stepseq/internal/pattern"
)

type eventKind int

const (
	evNote eventKind = iota
	evHold
	evHook
)

type event struct {
	at       int64
	order    int // registration ordinal of the track
	seq      uint64
	kind     eventKind
	track    int
	top      int     // top-level step index
	slotBeat float64 // start of the top-level slot
	beat     float64 // nominal beat of this leaf
	step     pattern.Step
	sustain  int64 // evNote
	holdEnd  int64 // evHold
}

// eventQueue orders events by time, then by track registration, then by
// insertion.
type eventQueue []event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	if q[i].order != q[j].order {
		return q[i].order < q[j].order
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

func (q *eventQueue) removeIf(drop func(ev *event) bool) int {
	kept := (*q)[:0]
	n := 0
	for i := range *q {
		if drop(&(*q)[i]) {
			n++
			continue
		}
		kept = append(kept, (*q)[i])
	}
	*q = kept
	heap.Init(q)
	return n
}
