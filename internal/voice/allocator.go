package voice

import (
	"container/heap"
	"log/slog"
	"sync"
)

type slot struct {
	gen     uint64
	active  bool
	owner   int
	serial  uint64 // trigger order, lowest is stolen first
	idleSeq uint64 // release order, lowest is reused first
	until   int64
}

type pendingRelease struct {
	at    int64
	voice int
	gen   uint64
	seq   uint64
}

type releaseQueue []pendingRelease

func (q releaseQueue) Len() int { return len(q) }
func (q releaseQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q releaseQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *releaseQueue) Push(x any)   { *q = append(*q, x.(pendingRelease)) }
func (q *releaseQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

type Stats struct {
	Size     int
	Active   int
	Triggers uint64
	Steals   uint64
}

// Allocator grants voices of a fixed pool. Idle voices are preferred; when
// none is idle the oldest trigger is stolen. Every trigger schedules its own
// release.
type Allocator struct {
	mu       sync.Mutex
	synth    Synth
	log      *slog.Logger
	slots    []slot
	pending  releaseQueue
	serial   uint64
	idleSeq  uint64
	queueSeq uint64
	triggers uint64
	steals   uint64
}

func NewAllocator(size int, synth Synth, log *slog.Logger) *Allocator {
	if size <= 0 {
		size = 16
	}
	if synth == nil {
		synth = Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{
		synth: synth,
		log:   log,
		slots: make([]slot, size),
	}
}

func (a *Allocator) Size() int { return len(a.slots) }

// SetSynth swaps the sound source. Sounding voices are released first.
func (a *Allocator) SetSynth(s Synth, at int64) {
	if s == nil {
		s = Nop{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.slots {
		if a.slots[i].active {
			a.releaseLocked(i, at)
		}
	}
	a.synth = s
}

func (a *Allocator) Synth() Synth {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.synth
}

// Trigger grants one voice per note, starts it at at and schedules its
// release at at+sustain.
func (a *Allocator) Trigger(owner int, notes []float64, velocity float64, sustain, at int64) []Handle {
	if sustain < 1 {
		sustain = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Handle, 0, len(notes))
	for _, pitch := range notes {
		v := a.pickLocked(at)
		s := &a.slots[v]
		a.serial++
		s.gen++
		s.active = true
		s.owner = owner
		s.serial = a.serial
		s.until = at + sustain
		a.triggers++
		a.synth.TriggerAttack(v, pitch, velocity, at)
		a.queueSeq++
		heap.Push(&a.pending, pendingRelease{at: s.until, voice: v, gen: s.gen, seq: a.queueSeq})
		out = append(out, Handle{Voice: v, Gen: s.gen})
	}
	return out
}

func (a *Allocator) pickLocked(at int64) int {
	idle := -1
	for i := range a.slots {
		s := &a.slots[i]
		if s.active {
			continue
		}
		if idle < 0 || s.idleSeq < a.slots[idle].idleSeq {
			idle = i
		}
	}
	if idle >= 0 {
		return idle
	}
	oldest := 0
	for i := 1; i < len(a.slots); i++ {
		if a.slots[i].serial < a.slots[oldest].serial {
			oldest = i
		}
	}
	a.steals++
	a.log.Debug("voice stolen", "voice", oldest, "owner", a.slots[oldest].owner, "err", ErrExhausted)
	a.releaseLocked(oldest, at)
	return oldest
}

func (a *Allocator) releaseLocked(v int, at int64) {
	s := &a.slots[v]
	a.synth.TriggerRelease(v, at)
	s.active = false
	a.idleSeq++
	s.idleSeq = a.idleSeq
}

func (a *Allocator) current(h Handle) bool {
	if h.Voice < 0 || h.Voice >= len(a.slots) {
		return false
	}
	s := &a.slots[h.Voice]
	return s.active && s.gen == h.Gen
}

// Release ends the given grants now. Stale handles are ignored.
func (a *Allocator) Release(handles []Handle, at int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range handles {
		if a.current(h) {
			a.releaseLocked(h.Voice, at)
		}
	}
}

// Extend pushes the scheduled release of still-sounding grants back by by
// samples. It reports whether any handle was extended.
func (a *Allocator) Extend(handles []Handle, by int64) bool {
	if by <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ok := false
	for _, h := range handles {
		if !a.current(h) {
			continue
		}
		s := &a.slots[h.Voice]
		s.until += by
		a.queueSeq++
		heap.Push(&a.pending, pendingRelease{at: s.until, voice: h.Voice, gen: h.Gen, seq: a.queueSeq})
		ok = true
	}
	return ok
}

// Ornament forwards a vibrato depth to synths implementing Ornamenter.
func (a *Allocator) Ornament(handles []Handle, depth float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.synth.(Ornamenter)
	if !ok {
		return
	}
	for _, h := range handles {
		if a.current(h) {
			o.SetOrnament(h.Voice, depth)
		}
	}
}

// Advance emits every scheduled release due at or before now.
func (a *Allocator) Advance(now int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.pending) > 0 && a.pending[0].at <= now {
		r := heap.Pop(&a.pending).(pendingRelease)
		s := &a.slots[r.voice]
		if !s.active || s.gen != r.gen || r.at < s.until {
			continue
		}
		a.releaseLocked(r.voice, r.at)
	}
}

// StopOwner releases every voice held by owner at once and returns how many
// were released. Their scheduled releases become no-ops.
func (a *Allocator) StopOwner(owner int, at int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for i := range a.slots {
		if a.slots[i].active && a.slots[i].owner == owner {
			a.releaseLocked(i, at)
			n++
		}
	}
	return n
}

// StopAll releases every sounding voice and drops pending releases.
func (a *Allocator) StopAll(at int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.slots {
		if a.slots[i].active {
			a.releaseLocked(i, at)
		}
	}
	a.pending = a.pending[:0]
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := Stats{Size: len(a.slots), Triggers: a.triggers, Steals: a.steals}
	for i := range a.slots {
		if a.slots[i].active {
			st.Active++
		}
	}
	return st
}
