package voice

import (
	"fmt"
	"testing"
)

type call struct {
	kind  string
	voice int
	pitch float64
	at    int64
}

type recordingSynth struct {
	calls    []call
	ornament map[int]float64
}

func (s *recordingSynth) TriggerAttack(v int, pitch, velocity float64, at int64) {
	s.calls = append(s.calls, call{kind: "attack", voice: v, pitch: pitch, at: at})
}

func (s *recordingSynth) TriggerRelease(v int, at int64) {
	s.calls = append(s.calls, call{kind: "release", voice: v, at: at})
}

func (s *recordingSynth) Connect(Destination) error { return nil }

func (s *recordingSynth) SetOrnament(v int, depth float64) {
	if s.ornament == nil {
		s.ornament = map[int]float64{}
	}
	s.ornament[v] = depth
}

func (s *recordingSynth) count(kind string) int {
	n := 0
	for _, c := range s.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func TestChordLargerThanPoolStealsOldest(t *testing.T) {
	syn := &recordingSynth{}
	a := NewAllocator(4, syn, nil)
	hs := a.Trigger(0, []float64{60, 62, 64, 65, 67}, 100, 1000, 0)
	if len(hs) != 5 {
		t.Fatalf("expected 5 handles, got %d", len(hs))
	}
	if got := syn.count("attack"); got != 5 {
		t.Fatalf("expected 5 trigger calls, got %d", got)
	}
	if got := syn.count("release"); got != 1 {
		t.Fatalf("expected exactly one steal, got %d releases", got)
	}
	if hs[4].Voice != hs[0].Voice {
		t.Fatalf("expected the oldest voice %d to be stolen, got %d", hs[0].Voice, hs[4].Voice)
	}
	if st := a.Stats(); st.Steals != 1 || st.Active != 4 {
		t.Fatalf("unexpected stats %+v", st)
	}
	release := syn.calls[4]
	if release.kind != "release" || release.voice != hs[0].Voice {
		t.Fatalf("release must precede the stolen attack, got %+v", syn.calls)
	}
}

func TestIdlePreferredOverStealing(t *testing.T) {
	syn := &recordingSynth{}
	a := NewAllocator(2, syn, nil)
	first := a.Trigger(0, []float64{60}, 100, 10, 0)
	a.Trigger(0, []float64{62}, 100, 1000, 0)
	a.Advance(10)
	if st := a.Stats(); st.Active != 1 {
		t.Fatalf("expected first voice released, active=%d", st.Active)
	}
	again := a.Trigger(1, []float64{64}, 100, 10, 11)
	if again[0].Voice != first[0].Voice {
		t.Fatalf("expected idle voice %d reused, got %d", first[0].Voice, again[0].Voice)
	}
	if a.Stats().Steals != 0 {
		t.Fatalf("no steal expected")
	}
}

func TestLeastRecentlyReleasedIdleFirst(t *testing.T) {
	a := NewAllocator(3, &recordingSynth{}, nil)
	hs := a.Trigger(0, []float64{60, 62, 64}, 100, 100, 0)
	a.Release([]Handle{hs[2]}, 5)
	a.Release([]Handle{hs[0]}, 6)
	got := a.Trigger(0, []float64{65}, 100, 100, 7)
	if got[0].Voice != hs[2].Voice {
		t.Fatalf("expected voice %d released earliest, got %d", hs[2].Voice, got[0].Voice)
	}
}

func TestAutoReleaseAtSustain(t *testing.T) {
	syn := &recordingSynth{}
	a := NewAllocator(4, syn, nil)
	a.Trigger(0, []float64{60}, 100, 480, 100)
	a.Advance(579)
	if syn.count("release") != 0 {
		t.Fatalf("released too early")
	}
	a.Advance(580)
	if syn.count("release") != 1 {
		t.Fatalf("expected release at 580")
	}
	if last := syn.calls[len(syn.calls)-1]; last.at != 580 {
		t.Fatalf("expected release timestamp 580, got %d", last.at)
	}
}

func TestExtendDelaysRelease(t *testing.T) {
	syn := &recordingSynth{}
	a := NewAllocator(4, syn, nil)
	hs := a.Trigger(0, []float64{60}, 100, 100, 0)
	if !a.Extend(hs, 50) {
		t.Fatalf("expected extend to apply")
	}
	a.Advance(100)
	if syn.count("release") != 0 {
		t.Fatalf("extended voice released at original time")
	}
	a.Advance(150)
	if syn.count("release") != 1 {
		t.Fatalf("expected release at 150")
	}
	if a.Extend(hs, 10) {
		t.Fatalf("released handle should not extend")
	}
}

func TestStaleHandleIgnored(t *testing.T) {
	syn := &recordingSynth{}
	a := NewAllocator(1, syn, nil)
	old := a.Trigger(0, []float64{60}, 100, 100, 0)
	a.Trigger(1, []float64{62}, 100, 100, 10)
	before := syn.count("release")
	a.Release(old, 20)
	if syn.count("release") != before {
		t.Fatalf("stale handle released the new grant")
	}
}

func TestStopOwnerCancelsPending(t *testing.T) {
	syn := &recordingSynth{}
	a := NewAllocator(4, syn, nil)
	a.Trigger(0, []float64{60, 64}, 100, 1000, 0)
	a.Trigger(1, []float64{67}, 100, 1000, 0)
	if n := a.StopOwner(0, 10); n != 2 {
		t.Fatalf("expected 2 voices stopped, got %d", n)
	}
	a.Advance(2000)
	if got := syn.count("release"); got != 3 {
		t.Fatalf("expected 2 stop releases and 1 scheduled, got %d", got)
	}
}

func TestOrnamentForwarded(t *testing.T) {
	syn := &recordingSynth{}
	a := NewAllocator(2, syn, nil)
	hs := a.Trigger(0, []float64{60}, 100, 10, 0)
	a.Ornament(hs, 0.5)
	if syn.ornament[hs[0].Voice] != 0.5 {
		t.Fatalf("ornament not forwarded: %v", syn.ornament)
	}
}

func TestConcurrentTriggers(t *testing.T) {
	a := NewAllocator(8, Nop{}, nil)
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(owner int) {
			for i := 0; i < 200; i++ {
				a.Trigger(owner, []float64{60, 64}, 100, 5, int64(i))
				a.Advance(int64(i))
			}
			done <- struct{}{}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	if st := a.Stats(); st.Active > 8 || st.Triggers != 1600 {
		t.Fatalf("unexpected stats %s", fmt.Sprint(st))
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingSynth{}, &recordingSynth{}
	m := NewMulti(a, nil, b)
	alloc := NewAllocator(2, m, nil)
	hs := alloc.Trigger(0, []float64{60, 64}, 90, 10, 0)
	alloc.Ornament(hs, 0.25)
	alloc.Advance(10)
	for _, s := range []*recordingSynth{a, b} {
		if s.count("attack") != 2 || s.count("release") != 2 {
			t.Fatalf("member missed calls: %+v", s.calls)
		}
		if s.ornament[hs[1].Voice] != 0.25 {
			t.Fatalf("member missed ornament")
		}
	}
	if l, r := m.RenderFrame(); l != 0 || r != 0 {
		t.Fatalf("members without audio should mix to silence")
	}
}
