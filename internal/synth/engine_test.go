package synth

import (
	"math"
	"testing"

	"github.com/cbegin/stepseq/internal/effects"
	"github.com/cbegin/stepseq/internal/voice"
)

func energy(e *Engine, frames int) float64 {
	var sum float64
	for i := 0; i < frames; i++ {
		l, r := e.RenderFrame()
		sum += math.Abs(float64(l)) + math.Abs(float64(r))
	}
	return sum
}

func TestAttackProducesAudio(t *testing.T) {
	e := New(48000, 4, DefaultParams())
	e.TriggerAttack(0, 60, 100, 0)
	if energy(e, 4800) == 0 {
		t.Fatalf("expected non-zero audio energy")
	}
	if e.ActiveVoices() != 1 {
		t.Fatalf("expected one active voice, got %d", e.ActiveVoices())
	}
}

func TestReleaseFinishesVoice(t *testing.T) {
	p := DefaultParams()
	p.ReleaseSec = 0.01
	e := New(48000, 2, p)
	e.TriggerAttack(1, 69, 100, 0)
	energy(e, 480)
	e.TriggerRelease(1, 480)
	energy(e, 4800)
	if e.ActiveVoices() != 0 {
		t.Fatalf("voice still active after release tail")
	}
}

func TestCommandsWaitForTheirSample(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.TriggerAttack(0, 60, 100, 100)
	energy(e, 100)
	if e.ActiveVoices() != 0 {
		t.Fatalf("attack started before its sample")
	}
	energy(e, 1)
	if e.ActiveVoices() != 1 {
		t.Fatalf("attack did not start at its sample")
	}
}

func TestSetClockAppliesPending(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.TriggerAttack(0, 60, 100, 1000)
	e.SetClock(2000)
	if e.ActiveVoices() != 1 {
		t.Fatalf("pending attack not applied by SetClock")
	}
}

func TestOutOfRangeVoiceIgnored(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.TriggerAttack(5, 60, 100, 0)
	e.TriggerAttack(-1, 60, 100, 0)
	e.SetOrnament(9, 1)
	if energy(e, 100) != 0 {
		t.Fatalf("out of range voices should be ignored")
	}
}

func TestAlgorithmsStayBounded(t *testing.T) {
	for ops := 1; ops <= 4; ops++ {
		for alg := 0; alg <= 5; alg++ {
			p := DefaultParams()
			p.Operators = ops
			p.Algorithm = alg
			p.Feedback = 0.5
			e := New(48000, 4, p)
			e.TriggerAttack(0, 48, 127, 0)
			e.TriggerAttack(1, 55, 127, 0)
			for i := 0; i < 2000; i++ {
				l, r := e.RenderFrame()
				if l > 1 || l < -1 || r > 1 || r < -1 || l != l {
					t.Fatalf("ops=%d alg=%d frame %d out of range: %f %f", ops, alg, i, l, r)
				}
			}
		}
	}
}

func TestOrnamentModulatesPitch(t *testing.T) {
	render := func(depth float64) []float32 {
		p := DefaultParams()
		p.LPFCutoff = 0
		e := New(48000, 1, p)
		e.TriggerAttack(0, 69, 100, 0)
		e.SetOrnament(0, depth)
		out := make([]float32, 9600)
		for i := range out {
			out[i], _ = e.RenderFrame()
		}
		return out
	}
	plain, wobbly := render(0), render(1)
	diff := 0.0
	for i := range plain {
		diff += math.Abs(float64(plain[i] - wobbly[i]))
	}
	if diff < 1 {
		t.Fatalf("vibrato had no audible effect: %f", diff)
	}
}

type gainStage struct {
	gain  float32
	reset int
}

func (g *gainStage) Process(l, r float32) (float32, float32) { return l * g.gain, r * g.gain }
func (g *gainStage) Reset()                                  { g.reset++ }

func TestConnectRoutesThroughDestination(t *testing.T) {
	e := New(48000, 1, DefaultParams())
	mute := &gainStage{gain: 0}
	if err := e.Connect(effects.NewChain(mute)); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if mute.reset != 1 {
		t.Fatalf("destination not reset on connect")
	}
	e.TriggerAttack(0, 60, 100, 0)
	if energy(e, 2400) != 0 {
		t.Fatalf("expected muted output through destination")
	}
	if err := e.Connect(nil); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if energy(e, 2400) == 0 {
		t.Fatalf("expected direct output after disconnect")
	}
}

func TestDrivenByAllocator(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	a := voice.NewAllocator(2, e, nil)
	a.Trigger(0, []float64{60, 64.5}, 100, 240, 0)
	energy(e, 240)
	a.Advance(240)
	if e.ActiveVoices() != 2 {
		t.Fatalf("expected both voices in their release tail")
	}
}

func TestParamsByName(t *testing.T) {
	e := New(48000, 1, DefaultParams())
	if err := e.Set("mod_index", 3); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if e.Params().ModIndex != 3 {
		t.Fatalf("mod_index not applied")
	}
	if err := e.Set("mod_index", 99); err == nil {
		t.Fatalf("expected range error")
	}
	if err := e.Set("nope", 1); err == nil {
		t.Fatalf("expected unknown parameter error")
	}
	p := DefaultParams()
	if v, ok := p.Get("attack"); !ok || v != p.AttackSec {
		t.Fatalf("get attack = %v %v", v, ok)
	}
	vals := p.Values()
	if len(vals) != len(Descriptors()) {
		t.Fatalf("values and descriptors disagree")
	}
	ds := Descriptors()
	for i := 1; i < len(ds); i++ {
		if ds[i-1].Name >= ds[i].Name {
			t.Fatalf("descriptors not sorted: %s before %s", ds[i-1].Name, ds[i].Name)
		}
	}
}

func TestFractionalPitchFrequency(t *testing.T) {
	if f := pitchToFreq(69); f != 440 {
		t.Fatalf("A4 = %f", f)
	}
	if f := pitchToFreq(69.5); math.Abs(f-440*math.Exp2(0.5/12)) > 1e-9 {
		t.Fatalf("quarter tone = %f", f)
	}
}

func BenchmarkRenderFrame(b *testing.B) {
	e := New(48000, 16, DefaultParams())
	for v := 0; v < 16; v++ {
		e.TriggerAttack(v, float64(48+v), 100, 0)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.RenderFrame()
	}
}
