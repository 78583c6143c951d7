package lfo

import (
	"math"
	"testing"
)

func TestShapes(t *testing.T) {
	const sr = 100.0 // one cycle per 100 samples at 1 Hz
	cases := []struct {
		name    string
		wave    int
		samples map[int]float64
	}{
		{"sine", WaveSine, map[int]float64{0: 0, 25: 1, 50: 0, 75: -1}},
		{"triangle", WaveTriangle, map[int]float64{0: -1, 25: 0, 50: 1}},
		{"square", WaveSquare, map[int]float64{0: 1, 49: 1, 50: -1}},
		{"saw", WaveSaw, map[int]float64{0: 1, 50: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := &LFO{}
			l.Set(1, 1, tc.wave)
			got := make([]float64, 100)
			for i := range got {
				got[i] = l.Sample(sr)
			}
			for i, want := range tc.samples {
				if math.Abs(got[i]-want) > 0.05 {
					t.Fatalf("sample %d: got %f, want %f", i, got[i], want)
				}
			}
		})
	}
}

func TestInactiveReturnsZero(t *testing.T) {
	l := &LFO{}
	if l.Active() || l.Sample(48000) != 0 {
		t.Fatalf("default LFO should be silent")
	}
	l.Set(0, 5, WaveSine)
	if l.Sample(48000) != 0 {
		t.Fatalf("zero depth should return 0")
	}
	l.Set(1, 0, WaveSine)
	if l.Sample(48000) != 0 {
		t.Fatalf("zero rate should return 0")
	}
	if l.Ratio(48000) != 1 {
		t.Fatalf("inactive ratio should be 1")
	}
}

func TestRatioFollowsSemitoneDepth(t *testing.T) {
	l := &LFO{}
	l.Set(1, 1, WaveSquare)
	r := l.Ratio(100)
	if math.Abs(r-math.Exp2(1.0/12)) > 1e-9 {
		t.Fatalf("expected one semitone up, got ratio %f", r)
	}
}

func TestRandomStaysWithinDepth(t *testing.T) {
	l := &LFO{}
	l.Set(0.5, 10, WaveRandom)
	changed := false
	for i := 0; i < 1000; i++ {
		v := l.Sample(1000)
		if math.Abs(v) > 0.5 {
			t.Fatalf("sample %d exceeds depth: %f", i, v)
		}
		if v != 0 {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("expected held values after a cycle boundary")
	}
}

func TestResetRestartsPhase(t *testing.T) {
	l := &LFO{}
	l.Set(1, 1, WaveSaw)
	for i := 0; i < 30; i++ {
		l.Sample(100)
	}
	l.Reset()
	if v := l.Sample(100); math.Abs(v-1) > 1e-9 {
		t.Fatalf("expected phase 0 after reset, got %f", v)
	}
}

func TestUnknownWaveformFallsBackToSine(t *testing.T) {
	l := &LFO{}
	l.Set(1, 1, 99)
	l.Sample(4)
	if v := l.Sample(4); math.Abs(v-1) > 1e-9 {
		t.Fatalf("expected sine peak at quarter cycle, got %f", v)
	}
}
