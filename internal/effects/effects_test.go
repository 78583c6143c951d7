package effects

import (
	"math"
	"testing"
)

func TestDelayRepeatsImpulse(t *testing.T) {
	d := NewDelay(1000, 0.1, 0.5, 0, 0.5)
	d.Process(1, 1)
	for i := 0; i < 99; i++ {
		if l, _ := d.Process(0, 0); l != 0 {
			t.Fatalf("early repeat at %d", i)
		}
	}
	l, r := d.Process(0, 0)
	if math.Abs(float64(l)-0.5) > 1e-6 || math.Abs(float64(r)-0.5) > 1e-6 {
		t.Fatalf("expected first repeat at half level, got l=%f r=%f", l, r)
	}
}

func TestDelayCrossFeedsOtherSide(t *testing.T) {
	d := NewDelay(1000, 0.01, 0.5, 1, 1)
	d.Process(1, 0)
	for i := 0; i < 9; i++ {
		d.Process(0, 0)
	}
	if l, r := d.Process(0, 0); l != 1 || r != 0 {
		t.Fatalf("first repeat should stay left, got %f %f", l, r)
	}
	for i := 0; i < 9; i++ {
		d.Process(0, 0)
	}
	if l, r := d.Process(0, 0); l != 0 || r == 0 {
		t.Fatalf("second repeat should cross right, got %f %f", l, r)
	}
}

func TestReverbTail(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7, 0.5)
	r.Process(1, 1)
	var peak float32
	for i := 0; i < 10000; i++ {
		l, _ := r.Process(0, 0)
		if l > peak {
			peak = l
		}
	}
	if peak < 0.001 {
		t.Fatalf("expected reverb tail")
	}
	r.Reset()
	if l, _ := r.Process(0, 0); l != 0 {
		t.Fatalf("reset should clear the tail")
	}
}

func TestBuildChain(t *testing.T) {
	c, err := Build(48000, []Spec{{Kind: "delay", Time: 0.25}, {Kind: "Reverb"}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 effects, got %d", c.Len())
	}
	if _, err := Build(48000, []Spec{{Kind: "flanger"}}); err == nil {
		t.Fatalf("expected unknown effect error")
	}
}

func TestEmptyChainPassesThrough(t *testing.T) {
	c := NewChain()
	if l, r := c.Process(0.25, -0.5); l != 0.25 || r != -0.5 {
		t.Fatalf("expected passthrough, got %f %f", l, r)
	}
}
