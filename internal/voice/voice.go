package voice

import "github.com/pkg/errors"

// Destination receives a synth's stereo output, one frame at a time.
type Destination interface {
	Process(l, r float32) (float32, float32)
}

// Synth is the sound source a pool drives. Voice indices are stable in
// [0, pool size). Times are sample positions on the scheduler clock.
type Synth interface {
	TriggerAttack(v int, pitch, velocity float64, at int64)
	TriggerRelease(v int, at int64)
	Connect(dst Destination) error
}

// Ornamenter is implemented by synths that can apply a per-voice vibrato.
type Ornamenter interface {
	SetOrnament(v int, depth float64)
}

// ErrExhausted is logged whenever a trigger has to steal a sounding voice.
var ErrExhausted = errors.New("voice: pool exhausted")

// Handle names one grant of a voice. Gen changes on every trigger so a
// handle kept after its voice was stolen no longer matches.
type Handle struct {
	Voice int
	Gen   uint64
}

// Nop is a Synth that produces nothing.
type Nop struct{}

func (Nop) TriggerAttack(int, float64, float64, int64) {}
func (Nop) TriggerRelease(int, int64)                  {}
func (Nop) Connect(Destination) error                  { return nil }
