package effects

import (
	"strings"

	"github.com/pkg/errors"
)

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies effects in order. It satisfies voice.Destination, so a
// synth can be connected straight to it.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int { return len(c.effects) }

// Spec describes one effect in a session file or on the command line.
type Spec struct {
	Kind     string  `yaml:"kind" json:"kind"`
	Time     float64 `yaml:"time,omitempty" json:"time,omitempty"` // delay seconds
	Feedback float64 `yaml:"feedback,omitempty" json:"feedback,omitempty"`
	Cross    float64 `yaml:"cross,omitempty" json:"cross,omitempty"`
	Size     float64 `yaml:"size,omitempty" json:"size,omitempty"` // reverb room size
	Mix      float64 `yaml:"mix,omitempty" json:"mix,omitempty"`
}

// Build turns specs into a chain. Unset fields take musical defaults.
func Build(sampleRate int, specs []Spec) (*Chain, error) {
	c := NewChain()
	for i, s := range specs {
		switch strings.ToLower(s.Kind) {
		case "delay":
			c.Add(NewDelay(sampleRate, or(s.Time, 0.375), float32(or(s.Feedback, 0.35)), float32(s.Cross), float32(or(s.Mix, 0.3))))
		case "reverb":
			c.Add(NewReverb(sampleRate, float32(or(s.Size, 0.5)), float32(or(s.Feedback, 0.7)), float32(or(s.Mix, 0.25))))
		default:
			return nil, errors.Errorf("effects: unknown effect %q at %d", s.Kind, i)
		}
	}
	return c, nil
}

func or(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
