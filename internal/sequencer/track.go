package sequencer

import (
	"math"

	"github.com/pkg/errors"

	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/voice"
)

type TrackKind int

const (
	Melodic TrackKind = iota
	Percussive
)

func (k TrackKind) String() string {
	if k == Percussive {
		return "percussive"
	}
	return "melodic"
}

func ParseTrackKind(s string) (TrackKind, error) {
	switch s {
	case "", "melodic":
		return Melodic, nil
	case "percussive", "drums":
		return Percussive, nil
	}
	return Melodic, errors.Errorf("sequencer: unknown track kind %q", s)
}

// Param is a scalar or a per-step array indexed by top-level step. Arrays
// cycle when shorter than the pattern.
type Param struct {
	vals []float64
}

func Scalar(v float64) Param { return Param{vals: []float64{v}} }

func PerStep(vals ...float64) Param { return Param{vals: append([]float64(nil), vals...)} }

func (p Param) IsSet() bool { return len(p.vals) > 0 }

func (p Param) Values() []float64 { return append([]float64(nil), p.vals...) }

func (p Param) At(step int, def float64) float64 {
	if len(p.vals) == 0 {
		return def
	}
	if step < 0 {
		step = 0
	}
	return p.vals[step%len(p.vals)]
}

func (p Param) validate(name string) error {
	for i, v := range p.vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("sequencer: %s value %d is not finite", name, i)
		}
	}
	return nil
}

type WildcardMode int

const (
	// WildcardDefault skips on melodic tracks and picks at random on
	// percussive ones.
	WildcardDefault WildcardMode = iota
	WildcardSkip
	WildcardRandom
	WildcardChance
)

func (m WildcardMode) String() string {
	switch m {
	case WildcardSkip:
		return "skip"
	case WildcardRandom:
		return "random"
	case WildcardChance:
		return "chance"
	}
	return "default"
}

func ParseWildcardMode(s string) (WildcardMode, error) {
	switch s {
	case "", "default":
		return WildcardDefault, nil
	case "skip":
		return WildcardSkip, nil
	case "random":
		return WildcardRandom, nil
	case "chance":
		return WildcardChance, nil
	}
	return WildcardDefault, errors.Errorf("sequencer: unknown wildcard mode %q", s)
}

// WildcardPolicy decides what '?' plays. Random picks uniformly from
// Candidates; Chance plays the first candidate with Probability. Without
// candidates the distinct values of the track's pattern are used.
type WildcardPolicy struct {
	Mode        WildcardMode
	Candidates  []pattern.Value
	Probability float64
}

const defaultSubdivision = 0.5

// Track is one voice lane.
type Track struct {
	index       int
	order       int
	text        string
	steps       []pattern.Step
	subdivision float64
	kind        TrackKind
	octave      Param
	sustain     Param
	velocity    Param
	lag         Param
	ornament    float64
	wildcard    WildcardPolicy
	kit         string

	running  bool
	cursor   int
	nextBeat float64

	lastHandles []voice.Handle
	lastUntil   int64
}

func newTrack(index int) *Track {
	return &Track{
		index:       index,
		subdivision: defaultSubdivision,
		kit:         DefaultKit,
	}
}

func (t *Track) length() int {
	if len(t.steps) == 0 {
		return 1
	}
	return len(t.steps)
}

// leadSamples is how far before its slot the earliest event of the track
// may fall because of negative lag.
func (t *Track) leadSamples(sampleRate float64) int64 {
	lead := 0.0
	for _, v := range t.lag.vals {
		if -v > lead {
			lead = -v
		}
	}
	return int64(math.Ceil(lead * sampleRate))
}

func (t *Track) wildcardValues() []pattern.Value {
	if len(t.wildcard.Candidates) > 0 {
		return t.wildcard.Candidates
	}
	seen := map[pattern.Value]bool{}
	var out []pattern.Value
	var walk func(steps []pattern.Step)
	walk = func(steps []pattern.Step) {
		for _, s := range steps {
			if s.Kind == pattern.KindGroup {
				walk(s.Children)
				continue
			}
			for _, v := range s.Values() {
				if !seen[v] {
					seen[v] = true
					out = append(out, v)
				}
			}
		}
	}
	walk(t.steps)
	if len(out) == 0 {
		if t.kind == Percussive {
			return []pattern.Value{{Symbol: "*"}}
		}
		return []pattern.Value{{Num: 0}}
	}
	return out
}

// TrackStatus is a read-only copy of a track for visualizers and hosts.
type TrackStatus struct {
	Index       int
	Kind        TrackKind
	Running     bool
	Cursor      int
	Text        string
	Steps       []pattern.Step
	Subdivision float64
	Octave      []float64
	Sustain     []float64
	Velocity    []float64
	Lag         []float64
	Ornament    float64
	Wildcard    WildcardPolicy
	Kit         string
}

func (t *Track) status() TrackStatus {
	return TrackStatus{
		Index:       t.index,
		Kind:        t.kind,
		Running:     t.running,
		Cursor:      t.cursor,
		Text:        t.text,
		Steps:       pattern.CloneSteps(t.steps),
		Subdivision: t.subdivision,
		Octave:      t.octave.Values(),
		Sustain:     t.sustain.Values(),
		Velocity:    t.velocity.Values(),
		Lag:         t.lag.Values(),
		Ornament:    t.ornament,
		Wildcard: WildcardPolicy{
			Mode:        t.wildcard.Mode,
			Candidates:  append([]pattern.Value(nil), t.wildcard.Candidates...),
			Probability: t.wildcard.Probability,
		},
		Kit: t.kit,
	}
}
