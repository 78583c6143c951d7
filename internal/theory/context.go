package theory

import (
	"fmt"
	"math"
	"sync"

	"github.com/pkg/errors"
)

// ResolutionError reports a degree that could not be turned into a pitch.
type ResolutionError struct {
	Degree int
	Msg    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("theory: degree %d: %s", e.Degree, e.Msg)
}

type state struct {
	root         int
	octave       int
	scale        []int
	scaleName    string
	progression  []Numeral
	barsPerChord float64
	beatsPerBar  float64
	temperament  Temperament
	tempo        float64
}

// Context is the shared key, scale, progression, temperament and tempo.
// Writers bump a version so readers can cache snapshots.
type Context struct {
	mu      sync.RWMutex
	version uint64
	st      state
}

func New() *Context {
	return &Context{st: state{
		root:         0,
		octave:       4,
		scaleName:    "major",
		scale:        append([]int(nil), scales["major"]...),
		barsPerChord: 1,
		beatsPerBar:  4,
		temperament:  Equal(12),
		tempo:        120,
	}}
}

var defaultContext = New()

// Default returns the process-wide context.
func Default() *Context { return defaultContext }

func (c *Context) update(fn func(st *state) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(&c.st); err != nil {
		return err
	}
	c.version++
	return nil
}

func (c *Context) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Snapshot returns an immutable copy for one consistent resolution pass.
func (c *Context) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.st
	st.scale = append([]int(nil), c.st.scale...)
	st.progression = append([]Numeral(nil), c.st.progression...)
	st.temperament = c.st.temperament.clone()
	return &Snapshot{st: st, version: c.version}
}

// SetRoot sets the root pitch class (0 = C).
func (c *Context) SetRoot(pc int) {
	_ = c.update(func(st *state) error {
		st.root = floorMod(pc, 12)
		return nil
	})
}

func (c *Context) SetRootName(name string) error {
	pc, ok := ParsePitchClass(name)
	if !ok {
		return errors.Errorf("theory: bad root %q", name)
	}
	c.SetRoot(pc)
	return nil
}

// SetOctave sets the octave of the root note; the default 4 puts C at 60.
func (c *Context) SetOctave(octave int) {
	_ = c.update(func(st *state) error {
		st.octave = octave
		return nil
	})
}

// SetScale selects a named scale. Named scales need a 12-entry table.
func (c *Context) SetScale(name string) error {
	s, ok := LookupScale(name)
	if !ok {
		return errors.Errorf("theory: unknown scale %q", name)
	}
	return c.update(func(st *state) error {
		if st.temperament.Len() != 12 {
			return errors.Errorf("theory: scale %q needs a 12-entry temperament, have %d", name, st.temperament.Len())
		}
		st.scale = s
		st.scaleName = name
		return nil
	})
}

// SetScaleIndices selects table entries directly. nil uses every entry.
func (c *Context) SetScaleIndices(indices []int) error {
	return c.update(func(st *state) error {
		for _, i := range indices {
			if i < 0 || i >= st.temperament.Len() {
				return errors.Errorf("theory: scale index %d outside table of %d", i, st.temperament.Len())
			}
		}
		if len(indices) == 0 {
			st.scale = nil
		} else {
			st.scale = append([]int(nil), indices...)
		}
		st.scaleName = ""
		return nil
	})
}

// SetTemperament replaces the table and resets the scale to every entry.
func (c *Context) SetTemperament(t Temperament) error {
	if t.Len() == 0 {
		return errors.New("theory: empty temperament")
	}
	if t.Period <= 0 {
		t.Period = 1200
	}
	t = t.clone()
	return c.update(func(st *state) error {
		st.temperament = t
		st.scale = nil
		st.scaleName = ""
		return nil
	})
}

// SetProgression installs roman numerals. Invalid entries are kept and fail
// at resolution; the first parse error is returned. No arguments clears it.
func (c *Context) SetProgression(numerals ...string) error {
	prog, err := ParseProgression(numerals)
	_ = c.update(func(st *state) error {
		st.progression = prog
		if len(numerals) == 0 {
			st.progression = nil
		}
		return nil
	})
	return err
}

// SetProgressionRate sets how many bars each chord lasts.
func (c *Context) SetProgressionRate(bars float64) error {
	if !(bars > 0) || math.IsInf(bars, 0) {
		return errors.Errorf("theory: bad progression rate %v", bars)
	}
	return c.update(func(st *state) error {
		st.barsPerChord = bars
		return nil
	})
}

func (c *Context) SetBeatsPerBar(beats float64) error {
	if !(beats > 0) || math.IsInf(beats, 0) {
		return errors.Errorf("theory: bad beats per bar %v", beats)
	}
	return c.update(func(st *state) error {
		st.beatsPerBar = beats
		return nil
	})
}

// SetTempo is the only way to change tempo.
func (c *Context) SetTempo(bpm float64) error {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return errors.Errorf("theory: bad tempo %v", bpm)
	}
	return c.update(func(st *state) error {
		st.tempo = bpm
		return nil
	})
}

func (c *Context) Tempo() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st.tempo
}

// Snapshot is a read-only view of a Context at one version.
type Snapshot struct {
	st      state
	version uint64
}

func (s *Snapshot) Version() uint64          { return s.version }
func (s *Snapshot) Root() int                { return s.st.root }
func (s *Snapshot) Octave() int              { return s.st.octave }
func (s *Snapshot) RootNote() int            { return 12*(s.st.octave+1) + s.st.root }
func (s *Snapshot) ScaleName() string        { return s.st.scaleName }
func (s *Snapshot) Tempo() float64           { return s.st.tempo }
func (s *Snapshot) BarsPerChord() float64    { return s.st.barsPerChord }
func (s *Snapshot) BeatsPerBar() float64     { return s.st.beatsPerBar }
func (s *Snapshot) Temperament() Temperament { return s.st.temperament.clone() }

// PeriodSemitones is the pitch distance of one octave shift.
func (s *Snapshot) PeriodSemitones() float64 { return s.st.temperament.PeriodSemitones() }

func (s *Snapshot) Scale() []int { return append([]int(nil), s.st.scale...) }

func (s *Snapshot) Progression() []Numeral { return append([]Numeral(nil), s.st.progression...) }

// ProgressionText returns the numerals as written.
func (s *Snapshot) ProgressionText() []string {
	out := make([]string, len(s.st.progression))
	for i, n := range s.st.progression {
		out[i] = n.Text
	}
	return out
}

// ChordAt returns the progression entry active at beat.
func (s *Snapshot) ChordAt(beat float64) (Numeral, bool) {
	prog := s.st.progression
	if len(prog) == 0 {
		return Numeral{}, false
	}
	span := s.st.barsPerChord * s.st.beatsPerBar
	idx := int(math.Floor(beat / span))
	return prog[floorMod(idx, len(prog))], true
}

func (s *Snapshot) scaleLen() int {
	if s.st.scale != nil {
		return len(s.st.scale)
	}
	return s.st.temperament.Len()
}

// keyCents is the offset of a key degree above the root in cents.
func (s *Snapshot) keyCents(degree int) float64 {
	t := s.st.temperament
	n := s.scaleLen()
	idx := floorMod(degree, n)
	oct := floorDiv(degree, n)
	if s.st.scale != nil {
		idx = s.st.scale[idx]
	}
	return t.Cents[idx] + float64(oct)*t.Period
}

// Resolve turns a degree into a fractional MIDI pitch. With a progression
// the degree is read relative to the chord active at beat.
func (s *Snapshot) Resolve(degree int, beat float64) (float64, error) {
	if s.scaleLen() == 0 {
		return 0, &ResolutionError{Degree: degree, Msg: "empty scale"}
	}
	cents := s.keyCents(degree)
	if chord, ok := s.ChordAt(beat); ok {
		if !chord.Valid {
			return 0, &ResolutionError{Degree: degree, Msg: fmt.Sprintf("invalid numeral %q", chord.Text)}
		}
		cents = s.chordCents(chord, degree)
	}
	pitch := float64(s.RootNote()) + cents/100
	if math.IsNaN(pitch) || math.IsInf(pitch, 0) {
		return 0, &ResolutionError{Degree: degree, Msg: "non-finite pitch"}
	}
	if pitch < 0 || pitch > 127 {
		return 0, &ResolutionError{Degree: degree, Msg: fmt.Sprintf("pitch %.2f out of range", pitch)}
	}
	return pitch, nil
}

func (s *Snapshot) chordCents(chord Numeral, d int) float64 {
	cents := s.keyCents(chord.Degree + d)
	if !s.st.temperament.IsTwelveTone() || s.scaleLen() != 7 {
		return cents
	}
	cents += float64(chord.Shift) * 100
	third, fifth, seventh := chord.intervals()
	var want float64
	switch floorMod(d, 7) {
	case 0:
		return cents
	case 2:
		want = third
	case 4:
		want = fifth
	case 6:
		if seventh == 0 {
			return cents
		}
		want = seventh
	default:
		return cents
	}
	rootCents := s.keyCents(chord.Degree) + float64(chord.Shift)*100
	actual := (cents - rootCents) / 100
	actual -= 12 * float64(floorDiv(d, 7))
	return cents + (want-math.Round(actual))*100
}
