package pattern

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/cbegin/stepseq/internal/theory"
)

type Kind int

const (
	KindRest Kind = iota
	KindNote
	KindChord
	KindHold
	KindWildcard
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindRest:
		return "rest"
	case KindNote:
		return "note"
	case KindChord:
		return "chord"
	case KindHold:
		return "hold"
	case KindWildcard:
		return "wildcard"
	case KindGroup:
		return "group"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the content of one note. Num is a scale degree unless Abs is set,
// in which case it is a MIDI pitch taken from a note name. Symbol holds
// non-numeric tokens such as percussion letters.
type Value struct {
	Num    float64
	Abs    bool
	Symbol string
}

func (v Value) IsSymbol() bool { return v.Symbol != "" }

func (v Value) String() string {
	if v.Symbol != "" {
		return v.Symbol
	}
	if v.Abs {
		return theory.NoteName(int(v.Num))
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// Step is one slot of a pattern. Group children split the slot into
// len(Children) equal parts.
type Step struct {
	Kind     Kind
	Value    Value
	Chord    []Value
	Children []Step
}

func Rest() Step     { return Step{Kind: KindRest} }
func Hold() Step     { return Step{Kind: KindHold} }
func Wildcard() Step { return Step{Kind: KindWildcard} }

func Note(v Value) Step { return Step{Kind: KindNote, Value: v} }

func Degree(n int) Step { return Note(Value{Num: float64(n)}) }

func Chord(vals ...Value) Step { return Step{Kind: KindChord, Chord: vals} }

func Group(children ...Step) Step { return Step{Kind: KindGroup, Children: children} }

// IsOnset reports whether the step starts a new sound when it fires.
func (s Step) IsOnset() bool {
	return s.Kind == KindNote || s.Kind == KindChord || s.Kind == KindWildcard
}

// Values returns the note values carried by a note or chord step.
func (s Step) Values() []Value {
	switch s.Kind {
	case KindNote:
		return []Value{s.Value}
	case KindChord:
		return s.Chord
	}
	return nil
}

// Clone returns a deep copy so callers can hand steps across goroutines.
func (s Step) Clone() Step {
	out := s
	if s.Chord != nil {
		out.Chord = append([]Value(nil), s.Chord...)
	}
	if s.Children != nil {
		out.Children = CloneSteps(s.Children)
	}
	return out
}

func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}

// Values converts a number array into note steps.
func Values(nums []float64) []Step {
	out := make([]Step, len(nums))
	for i, n := range nums {
		out[i] = Note(Value{Num: n})
	}
	return out
}

// Onsets counts the onsets one full cycle of steps produces.
func Onsets(steps []Step) int {
	n := 0
	for _, s := range steps {
		switch s.Kind {
		case KindNote, KindWildcard:
			n++
		case KindChord:
			n += len(s.Chord)
		case KindGroup:
			n += Onsets(s.Children)
		}
	}
	return n
}

// Format renders steps back into pattern notation.
func Format(steps []Step) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 && s.Kind != KindHold {
			b.WriteByte(' ')
		}
		if i > 0 && s.Kind == KindHold && !holdable(steps[i-1]) {
			b.WriteByte(' ')
		}
		writeStep(&b, s)
	}
	return b.String()
}

func holdable(s Step) bool {
	return s.Kind != KindRest
}

func writeStep(b *strings.Builder, s Step) {
	switch s.Kind {
	case KindRest, KindHold:
		b.WriteByte('.')
	case KindWildcard:
		b.WriteByte('?')
	case KindNote:
		b.WriteString(s.Value.String())
	case KindChord:
		b.WriteByte('[')
		for i, v := range s.Chord {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(v.String())
		}
		b.WriteByte(']')
	case KindGroup:
		b.WriteByte('[')
		b.WriteString(Format(s.Children))
		b.WriteByte(']')
	}
}

// FillPolicy decides how '@N' stretches the preceding run.
type FillPolicy int

const (
	// FillRepeat cycles the run and truncates the last partial cycle.
	FillRepeat FillPolicy = iota
	// FillPad keeps the run once and pads it with rests.
	FillPad
)

// MaxLength bounds every generated or filled sequence.
const MaxLength = 4096

// CheckLength rejects sequence lengths outside [1, MaxLength].
func CheckLength(n int) error {
	if n <= 0 || n > MaxLength {
		return errors.Errorf("length %d outside 1..%d", n, MaxLength)
	}
	return nil
}

type ParserConfig struct {
	Fill     FillPolicy
	MaxDepth int
	MaxFill  int
}

func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		Fill:     FillRepeat,
		MaxDepth: 16,
		MaxFill:  MaxLength,
	}
}

// ParseError reports malformed notation. Pos is a byte offset into the input.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pattern: %s at %d", e.Msg, e.Pos)
}

// GeneratorError marks one index an expression generator could not produce.
type GeneratorError struct {
	Index int
	Err   error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generator: index %d: %v", e.Index, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }
