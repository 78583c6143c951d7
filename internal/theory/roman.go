package theory

import (
	"strings"

	"github.com/pkg/errors"
)

type Quality int

const (
	Major Quality = iota
	Minor
	Diminished
	Augmented
)

func (q Quality) String() string {
	switch q {
	case Minor:
		return "minor"
	case Diminished:
		return "diminished"
	case Augmented:
		return "augmented"
	}
	return "major"
}

type Seventh int

const (
	NoSeventh Seventh = iota
	DominantSeventh
	MajorSeventh
	MinorSeventh
	HalfDiminishedSeventh
	DiminishedSeventh
)

// Numeral is one parsed roman-numeral chord symbol. Invalid entries keep
// their text so a progression can be reported back unchanged.
type Numeral struct {
	Text    string
	Degree  int // 0 for I .. 6 for VII
	Shift   int // semitones from b/# prefixes
	Quality Quality
	Seventh Seventh
	Valid   bool
}

var romanDegrees = []struct {
	text   string
	degree int
}{
	{"vii", 6}, {"vi", 5}, {"iv", 3}, {"v", 4}, {"iii", 2}, {"ii", 1}, {"i", 0},
}

// ParseNumeral reads symbols such as I, bIII, iv, V7, viiø, #iv°7, IVmaj7 or III+.
func ParseNumeral(text string) (Numeral, error) {
	n := Numeral{Text: text}
	s := strings.TrimSpace(text)
	for len(s) > 0 && (s[0] == 'b' || s[0] == '#') {
		if s[0] == 'b' {
			n.Shift--
		} else {
			n.Shift++
		}
		s = s[1:]
	}
	found := false
	for _, r := range romanDegrees {
		if len(s) < len(r.text) {
			continue
		}
		head := s[:len(r.text)]
		switch head {
		case r.text:
			n.Quality = Minor
		case strings.ToUpper(r.text):
			n.Quality = Major
		default:
			continue
		}
		n.Degree = r.degree
		s = s[len(r.text):]
		found = true
		break
	}
	if !found {
		return n, errors.Errorf("theory: bad numeral %q", text)
	}
	switch {
	case s == "":
	case s == "7":
		if n.Quality == Minor {
			n.Seventh = MinorSeventh
		} else {
			n.Seventh = DominantSeventh
		}
	case s == "maj7" || s == "M7":
		n.Seventh = MajorSeventh
	case s == "°" || s == "o" || s == "dim":
		n.Quality = Diminished
	case s == "°7" || s == "o7" || s == "dim7":
		n.Quality = Diminished
		n.Seventh = DiminishedSeventh
	case s == "ø" || s == "ø7" || s == "m7b5":
		n.Quality = Diminished
		n.Seventh = HalfDiminishedSeventh
	case s == "+" || s == "aug":
		n.Quality = Augmented
	case s == "+7" || s == "aug7":
		n.Quality = Augmented
		n.Seventh = DominantSeventh
	default:
		return n, errors.Errorf("theory: bad numeral suffix %q in %q", s, text)
	}
	n.Valid = true
	return n, nil
}

// intervals returns the semitones of the third, fifth and seventh above the
// chord root. A zero seventh means the scale's own seventh is kept.
func (n Numeral) intervals() (third, fifth, seventh float64) {
	switch n.Quality {
	case Minor:
		third, fifth = 3, 7
	case Diminished:
		third, fifth = 3, 6
	case Augmented:
		third, fifth = 4, 8
	default:
		third, fifth = 4, 7
	}
	switch n.Seventh {
	case DominantSeventh, MinorSeventh, HalfDiminishedSeventh:
		seventh = 10
	case MajorSeventh:
		seventh = 11
	case DiminishedSeventh:
		seventh = 9
	}
	return third, fifth, seventh
}

// ParseProgression parses every entry. Invalid entries are kept with
// Valid=false and the first error is returned.
func ParseProgression(texts []string) ([]Numeral, error) {
	out := make([]Numeral, len(texts))
	var first error
	for i, t := range texts {
		n, err := ParseNumeral(t)
		if err != nil && first == nil {
			first = errors.Wrapf(err, "progression entry %d", i)
		}
		out[i] = n
	}
	return out, first
}
