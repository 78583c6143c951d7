package theory

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// Temperament is an ordered interval table in cents above the root, repeated
// every Period cents. It need not have 12 entries.
type Temperament struct {
	Name   string
	Cents  []float64
	Period float64
}

func (t Temperament) Len() int { return len(t.Cents) }

// IsTwelveTone reports whether the table can host the named 12-tone scales
// and roman-numeral chord qualities.
func (t Temperament) IsTwelveTone() bool {
	return len(t.Cents) == 12 && math.Abs(t.Period-1200) < 1e-9
}

// PeriodSemitones is the period expressed in equal-tempered semitones.
func (t Temperament) PeriodSemitones() float64 { return t.Period / 100 }

func (t Temperament) clone() Temperament {
	t.Cents = append([]float64(nil), t.Cents...)
	return t
}

// Equal divides the octave into n equal steps.
func Equal(n int) Temperament {
	if n <= 0 {
		n = 12
	}
	cents := make([]float64, n)
	for i := range cents {
		cents[i] = 1200 * float64(i) / float64(n)
	}
	name := "equal"
	if n != 12 {
		name = "equal-" + strconv.Itoa(n)
	}
	return Temperament{Name: name, Cents: cents, Period: 1200}
}

// FromCents builds a table from cent offsets. period <= 0 means 1200.
func FromCents(cents []float64, period float64) (Temperament, error) {
	if len(cents) == 0 {
		return Temperament{}, errors.New("theory: empty temperament")
	}
	if period <= 0 {
		period = 1200
	}
	if math.IsNaN(period) || math.IsInf(period, 0) {
		return Temperament{}, errors.Errorf("theory: bad period %v", period)
	}
	out := make([]float64, len(cents))
	for i, c := range cents {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Temperament{}, errors.Errorf("theory: entry %d is not finite", i)
		}
		out[i] = c
	}
	return Temperament{Name: "cents", Cents: out, Period: period}, nil
}

// FromRatios builds a table from frequency ratios such as 1, 9/8, 5/4. The
// period is a ratio as well; period <= 0 means the octave (2).
func FromRatios(ratios []float64, period float64) (Temperament, error) {
	if period <= 0 {
		period = 2
	}
	if period <= 1 || math.IsInf(period, 0) || math.IsNaN(period) {
		return Temperament{}, errors.Errorf("theory: bad period ratio %v", period)
	}
	cents := make([]float64, len(ratios))
	for i, r := range ratios {
		if !(r > 0) || math.IsInf(r, 0) {
			return Temperament{}, errors.Errorf("theory: ratio %d must be positive, got %v", i, r)
		}
		cents[i] = ratioToCents(r)
	}
	t, err := FromCents(cents, ratioToCents(period))
	if err != nil {
		return Temperament{}, err
	}
	t.Name = "ratios"
	return t, nil
}

func ratioToCents(r float64) float64 { return 1200 * math.Log2(r) }

// Just returns 5-limit just intonation.
func Just() Temperament {
	t, _ := FromRatios([]float64{
		1, 16.0 / 15, 9.0 / 8, 6.0 / 5, 5.0 / 4, 4.0 / 3,
		45.0 / 32, 3.0 / 2, 8.0 / 5, 5.0 / 3, 9.0 / 5, 15.0 / 8,
	}, 2)
	t.Name = "just"
	return t
}

// Pythagorean returns the 12-note chain of pure fifths.
func Pythagorean() Temperament {
	t, _ := FromRatios([]float64{
		1, 256.0 / 243, 9.0 / 8, 32.0 / 27, 81.0 / 64, 4.0 / 3,
		729.0 / 512, 3.0 / 2, 128.0 / 81, 27.0 / 16, 16.0 / 9, 243.0 / 128,
	}, 2)
	t.Name = "pythagorean"
	return t
}

// Named returns a built-in temperament by name.
func Named(name string) (Temperament, bool) {
	switch name {
	case "", "equal", "12tet", "12-tet":
		return Equal(12), true
	case "just":
		return Just(), true
	case "pythagorean":
		return Pythagorean(), true
	}
	return Temperament{}, false
}
