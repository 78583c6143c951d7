package theory

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseSubdivision converts a musical time unit to beats (quarter notes).
// Accepted forms: "8n" (eighth), "4n." (dotted quarter), "8t" (eighth
// triplet), "1m" (a 4/4 bar) and plain numbers such as "0.25".
func ParseSubdivision(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("theory: empty subdivision")
	}
	dotted := strings.HasSuffix(s, ".")
	if dotted {
		s = strings.TrimSuffix(s, ".")
		if s == "" {
			return 0, errors.New("theory: empty subdivision")
		}
	}
	unit := s[len(s)-1]
	var beats float64
	switch unit {
	case 'n', 't', 'm':
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n <= 0 {
			return 0, errors.Errorf("theory: bad subdivision %q", s)
		}
		switch unit {
		case 'n':
			beats = 4 / float64(n)
		case 't':
			beats = 4 / float64(n) * 2 / 3
		case 'm':
			beats = 4 * float64(n)
		}
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || !(v > 0) || math.IsInf(v, 0) {
			return 0, errors.Errorf("theory: bad subdivision %q", s)
		}
		beats = v
	}
	if dotted {
		beats *= 1.5
	}
	return beats, nil
}
