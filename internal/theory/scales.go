package theory

import (
	"sort"
	"strconv"
	"strings"
)

// Scale intervals for 12-entry tables, as indices from the root.
var scales = map[string][]int{
	"chromatic":        {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	"major":            {0, 2, 4, 5, 7, 9, 11},
	"minor":            {0, 2, 3, 5, 7, 8, 10},
	"dorian":           {0, 2, 3, 5, 7, 9, 10},
	"phrygian":         {0, 1, 3, 5, 7, 8, 10},
	"lydian":           {0, 2, 4, 6, 7, 9, 11},
	"mixolydian":       {0, 2, 4, 5, 7, 9, 10},
	"locrian":          {0, 1, 3, 5, 6, 8, 10},
	"harmonic-minor":   {0, 2, 3, 5, 7, 8, 11},
	"melodic-minor":    {0, 2, 3, 5, 7, 9, 11},
	"pentatonic":       {0, 2, 4, 7, 9},
	"minor-pentatonic": {0, 3, 5, 7, 10},
	"blues":            {0, 3, 5, 6, 7, 10},
	"whole-tone":       {0, 2, 4, 6, 8, 10},
	"hungarian-minor":  {0, 2, 3, 6, 7, 8, 11},
	"double-harmonic":  {0, 1, 4, 5, 7, 8, 11},
	"hirajoshi":        {0, 2, 3, 7, 8},
	"in-sen":           {0, 1, 5, 7, 10},
}

var scaleAliases = map[string]string{
	"ionian":  "major",
	"aeolian": "minor",
	"maj":     "major",
	"min":     "minor",
}

// LookupScale returns a copy of a named scale.
func LookupScale(name string) ([]int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := scaleAliases[key]; ok {
		key = alias
	}
	s, ok := scales[key]
	if !ok {
		return nil, false
	}
	return append([]int(nil), s...), true
}

func ScaleNames() []string {
	names := make([]string, 0, len(scales))
	for n := range scales {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var pitchClasses = map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParsePitchClass reads a key name such as "C", "eb" or "F#".
func ParsePitchClass(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	pc, ok := pitchClasses[lowerByte(name[0])]
	if !ok {
		return 0, false
	}
	for i := 1; i < len(name); i++ {
		switch name[i] {
		case '#':
			pc++
		case 'b':
			pc--
		default:
			return 0, false
		}
	}
	return ((pc % 12) + 12) % 12, true
}

func PitchClassName(pc int) string { return sharpNames[((pc%12)+12)%12] }

// NoteName formats a MIDI pitch in scientific notation with C4 = 60.
func NoteName(pitch int) string {
	return PitchClassName(pitch) + strconv.Itoa(floorDiv(pitch, 12)-1)
}

func lowerByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return ((a % b) + b) % b
}
