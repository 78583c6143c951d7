package pattern

import "strconv"

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// parseNoteName reads scientific pitch names such as C4, f#3, Bb-1 or ebb2.
// The octave is mandatory so bare letters stay available as symbols.
func parseNoteName(word string) (int, bool) {
	if len(word) < 2 {
		return 0, false
	}
	base, ok := noteOffsets[lower(word[0])]
	if !ok {
		return 0, false
	}
	i, shift := 1, 0
accidentals:
	for ; i < len(word); i++ {
		switch word[i] {
		case '#':
			shift++
		case 'b':
			shift--
		default:
			break accidentals
		}
	}
	if i >= len(word) {
		return 0, false
	}
	oct, err := strconv.Atoi(word[i:])
	if err != nil {
		return 0, false
	}
	return (oct+1)*12 + base + shift, true
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
