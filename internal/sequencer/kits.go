package sequencer

import "strings"

// Drum slots shared by every kit.
const (
	SlotKick = iota
	SlotSnare
	SlotClosedHat
	SlotOpenHat
	SlotLowTom
	SlotMidTom
	SlotHighTom
	SlotCrash
	SlotRide
	SlotClap
	SlotRimshot
	SlotCowbell
	SlotClave
	SlotMaracas
	SlotLowConga
	SlotHighConga
)

// DrumKit maps 16 drum slots to MIDI notes.
type DrumKit struct {
	Name  string
	Notes [16]uint8
}

var Kits = map[string]DrumKit{
	"gm": {
		Name:  "General MIDI",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"rd8": {
		Name:  "Behringer RD-8",
		Notes: [16]uint8{36, 40, 42, 46, 45, 48, 50, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"tr8s": {
		Name:  "Roland TR-8S",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 62, 63},
	},
	"er1": {
		Name:  "Korg ER-1",
		Notes: [16]uint8{36, 38, 42, 46, 40, 41, 43, 49, 45, 39, 37, 56, 75, 70, 64, 63},
	},
}

const DefaultKit = "gm"

// KitNames returns the available kit names.
func KitNames() []string {
	return []string{"gm", "rd8", "tr8s", "er1"}
}

// GetKit returns a kit by name, defaulting to GM if not found.
func GetKit(name string) DrumKit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits[DefaultKit]
}

// Percussion letters used in patterns.
var drumSymbols = map[string]int{
	"*": SlotKick, "k": SlotKick, "bd": SlotKick, "kick": SlotKick,
	"o": SlotSnare, "s": SlotSnare, "sd": SlotSnare, "snare": SlotSnare,
	"x": SlotClosedHat, "h": SlotClosedHat, "hh": SlotClosedHat, "ch": SlotClosedHat,
	"^": SlotOpenHat, "oh": SlotOpenHat,
	"lt": SlotLowTom, "mt": SlotMidTom, "ht": SlotHighTom, "t": SlotMidTom,
	"c": SlotCrash, "cr": SlotCrash,
	"r": SlotRide, "rd": SlotRide,
	"p": SlotClap, "cp": SlotClap,
	"rs": SlotRimshot, "cb": SlotCowbell, "cl": SlotClave, "ma": SlotMaracas,
	"lc": SlotLowConga, "hc": SlotHighConga,
}

// Note maps a percussion symbol to the kit's MIDI note.
func (k DrumKit) Note(symbol string) (int, bool) {
	slot, ok := drumSymbols[strings.ToLower(symbol)]
	if !ok {
		return 0, false
	}
	return int(k.Notes[slot]), true
}
