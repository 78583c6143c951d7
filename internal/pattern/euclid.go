package pattern

// Euclid spreads hits as evenly as possible across steps slots and rotates
// the result left by rotation. Slot i is a hit when (i*hits) mod steps < hits,
// which always places a hit on slot 0 before rotation.
func Euclid(hits, steps, rotation int) []bool {
	if steps <= 0 {
		return nil
	}
	if hits < 0 {
		hits = 0
	}
	if hits > steps {
		hits = steps
	}
	base := make([]bool, steps)
	for i := range base {
		base[i] = (i*hits)%steps < hits
	}
	rot := ((rotation % steps) + steps) % steps
	out := make([]bool, steps)
	for i := range out {
		out[i] = base[(i+rot)%steps]
	}
	return out
}

// EuclidSteps maps a Euclidean rhythm onto steps: hits become the value
// parsed from symbol and misses become rests.
func EuclidSteps(symbol string, hits, steps, rotation int) []Step {
	v := symbolValue(symbol)
	pat := Euclid(hits, steps, rotation)
	out := make([]Step, len(pat))
	for i, on := range pat {
		if on {
			out[i] = Note(v)
		} else {
			out[i] = Rest()
		}
	}
	return out
}

func symbolValue(symbol string) Value {
	if symbol == "" {
		return Value{Symbol: "*"}
	}
	sc := &scanner{src: symbol, cfg: DefaultParserConfig()}
	if !isDelim(symbol[0]) {
		if v, err := sc.value(); err == nil && sc.eof() {
			return v
		}
	}
	return Value{Symbol: symbol}
}
