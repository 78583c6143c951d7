package lfo

import "math"

const (
	WaveSine = iota
	WaveTriangle
	WaveSquare
	WaveSaw
	WaveRandom
)

// LFO is a per-voice low-frequency oscillator. Depth is in semitones, so
// the output feeds pitch directly as a frequency ratio.
type LFO struct {
	depth    float64
	rateHz   float64
	waveform int
	phase    float64 // [0, 1)
	held     float64 // sample-and-hold value for WaveRandom
	seed     uint32
}

func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < WaveSine || waveform > WaveRandom {
		waveform = WaveSine
	}
	l.waveform = waveform
}

func (l *LFO) Depth() float64 { return l.depth }

func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

// Sample advances one sample and returns a value in [-depth, depth].
func (l *LFO) Sample(sampleRate float64) float64 {
	if !l.Active() || sampleRate <= 0 {
		return 0
	}
	var v float64
	switch l.waveform {
	case WaveTriangle:
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	case WaveSquare:
		v = 1
		if l.phase >= 0.5 {
			v = -1
		}
	case WaveSaw:
		v = 1 - 2*l.phase
	case WaveRandom:
		v = l.held
	default:
		v = math.Sin(2 * math.Pi * l.phase)
	}
	prev := l.phase
	l.phase += l.rateHz / sampleRate
	l.phase -= math.Floor(l.phase)
	if l.waveform == WaveRandom && l.phase < prev {
		l.held = l.next()
	}
	return v * l.depth
}

// Ratio advances one sample and returns the frequency multiplier for the
// current pitch offset.
func (l *LFO) Ratio(sampleRate float64) float64 {
	semis := l.Sample(sampleRate)
	if semis == 0 {
		return 1
	}
	return math.Exp2(semis / 12)
}

// next is a xorshift step mapped to [-1, 1).
func (l *LFO) next() float64 {
	if l.seed == 0 {
		l.seed = 0x9E3779B9
	}
	l.seed ^= l.seed << 13
	l.seed ^= l.seed >> 17
	l.seed ^= l.seed << 5
	return float64(l.seed)/float64(1<<31) - 1
}

func (l *LFO) Reset() {
	l.phase = 0
	l.held = 0
}
