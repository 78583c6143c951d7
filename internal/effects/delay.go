package effects

// Delay is a stereo feedback delay. Cross sends part of each channel's
// feedback to the other side for ping-pong repeats.
type Delay struct {
	bufL, bufR []float32
	pos        int
	feedback   float32
	cross      float32
	mix        float32
}

// NewDelay takes the delay time in seconds; feedback, cross and mix are 0..1.
func NewDelay(sampleRate int, seconds float64, feedback, cross, mix float32) *Delay {
	n := int(seconds * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return &Delay{
		bufL:     make([]float32, n),
		bufR:     make([]float32, n),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		mix:      clamp(mix, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	outL, outR := d.bufL[d.pos], d.bufR[d.pos]
	straight, across := d.feedback*(1-d.cross), d.feedback*d.cross
	d.bufL[d.pos] = l + outL*straight + outR*across
	d.bufR[d.pos] = r + outR*straight + outL*across
	if d.pos++; d.pos == len(d.bufL) {
		d.pos = 0
	}
	return l*(1-d.mix) + outL*d.mix, r*(1-d.mix) + outR*d.mix
}

func (d *Delay) Reset() {
	clear(d.bufL)
	clear(d.bufR)
	d.pos = 0
}
