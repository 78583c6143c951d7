package effects

// Reverb is a Schroeder reverb: four parallel combs into two allpasses.
type Reverb struct {
	combs   [4]line
	allpass [2]line
	mix     float32
}

type line struct {
	buf []float32
	pos int
	fb  float32
}

func (ln *line) step(in float32) float32 {
	out := ln.buf[ln.pos]
	ln.buf[ln.pos] = in + out*ln.fb
	if ln.pos++; ln.pos == len(ln.buf) {
		ln.pos = 0
	}
	return out
}

func (ln *line) comb(in float32) float32 { return ln.step(in) }

func (ln *line) pass(in float32) float32 { return ln.step(in) - in }

func (ln *line) reset() {
	clear(ln.buf)
	ln.pos = 0
}

// NewReverb takes room size, feedback (decay) and mix, each 0..1.
func NewReverb(sampleRate int, size, feedback, mix float32) *Reverb {
	base := int(float32(sampleRate) * clamp(size, 0, 1) * 0.05)
	if base < 10 {
		base = 10
	}
	fb := clamp(feedback, 0, 0.95)
	r := &Reverb{mix: clamp(mix, 0, 1)}
	// mutually prime-ish lengths keep the combs from ringing together
	for i, ratio := range [4]int{1000, 1117, 1271, 1437} {
		r.combs[i] = line{buf: make([]float32, base*ratio/1000), fb: fb}
	}
	for i, ratio := range [2]int{347, 213} {
		r.allpass[i] = line{buf: make([]float32, max(base*ratio/1000, 1)), fb: 0.5}
	}
	return r
}

func (r *Reverb) Process(l, rt float32) (float32, float32) {
	in := (l + rt) * 0.5
	var wet float32
	for i := range r.combs {
		wet += r.combs[i].comb(in)
	}
	wet *= 0.25
	for i := range r.allpass {
		wet = r.allpass[i].pass(wet)
	}
	return l*(1-r.mix) + wet*r.mix, rt*(1-r.mix) + wet*r.mix
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		r.combs[i].reset()
	}
	for i := range r.allpass {
		r.allpass[i].reset()
	}
}
