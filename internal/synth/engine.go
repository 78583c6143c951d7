package synth

import (
	"math"
	"sync"

	"github.com/cbegin/stepseq/internal/lfo"
	"github.com/cbegin/stepseq/internal/voice"
)

const twoPi = math.Pi * 2

// Carrier waveforms.
const (
	WaveSine = iota
	WaveSaw
	WaveTriangle
	WaveSquare
	WavePulse25
	WavePulse12
	WaveHalfSine
	WaveNoise
)

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type operator struct {
	phase   float64
	env     float64
	state   envState
	mul     float64
	level   float64
	prevOut float64
}

type fmVoice struct {
	active   bool
	velocity float64
	freq     float64
	ops      [4]operator
	vibrato  lfo.LFO
}

type command struct {
	at       int64
	release  bool
	voice    int
	pitch    float64
	velocity float64
}

// Engine is a small FM synth addressed by voice index. Commands carry the
// sample time they take effect at; the engine keeps its own frame clock so
// a trigger dispatched ahead of time still starts on its sample.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	params     Params
	voices     []fmVoice
	pending    []command
	clock      int64
	dst        voice.Destination
	lpf        float64
	lpfAlpha   float64
	noise      uint32
}

var (
	_ voice.Synth      = (*Engine)(nil)
	_ voice.Ornamenter = (*Engine)(nil)
)

// New builds an engine with one FM voice per allocator slot.
func New(sampleRate, voices int, params Params) *Engine {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if voices <= 0 {
		voices = 16
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		voices:     make([]fmVoice, voices),
		noise:      0x7FFF,
	}
	e.setParams(params)
	return e
}

func (e *Engine) setParams(p Params) {
	if p.Operators < 1 || p.Operators > 4 {
		p.Operators = 2
	}
	e.params = p
	e.lpfAlpha = 0
	if p.LPFCutoff > 0 && p.LPFCutoff < e.sampleRate/2 {
		rc := 1.0 / (twoPi * p.LPFCutoff)
		dt := 1.0 / e.sampleRate
		e.lpfAlpha = dt / (rc + dt)
	}
}

func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetParams replaces every parameter. Sounding voices keep their envelope
// state and pick up the new values on the next frame.
func (e *Engine) SetParams(p Params) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setParams(p)
}

// Set applies one named parameter.
func (e *Engine) Set(name string, v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.params
	if err := p.Set(name, v); err != nil {
		return err
	}
	e.setParams(p)
	return nil
}

// Connect routes the engine output through dst. Passing nil disconnects.
func (e *Engine) Connect(dst voice.Destination) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := dst.(interface{ Reset() }); ok {
		d.Reset()
	}
	e.dst = dst
	return nil
}

func (e *Engine) TriggerAttack(v int, pitch, velocity float64, at int64) {
	e.schedule(command{at: at, voice: v, pitch: pitch, velocity: velocity})
}

func (e *Engine) TriggerRelease(v int, at int64) {
	e.schedule(command{at: at, release: true, voice: v})
}

func (e *Engine) schedule(c command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.voice < 0 || c.voice >= len(e.voices) {
		return
	}
	if c.at <= e.clock {
		e.apply(c)
		return
	}
	// keep pending sorted by time, stable for equal times
	i := len(e.pending)
	for i > 0 && e.pending[i-1].at > c.at {
		i--
	}
	e.pending = append(e.pending, command{})
	copy(e.pending[i+1:], e.pending[i:])
	e.pending[i] = c
}

// SetOrnament sets the vibrato depth in semitones of a sounding voice.
func (e *Engine) SetOrnament(v int, depth float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v < 0 || v >= len(e.voices) {
		return
	}
	e.voices[v].vibrato.Set(depth, e.params.VibratoRate, lfo.WaveSine)
}

func (e *Engine) apply(c command) {
	v := &e.voices[c.voice]
	if c.release {
		for oi := range v.ops {
			if v.ops[oi].state != envOff {
				v.ops[oi].state = envRelease
			}
		}
		return
	}
	p := e.params
	muls := [4]float64{p.CarrierMul, p.ModMul, 3, 4}
	*v = fmVoice{
		active:   true,
		velocity: clamp(c.velocity/127, 0, 1),
		freq:     pitchToFreq(c.pitch),
	}
	for oi := 0; oi < p.Operators; oi++ {
		v.ops[oi] = operator{state: envAttack, mul: muls[oi], level: 1}
		if oi > 0 {
			v.ops[oi].level = p.ModIndex / 8
		}
	}
}

// SetClock moves the frame clock to now, applying every command due by
// then. Hosts call it when the scheduler clock advanced without rendering.
func (e *Engine) SetClock(now int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.pending) > 0 && e.pending[0].at <= now {
		e.apply(e.pending[0])
		e.pending = e.pending[1:]
	}
	e.clock = now
}

// ActiveVoices counts voices whose envelope has not finished.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

// RenderFrame renders one stereo frame and advances the engine clock.
func (e *Engine) RenderFrame() (float32, float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.pending) > 0 && e.pending[0].at <= e.clock {
		e.apply(e.pending[0])
		e.pending = e.pending[1:]
	}
	e.clock++

	p := &e.params
	var sum float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		done := true
		for oi := 0; oi < p.Operators; oi++ {
			e.advanceEnv(&v.ops[oi])
			if v.ops[oi].state != envOff {
				done = false
			}
		}
		if done {
			v.active = false
			continue
		}
		s := e.renderVoice(v)
		sum += s * p.MasterGain * (0.2 + v.velocity*p.VelocityAmp)

		step := twoPi * v.freq * v.vibrato.Ratio(e.sampleRate) / e.sampleRate
		for oi := 0; oi < p.Operators; oi++ {
			op := &v.ops[oi]
			op.phase += step * op.mul
			if op.phase > twoPi {
				op.phase -= twoPi
			}
		}
	}
	if e.lpfAlpha > 0 {
		e.lpf += e.lpfAlpha * (sum - e.lpf)
		sum = e.lpf
	}
	l := float32(clamp(sum, -1, 1))
	r := l
	if e.dst != nil {
		l, r = e.dst.Process(l, r)
	}
	return l, r
}

// renderVoice mixes the operators of one voice according to the algorithm.
// Operator 0 is always a carrier; higher operators modulate lower ones.
func (e *Engine) renderVoice(v *fmVoice) float64 {
	p := &e.params
	ops := &v.ops
	var out [4]float64
	for oi := 0; oi < p.Operators; oi++ {
		out[oi] = ops[oi].env * ops[oi].level
	}
	wave := p.Waveform
	idx := p.ModIndex
	switch p.Operators {
	case 1:
		fb := ops[0].prevOut * p.Feedback * math.Pi
		s := e.wave(ops[0].phase+fb, wave) * out[0]
		ops[0].prevOut = s
		return s
	case 2:
		if p.Algorithm == 1 {
			s0 := e.wave(ops[0].phase, wave) * out[0]
			s1 := e.wave(ops[1].phase, wave) * out[1]
			return (s0 + s1) / math.Sqrt2
		}
		m := math.Sin(ops[1].phase+ops[1].prevOut*p.Feedback*math.Pi) * out[1]
		ops[1].prevOut = m
		return e.wave(ops[0].phase+m*idx, wave) * out[0]
	case 3:
		switch p.Algorithm {
		case 1:
			s2 := math.Sin(ops[2].phase) * out[2] * idx
			s1 := math.Sin(ops[1].phase) * out[1] * idx
			return e.wave(ops[0].phase+s1+s2, wave) * out[0]
		case 2:
			s0 := e.wave(ops[0].phase, wave) * out[0]
			s1 := e.wave(ops[1].phase, wave) * out[1]
			s2 := e.wave(ops[2].phase, wave) * out[2]
			return (s0 + s1 + s2) / math.Sqrt(3)
		}
		m := math.Sin(ops[2].phase+ops[2].prevOut*p.Feedback*math.Pi) * out[2]
		ops[2].prevOut = m
		s1 := math.Sin(ops[1].phase+m*idx) * out[1] * idx
		return e.wave(ops[0].phase+s1, wave) * out[0]
	default:
		switch p.Algorithm {
		case 1:
			s2 := math.Sin(ops[2].phase) * out[2] * idx
			s3 := math.Sin(ops[3].phase) * out[3] * idx
			s1 := math.Sin(ops[1].phase+s2+s3) * out[1] * idx
			return e.wave(ops[0].phase+s1, wave) * out[0]
		case 2:
			s2 := math.Sin(ops[2].phase) * out[2] * idx
			s3 := math.Sin(ops[3].phase) * out[3] * idx
			c0 := e.wave(ops[0].phase+s3, wave) * out[0]
			c1 := e.wave(ops[1].phase+s2, wave) * out[1]
			return (c0 + c1) / math.Sqrt2
		case 3:
			s3 := math.Sin(ops[3].phase) * out[3] * idx
			s2 := math.Sin(ops[2].phase+s3) * out[2] * idx
			s1 := math.Sin(ops[1].phase+s2) * out[1]
			s0 := e.wave(ops[0].phase, wave) * out[0]
			return (s0 + s1) / math.Sqrt2
		case 4, 5:
			s := 0.0
			for oi := 0; oi < 4; oi++ {
				s += e.wave(ops[oi].phase, wave) * out[oi]
			}
			return s * 0.5
		}
		m := math.Sin(ops[3].phase+ops[3].prevOut*p.Feedback*math.Pi) * out[3]
		ops[3].prevOut = m
		s2 := math.Sin(ops[2].phase+m*idx) * out[2] * idx
		s1 := math.Sin(ops[1].phase+s2) * out[1] * idx
		return e.wave(ops[0].phase+s1, wave) * out[0]
	}
}

func (e *Engine) advanceEnv(op *operator) {
	p := &e.params
	sr := e.sampleRate
	switch op.state {
	case envAttack:
		op.env += 1 / math.Max(p.AttackSec*sr, 1)
		if op.env >= 1 {
			op.env = 1
			op.state = envDecay
		}
	case envDecay:
		op.env -= (1 - p.SustainLvl) / math.Max(p.DecaySec*sr, 1)
		if op.env <= p.SustainLvl {
			op.env = p.SustainLvl
			op.state = envSustain
		}
	case envRelease:
		op.env -= math.Max(p.SustainLvl, 0.05) / math.Max(p.ReleaseSec*sr, 1)
		if op.env <= 0.0001 {
			op.env = 0
			op.state = envOff
		}
	case envOff:
		op.env = 0
	}
}

func (e *Engine) wave(phase float64, waveform int) float64 {
	frac := math.Mod(phase, twoPi)
	if frac < 0 {
		frac += twoPi
	}
	switch waveform {
	case WaveSaw:
		return 1 - 2*frac/twoPi
	case WaveTriangle:
		return 2*math.Abs(2*frac/twoPi-1) - 1
	case WaveSquare:
		if frac < math.Pi {
			return 1
		}
		return -1
	case WavePulse25:
		if frac < math.Pi/2 {
			return 1
		}
		return -1
	case WavePulse12:
		if frac < math.Pi/4 {
			return 1
		}
		return -1
	case WaveHalfSine:
		return math.Max(math.Sin(phase), 0)
	case WaveNoise:
		e.noise = (e.noise >> 1) ^ (-(e.noise & 1) & 0xB400)
		return float64(e.noise)/float64(0x7FFF)*2 - 1
	}
	return math.Sin(phase)
}

// pitchToFreq converts a fractional MIDI pitch to Hz.
func pitchToFreq(pitch float64) float64 {
	return 440 * math.Exp2((pitch-69)/12)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
