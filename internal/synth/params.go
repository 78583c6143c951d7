package synth

import (
	"sort"

	"github.com/pkg/errors"
)

type Params struct {
	Operators   int     // 1-4
	Algorithm   int     // operator topology, 0-5
	Feedback    float64 // self-feedback of the last modulator, 0-1
	Waveform    int     // carrier waveform, see Wave constants
	CarrierMul  float64
	ModMul      float64
	ModIndex    float64
	AttackSec   float64
	DecaySec    float64
	SustainLvl  float64
	ReleaseSec  float64
	MasterGain  float64
	VelocityAmp float64
	LPFCutoff   float64 // lowpass cutoff in Hz, 0 disables
	VibratoRate float64 // Hz, used by ornaments
}

func DefaultParams() Params {
	return Params{
		Operators:   2,
		CarrierMul:  1.0,
		ModMul:      2.0,
		ModIndex:    1.6,
		AttackSec:   0.005,
		DecaySec:    0.12,
		SustainLvl:  0.75,
		ReleaseSec:  0.2,
		MasterGain:  0.45,
		VelocityAmp: 0.8,
		LPFCutoff:   12000,
		VibratoRate: 5.5,
	}
}

// Descriptor describes one settable parameter. Hosts list descriptors to
// build forms and apply values by name instead of calling dedicated setters.
type Descriptor struct {
	Name    string
	Min     float64
	Max     float64
	Integer bool
	get     func(p *Params) float64
	set     func(p *Params, v float64)
}

var descriptors = []Descriptor{
	{Name: "operators", Min: 1, Max: 4, Integer: true,
		get: func(p *Params) float64 { return float64(p.Operators) },
		set: func(p *Params, v float64) { p.Operators = int(v) }},
	{Name: "algorithm", Min: 0, Max: 5, Integer: true,
		get: func(p *Params) float64 { return float64(p.Algorithm) },
		set: func(p *Params, v float64) { p.Algorithm = int(v) }},
	{Name: "feedback", Min: 0, Max: 1,
		get: func(p *Params) float64 { return p.Feedback },
		set: func(p *Params, v float64) { p.Feedback = v }},
	{Name: "waveform", Min: 0, Max: WaveNoise, Integer: true,
		get: func(p *Params) float64 { return float64(p.Waveform) },
		set: func(p *Params, v float64) { p.Waveform = int(v) }},
	{Name: "carrier_mul", Min: 0.125, Max: 16,
		get: func(p *Params) float64 { return p.CarrierMul },
		set: func(p *Params, v float64) { p.CarrierMul = v }},
	{Name: "mod_mul", Min: 0.125, Max: 16,
		get: func(p *Params) float64 { return p.ModMul },
		set: func(p *Params, v float64) { p.ModMul = v }},
	{Name: "mod_index", Min: 0, Max: 16,
		get: func(p *Params) float64 { return p.ModIndex },
		set: func(p *Params, v float64) { p.ModIndex = v }},
	{Name: "attack", Min: 0.001, Max: 8,
		get: func(p *Params) float64 { return p.AttackSec },
		set: func(p *Params, v float64) { p.AttackSec = v }},
	{Name: "decay", Min: 0.001, Max: 8,
		get: func(p *Params) float64 { return p.DecaySec },
		set: func(p *Params, v float64) { p.DecaySec = v }},
	{Name: "sustain", Min: 0, Max: 1,
		get: func(p *Params) float64 { return p.SustainLvl },
		set: func(p *Params, v float64) { p.SustainLvl = v }},
	{Name: "release", Min: 0.001, Max: 8,
		get: func(p *Params) float64 { return p.ReleaseSec },
		set: func(p *Params, v float64) { p.ReleaseSec = v }},
	{Name: "gain", Min: 0, Max: 2,
		get: func(p *Params) float64 { return p.MasterGain },
		set: func(p *Params, v float64) { p.MasterGain = v }},
	{Name: "velocity_amp", Min: 0, Max: 1,
		get: func(p *Params) float64 { return p.VelocityAmp },
		set: func(p *Params, v float64) { p.VelocityAmp = v }},
	{Name: "cutoff", Min: 0, Max: 24000,
		get: func(p *Params) float64 { return p.LPFCutoff },
		set: func(p *Params, v float64) { p.LPFCutoff = v }},
	{Name: "vibrato_rate", Min: 0, Max: 20,
		get: func(p *Params) float64 { return p.VibratoRate },
		set: func(p *Params, v float64) { p.VibratoRate = v }},
}

// Descriptors returns the settable parameters sorted by name.
func Descriptors() []Descriptor {
	out := append([]Descriptor(nil), descriptors...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lookup(name string) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Set applies a named value, rejecting unknown names and values outside the
// descriptor's range.
func (p *Params) Set(name string, v float64) error {
	d, ok := lookup(name)
	if !ok {
		return errors.Errorf("synth: unknown parameter %q", name)
	}
	if v < d.Min || v > d.Max || v != v {
		return errors.Errorf("synth: %s=%v outside %v..%v", name, v, d.Min, d.Max)
	}
	d.set(p, v)
	return nil
}

// Get reads a named value.
func (p *Params) Get(name string) (float64, bool) {
	d, ok := lookup(name)
	if !ok {
		return 0, false
	}
	return d.get(p), true
}

// Values returns every parameter keyed by name.
func (p *Params) Values() map[string]float64 {
	out := make(map[string]float64, len(descriptors))
	for _, d := range descriptors {
		out[d.Name] = d.get(p)
	}
	return out
}
