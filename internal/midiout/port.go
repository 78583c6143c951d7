// Package midiout drives external MIDI gear and Standard MIDI Files from
// the voice pool, as an alternative or companion to the built-in synth.
package midiout

import (
	"log/slog"
	"math"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/stepseq/internal/voice"
)

// Sender writes one message. midi.SendTo returns one for a live port.
type Sender func(msg midi.Message) error

// Port sends voice commands as note messages on one channel. Fractional
// pitches are rounded; the pool's voice index maps to the sounding key so
// the matching note off can be sent.
type Port struct {
	mu      sync.Mutex
	send    Sender
	channel uint8
	keys    map[int]uint8
	log     *slog.Logger
}

var _ voice.Synth = (*Port)(nil)

func NewPort(send Sender, channel uint8, log *slog.Logger) *Port {
	if log == nil {
		log = slog.Default()
	}
	return &Port{send: send, channel: channel & 0x0F, keys: map[int]uint8{}, log: log}
}

// Open connects to the first output port whose name contains name. The
// returned close func releases the port.
func Open(name string, channel uint8, log *slog.Logger) (*Port, func() error, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "midiout: no output port matching %q", name)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "midiout: open %q", out.String())
	}
	p := NewPort(send, channel, log)
	return p, func() error {
		p.Panic()
		return out.Close()
	}, nil
}

// OutPorts lists the names of available output ports.
func OutPorts() []string {
	var names []string
	for _, p := range midi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

func (p *Port) TriggerAttack(v int, pitch, velocity float64, at int64) {
	key, ok := toKey(pitch)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.keys[v]; ok {
		p.write(midi.NoteOff(p.channel, old))
	}
	p.keys[v] = key
	p.write(midi.NoteOn(p.channel, key, toVelocity(velocity)))
}

func (p *Port) TriggerRelease(v int, at int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.keys[v]
	if !ok {
		return
	}
	delete(p.keys, v)
	p.write(midi.NoteOff(p.channel, key))
}

// Connect is a no-op: audio for a MIDI port is produced by the receiver.
func (p *Port) Connect(voice.Destination) error { return nil }

// Panic turns off every note this port started.
func (p *Port) Panic() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for v, key := range p.keys {
		p.write(midi.NoteOff(p.channel, key))
		delete(p.keys, v)
	}
}

func (p *Port) write(msg midi.Message) {
	if p.send == nil {
		return
	}
	if err := p.send(msg); err != nil {
		p.log.Warn("midi send failed", "msg", msg.String(), "err", err)
	}
}

func toKey(pitch float64) (uint8, bool) {
	k := math.Round(pitch)
	if k < 0 || k > 127 || math.IsNaN(k) {
		return 0, false
	}
	return uint8(k), true
}

func toVelocity(v float64) uint8 {
	switch {
	case v <= 0:
		return 1
	case v >= 127:
		return 127
	}
	return uint8(math.Round(v))
}
