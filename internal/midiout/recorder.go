package midiout

import (
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/stepseq/internal/voice"
)

const TicksPerQuarter = 480

type recorded struct {
	at  int64
	seq int
	msg midi.Message
}

// Recorder captures voice commands with their sample times and writes them
// as a single-track Standard MIDI File.
type Recorder struct {
	mu      sync.Mutex
	channel uint8
	keys    map[int]uint8
	events  []recorded
}

var _ voice.Synth = (*Recorder)(nil)

func NewRecorder(channel uint8) *Recorder {
	return &Recorder{channel: channel & 0x0F, keys: map[int]uint8{}}
}

func (r *Recorder) add(at int64, msg midi.Message) {
	r.events = append(r.events, recorded{at: at, seq: len(r.events), msg: msg})
}

func (r *Recorder) TriggerAttack(v int, pitch, velocity float64, at int64) {
	key, ok := toKey(pitch)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.keys[v]; ok {
		r.add(at, midi.NoteOff(r.channel, old))
	}
	r.keys[v] = key
	r.add(at, midi.NoteOn(r.channel, key, toVelocity(velocity)))
}

func (r *Recorder) TriggerRelease(v int, at int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[v]
	if !ok {
		return
	}
	delete(r.keys, v)
	r.add(at, midi.NoteOff(r.channel, key))
}

func (r *Recorder) Connect(voice.Destination) error { return nil }

// Len returns the number of captured messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WriteSMF writes everything captured so far. Sample times are converted to
// ticks at the given sample rate and tempo; notes still held are closed at
// end.
func (r *Recorder) WriteSMF(w io.Writer, sampleRate int, tempo float64, end int64) error {
	if sampleRate <= 0 || tempo <= 0 {
		return errors.Errorf("midiout: bad sample rate %d or tempo %v", sampleRate, tempo)
	}
	r.mu.Lock()
	events := append([]recorded(nil), r.events...)
	for _, key := range r.keys {
		events = append(events, recorded{at: end, seq: len(events), msg: midi.NoteOff(r.channel, key)})
	}
	r.mu.Unlock()
	sort.Slice(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].seq < events[j].seq
	})

	ticksPerSample := tempo / 60 * TicksPerQuarter / float64(sampleRate)
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("stepseq"))
	tr.Add(0, smf.MetaTempo(tempo))
	var last uint32
	for _, ev := range events {
		tick := uint32(float64(ev.at)*ticksPerSample + 0.5)
		if tick < last {
			tick = last
		}
		tr.Add(tick-last, ev.msg)
		last = tick
	}
	endTick := uint32(float64(end)*ticksPerSample + 0.5)
	if endTick < last {
		endTick = last
	}
	tr.Close(endTick - last)
	if err := s.Add(tr); err != nil {
		return errors.Wrap(err, "midiout: add track")
	}
	if _, err := s.WriteTo(w); err != nil {
		return errors.Wrap(err, "midiout: write smf")
	}
	return nil
}
