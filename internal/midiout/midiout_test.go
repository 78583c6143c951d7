package midiout

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/stepseq/internal/voice"
)

func TestPortSendsNotePairs(t *testing.T) {
	var sent []midi.Message
	p := NewPort(func(msg midi.Message) error {
		sent = append(sent, msg)
		return nil
	}, 9, nil)
	p.TriggerAttack(0, 36.4, 100, 0)
	p.TriggerRelease(0, 10)
	p.TriggerRelease(0, 20)
	if len(sent) != 2 {
		t.Fatalf("expected on and off, got %d messages", len(sent))
	}
	var ch, key, vel uint8
	if !sent[0].GetNoteOn(&ch, &key, &vel) || ch != 9 || key != 36 || vel != 100 {
		t.Fatalf("unexpected note on %s", sent[0])
	}
	if !sent[1].GetNoteOff(&ch, &key, &vel) || key != 36 {
		t.Fatalf("unexpected note off %s", sent[1])
	}
}

func TestPortStolenVoiceEndsOldKey(t *testing.T) {
	var sent []midi.Message
	p := NewPort(func(msg midi.Message) error {
		sent = append(sent, msg)
		return nil
	}, 0, nil)
	p.TriggerAttack(0, 60, 90, 0)
	p.TriggerAttack(0, 64, 90, 5)
	p.Panic()
	var ch, key, vel uint8
	if len(sent) != 4 || !sent[1].GetNoteOff(&ch, &key, &vel) || key != 60 {
		t.Fatalf("expected old key released before new attack, got %v", sent)
	}
	if !sent[3].GetNoteOff(&ch, &key, &vel) || key != 64 {
		t.Fatalf("panic should release the held key, got %v", sent)
	}
}

func TestPortIgnoresOutOfRangePitch(t *testing.T) {
	n := 0
	p := NewPort(func(midi.Message) error { n++; return nil }, 0, nil)
	p.TriggerAttack(0, 128, 100, 0)
	p.TriggerAttack(1, -1, 100, 0)
	if n != 0 {
		t.Fatalf("out of range pitches should not be sent")
	}
}

func TestRecorderWritesSMF(t *testing.T) {
	rec := NewRecorder(0)
	a := voice.NewAllocator(4, rec, nil)
	// 48 kHz at 120 bpm: 24000 samples per quarter note
	a.Trigger(0, []float64{60, 64}, 100, 12000, 0)
	a.Advance(12000)
	a.Trigger(0, []float64{67}, 80, 24000, 24000)

	var buf bytes.Buffer
	if err := rec.WriteSMF(&buf, 48000, 120, 48000); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if tf, ok := s.TimeFormat.(smf.MetricTicks); !ok || tf.Resolution() != TicksPerQuarter {
		t.Fatalf("unexpected time format %v", s.TimeFormat)
	}
	type note struct {
		tick uint32
		key  uint8
		on   bool
	}
	var notes []note
	var bpm float64
	for _, tr := range s.Tracks {
		var tick uint32
		for _, ev := range tr {
			tick += ev.Delta
			if ev.Message.GetMetaTempo(&bpm) {
				continue
			}
			var ch, key, vel uint8
			msg := midi.Message(ev.Message)
			switch {
			case msg.GetNoteOn(&ch, &key, &vel):
				notes = append(notes, note{tick, key, true})
			case msg.GetNoteOff(&ch, &key, &vel):
				notes = append(notes, note{tick, key, false})
			}
		}
	}
	if bpm < 119.9 || bpm > 120.1 {
		t.Fatalf("expected tempo 120, got %v", bpm)
	}
	want := []note{{0, 60, true}, {0, 64, true}, {240, 60, false}, {240, 64, false}, {480, 67, true}, {960, 67, false}}
	if len(notes) != len(want) {
		t.Fatalf("expected %d notes, got %+v", len(want), notes)
	}
	for i := range want {
		if notes[i] != want[i] {
			t.Fatalf("note %d = %+v, want %+v", i, notes[i], want[i])
		}
	}
}

func TestRecorderRejectsBadTiming(t *testing.T) {
	if err := NewRecorder(0).WriteSMF(&bytes.Buffer{}, 0, 120, 0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}
