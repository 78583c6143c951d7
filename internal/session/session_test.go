package session

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cbegin/stepseq"
	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/sequencer"
	"github.com/cbegin/stepseq/internal/theory"
)

const sample = `
tempo: 96
root: D
octave: 3
scale: dorian
progression: [i, iv, V7]
bars_per_chord: 2
voices: 8
seed: 3
synth:
  mod_index: 2
effects:
  - kind: delay
    time: 0.25
tracks:
  - index: 0
    pattern: "0 2 [4,6] ?"
    subdivision: 8n
    velocity: [100, 80]
    wildcard:
      mode: random
      candidates: ["0", "c5"]
  - index: 1
    kind: percussive
    kit: rd8
    euclid: {symbol: kick, hits: 3, steps: 8}
  - index: 2
    expr: {template: "{{ mod .i 4 }}", length: 8}
    stopped: true
`

func newEngine(t *testing.T, d *Document) *stepseq.Engine {
	t.Helper()
	e, err := d.Open(stepseq.WithTheory(theory.New()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return e
}

func TestLoadAndApply(t *testing.T) {
	d, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e := newEngine(t, d)
	snap := e.Theory().Snapshot()
	if snap.Tempo() != 96 || snap.Root() != 2 || snap.Octave() != 3 || snap.ScaleName() != "dorian" {
		t.Fatalf("theory not applied: tempo=%v root=%d octave=%d scale=%s",
			snap.Tempo(), snap.Root(), snap.Octave(), snap.ScaleName())
	}
	if len(snap.Progression()) != 3 || snap.BarsPerChord() != 2 {
		t.Fatalf("progression not applied")
	}
	if e.Allocator().Size() != 8 || e.Synth().Params().ModIndex != 2 || len(e.Effects()) != 1 {
		t.Fatalf("construction options not applied")
	}

	st, _ := e.Sequencer().Track(0)
	if st.Subdivision != 0.5 || len(st.Velocity) != 2 || st.Wildcard.Mode != sequencer.WildcardRandom {
		t.Fatalf("track 0 = %+v", st)
	}
	if len(st.Wildcard.Candidates) != 2 || !st.Wildcard.Candidates[1].Abs || st.Wildcard.Candidates[1].Num != 72 {
		t.Fatalf("candidates = %+v", st.Wildcard.Candidates)
	}
	drums, _ := e.Sequencer().Track(1)
	if drums.Kind != sequencer.Percussive || drums.Kit != "rd8" || pattern.Onsets(drums.Steps) != 3 {
		t.Fatalf("track 1 = %+v", drums)
	}
	gen, _ := e.Sequencer().Track(2)
	if gen.Running || pattern.Format(gen.Steps) != "0 1 2 3 0 1 2 3" {
		t.Fatalf("track 2 = %q running=%v", pattern.Format(gen.Steps), gen.Running)
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	if _, err := Load(strings.NewReader("tempo: 120\nbogus: 1\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestEmptyDocument(t *testing.T) {
	d, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(d.Tracks) != 0 {
		t.Fatalf("expected no tracks")
	}
}

func TestBadPatternDegradesAndReports(t *testing.T) {
	d := &Document{Tracks: []Track{
		{Index: 0, Pattern: "[0 1"},
		{Index: 1, Pattern: "0 1"},
	}}
	e, err := stepseq.New(stepseq.WithTheory(theory.New()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Apply(e); err == nil {
		t.Fatalf("expected the parse error to be reported")
	}
	bad, _ := e.Sequencer().Track(0)
	good, _ := e.Sequencer().Track(1)
	if len(bad.Steps) != 1 || bad.Steps[0].Kind != pattern.KindRest || len(good.Steps) != 2 {
		t.Fatalf("tracks after apply: %+v %+v", bad, good)
	}
}

func TestTemperaments(t *testing.T) {
	cases := []struct {
		name string
		temp Temperament
		len  int
	}{
		{"named", Temperament{Name: "just"}, 12},
		{"equal", Temperament{Equal: 19}, 19},
		{"ratios", Temperament{Ratios: []float64{1, 1.25, 1.5}}, 3},
		{"cents", Temperament{Cents: []float64{0, 240, 480, 720, 960}}, 5},
		{"template", Temperament{Template: "{{ mul .i 100 }}", Length: 12}, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.temp.Build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if got.Len() != tc.len {
				t.Fatalf("len = %d, want %d", got.Len(), tc.len)
			}
		})
	}
	if _, err := (&Temperament{Name: "nope"}).Build(); err == nil {
		t.Fatalf("expected unknown temperament error")
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	d, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e := newEngine(t, d)
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := Capture(e).SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	e2 := newEngine(t, back)
	for _, i := range []int{0, 1, 2} {
		a, _ := e.Sequencer().Track(i)
		b, _ := e2.Sequencer().Track(i)
		if pattern.Format(a.Steps) != pattern.Format(b.Steps) || a.Running != b.Running || a.Kind != b.Kind {
			t.Fatalf("track %d differs: %+v vs %+v", i, a, b)
		}
	}
	if e2.Theory().Snapshot().ScaleName() != "dorian" || e2.Theory().Tempo() != 96 {
		t.Fatalf("theory lost in round trip")
	}
	var buf bytes.Buffer
	if err := back.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(buf.String(), "scale: dorian") {
		t.Fatalf("unexpected yaml:\n%s", buf.String())
	}
}
