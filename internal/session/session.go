// Package session saves and restores an engine's authoring state as YAML.
package session

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cbegin/stepseq"
	"github.com/cbegin/stepseq/internal/effects"
	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/sequencer"
	"github.com/cbegin/stepseq/internal/synth"
	"github.com/cbegin/stepseq/internal/theory"
)

type Document struct {
	Tempo        float64            `yaml:"tempo,omitempty" json:"tempo,omitempty"`
	Root         string             `yaml:"root,omitempty" json:"root,omitempty"`
	Octave       *int               `yaml:"octave,omitempty" json:"octave,omitempty"`
	Scale        string             `yaml:"scale,omitempty" json:"scale,omitempty"`
	ScaleIndices []int              `yaml:"scale_indices,flow,omitempty" json:"scale_indices,omitempty"`
	Progression  []string           `yaml:"progression,flow,omitempty" json:"progression,omitempty"`
	BarsPerChord float64            `yaml:"bars_per_chord,omitempty" json:"bars_per_chord,omitempty"`
	BeatsPerBar  float64            `yaml:"beats_per_bar,omitempty" json:"beats_per_bar,omitempty"`
	Temperament  *Temperament       `yaml:"temperament,omitempty" json:"temperament,omitempty"`
	Voices       int                `yaml:"voices,omitempty" json:"voices,omitempty"`
	Seed         int64              `yaml:"seed,omitempty" json:"seed,omitempty"`
	Synth        map[string]float64 `yaml:"synth,omitempty" json:"synth,omitempty"`
	Effects      []effects.Spec     `yaml:"effects,omitempty" json:"effects,omitempty"`
	Tracks       []Track            `yaml:"tracks,omitempty" json:"tracks,omitempty"`
}

// Temperament is one of: a built-in name, equal divisions, a ratio table,
// a cent table, or a template generating cents.
type Temperament struct {
	Name     string    `yaml:"name,omitempty" json:"name,omitempty"`
	Equal    int       `yaml:"equal,omitempty" json:"equal,omitempty"`
	Ratios   []float64 `yaml:"ratios,flow,omitempty" json:"ratios,omitempty"`
	Cents    []float64 `yaml:"cents,flow,omitempty" json:"cents,omitempty"`
	Period   float64   `yaml:"period,omitempty" json:"period,omitempty"` // cents, or a ratio alongside Ratios
	Template string    `yaml:"template,omitempty" json:"template,omitempty"`
	Length   int       `yaml:"length,omitempty" json:"length,omitempty"`
}

type Track struct {
	Index       int       `yaml:"index" json:"index"`
	Kind        string    `yaml:"kind,omitempty" json:"kind,omitempty"`
	Pattern     string    `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Values      []float64 `yaml:"values,flow,omitempty" json:"values,omitempty"`
	Euclid      *Euclid   `yaml:"euclid,omitempty" json:"euclid,omitempty"`
	Expr        *Expr     `yaml:"expr,omitempty" json:"expr,omitempty"`
	Subdivision string    `yaml:"subdivision,omitempty" json:"subdivision,omitempty"`
	Octave      []float64 `yaml:"octave,flow,omitempty" json:"octave,omitempty"`
	Sustain     []float64 `yaml:"sustain,flow,omitempty" json:"sustain,omitempty"`
	Velocity    []float64 `yaml:"velocity,flow,omitempty" json:"velocity,omitempty"`
	Lag         []float64 `yaml:"lag,flow,omitempty" json:"lag,omitempty"`
	Ornament    float64   `yaml:"ornament,omitempty" json:"ornament,omitempty"`
	Wildcard    *Wildcard `yaml:"wildcard,omitempty" json:"wildcard,omitempty"`
	Kit         string    `yaml:"kit,omitempty" json:"kit,omitempty"`
	Stopped     bool      `yaml:"stopped,omitempty" json:"stopped,omitempty"`
}

type Euclid struct {
	Symbol   string `yaml:"symbol,omitempty" json:"symbol,omitempty"`
	Hits     int    `yaml:"hits" json:"hits"`
	Steps    int    `yaml:"steps" json:"steps"`
	Rotation int    `yaml:"rotation,omitempty" json:"rotation,omitempty"`
}

type Expr struct {
	Template string `yaml:"template" json:"template"`
	Length   int    `yaml:"length" json:"length"`
}

type Wildcard struct {
	Mode        string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Candidates  []string `yaml:"candidates,flow,omitempty" json:"candidates,omitempty"`
	Probability float64  `yaml:"probability,omitempty" json:"probability,omitempty"`
}

// Load decodes a document, rejecting unknown keys.
func Load(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Document
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return &d, nil
		}
		return nil, errors.Wrap(err, "session: decode")
	}
	return &d, nil
}

func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "session: open")
	}
	defer f.Close()
	d, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "session: %s", path)
	}
	return d, nil
}

func (d *Document) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return errors.Wrap(err, "session: encode")
	}
	return errors.Wrap(enc.Close(), "session: encode")
}

func (d *Document) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := d.Save(&buf); err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0o644), "session: write")
}

// Options returns the engine options only known at construction time.
func (d *Document) Options() ([]stepseq.Option, error) {
	var opts []stepseq.Option
	if d.Voices > 0 {
		opts = append(opts, stepseq.WithVoices(d.Voices))
	}
	if d.Seed != 0 {
		opts = append(opts, stepseq.WithSeed(d.Seed))
	}
	if len(d.Synth) > 0 {
		p := synth.DefaultParams()
		for _, name := range sortedKeys(d.Synth) {
			if err := p.Set(name, d.Synth[name]); err != nil {
				return nil, errors.Wrap(err, "session")
			}
		}
		opts = append(opts, stepseq.WithSynthParams(p))
	}
	if len(d.Effects) > 0 {
		opts = append(opts, stepseq.WithEffects(d.Effects...))
	}
	return opts, nil
}

// Open builds an engine from the document and applies it.
func (d *Document) Open(extra ...stepseq.Option) (*stepseq.Engine, error) {
	opts, err := d.Options()
	if err != nil {
		return nil, err
	}
	e, err := stepseq.New(append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	if err := d.Apply(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Apply installs the theory settings and tracks on an existing engine.
// Pattern errors degrade the track to a rest like any other Sequence call
// and are reported after every track has been applied.
func (d *Document) Apply(e *stepseq.Engine) error {
	if err := d.ApplyTheory(e.Theory()); err != nil {
		return err
	}
	if e.Synth() != nil {
		for _, name := range sortedKeys(d.Synth) {
			if err := e.ApplyParam(name, d.Synth[name]); err != nil {
				return errors.Wrap(err, "session")
			}
		}
	}
	var first error
	for i := range d.Tracks {
		if err := d.Tracks[i].Apply(e); err != nil {
			e.Logger().Warn("session track degraded", "track", d.Tracks[i].Index, "err", err)
			if first == nil {
				first = errors.Wrapf(err, "session: track %d", d.Tracks[i].Index)
			}
		}
	}
	return first
}

// ApplyTheory sets every theory field present in the document.
func (d *Document) ApplyTheory(ctx *theory.Context) error {
	if t := d.Temperament; t != nil {
		temp, err := t.Build()
		if err != nil {
			return err
		}
		if err := ctx.SetTemperament(temp); err != nil {
			return errors.Wrap(err, "session")
		}
	}
	if d.Root != "" {
		if err := ctx.SetRootName(d.Root); err != nil {
			return errors.Wrap(err, "session")
		}
	}
	if d.Octave != nil {
		ctx.SetOctave(*d.Octave)
	}
	switch {
	case d.Scale != "":
		if err := ctx.SetScale(d.Scale); err != nil {
			return errors.Wrap(err, "session")
		}
	case len(d.ScaleIndices) > 0:
		if err := ctx.SetScaleIndices(d.ScaleIndices); err != nil {
			return errors.Wrap(err, "session")
		}
	}
	if d.BeatsPerBar != 0 {
		if err := ctx.SetBeatsPerBar(d.BeatsPerBar); err != nil {
			return errors.Wrap(err, "session")
		}
	}
	if d.BarsPerChord != 0 {
		if err := ctx.SetProgressionRate(d.BarsPerChord); err != nil {
			return errors.Wrap(err, "session")
		}
	}
	if len(d.Progression) > 0 {
		if err := ctx.SetProgression(d.Progression...); err != nil {
			return errors.Wrap(err, "session")
		}
	}
	if d.Tempo != 0 {
		if err := ctx.SetTempo(d.Tempo); err != nil {
			return errors.Wrap(err, "session")
		}
	}
	return nil
}

// Build resolves the table, preferring template, cents, ratios, equal
// divisions and finally the name.
func (t *Temperament) Build() (theory.Temperament, error) {
	switch {
	case t.Template != "":
		f, err := pattern.CompileTemplate(t.Template, t.Length)
		if err != nil {
			return theory.Temperament{}, errors.Wrap(err, "session: temperament")
		}
		cents, _ := pattern.ExprFloats(f, t.Length)
		return t.named(theory.FromCents(cents, t.Period))
	case len(t.Cents) > 0:
		return t.named(theory.FromCents(t.Cents, t.Period))
	case len(t.Ratios) > 0:
		return t.named(theory.FromRatios(t.Ratios, t.Period))
	case t.Equal > 0:
		return theory.Equal(t.Equal), nil
	}
	temp, ok := theory.Named(t.Name)
	if !ok {
		return theory.Temperament{}, errors.Errorf("session: unknown temperament %q", t.Name)
	}
	return temp, nil
}

func (t *Temperament) named(temp theory.Temperament, err error) (theory.Temperament, error) {
	if err != nil {
		return temp, errors.Wrap(err, "session: temperament")
	}
	if t.Name != "" {
		temp.Name = t.Name
	}
	return temp, nil
}

// Apply installs the track on e. Parameters are set before the pattern so
// the first slot already uses them.
func (t *Track) Apply(e *stepseq.Engine) error {
	if err := t.ApplyParams(e); err != nil {
		return err
	}
	return t.sequence(e)
}

// ApplyParams sets kind, kit and the per-step parameters without touching
// the pattern.
func (t *Track) ApplyParams(e *stepseq.Engine) error {
	if t.Kind != "" {
		kind, err := sequencer.ParseTrackKind(t.Kind)
		if err != nil {
			return err
		}
		e.SetKind(t.Index, kind)
	}
	if t.Kit != "" {
		if err := e.SetKit(t.Index, t.Kit); err != nil {
			return err
		}
	}
	for _, p := range []struct {
		vals []float64
		set  func(int, ...float64) error
	}{
		{t.Octave, e.SetOctave},
		{t.Sustain, e.SetSustain},
		{t.Velocity, e.SetVelocity},
		{t.Lag, e.SetLag},
	} {
		if len(p.vals) == 0 {
			continue
		}
		if err := p.set(t.Index, p.vals...); err != nil {
			return err
		}
	}
	if t.Ornament != 0 {
		if err := e.SetOrnament(t.Index, t.Ornament); err != nil {
			return err
		}
	}
	if t.Wildcard != nil {
		policy, err := t.Wildcard.Policy()
		if err != nil {
			return err
		}
		if err := e.SetWildcard(t.Index, policy); err != nil {
			return err
		}
	}
	return nil
}

func (t *Track) sequence(e *stepseq.Engine) error {
	var sub float64
	if t.Subdivision != "" {
		var err error
		if sub, err = theory.ParseSubdivision(t.Subdivision); err != nil {
			return err
		}
	}
	var err error
	switch {
	case t.Euclid != nil:
		err = e.Euclid(t.Index, t.Euclid.Symbol, t.Euclid.Hits, t.Euclid.Steps, t.Euclid.Rotation, sub)
	case t.Expr != nil:
		_, err = e.SequenceExpr(t.Index, t.Expr.Template, t.Expr.Length, sub)
	case len(t.Values) > 0:
		err = e.SequenceValues(t.Index, t.Values, sub)
	default:
		err = e.Sequence(t.Index, t.Pattern, sub)
	}
	if t.Stopped {
		e.Stop(t.Index)
	}
	return err
}

func (w *Wildcard) Policy() (sequencer.WildcardPolicy, error) {
	mode, err := sequencer.ParseWildcardMode(w.Mode)
	if err != nil {
		return sequencer.WildcardPolicy{}, err
	}
	p := sequencer.WildcardPolicy{Mode: mode, Probability: w.Probability}
	for _, c := range w.Candidates {
		v, err := pattern.ParseValue(c)
		if err != nil {
			return p, errors.Wrapf(err, "wildcard candidate %q", c)
		}
		p.Candidates = append(p.Candidates, v)
	}
	return p, nil
}

// Capture snapshots an engine into a document. Generated tracks are saved
// as their pattern text.
func Capture(e *stepseq.Engine) *Document {
	snap := e.Theory().Snapshot()
	octave := snap.Octave()
	d := &Document{
		Tempo:        snap.Tempo(),
		Root:         theory.PitchClassName(snap.Root()),
		Octave:       &octave,
		Scale:        snap.ScaleName(),
		Progression:  snap.ProgressionText(),
		BarsPerChord: snap.BarsPerChord(),
		BeatsPerBar:  snap.BeatsPerBar(),
		Voices:       e.Allocator().Size(),
		Effects:      e.Effects(),
	}
	if d.Scale == "" {
		d.ScaleIndices = snap.Scale()
	}
	temp := snap.Temperament()
	if named, ok := theory.Named(temp.Name); ok && named.Len() == temp.Len() {
		d.Temperament = &Temperament{Name: temp.Name}
	} else {
		d.Temperament = &Temperament{Name: temp.Name, Cents: temp.Cents, Period: temp.Period}
	}
	if fm := e.Synth(); fm != nil {
		p := fm.Params()
		d.Synth = p.Values()
	}
	for _, st := range e.Tracks() {
		d.Tracks = append(d.Tracks, captureTrack(st))
	}
	return d
}

func captureTrack(st sequencer.TrackStatus) Track {
	t := Track{
		Index:       st.Index,
		Pattern:     st.Text,
		Subdivision: strconv.FormatFloat(st.Subdivision, 'g', -1, 64),
		Octave:      st.Octave,
		Sustain:     st.Sustain,
		Velocity:    st.Velocity,
		Lag:         st.Lag,
		Ornament:    st.Ornament,
		Stopped:     !st.Running,
	}
	if st.Text == "" {
		t.Pattern = "."
	}
	if st.Kind == sequencer.Percussive {
		t.Kind = st.Kind.String()
		t.Kit = st.Kit
	}
	if w := st.Wildcard; w.Mode != sequencer.WildcardDefault || len(w.Candidates) > 0 {
		t.Wildcard = &Wildcard{Mode: w.Mode.String(), Probability: w.Probability}
		for _, c := range w.Candidates {
			t.Wildcard.Candidates = append(t.Wildcard.Candidates, c.String())
		}
	}
	return t
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
