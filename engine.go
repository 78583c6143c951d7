// Package stepseq turns a compact step notation into sample-accurate,
// theory-aware polyphonic playback.
package stepseq

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/cbegin/stepseq/internal/audio"
	"github.com/cbegin/stepseq/internal/effects"
	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/sequencer"
	"github.com/cbegin/stepseq/internal/synth"
	"github.com/cbegin/stepseq/internal/theory"
	"github.com/cbegin/stepseq/internal/voice"
)

type Option func(*config)

type config struct {
	sampleRate  int
	voices      int
	lookahead   float64
	seed        int64
	log         *slog.Logger
	theory      *theory.Context
	parser      pattern.ParserConfig
	synth       voice.Synth
	params      synth.Params
	effects     []effects.Spec
	subdivision float64
}

func defaultConfig() config {
	return config{
		sampleRate:  48000,
		voices:      16,
		lookahead:   0.1,
		parser:      pattern.DefaultParserConfig(),
		params:      synth.DefaultParams(),
		subdivision: 0.5,
	}
}

func WithSampleRate(sr int) Option { return func(c *config) { c.sampleRate = sr } }

// WithVoices sets the polyphony of the shared voice pool.
func WithVoices(n int) Option { return func(c *config) { c.voices = n } }

// WithLookahead sets how far ahead, in seconds, slots are queued.
func WithLookahead(seconds float64) Option { return func(c *config) { c.lookahead = seconds } }

// WithSeed makes wildcard choices reproducible.
func WithSeed(seed int64) Option { return func(c *config) { c.seed = seed } }

func WithLogger(log *slog.Logger) Option { return func(c *config) { c.log = log } }

func WithTheory(ctx *theory.Context) Option { return func(c *config) { c.theory = ctx } }

func WithParserConfig(pc pattern.ParserConfig) Option { return func(c *config) { c.parser = pc } }

// WithSynth replaces the built-in FM engine as the voice pool's target.
func WithSynth(s voice.Synth) Option { return func(c *config) { c.synth = s } }

// WithSynthParams configures the built-in FM engine.
func WithSynthParams(p synth.Params) Option { return func(c *config) { c.params = p } }

// WithEffects routes the built-in engine through an effect chain.
func WithEffects(specs ...effects.Spec) Option {
	return func(c *config) { c.effects = append([]effects.Spec(nil), specs...) }
}

// WithSubdivision sets the slot length in beats used when a call passes 0
// for a new track.
func WithSubdivision(beats float64) Option { return func(c *config) { c.subdivision = beats } }

// Engine binds the theory context, parser, scheduler, voice pool and synth
// into one authoring surface.
type Engine struct {
	mu          sync.Mutex
	sampleRate  int
	log         *slog.Logger
	theory      *theory.Context
	parser      *pattern.Parser
	alloc       *voice.Allocator
	outputs     *voice.Multi
	fm          *synth.Engine
	fx          *effects.Chain
	fxSpecs     []effects.Spec
	seq         *sequencer.Sequencer
	player      *audio.Player
	subdivision float64
}

func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.Errorf("stepseq: sample rate must be positive, got %d", cfg.sampleRate)
	}
	if cfg.voices <= 0 {
		return nil, errors.Errorf("stepseq: voice pool needs at least one voice, got %d", cfg.voices)
	}
	if cfg.subdivision <= 0 {
		return nil, errors.Errorf("stepseq: bad default subdivision %v", cfg.subdivision)
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}
	if cfg.theory == nil {
		cfg.theory = theory.New()
	}
	e := &Engine{
		sampleRate:  cfg.sampleRate,
		log:         cfg.log,
		theory:      cfg.theory,
		parser:      pattern.NewParser(cfg.parser),
		outputs:     voice.NewMulti(),
		subdivision: cfg.subdivision,
	}
	if cfg.synth != nil {
		e.outputs.Add(cfg.synth)
	} else {
		e.fm = synth.New(cfg.sampleRate, cfg.voices, cfg.params)
		e.outputs.Add(e.fm)
	}
	if len(cfg.effects) > 0 {
		fx, err := effects.Build(cfg.sampleRate, cfg.effects)
		if err != nil {
			return nil, err
		}
		e.fx = fx
		e.fxSpecs = cfg.effects
		if err := e.outputs.Connect(fx); err != nil {
			return nil, errors.Wrap(err, "stepseq: connect effects")
		}
	}
	e.alloc = voice.NewAllocator(cfg.voices, e.outputs, cfg.log)
	e.seq = sequencer.NewWithOptions(cfg.sampleRate, cfg.theory, e.alloc, sequencer.Options{
		Lookahead: cfg.lookahead,
		Seed:      cfg.seed,
		Logger:    cfg.log,
		Renderer:  e.outputs,
	})
	return e, nil
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide engine, bound to theory.Default().
func Default() *Engine {
	defaultOnce.Do(func() {
		e, err := New(WithTheory(theory.Default()))
		if err != nil {
			panic(err)
		}
		defaultEngine = e
	})
	return defaultEngine
}

func (e *Engine) SampleRate() int                 { return e.sampleRate }
func (e *Engine) Theory() *theory.Context         { return e.theory }
func (e *Engine) Sequencer() *sequencer.Sequencer { return e.seq }
func (e *Engine) Allocator() *voice.Allocator     { return e.alloc }
func (e *Engine) Logger() *slog.Logger            { return e.log }
func (e *Engine) DefaultSubdivision() float64     { return e.subdivision }

// Synth returns the built-in FM engine, or nil when WithSynth replaced it.
func (e *Engine) Synth() *synth.Engine { return e.fm }

// Effects returns the effect chain the engine was built with.
func (e *Engine) Effects() []effects.Spec { return append([]effects.Spec(nil), e.fxSpecs...) }

// AddOutput drives another synth, such as a MIDI port or recorder, from
// the same voice pool.
func (e *Engine) AddOutput(s voice.Synth) { e.outputs.Add(s) }

func (e *Engine) subdivisionFor(track int, sub float64) float64 {
	if sub > 0 {
		return sub
	}
	if _, ok := e.seq.Track(track); ok {
		return 0
	}
	return e.subdivision
}

// Sequence parses text into track and starts it. The reset token clears
// the track. A malformed pattern still replaces the track with one rest
// slot and the parse error is returned.
func (e *Engine) Sequence(track int, text string, subdivision float64) error {
	steps, perr := e.parser.Parse(text)
	if steps == nil && perr == nil {
		e.seq.Clear(track)
		return nil
	}
	if err := e.install(track, steps, text, subdivision); err != nil {
		return err
	}
	if perr != nil {
		e.log.Debug("pattern parse failed", "track", track, "err", perr)
	}
	return perr
}

// SequenceSteps installs already built steps.
func (e *Engine) SequenceSteps(track int, steps []pattern.Step, subdivision float64) error {
	if steps == nil {
		steps = []pattern.Step{}
	}
	return e.install(track, steps, "", subdivision)
}

// SequenceValues installs one note per number.
func (e *Engine) SequenceValues(track int, nums []float64, subdivision float64) error {
	return e.SequenceSteps(track, pattern.Values(nums), subdivision)
}

// Euclid installs a Euclidean rhythm whose hits play symbol.
func (e *Engine) Euclid(track int, symbol string, hits, steps, rotation int, subdivision float64) error {
	if err := pattern.CheckLength(steps); err != nil {
		return errors.Wrap(err, "stepseq: euclid steps")
	}
	return e.SequenceSteps(track, pattern.EuclidSteps(symbol, hits, steps, rotation), subdivision)
}

// Expr evaluates a generator without touching any track.
func (e *Engine) Expr(f pattern.Func, length int) pattern.ExprResult {
	return pattern.Expr(f, length)
}

// ExprTemplate compiles and evaluates a template generator.
func (e *Engine) ExprTemplate(src string, length int) (pattern.ExprResult, error) {
	f, err := pattern.CompileTemplate(src, length)
	if err != nil {
		return pattern.ExprResult{}, err
	}
	return pattern.Expr(f, length), nil
}

// SequenceExpr installs the output of a template generator. Indices the
// generator failed on become rests and are reported as warnings.
func (e *Engine) SequenceExpr(track int, src string, length int, subdivision float64) (pattern.ExprResult, error) {
	res, err := e.ExprTemplate(src, length)
	if err != nil {
		return res, err
	}
	for _, w := range res.Warnings {
		e.log.Debug("generator index became rest", "track", track, "err", w)
	}
	return res, e.SequenceSteps(track, res.Steps, subdivision)
}

func (e *Engine) install(track int, steps []pattern.Step, text string, subdivision float64) error {
	if err := e.seq.Sequence(track, steps, text, e.subdivisionFor(track, subdivision)); err != nil {
		return err
	}
	e.seq.Start(track)
	return nil
}

func param(vals []float64) (sequencer.Param, error) {
	switch len(vals) {
	case 0:
		return sequencer.Param{}, errors.New("stepseq: no values")
	case 1:
		return sequencer.Scalar(vals[0]), nil
	}
	return sequencer.PerStep(vals...), nil
}

func (e *Engine) setParam(track int, vals []float64, set func(int, sequencer.Param) error) error {
	p, err := param(vals)
	if err != nil {
		return err
	}
	return set(track, p)
}

// SetOctave takes one value for every step or one value per step.
func (e *Engine) SetOctave(track int, vals ...float64) error {
	return e.setParam(track, vals, e.seq.SetOctave)
}

func (e *Engine) SetSustain(track int, vals ...float64) error {
	return e.setParam(track, vals, e.seq.SetSustain)
}

func (e *Engine) SetVelocity(track int, vals ...float64) error {
	return e.setParam(track, vals, e.seq.SetVelocity)
}

// SetLag offsets triggers by seconds; negative values play early.
func (e *Engine) SetLag(track int, vals ...float64) error {
	return e.setParam(track, vals, e.seq.SetLag)
}

func (e *Engine) SetOrnament(track int, depth float64) error {
	return e.seq.SetOrnament(track, depth)
}

func (e *Engine) SetKind(track int, kind sequencer.TrackKind) { e.seq.SetKind(track, kind) }

func (e *Engine) SetKit(track int, name string) error { return e.seq.SetKit(track, name) }

func (e *Engine) SetWildcard(track int, p sequencer.WildcardPolicy) error {
	return e.seq.SetWildcard(track, p)
}

// SetStep replaces one top-level step with the parsed text.
func (e *Engine) SetStep(track, index int, text string) error {
	st, err := e.parser.ParseStep(text)
	if err != nil {
		return err
	}
	return e.seq.SetStep(track, index, st)
}

func (e *Engine) Start(track int) { e.seq.Start(track) }
func (e *Engine) Stop(track int)  { e.seq.Stop(track) }
func (e *Engine) Clear(track int) { e.seq.Clear(track) }
func (e *Engine) StopAll()        { e.seq.StopAll() }

func (e *Engine) OnTick(h sequencer.TickHook) func() { return e.seq.OnTick(h) }

func (e *Engine) Tracks() []sequencer.TrackStatus { return e.seq.Tracks() }

func (e *Engine) Track(i int) (sequencer.TrackStatus, bool) { return e.seq.Track(i) }

// ApplyParam sets a built-in synth parameter by name.
func (e *Engine) ApplyParam(name string, v float64) error {
	if e.fm == nil {
		return errors.New("stepseq: no built-in synth to configure")
	}
	return e.fm.Set(name, v)
}

// Process renders interleaved stereo frames and advances the clock.
func (e *Engine) Process(dst []float32) { e.seq.Process(dst) }

// Advance moves the clock without rendering audio.
func (e *Engine) Advance(frames int) { e.seq.Advance(frames) }

// Play starts realtime output through the shared audio device.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		pl, err := audio.NewPlayer(e.sampleRate, e.seq)
		if err != nil {
			return err
		}
		e.player = pl
	}
	e.player.Play()
	return nil
}

func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player != nil {
		e.player.Pause()
	}
}

// SetVolume scales realtime output. It has no effect before Play.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player != nil {
		e.player.Reader().SetGain(v)
	}
}

// Close stops every track and releases the audio device.
func (e *Engine) Close() error {
	e.seq.StopAll()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return nil
	}
	err := e.player.Close()
	e.player = nil
	return err
}
