package sequencer

import (
	"container/heap"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/theory"
	"github.com/cbegin/stepseq/internal/voice"
)

// Renderer produces one stereo frame per sample.
type Renderer interface {
	RenderFrame() (float32, float32)
}

// TickInfo is passed to tick hooks once per top-level slot.
type TickInfo struct {
	Track int
	Step  int
	At    int64
	Beat  float64
}

type TickHook func(TickInfo)

// RenderHook is called by the host's render loop with the current clock.
type RenderHook func(now int64, beat float64)

type Options struct {
	Lookahead    float64 // seconds, default 0.1
	FillInterval int     // samples between lookahead fills, default 128
	Seed         int64
	Logger       *slog.Logger
	Renderer     Renderer
}

const maxSlotsPerFill = 4096

// Sequencer advances tracks against a sample clock. Slots are expanded a
// lookahead ahead of time into a time-ordered queue and dispatched at their
// exact sample.
type Sequencer struct {
	mu           sync.Mutex
	sampleRate   int
	theory       *theory.Context
	snap         *theory.Snapshot
	alloc        *voice.Allocator
	renderer     Renderer
	log          *slog.Logger
	rng          *rand.Rand
	lookahead    int64
	fillInterval int64

	now      int64
	beat     float64
	nextFill int64
	queue    eventQueue
	seq      uint64

	tracks  []*Track
	byIndex map[int]*Track

	tickHooks   []hookEntry[TickHook]
	renderHooks []hookEntry[RenderHook]
	hookID      int
	fired       []TickInfo
}

type hookEntry[T any] struct {
	id int
	fn T
}

func New(sampleRate int, ctx *theory.Context, alloc *voice.Allocator) *Sequencer {
	return NewWithOptions(sampleRate, ctx, alloc, Options{})
}

func NewWithOptions(sampleRate int, ctx *theory.Context, alloc *voice.Allocator, opts Options) *Sequencer {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if ctx == nil {
		ctx = theory.Default()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if alloc == nil {
		alloc = voice.NewAllocator(16, nil, log)
	}
	look := opts.Lookahead
	if look <= 0 {
		look = 0.1
	}
	fill := opts.FillInterval
	if fill <= 0 {
		fill = 128
	}
	s := &Sequencer{
		sampleRate:   sampleRate,
		theory:       ctx,
		snap:         ctx.Snapshot(),
		alloc:        alloc,
		renderer:     opts.Renderer,
		log:          log,
		rng:          rand.New(rand.NewSource(opts.Seed)),
		lookahead:    int64(math.Round(look * float64(sampleRate))),
		fillInterval: int64(fill),
		byIndex:      map[int]*Track{},
	}
	if s.lookahead < s.fillInterval {
		s.lookahead = s.fillInterval
	}
	return s
}

func (s *Sequencer) SampleRate() int { return s.sampleRate }

func (s *Sequencer) Theory() *theory.Context { return s.theory }

func (s *Sequencer) Allocator() *voice.Allocator { return s.alloc }

// SetRenderer installs the frame source used by Process.
func (s *Sequencer) SetRenderer(r Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer = r
	s.syncRenderer()
}

// syncRenderer aligns a renderer that keeps its own frame clock.
func (s *Sequencer) syncRenderer() {
	if c, ok := s.renderer.(interface{ SetClock(now int64) }); ok {
		c.SetClock(s.now)
	}
}

// Now returns the sample clock.
func (s *Sequencer) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Beat returns the transport position in beats.
func (s *Sequencer) Beat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beat
}

func (s *Sequencer) trackLocked(i int) *Track {
	if t, ok := s.byIndex[i]; ok {
		return t
	}
	t := newTrack(i)
	t.order = len(s.tracks)
	s.byIndex[i] = t
	s.tracks = append(s.tracks, t)
	return t
}

func (s *Sequencer) refreshSnapshot() {
	if s.theory.Version() != s.snap.Version() {
		s.snap = s.theory.Snapshot()
	}
}

func (s *Sequencer) beatsPerSample() float64 {
	return s.snap.Tempo() / 60 / float64(s.sampleRate)
}

// Sequence replaces a track's steps. Slots already queued but not yet
// started are dropped and the cursor continues modulo the new length.
// A nil slice clears the track.
func (s *Sequencer) Sequence(i int, steps []pattern.Step, text string, subdivision float64) error {
	if subdivision < 0 || math.IsNaN(subdivision) || math.IsInf(subdivision, 0) {
		return errors.Errorf("sequencer: bad subdivision %v", subdivision)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackLocked(i)
	if steps == nil {
		s.clearLocked(t)
		return nil
	}
	if subdivision > 0 {
		t.subdivision = subdivision
	}
	if t.running {
		s.rewindLocked(t)
	}
	t.steps = pattern.CloneSteps(steps)
	t.text = text
	if text == "" {
		t.text = pattern.Format(steps)
	}
	t.cursor %= t.length()
	s.nextFill = s.now
	return nil
}

// rewindLocked drops the track's slots whose tick hook has not fired yet
// and moves the cursor back to the first of them.
func (s *Sequencer) rewindLocked(t *Track) {
	first := -1
	var firstBeat float64
	for _, ev := range s.queue {
		if ev.track != t.index || ev.kind != evHook {
			continue
		}
		if first < 0 || ev.slotBeat < firstBeat {
			first, firstBeat = ev.top, ev.slotBeat
		}
	}
	if first < 0 {
		return
	}
	s.queue.removeIf(func(ev *event) bool {
		return ev.track == t.index && ev.slotBeat >= firstBeat
	})
	t.cursor = first
	t.nextBeat = firstBeat
}

// Start sets a track running from the next subdivision boundary.
func (s *Sequencer) Start(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackLocked(i)
	if t.running {
		return
	}
	t.running = true
	t.nextBeat = math.Ceil(s.beat/t.subdivision-1e-9) * t.subdivision
	s.nextFill = s.now
}

// Stop idles a track, drops its queued events and releases its voices.
// Other tracks are untouched.
func (s *Sequencer) Stop(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byIndex[i]; ok {
		s.stopLocked(t)
	}
}

func (s *Sequencer) stopLocked(t *Track) {
	t.running = false
	s.queue.removeIf(func(ev *event) bool { return ev.track == t.index })
	s.alloc.StopOwner(t.index, s.now)
	t.lastHandles = nil
	t.lastUntil = 0
}

// Clear empties and idles a track.
func (s *Sequencer) Clear(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byIndex[i]; ok {
		s.clearLocked(t)
	}
}

func (s *Sequencer) clearLocked(t *Track) {
	s.stopLocked(t)
	t.steps = nil
	t.text = ""
	t.cursor = 0
}

func (s *Sequencer) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		s.stopLocked(t)
	}
}

func (s *Sequencer) setParam(i int, name string, p Param, set func(t *Track)) error {
	if err := p.validate(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set(s.trackLocked(i))
	return nil
}

// SetOctave shifts melodic degrees by whole temperament periods.
func (s *Sequencer) SetOctave(i int, p Param) error {
	return s.setParam(i, "octave", p, func(t *Track) { t.octave = p })
}

// SetSustain sets the gate as a fraction of the held span.
func (s *Sequencer) SetSustain(i int, p Param) error {
	for _, v := range p.vals {
		if v < 0 {
			return errors.Errorf("sequencer: sustain must not be negative, got %v", v)
		}
	}
	return s.setParam(i, "sustain", p, func(t *Track) { t.sustain = p })
}

// SetVelocity sets velocity in 0..127.
func (s *Sequencer) SetVelocity(i int, p Param) error {
	for _, v := range p.vals {
		if v < 0 || v > 127 {
			return errors.Errorf("sequencer: velocity %v outside 0..127", v)
		}
	}
	return s.setParam(i, "velocity", p, func(t *Track) { t.velocity = p })
}

// SetLag offsets triggers by signed seconds.
func (s *Sequencer) SetLag(i int, p Param) error {
	return s.setParam(i, "lag", p, func(t *Track) { t.lag = p })
}

// SetOrnament sets the vibrato depth in semitones applied to new notes.
func (s *Sequencer) SetOrnament(i int, depth float64) error {
	return s.setParam(i, "ornament", Scalar(depth), func(t *Track) { t.ornament = depth })
}

func (s *Sequencer) SetKind(i int, k TrackKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackLocked(i).kind = k
}

func (s *Sequencer) SetWildcard(i int, p WildcardPolicy) error {
	if p.Mode == WildcardChance && (p.Probability < 0 || p.Probability > 1) {
		return errors.Errorf("sequencer: probability %v outside 0..1", p.Probability)
	}
	p.Candidates = append([]pattern.Value(nil), p.Candidates...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackLocked(i).wildcard = p
	return nil
}

func (s *Sequencer) SetKit(i int, name string) error {
	if _, ok := Kits[name]; !ok {
		return errors.Errorf("sequencer: unknown kit %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackLocked(i).kit = name
	return nil
}

// SetStep replaces one top-level step in place.
func (s *Sequencer) SetStep(i, index int, st pattern.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byIndex[i]
	if !ok || index < 0 || index >= len(t.steps) {
		return errors.Errorf("sequencer: no step %d on track %d", index, i)
	}
	t.steps[index] = st.Clone()
	t.text = pattern.Format(t.steps)
	return nil
}

// OnTick registers a hook fired after each slot's first leaf dispatched.
// The returned func removes it.
func (s *Sequencer) OnTick(h TickHook) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hookID++
	id := s.hookID
	s.tickHooks = append(s.tickHooks, hookEntry[TickHook]{id: id, fn: h})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.tickHooks = removeHook(s.tickHooks, id)
	}
}

// AddRenderHook registers a callback for Render, called in registration
// order. The returned func removes it.
func (s *Sequencer) AddRenderHook(h RenderHook) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hookID++
	id := s.hookID
	s.renderHooks = append(s.renderHooks, hookEntry[RenderHook]{id: id, fn: h})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.renderHooks = removeHook(s.renderHooks, id)
	}
}

// Render runs every render hook once. Hosts call it from their draw loop.
func (s *Sequencer) Render() {
	s.mu.Lock()
	hooks := make([]RenderHook, len(s.renderHooks))
	for i, h := range s.renderHooks {
		hooks[i] = h.fn
	}
	now, beat := s.now, s.beat
	s.mu.Unlock()
	for _, h := range hooks {
		h(now, beat)
	}
}

func removeHook[T any](hooks []hookEntry[T], id int) []hookEntry[T] {
	out := hooks[:0]
	for _, h := range hooks {
		if h.id != id {
			out = append(out, h)
		}
	}
	return out
}

// Track returns a status copy of track i.
func (s *Sequencer) Track(i int) (TrackStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byIndex[i]
	if !ok {
		return TrackStatus{}, false
	}
	return t.status(), true
}

// Tracks returns status copies in registration order.
func (s *Sequencer) Tracks() []TrackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackStatus, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t.status()
	}
	return out
}

// Ref returns a lookup handle for track i. It does not keep the track alive
// or control it.
func (s *Sequencer) Ref(i int) TrackRef { return TrackRef{seq: s, index: i} }

type TrackRef struct {
	seq   *Sequencer
	index int
}

func (r TrackRef) Index() int { return r.index }

func (r TrackRef) Status() (TrackStatus, bool) {
	if r.seq == nil {
		return TrackStatus{}, false
	}
	return r.seq.Track(r.index)
}

// Process renders interleaved stereo frames into dst while advancing the
// clock one sample per frame.
func (s *Sequencer) Process(dst []float32) {
	frames := len(dst) / 2
	s.mu.Lock()
	s.refreshSnapshot()
	for f := 0; f < frames; f++ {
		s.tick()
		if s.renderer != nil {
			l, r := s.renderer.RenderFrame()
			dst[f*2] = l
			dst[f*2+1] = r
		} else {
			dst[f*2] = 0
			dst[f*2+1] = 0
		}
	}
	s.mu.Unlock()
	s.fireHooks()
}

// Advance moves the clock without rendering audio.
func (s *Sequencer) Advance(frames int) {
	s.mu.Lock()
	s.refreshSnapshot()
	for f := 0; f < frames; f++ {
		s.tick()
	}
	s.syncRenderer()
	s.mu.Unlock()
	s.fireHooks()
}

func (s *Sequencer) fireHooks() {
	s.mu.Lock()
	fired := s.fired
	s.fired = nil
	hooks := make([]TickHook, len(s.tickHooks))
	for i, h := range s.tickHooks {
		hooks[i] = h.fn
	}
	s.mu.Unlock()
	for _, info := range fired {
		for _, h := range hooks {
			h(info)
		}
	}
}

func (s *Sequencer) tick() {
	if s.now >= s.nextFill {
		s.fill()
		s.nextFill = s.now + s.fillInterval
	}
	s.alloc.Advance(s.now)
	for len(s.queue) > 0 && s.queue[0].at <= s.now {
		ev := heap.Pop(&s.queue).(event)
		s.dispatch(ev)
	}
	s.now++
	s.beat += s.beatsPerSample()
}

func (s *Sequencer) sampleAt(beat, bps float64) int64 {
	return s.now + int64(math.Round((beat-s.beat)/bps))
}

func (s *Sequencer) fill() {
	s.refreshSnapshot()
	bps := s.beatsPerSample()
	horizon := s.now + s.lookahead
	for _, t := range s.tracks {
		if !t.running {
			continue
		}
		lead := t.leadSamples(float64(s.sampleRate))
		for n := 0; n < maxSlotsPerFill; n++ {
			if s.sampleAt(t.nextBeat, bps)-lead >= horizon {
				break
			}
			s.expandSlot(t, bps)
		}
	}
}

func (s *Sequencer) push(ev event) {
	if ev.at < s.now {
		ev.at = s.now
	}
	if t, ok := s.byIndex[ev.track]; ok {
		ev.order = t.order
	}
	s.seq++
	ev.seq = s.seq
	heap.Push(&s.queue, ev)
}

func (s *Sequencer) expandSlot(t *Track, bps float64) {
	top := t.cursor
	start := t.nextBeat
	lag := int64(math.Round(t.lag.At(top, 0) * float64(s.sampleRate)))
	gate := t.sustain.At(top, 1)
	steps := t.steps
	if len(steps) == 0 {
		steps = []pattern.Step{pattern.Rest()}
	}
	sib := siblings{steps: steps, index: top % len(steps)}
	s.expand(t, sib, top, start, start, t.subdivision, bps, lag, gate)
	s.push(event{
		at:       s.sampleAt(start, bps) + lag,
		kind:     evHook,
		track:    t.index,
		top:      top,
		slotBeat: start,
		beat:     start,
	})
	t.nextBeat = start + t.subdivision
	t.cursor = (top + 1) % t.length()
}

// siblings locates a step within its level so holds can look around it.
type siblings struct {
	steps []pattern.Step
	index int
}

func (sb siblings) step() pattern.Step { return sb.steps[sb.index] }

// holdsAfter counts the holds directly following the step.
func (sb siblings) holdsAfter() int {
	n := 0
	for j := sb.index + 1; j < len(sb.steps) && sb.steps[j].Kind == pattern.KindHold; j++ {
		n++
	}
	return n
}

// covered reports whether a hold already belongs to the sustain of an
// onset earlier in the same level.
func (sb siblings) covered() bool {
	k := sb.index - 1
	for k >= 0 && sb.steps[k].Kind == pattern.KindHold {
		k--
	}
	return k >= 0 && sb.steps[k].IsOnset()
}

func (s *Sequencer) expand(t *Track, sb siblings, top int, slotBeat, beat, span, bps float64, lag int64, gate float64) {
	st := sb.step()
	switch st.Kind {
	case pattern.KindGroup:
		n := len(st.Children)
		if n == 0 {
			return
		}
		child := span / float64(n)
		for j := range st.Children {
			s.expand(t, siblings{steps: st.Children, index: j}, top, slotBeat, beat+float64(j)*child, child, bps, lag, gate)
		}
	case pattern.KindRest:
	case pattern.KindHold:
		if sb.covered() {
			return
		}
		// One sample early so the extension lands before the note's own
		// scheduled release at the same instant.
		s.push(event{
			at:       s.sampleAt(beat, bps) + lag - 1,
			kind:     evHold,
			track:    t.index,
			top:      top,
			slotBeat: slotBeat,
			beat:     beat,
			holdEnd:  s.sampleAt(beat+span, bps) + lag,
		})
	default:
		held := span * float64(1+sb.holdsAfter())
		sustain := int64(math.Round(gate * held / bps))
		if sustain < 1 {
			sustain = 1
		}
		s.push(event{
			at:       s.sampleAt(beat, bps) + lag,
			kind:     evNote,
			track:    t.index,
			top:      top,
			slotBeat: slotBeat,
			beat:     beat,
			step:     st,
			sustain:  sustain,
		})
	}
}

func (s *Sequencer) dispatch(ev event) {
	t, ok := s.byIndex[ev.track]
	if !ok {
		return
	}
	switch ev.kind {
	case evHook:
		s.fired = append(s.fired, TickInfo{Track: ev.track, Step: ev.top, At: ev.at, Beat: ev.beat})
	case evHold:
		if ev.holdEnd > t.lastUntil && s.alloc.Extend(t.lastHandles, ev.holdEnd-t.lastUntil) {
			t.lastUntil = ev.holdEnd
		}
	case evNote:
		s.trigger(t, ev)
	}
}

func (s *Sequencer) trigger(t *Track, ev event) {
	vals := ev.step.Values()
	if ev.step.Kind == pattern.KindWildcard {
		vals = s.resolveWildcard(t)
	}
	if len(vals) == 0 {
		return
	}
	s.refreshSnapshot()
	pitches := make([]float64, 0, len(vals))
	for _, v := range vals {
		p, err := s.resolve(t, v, ev)
		if err != nil {
			s.log.Debug("step resolved to rest", "track", t.index, "step", ev.top, "err", err)
			return
		}
		pitches = append(pitches, p)
	}
	vel := t.velocity.At(ev.top, 100)
	handles := s.alloc.Trigger(t.index, pitches, vel, ev.sustain, ev.at)
	t.lastHandles = handles
	t.lastUntil = ev.at + ev.sustain
	if t.ornament != 0 {
		s.alloc.Ornament(handles, t.ornament)
	}
}

func (s *Sequencer) resolveWildcard(t *Track) []pattern.Value {
	mode := t.wildcard.Mode
	if mode == WildcardDefault {
		mode = WildcardSkip
		if t.kind == Percussive {
			mode = WildcardRandom
		}
	}
	switch mode {
	case WildcardRandom:
		cands := t.wildcardValues()
		return []pattern.Value{cands[s.rng.Intn(len(cands))]}
	case WildcardChance:
		if s.rng.Float64() < t.wildcard.Probability {
			return []pattern.Value{t.wildcardValues()[0]}
		}
	}
	return nil
}

func (s *Sequencer) resolve(t *Track, v pattern.Value, ev event) (float64, error) {
	var pitch float64
	switch {
	case t.kind == Percussive && v.IsSymbol():
		n, ok := GetKit(t.kit).Note(v.Symbol)
		if !ok {
			return 0, &theory.ResolutionError{Msg: "unknown percussion symbol " + v.Symbol}
		}
		pitch = float64(n)
	case v.IsSymbol():
		return 0, &theory.ResolutionError{Msg: "symbol " + v.Symbol + " on a melodic track"}
	case t.kind == Percussive || v.Abs:
		pitch = v.Num
	default:
		degree := int(math.Round(v.Num))
		p, err := s.snap.Resolve(degree, ev.beat)
		if err != nil {
			return 0, err
		}
		pitch = p + t.octave.At(ev.top, 0)*s.snap.PeriodSemitones()
	}
	if pitch < 0 || pitch > 127 {
		return 0, &theory.ResolutionError{Degree: int(v.Num), Msg: "pitch out of range"}
	}
	return pitch, nil
}
