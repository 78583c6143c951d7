package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/pkg/errors"
)

// Source fills interleaved stereo float frames. The sequencer is one.
type Source interface {
	Process(dst []float32)
}

// StreamReader adapts a Source to the little-endian float32 byte stream
// ebiten's audio player pulls from.
type StreamReader struct {
	mu     sync.Mutex
	source Source
	buf    []float32
	tap    func([]float32)
	gain   atomic.Uint64
	frames atomic.Int64
	closed bool
}

func NewStreamReader(source Source) *StreamReader {
	r := &StreamReader{source: source}
	r.SetGain(1)
	return r
}

// SetTap installs a callback that sees every rendered buffer after gain.
// It runs on the audio thread.
func (r *StreamReader) SetTap(tap func([]float32)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tap = tap
}

func (r *StreamReader) SetGain(g float64) {
	if g < 0 {
		g = 0
	}
	r.gain.Store(math.Float64bits(g))
}

func (r *StreamReader) Gain() float64 { return math.Float64frombits(r.gain.Load()) }

// Frames returns how many frames were rendered so far.
func (r *StreamReader) Frames() int64 { return r.frames.Load() }

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	g := float32(r.Gain())
	for i, s := range r.buf {
		s *= g
		r.buf[i] = s
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	if r.tap != nil {
		r.tap(r.buf)
	}
	r.frames.Add(int64(frames))
	return frames * 8, nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Player plays a Source on the shared ebiten audio context.
type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	contextOnce sync.Once
	context     *ebitaudio.Context
	contextRate int
)

func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		contextRate = sampleRate
		context = ebitaudio.NewContext(sampleRate)
	})
	if contextRate != sampleRate {
		return nil, errors.Errorf("audio: context already running at %d Hz, requested %d Hz", contextRate, sampleRate)
	}
	return context, nil
}

func NewPlayer(sampleRate int, source Source) (*Player, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, errors.Wrap(err, "audio: new player")
	}
	// keep output latency near the scheduler lookahead
	pl.SetBufferSize(50 * time.Millisecond)
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Reader() *StreamReader { return p.reader }

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

// Position is what the listener hears now, behind the render clock by the
// driver's buffer.
func (p *Player) Position() time.Duration { return p.player.Position() }

func (p *Player) Close() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return errors.Wrap(err, "audio: close player")
	}
	return p.reader.Close()
}
