package voice

import (
	"sync"

	"github.com/pkg/errors"
)

// Multi fans every voice command out to several synths, for example an
// audio engine and a MIDI port. Members that render audio are mixed.
type Multi struct {
	mu     sync.Mutex
	synths []Synth
}

func NewMulti(synths ...Synth) *Multi {
	m := &Multi{}
	for _, s := range synths {
		if s != nil {
			m.synths = append(m.synths, s)
		}
	}
	return m
}

// Add registers another member.
func (m *Multi) Add(s Synth) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synths = append(m.synths, s)
}

func (m *Multi) members() []Synth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Synth(nil), m.synths...)
}

func (m *Multi) TriggerAttack(v int, pitch, velocity float64, at int64) {
	for _, s := range m.members() {
		s.TriggerAttack(v, pitch, velocity, at)
	}
}

func (m *Multi) TriggerRelease(v int, at int64) {
	for _, s := range m.members() {
		s.TriggerRelease(v, at)
	}
}

// Connect routes every member to dst and reports the first failure.
func (m *Multi) Connect(dst Destination) error {
	var first error
	for i, s := range m.members() {
		if err := s.Connect(dst); err != nil && first == nil {
			first = errors.Wrapf(err, "connect member %d", i)
		}
	}
	return first
}

func (m *Multi) SetOrnament(v int, depth float64) {
	for _, s := range m.members() {
		if o, ok := s.(Ornamenter); ok {
			o.SetOrnament(v, depth)
		}
	}
}

func (m *Multi) RenderFrame() (float32, float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var l, r float32
	for _, s := range m.synths {
		if fr, ok := s.(interface{ RenderFrame() (float32, float32) }); ok {
			el, er := fr.RenderFrame()
			l += el
			r += er
		}
	}
	return l, r
}

// SetClock forwards to members that keep their own frame clock.
func (m *Multi) SetClock(now int64) {
	for _, s := range m.members() {
		if c, ok := s.(interface{ SetClock(now int64) }); ok {
			c.SetClock(now)
		}
	}
}
