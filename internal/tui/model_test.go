package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cbegin/stepseq"
	"github.com/cbegin/stepseq/internal/sequencer"
	"github.com/cbegin/stepseq/internal/theory"
)

func newModel(t *testing.T) *Model {
	t.Helper()
	e, err := stepseq.New(stepseq.WithTheory(theory.New()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	m := NewModel(e)
	t.Cleanup(m.Close)
	return m
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func press(m *Model, msgs ...tea.Msg) {
	for _, msg := range msgs {
		m.Update(msg)
	}
}

func TestEditPatternFromKeyboard(t *testing.T) {
	m := newModel(t)
	press(m, runes("j"), tea.KeyMsg{Type: tea.KeyEnter})
	if !m.editing || m.selected != 1 {
		t.Fatalf("expected editing track 1, got editing=%v selected=%d", m.editing, m.selected)
	}
	press(m, runes("0 2 4"), tea.KeyMsg{Type: tea.KeyEnter})
	st, ok := m.engine.Sequencer().Track(1)
	if !ok || st.Text != "0 2 4" || !st.Running {
		t.Fatalf("track not sequenced: %+v", st)
	}
	if m.editing {
		t.Fatalf("still editing after enter")
	}
	if !strings.Contains(m.View(), "0 2 4") {
		t.Fatalf("view missing pattern:\n%s", m.View())
	}
}

func TestEditShowsParseError(t *testing.T) {
	m := newModel(t)
	press(m, tea.KeyMsg{Type: tea.KeyEnter}, runes("[0"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.err == nil || !strings.Contains(m.View(), "unclosed") {
		t.Fatalf("expected parse error in view, err=%v", m.err)
	}
}

func TestEscapeCancelsEdit(t *testing.T) {
	m := newModel(t)
	press(m, tea.KeyMsg{Type: tea.KeyEnter}, runes("0"), tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.engine.Sequencer().Track(0); ok {
		t.Fatalf("escape should not sequence")
	}
}

func TestTransportKeys(t *testing.T) {
	m := newModel(t)
	if err := m.engine.Sequence(0, "0 1", 0); err != nil {
		t.Fatalf("sequence: %v", err)
	}
	press(m, runes(" "))
	if st, _ := m.engine.Sequencer().Track(0); st.Running {
		t.Fatalf("space should stop a running track")
	}
	press(m, runes(" "))
	if st, _ := m.engine.Sequencer().Track(0); !st.Running {
		t.Fatalf("space should start a stopped track")
	}
	press(m, runes("+"), runes("+"), runes("-"))
	if got := m.engine.Theory().Tempo(); got != 125 {
		t.Fatalf("tempo = %v, want 125", got)
	}
	press(m, runes("x"))
	if st, _ := m.engine.Sequencer().Track(0); len(st.Steps) != 0 {
		t.Fatalf("x should clear the track")
	}
}

func TestTickMovesCursor(t *testing.T) {
	m := newModel(t)
	if err := m.engine.Sequence(0, "0 1 2", 0.5); err != nil {
		t.Fatalf("sequence: %v", err)
	}
	m.engine.Advance(13000)
	for len(m.ticks) > 0 {
		press(m, tickMsg(<-m.ticks))
	}
	if m.cursors[0] != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursors[0])
	}
	press(m, tickMsg(sequencer.TickInfo{Track: 0, Step: 2}))
	if m.cursors[0] != 2 {
		t.Fatalf("tick message not applied")
	}
}

func TestQuit(t *testing.T) {
	m := newModel(t)
	_, cmd := m.Update(runes("q"))
	if cmd == nil || m.View() != "" {
		t.Fatalf("expected quit command and empty view")
	}
}
