// Package tui is a terminal front end for live-coding tracks.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/stepseq"
	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/sequencer"
	"github.com/cbegin/stepseq/internal/theory"
)

const trackRows = 8

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("86"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

type tickMsg sequencer.TickInfo

type Model struct {
	engine   *stepseq.Engine
	ticks    chan sequencer.TickInfo
	unhook   func()
	selected int
	cursors  map[int]int
	input    textinput.Model
	editing  bool
	help     help.Model
	status   string
	err      error
	quitting bool
}

// NewModel subscribes to the engine's tick hooks. Close removes the
// subscription.
func NewModel(e *stepseq.Engine) *Model {
	in := textinput.New()
	in.Placeholder = "0 2 [4 5] ?"
	in.CharLimit = 512
	m := &Model{
		engine:  e,
		ticks:   make(chan sequencer.TickInfo, 256),
		cursors: map[int]int{},
		input:   in,
		help:    help.New(),
	}
	m.unhook = e.OnTick(func(info sequencer.TickInfo) {
		select {
		case m.ticks <- info:
		default:
		}
	})
	return m
}

func (m *Model) Close() {
	if m.unhook != nil {
		m.unhook()
		m.unhook = nil
	}
}

func listenForTicks(ch <-chan sequencer.TickInfo) tea.Cmd {
	return func() tea.Msg {
		return tickMsg(<-ch)
	}
}

func (m *Model) Init() tea.Cmd {
	return listenForTicks(m.ticks)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.cursors[msg.Track] = msg.Step
		return m, listenForTicks(m.ticks)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.editing = false
		m.input.Blur()
		m.err = m.engine.Sequence(m.selected, m.input.Value(), 0)
		if m.err == nil {
			m.status = fmt.Sprintf("track %d updated", m.selected)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		m.engine.StopAll()
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, keys.Down):
		if m.selected < trackRows-1 {
			m.selected++
		}
	case key.Matches(msg, keys.Edit):
		m.editing = true
		text := ""
		if st, ok := m.engine.Sequencer().Track(m.selected); ok {
			text = st.Text
		}
		m.input.SetValue(text)
		m.input.CursorEnd()
		return m, m.input.Focus()
	case key.Matches(msg, keys.Toggle):
		st, ok := m.engine.Sequencer().Track(m.selected)
		if ok && st.Running {
			m.engine.Stop(m.selected)
		} else {
			m.engine.Start(m.selected)
		}
	case key.Matches(msg, keys.Clear):
		m.engine.Clear(m.selected)
		delete(m.cursors, m.selected)
	case key.Matches(msg, keys.Faster):
		m.err = m.engine.Theory().SetTempo(m.engine.Theory().Tempo() + 5)
	case key.Matches(msg, keys.Slower):
		m.err = m.engine.Theory().SetTempo(m.engine.Theory().Tempo() - 5)
	case key.Matches(msg, keys.Panic):
		m.engine.StopAll()
		m.status = "stopped all tracks"
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.header()))
	b.WriteString("\n\n")

	tracks := map[int]sequencer.TrackStatus{}
	for _, st := range m.engine.Tracks() {
		tracks[st.Index] = st
	}
	for i := 0; i < trackRows; i++ {
		st, ok := tracks[i]
		b.WriteString(m.row(i, st, ok))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	switch {
	case m.editing:
		b.WriteString(fmt.Sprintf("track %d> %s\n", m.selected, m.input.View()))
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	case m.status != "":
		b.WriteString(dimStyle.Render(m.status) + "\n")
	}
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m *Model) header() string {
	snap := m.engine.Theory().Snapshot()
	beat := m.engine.Sequencer().Beat()
	scale := snap.ScaleName()
	if scale == "" {
		scale = snap.Temperament().Name
	}
	h := fmt.Sprintf("stepseq  %3.0fbpm  %s %s  beat %6.2f", snap.Tempo(), theory.NoteName(snap.RootNote()), scale, beat)
	if chord, ok := snap.ChordAt(beat); ok {
		h += "  " + chord.Text
	}
	return h
}

func (m *Model) row(i int, st sequencer.TrackStatus, ok bool) string {
	label := fmt.Sprintf(" %d ", i)
	if i == m.selected {
		label = selectStyle.Render(label)
	}
	if !ok || len(st.Steps) == 0 {
		return label + dimStyle.Render(" ·")
	}
	state := dimStyle.Render("■")
	if st.Running {
		state = runningStyle.Render("▶")
	}
	cur, seen := m.cursors[i]
	cells := make([]string, len(st.Steps))
	for k, s := range st.Steps {
		cell := pattern.Format([]pattern.Step{s})
		if st.Running && seen && k == cur {
			cell = cursorStyle.Render(cell)
		}
		cells[k] = cell
	}
	kind := ""
	if st.Kind == sequencer.Percussive {
		kind = dimStyle.Render(" " + st.Kit)
	}
	return fmt.Sprintf("%s %s %s%s", label, state, strings.Join(cells, " "), kind)
}

// Run drives the model until the user quits.
func Run(e *stepseq.Engine) error {
	m := NewModel(e)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
