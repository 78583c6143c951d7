package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Edit   key.Binding
	Toggle key.Binding
	Clear  key.Binding
	Faster key.Binding
	Slower key.Binding
	Panic  key.Binding
	Help   key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev track")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next track")),
	Edit:   key.NewBinding(key.WithKeys("enter", "e"), key.WithHelp("enter", "edit pattern")),
	Toggle: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "start/stop")),
	Clear:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
	Faster: key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "tempo up")),
	Slower: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "tempo down")),
	Panic:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop all")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Edit, k.Toggle, k.Faster, k.Slower, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Edit},
		{k.Toggle, k.Clear, k.Panic},
		{k.Faster, k.Slower, k.Help, k.Quit},
	}
}
