// Package view holds the host-content visibility state shared by the page and the host application.
package view

import (
	"fmt"
	"log/slog"
	"sync"
)

const logPrefix = "view:state"

// Source records who requested a visibility change.
type Source string

const (
	SourcePage Source = "page"
	SourceHost Source = "host"
	SourceGate Source = "gate"
)

// Listener is called after every visibility change.
type Listener func(visible bool, source Source)

// State is the host content's visibility. Content starts hidden.
type State struct {
	mu        sync.Mutex
	visible   bool
	listeners []Listener
}

// NewState creates a hidden State.
func NewState() *State {
	return &State{}
}

// OnChange registers a listener.
func (s *State) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Show presents host content on behalf of the page.
func (s *State) Show() { s.Set(true, SourcePage) }

// Hide hides host content on behalf of the page.
func (s *State) Hide() { s.Set(false, SourcePage) }

// Visible reports whether host content is presented.
func (s *State) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Set changes visibility and notifies listeners when it actually changed.
func (s *State) Set(visible bool, source Source) {
	s.mu.Lock()
	changed := s.visible != visible
	s.visible = visible
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if !changed {
		return
	}
	slog.Debug(fmt.Sprintf("%s - visible=%t source=%s", logPrefix, visible, source))
	for _, l := range listeners {
		l(visible, source)
	}
}

// Presenter adapts State for a fixed source.
type Presenter struct {
	state  *State
	source Source
}

// As returns a Presenter that attributes changes to source.
func (s *State) As(source Source) *Presenter {
	return &Presenter{state: s, source: source}
}

// Show presents host content.
func (p *Presenter) Show() { p.state.Set(true, p.source) }

// Hide hides host content.
func (p *Presenter) Hide() { p.state.Set(false, p.source) }

// Visible reports whether host content is presented.
func (p *Presenter) Visible() bool { return p.state.Visible() }
