package fsm

import "time"

// State defines a state in the machine
type State struct {
	ID      StateID
	Name    string
	Initial bool

	OnEnter func(ctx *Context) error
	OnExit  func(ctx *Context) error

	// Declarative timeout: auto-started on entry, auto-cancelled on exit
	Timeout        time.Duration
	TimeoutTrigger Trigger
}

func (s *State) String() string {
	return string(s.ID)
}

// StateOption is a functional option for configuring a State
type StateOption func(*State)

// WithID overrides the ID derived from the state name
func WithID(id StateID) StateOption {
	return func(s *State) {
		s.ID = id
	}
}

// AsInitial marks the state as the machine's initial state
func AsInitial() StateOption {
	return func(s *State) {
		s.Initial = true
	}
}

// WithOnEnter sets the entry action for the state
func WithOnEnter(fn func(*Context) error) StateOption {
	return func(s *State) {
		s.OnEnter = fn
	}
}

// WithOnExit sets the exit action for the state
func WithOnExit(fn func(*Context) error) StateOption {
	return func(s *State) {
		s.OnExit = fn
	}
}

// WithTimeout fires trigger if the state is still active after duration
func WithTimeout(duration time.Duration, trigger Trigger) StateOption {
	return func(s *State) {
		s.Timeout = duration
		s.TimeoutTrigger = trigger
	}
}

// StateStore is the state payload held by a machine's store.
// Shift is the only mutation.
type StateStore struct {
	Current  StateID
	Previous StateID // empty before the first shift
}

// Shift moves to id, remembering the state it left
func (s *StateStore) Shift(id StateID) {
	s.Previous = s.Current
	s.Current = id
}

// HasPrevious reports whether a shift has happened
func (s StateStore) HasPrevious() bool {
	return s.Previous != ""
}
