package fsm

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Definition describes a machine type: its states, transitions and
// after-hooks. It is compiled once, on the first Build, and every machine
// built from it shares the compiled table. Do not modify a definition
// after the first Build.
type Definition struct {
	name        string
	states      map[StateID]*State
	order       []StateID
	initials    []StateID
	transitions []*Transition
	afters      map[Trigger][]Hook
	errs        []error

	once  sync.Once
	table *table
	err   error
}

// NewDefinition creates a new machine definition builder
func NewDefinition(name string) *Definition {
	return &Definition{
		name:   name,
		states: make(map[StateID]*State),
		afters: make(map[Trigger][]Hook),
	}
}

// Name returns the machine type name
func (d *Definition) Name() string {
	return d.name
}

// State adds a state. Its ID is the lower-cased name unless WithID is given.
func (d *Definition) State(name string, opts ...StateOption) *Definition {
	s := &State{
		ID:   StateID(strings.ToLower(name)),
		Name: name,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := d.states[s.ID]; ok {
		d.errs = append(d.errs, fmt.Errorf("%w: %q", ErrDuplicateState, s.ID))
		return d
	}
	d.states[s.ID] = s
	d.order = append(d.order, s.ID)
	return d
}

// Initial marks an already declared or later declared state as initial
func (d *Definition) Initial(id StateID) *Definition {
	d.initials = append(d.initials, id)
	return d
}

// Transition adds a transition rule. Several rules for the same source and
// trigger are tried in declaration order until a guard passes.
func (d *Definition) Transition(from StateID, trigger Trigger, to StateID, opts ...TransitionOption) *Definition {
	t := &Transition{
		From:     from,
		To:       to,
		Triggers: []Trigger{trigger},
	}
	for _, opt := range opts {
		opt(t)
	}
	d.transitions = append(d.transitions, t)
	return d
}

// AnyStateTransition adds a transition that can fire from any state.
// Transitions declared on the current state take precedence.
func (d *Definition) AnyStateTransition(trigger Trigger, to StateID, opts ...TransitionOption) *Definition {
	return d.Transition(WildcardState, trigger, to, opts...)
}

// After registers a hook run after every transition caused by trigger,
// once the machine has shifted to the target state.
func (d *Definition) After(trigger Trigger, hook Hook) *Definition {
	d.afters[trigger] = append(d.afters[trigger], hook)
	return d
}

// Validate checks the definition for errors
func (d *Definition) Validate() error {
	if len(d.errs) > 0 {
		return d.configError(d.errs[0], "")
	}

	if _, err := d.initialState(); err != nil {
		return err
	}

	// Check all transition endpoints are valid
	for _, t := range d.transitions {
		if t.From != WildcardState {
			if _, ok := d.states[t.From]; !ok {
				return d.configError(ErrUndefinedState, fmt.Sprintf("transition from %q", t.From))
			}
		}
		if _, ok := d.states[t.To]; !ok {
			return d.configError(ErrUndefinedState, fmt.Sprintf("transition to %q", t.To))
		}
		for _, trigger := range t.Triggers {
			if trigger == "" {
				return d.configError(ErrInvalidTransition, fmt.Sprintf("empty trigger from %q", t.From))
			}
		}
	}

	// After-hooks and timeouts must name a trigger some transition reacts to
	for trigger := range d.afters {
		if !d.reactsTo(trigger) {
			return d.configError(ErrInvalidTransition, fmt.Sprintf("after-hook for unknown trigger %q", trigger))
		}
	}
	for _, id := range d.order {
		s := d.states[id]
		if s.Timeout > 0 && !d.reactsTo(s.TimeoutTrigger) {
			return d.configError(ErrInvalidTransition, fmt.Sprintf("timeout of state %q fires unknown trigger %q", id, s.TimeoutTrigger))
		}
	}

	return nil
}

func (d *Definition) reactsTo(trigger Trigger) bool {
	return slices.ContainsFunc(d.transitions, func(t *Transition) bool { return t.hasTrigger(trigger) })
}

// initialState enforces exactly one initial state
func (d *Definition) initialState() (StateID, error) {
	var initials []StateID
	for _, id := range d.order {
		if d.states[id].Initial {
			initials = append(initials, id)
		}
	}
	for _, id := range d.initials {
		if _, ok := d.states[id]; !ok {
			return "", d.configError(ErrUndefinedState, fmt.Sprintf("initial state %q", id))
		}
		if !slices.Contains(initials, id) {
			initials = append(initials, id)
		}
	}

	switch len(initials) {
	case 0:
		return "", d.configError(ErrNoInitialState, "")
	case 1:
		return initials[0], nil
	default:
		return "", d.configError(ErrMultipleInitialStates, fmt.Sprintf("%v", initials))
	}
}

func (d *Definition) configError(err error, detail string) error {
	return &StateError{Machine: d.name, Err: err, Detail: detail}
}

// Compile validates the definition and builds its transition table. The
// result is memoized; later calls return the same table or error.
func (d *Definition) Compile() error {
	_, err := d.compile()
	return err
}

func (d *Definition) compile() (*table, error) {
	d.once.Do(func() {
		if err := d.Validate(); err != nil {
			d.err = err
			return
		}
		d.table = newTable(d)
	})
	return d.table, d.err
}

// Build compiles the definition (first call only) and creates a new
// machine instance sharing the compiled table.
func (d *Definition) Build(opts ...MachineOption) (*Machine, error) {
	t, err := d.compile()
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	return newMachine(t, opts...), nil
}

// Triggers returns every trigger name of the compiled definition
func (d *Definition) Triggers() ([]Trigger, error) {
	t, err := d.compile()
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.triggers), nil
}

// States returns the compiled states in declaration order
func (d *Definition) States() ([]State, error) {
	t, err := d.compile()
	if err != nil {
		return nil, err
	}
	states := make([]State, 0, len(t.order))
	for _, id := range t.order {
		states = append(states, *t.states[id])
	}
	return states, nil
}

// table is the immutable compiled form of a Definition
type table struct {
	name      string
	states    map[StateID]*State
	order     []StateID
	initial   StateID
	bySource  map[StateID]map[Trigger][]*Transition
	wildcard  map[Trigger][]*Transition
	byTrigger map[Trigger][]*Transition
	afters    map[Trigger][]Hook
	triggers  []Trigger
}

func newTable(d *Definition) *table {
	initial, _ := d.initialState()

	t := &table{
		name:      d.name,
		states:    make(map[StateID]*State, len(d.states)),
		order:     slices.Clone(d.order),
		initial:   initial,
		bySource:  make(map[StateID]map[Trigger][]*Transition),
		wildcard:  make(map[Trigger][]*Transition),
		byTrigger: make(map[Trigger][]*Transition),
		afters:    make(map[Trigger][]Hook, len(d.afters)),
	}

	for id, s := range d.states {
		cp := *s
		cp.Initial = id == initial
		t.states[id] = &cp
	}

	for _, tr := range d.transitions {
		cp := *tr
		cp.Triggers = slices.Clone(tr.Triggers)
		for _, trigger := range cp.Triggers {
			if cp.From == WildcardState {
				t.wildcard[trigger] = append(t.wildcard[trigger], &cp)
			} else {
				if t.bySource[cp.From] == nil {
					t.bySource[cp.From] = make(map[Trigger][]*Transition)
				}
				t.bySource[cp.From][trigger] = append(t.bySource[cp.From][trigger], &cp)
			}
			if len(t.byTrigger[trigger]) == 0 {
				t.triggers = append(t.triggers, trigger)
			}
			t.byTrigger[trigger] = append(t.byTrigger[trigger], &cp)
		}
	}
	slices.Sort(t.triggers)

	for trigger, hooks := range d.afters {
		t.afters[trigger] = slices.Clone(hooks)
	}

	return t
}

// candidates returns the transitions for trigger from current, in
// priority order: the state's own transitions, then wildcards.
func (t *table) candidates(current StateID, trigger Trigger) []*Transition {
	own := t.bySource[current][trigger]
	wild := t.wildcard[trigger]
	if len(wild) == 0 {
		return own
	}
	return append(slices.Clone(own), wild...)
}
