package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/librescoot/libreflux"
)

// Machine is a runtime instance of a Definition. Every trigger of the
// definition is registered as one reducer on the machine's store, so
// transitions are processed one at a time in dispatch order.
type Machine struct {
	table *table
	store *libreflux.Store[StateStore]

	data                any
	logger              *slog.Logger
	registry            *libreflux.Registry
	stateChangeCallback func(from, to StateID)
	storeOpts           []libreflux.Option
	hooks               []*StatusHook

	startOnce sync.Once
	startErr  error

	// entries counts state entries; state-scoped timers carry the count
	// they were started under
	entries atomic.Uint64

	timers  map[string]*timerEntry
	timerMu sync.Mutex
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithLogger sets the logger for the machine and its store
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithData sets the application data accessible via Context
func WithData(data any) MachineOption {
	return func(m *Machine) {
		m.data = data
	}
}

// WithStateChangeCallback sets a callback invoked after each state change
func WithStateChangeCallback(fn func(from, to StateID)) MachineOption {
	return func(m *Machine) {
		m.stateChangeCallback = fn
	}
}

// WithRegistry sets the registry triggers are recorded in and checked against
func WithRegistry(r *libreflux.Registry) MachineOption {
	return func(m *Machine) {
		m.registry = r
	}
}

// WithStoreOptions passes options through to the underlying store
func WithStoreOptions(opts ...libreflux.Option) MachineOption {
	return func(m *Machine) {
		m.storeOpts = append(m.storeOpts, opts...)
	}
}

// WithHook attaches a status hook. The hook holds the initial state before
// Run and is updated after every applied trigger.
func WithHook(h *StatusHook) MachineOption {
	return func(m *Machine) {
		m.hooks = append(m.hooks, h)
	}
}

func newMachine(t *table, opts ...MachineOption) *Machine {
	m := &Machine{
		table:    t,
		logger:   Logger,
		registry: libreflux.DefaultRegistry,
		timers:   make(map[string]*timerEntry),
	}

	for _, opt := range opts {
		opt(m)
	}

	// StateStore is a value and effects never shift, so isolation is not needed
	storeOpts := []libreflux.Option{
		libreflux.WithLogger(m.logger),
		libreflux.WithRegistry(m.registry),
	}
	storeOpts = append(storeOpts, m.storeOpts...)
	storeOpts = append(storeOpts, libreflux.WithUnsafe())

	m.store = libreflux.New(StateStore{Current: t.initial}, storeOpts...)
	for _, trigger := range t.triggers {
		m.store.Reducer(string(trigger), m.reduce)
	}
	for _, h := range m.hooks {
		h.attach(m.store)
	}

	return m
}

// OnStateChange sets a callback invoked after each state change.
// Can be called after Build() but before Run().
func (m *Machine) OnStateChange(fn func(from, to StateID)) {
	m.stateChangeCallback = fn
}

// Effect registers fn to observe the machine after trigger was processed.
// Effects see the committed state and may call Trigger.
func (m *Machine) Effect(trigger Trigger, fn func(ctx context.Context, s StateStore) error) {
	m.store.Effect(string(trigger), fn)
}

// Subscribe registers fn to observe every applied trigger
func (m *Machine) Subscribe(fn func(action libreflux.Action, s StateStore)) {
	m.store.Subscribe(fn)
}

// Run enters the initial state and starts processing triggers.
// Calling Run on a running machine is a no-op; after Done it returns
// libreflux.ErrStoreClosed.
func (m *Machine) Run(ctx context.Context) error {
	m.startOnce.Do(func() {
		s := m.store.State()
		c := m.makeContext(ctx, &s, libreflux.Action{})
		if err := m.enterState(c, s.Current); err != nil {
			m.startErr = fmt.Errorf("failed to enter initial state: %w", err)
		}
	})
	if m.startErr != nil {
		return m.startErr
	}
	return m.store.Run(ctx)
}

// Done waits until every queued trigger, including those sent by hooks
// and effects, has been processed, then stops all timers.
func (m *Machine) Done(ctx context.Context) error {
	err := m.store.Done(ctx)
	m.StopAllTimers()
	return err
}

// Trigger queues name for processing. A name no handler is registered for
// is logged and dropped.
func (m *Machine) Trigger(name Trigger, payload libreflux.Data) error {
	if !m.store.Registry().Known(string(name)) {
		m.logger.Error("no trigger found", "trigger", name, "machine", m.table.name)
		return nil
	}
	return m.store.Dispatch(string(name), payload)
}

// Name returns the definition name
func (m *Machine) Name() string {
	return m.table.name
}

// Current returns a copy of the current state
func (m *Machine) Current() State {
	return *m.table.states[m.store.State().Current]
}

// CurrentState returns the current state ID
func (m *Machine) CurrentState() StateID {
	return m.store.State().Current
}

// Previous returns the state before the most recent shift, or "" if none
func (m *Machine) Previous() StateID {
	return m.store.State().Previous
}

// Snapshot returns the committed state payload
func (m *Machine) Snapshot() StateStore {
	return m.store.State()
}

// IsInState checks if the given state is the current state
func (m *Machine) IsInState(id StateID) bool {
	return m.store.State().Current == id
}

// reduce is registered once per trigger
func (m *Machine) reduce(ctx context.Context, s StateStore, action libreflux.Action) (StateStore, error) {
	trigger := Trigger(action.Type)

	m.logger.Debug("processing trigger", "trigger", trigger, "state", s.Current)

	if epoch := libreflux.Value(action, timerEpochKey, uint64(0)); epoch != 0 && epoch != m.entries.Load() {
		m.logger.Debug("stale timer trigger dropped", "trigger", trigger, "state", s.Current)
		return s, nil
	}

	transitions := m.table.candidates(s.Current, trigger)
	if len(transitions) == 0 {
		m.logger.Debug("no transition found", "trigger", trigger, "state", s.Current)
		return s, nil
	}

	c := m.makeContext(ctx, &s, action)
	for _, t := range transitions {
		if t.Guard != nil && !t.Guard(c) {
			m.logger.Debug("guard rejected transition", "trigger", trigger, "from", s.Current, "to", t.To)
			continue
		}
		if err := m.executeTransition(c, t); err != nil {
			return s, err
		}
		return s, nil
	}

	m.logger.Debug("all guards rejected", "trigger", trigger, "state", s.Current)
	return s, nil
}

// executeTransition runs exit, action, shift, entry and after-hooks in order
func (m *Machine) executeTransition(c *Context, t *Transition) error {
	fromState := c.state.Current
	toState := t.To
	c.FromState = fromState
	c.ToState = toState

	m.logger.Debug("executing transition", "trigger", c.Trigger, "from", fromState, "to", toState)

	if err := m.exitState(c, fromState); err != nil {
		return fmt.Errorf("exit failed: %w", err)
	}

	if t.Action != nil {
		if err := t.Action(c); err != nil {
			return fmt.Errorf("transition action failed: %w", err)
		}
	}

	c.state.Shift(toState)

	if err := m.enterState(c, toState); err != nil {
		return fmt.Errorf("enter failed: %w", err)
	}

	for i, hook := range m.table.afters[c.Trigger] {
		if err := hook(c); err != nil {
			return fmt.Errorf("after %s hook %d failed: %w", c.Trigger, i, err)
		}
	}

	if m.stateChangeCallback != nil && fromState != toState {
		m.stateChangeCallback(fromState, toState)
	}

	return nil
}

// enterState runs the entry action and starts the declarative timeout
func (m *Machine) enterState(c *Context, id StateID) error {
	state := m.table.states[id]
	if state == nil {
		return fmt.Errorf("state %q not found", id)
	}

	m.logger.Debug("entering state", "state", id)
	m.entries.Add(1)

	if state.Timeout > 0 && state.TimeoutTrigger != "" {
		m.startTimerInternal(timeoutTimerName(id), state.Timeout, state.TimeoutTrigger, nil, TimerScopeState, id)
	}

	if state.OnEnter != nil {
		if err := state.OnEnter(c); err != nil {
			return fmt.Errorf("entry action failed for %q: %w", id, err)
		}
	}

	return nil
}

// exitState cancels the state's timers and runs its exit action
func (m *Machine) exitState(c *Context, id StateID) error {
	state := m.table.states[id]
	if state == nil {
		return nil
	}

	m.logger.Debug("exiting state", "state", id)

	m.cleanupTimersForState(id)

	if state.OnExit != nil {
		if err := state.OnExit(c); err != nil {
			return fmt.Errorf("exit action failed for %q: %w", id, err)
		}
	}

	return nil
}

// makeContext creates a context for callbacks
func (m *Machine) makeContext(ctx context.Context, s *StateStore, action libreflux.Action) *Context {
	payload := action.Data()
	delete(payload, timerEpochKey)
	return &Context{
		Ctx:     ctx,
		FSM:     m,
		Trigger: Trigger(action.Type),
		Payload: payload,
		Data:    m.data,
		Logger:  m.logger,
		state:   s,
	}
}

func timeoutTimerName(id StateID) string {
	return fmt.Sprintf("_timeout_%s", id)
}
