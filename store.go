package libreflux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huandu/go-clone"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Reducer computes the next state for an action. Reducers registered for
// the same action type run in registration order, each receiving the
// previous reducer's output.
type Reducer[S any] func(ctx context.Context, state S, action Action) (S, error)

// Effect observes the committed state after all reducers for an action
// have run. Effects may dispatch further actions; those are queued at the
// tail and never processed inline.
type Effect[S any] func(ctx context.Context, state S) error

// Subscriber is called on the loop after every successfully applied action
type Subscriber[S any] func(action Action, state S)

// Store is a single-writer state container driven by dispatched actions
type Store[S any] struct {
	mu          sync.RWMutex
	state       S
	reducers    map[string][]Reducer[S]
	effects     map[string][]Effect[S]
	subscribers []Subscriber[S]

	queue  *actionQueue
	opts   Options
	clone  func(S) S
	logger *slog.Logger

	lifeMu   sync.Mutex
	running  bool
	draining atomic.Bool
	stopped  chan struct{}
	err      error
}

// New creates a store holding initial
func New[S any](initial S, opts ...Option) *Store[S] {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = Logger
	}
	if o.Registry == nil {
		o.Registry = DefaultRegistry
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}

	s := &Store[S]{
		state:    initial,
		reducers: make(map[string][]Reducer[S]),
		effects:  make(map[string][]Effect[S]),
		queue:    newActionQueue(),
		opts:     o,
		logger:   o.Logger,
		stopped:  make(chan struct{}),
	}

	if o.clone != nil {
		fn, ok := o.clone.(func(S) S)
		if !ok {
			panic(fmt.Sprintf("libreflux: clone function %T does not match state type %T", o.clone, initial))
		}
		s.clone = fn
	}

	return s
}

// Reducer registers fn for actionType
func (s *Store[S]) Reducer(actionType string, fn Reducer[S]) {
	s.mu.Lock()
	s.reducers[actionType] = append(s.reducers[actionType], fn)
	s.mu.Unlock()
	s.opts.Registry.Register(actionType)
}

// Effect registers fn to run after the reducers for actionType
func (s *Store[S]) Effect(actionType string, fn Effect[S]) {
	s.mu.Lock()
	s.effects[actionType] = append(s.effects[actionType], fn)
	s.mu.Unlock()
	s.opts.Registry.Register(actionType)
}

// Subscribe registers fn to observe every applied action.
// Can be called before or after Run.
func (s *Store[S]) Subscribe(fn Subscriber[S]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// State returns the last committed state
func (s *Store[S]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Registry returns the registry action types are recorded in
func (s *Store[S]) Registry() *Registry {
	return s.opts.Registry
}

// Setting returns a value passed with WithValue
func (s *Store[S]) Setting(key string) (any, bool) {
	v, ok := s.opts.Values[key]
	return v, ok
}

// Unsafe reports whether defensive isolation is disabled
func (s *Store[S]) Unsafe() bool {
	return s.opts.Unsafe
}

// Len returns the number of queued actions, including the one in flight
func (s *Store[S]) Len() int {
	return s.queue.len()
}

// Dispatch queues an action and returns without waiting for it to be
// processed. Dispatching is allowed before Run; the action waits in the queue.
func (s *Store[S]) Dispatch(actionType string, data Data) error {
	action := NewAction(actionType, data)
	depth, ok := s.queue.push(action)
	if !ok {
		return fmt.Errorf("dispatch %q: %w", actionType, ErrStoreClosed)
	}

	s.opts.Recorder.ActionDispatched(actionType)
	s.opts.Recorder.QueueDepth(depth)
	s.logger.Debug("action dispatched", "action", actionType, "id", action.ID, "queued", depth)
	return nil
}

// Run starts the drain loop. Calling Run on a running store is a no-op.
// Cancelling ctx stops the loop between actions.
func (s *Store[S]) Run(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	select {
	case <-s.stopped:
		return ErrStoreClosed
	default:
	}

	if s.running {
		return nil
	}
	s.running = true

	go s.loop(ctx)
	return nil
}

// Done signals that no more external dispatches are coming and waits
// until the queue, including actions dispatched by effects, has drained.
// It returns the handler error that stopped the loop, if any.
func (s *Store[S]) Done(ctx context.Context) error {
	s.lifeMu.Lock()
	running := s.running
	s.lifeMu.Unlock()

	if !running {
		return ErrNotRunning
	}

	s.draining.Store(true)
	s.queue.notify()

	select {
	case <-s.stopped:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed once the loop has exited
func (s *Store[S]) Stopped() <-chan struct{} {
	return s.stopped
}

// Err returns the error that stopped the loop, if any
func (s *Store[S]) Err() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.err
}

func (s *Store[S]) loop(ctx context.Context) {
	err := s.drain(ctx)
	if rest := s.queue.close(); len(rest) > 0 {
		s.logger.Warn("store stopped with pending actions", "pending", len(rest), "error", err)
	}
	s.opts.Recorder.QueueDepth(0)

	s.lifeMu.Lock()
	s.err = err
	s.lifeMu.Unlock()
	close(s.stopped)

	s.logger.Debug("store stopped", "error", err)
}

// drain processes the queue head by head until Done is called and the
// queue is empty, a handler fails, or ctx is cancelled.
func (s *Store[S]) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		action, ok := s.queue.front()
		if !ok {
			if s.draining.Load() && s.queue.closeIfEmpty() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.queue.wait():
			}
			continue
		}

		if err := s.process(ctx, action); err != nil {
			s.logger.Warn("action failed", "action", action.Type, "id", action.ID, "error", err)
			return err
		}

		s.opts.Recorder.QueueDepth(s.queue.pop())
	}
}

// process applies the reducer chain, commits, notifies subscribers and
// runs the effect batch to completion.
func (s *Store[S]) process(ctx context.Context, action Action) (err error) {
	ctx, span := s.opts.Tracer.Start(ctx, "libreflux.action", trace.WithAttributes(
		attribute.String("action.type", action.Type),
		attribute.String("action.id", action.ID),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.opts.Recorder.ActionProcessed(action.Type, time.Since(start), err)
	}()

	s.mu.RLock()
	reducers := s.reducers[action.Type]
	effects := s.effects[action.Type]
	subscribers := s.subscribers
	state := s.state
	s.mu.RUnlock()

	s.logger.Debug("processing action", "action", action.Type, "id", action.ID,
		"reducers", len(reducers), "effects", len(effects))

	next := state
	if len(reducers) > 0 {
		next = s.isolate(state)
	}
	for i, reduce := range reducers {
		next, err = reduce(ctx, next, action)
		if err != nil {
			return &HandlerError{Stage: StageReducer, ActionType: action.Type, ActionID: action.ID, Index: i, Err: err}
		}
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(action, s.isolate(next))
	}

	return s.runEffects(ctx, action, effects, next)
}

// runEffects launches every effect concurrently and waits for all of them
func (s *Store[S]) runEffects(ctx context.Context, action Action, effects []Effect[S], state S) error {
	if len(effects) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, effect := range effects {
		view := s.isolate(state)
		g.Go(func() error {
			if err := effect(gctx, view); err != nil {
				return &HandlerError{Stage: StageEffect, ActionType: action.Type, ActionID: action.ID, Index: i, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Store[S]) isolate(state S) S {
	if s.opts.Unsafe {
		return state
	}
	if s.clone != nil {
		return s.clone(state)
	}
	if c, ok := any(state).(Cloner[S]); ok {
		return c.Clone()
	}
	if cp, ok := clone.Clone(state).(S); ok {
		return cp
	}
	return state
}
