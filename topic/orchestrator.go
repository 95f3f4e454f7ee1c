// Package topic gathers values from producer functions registered under a
// topic name and hands the collected sequence to the topic's consumers.
// Each Execute call runs one store lifecycle: the gathered values are
// dispatched as a single action and consumers run as its effects.
package topic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/librescoot/libreflux"
	"golang.org/x/sync/errgroup"
)

// Producer returns values for a topic. dep is the dependency passed to
// Execute, or nil.
type Producer func(ctx context.Context, dep any) ([]any, error)

// Consumer receives every value gathered for a topic, in producer
// registration order. It is called with an empty sequence when no
// producer returned anything.
type Consumer func(ctx context.Context, values []any) error

// ErrUnknownTopic is returned by Execute for a topic without producers or consumers
var ErrUnknownTopic = errors.New("unknown topic")

// Logger is the default logger used when none is provided
var Logger = slog.Default()

// valuesKey carries the gathered sequence in the topic action payload
const valuesKey = "values"

// Orchestrator holds the producers and consumers of every topic
type Orchestrator struct {
	mu        sync.RWMutex
	producers map[string][]Producer
	consumers map[string][]Consumer

	logger    *slog.Logger
	registry  *libreflux.Registry
	storeOpts []libreflux.Option
}

// Option is a functional option for configuring an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger for the orchestrator and its stores
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRegistry sets the registry topics are recorded in
func WithRegistry(r *libreflux.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithStoreOptions passes options through to the store of every Execute
func WithStoreOptions(opts ...libreflux.Option) Option {
	return func(o *Orchestrator) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// New creates an orchestrator without topics
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		producers: make(map[string][]Producer),
		consumers: make(map[string][]Consumer),
		logger:    Logger,
		registry:  libreflux.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Produce registers p for topic
func (o *Orchestrator) Produce(topic string, p Producer) {
	o.mu.Lock()
	o.producers[topic] = append(o.producers[topic], p)
	o.mu.Unlock()
	o.registry.Register(topic)
}

// Consume registers c for topic
func (o *Orchestrator) Consume(topic string, c Consumer) {
	o.mu.Lock()
	o.consumers[topic] = append(o.consumers[topic], c)
	o.mu.Unlock()
	o.registry.Register(topic)
}

// Topics returns every topic with at least one producer or consumer, sorted
func (o *Orchestrator) Topics() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var topics []string
	for topic := range o.producers {
		topics = append(topics, topic)
	}
	for topic := range o.consumers {
		if _, ok := o.producers[topic]; !ok {
			topics = append(topics, topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Execute runs one cycle for topic: every producer is called concurrently
// with dep, the results are flattened in registration order and every
// consumer receives the full sequence. Execute returns once all consumers
// have finished.
func (o *Orchestrator) Execute(ctx context.Context, topic string, dep any) error {
	o.mu.RLock()
	producers := slices.Clone(o.producers[topic])
	consumers := slices.Clone(o.consumers[topic])
	o.mu.RUnlock()

	if len(producers) == 0 && len(consumers) == 0 {
		return fmt.Errorf("execute %q: %w", topic, ErrUnknownTopic)
	}

	values, err := o.gather(ctx, topic, producers, dep)
	if err != nil {
		return err
	}

	o.logger.Debug("topic gathered", "topic", topic, "producers", len(producers), "values", len(values))

	// Topic stores are short-lived, so their handlers stay out of the shared registry
	opts := []libreflux.Option{
		libreflux.WithLogger(o.logger),
		libreflux.WithClone(func(v []any) []any { return slices.Clone(v) }),
	}
	opts = append(opts, o.storeOpts...)
	opts = append(opts, libreflux.WithRegistry(libreflux.NewRegistry()))

	store := libreflux.New([]any{}, opts...)
	store.Reducer(topic, func(_ context.Context, _ []any, a libreflux.Action) ([]any, error) {
		return libreflux.Value(a, valuesKey, []any{}), nil
	})
	for _, c := range consumers {
		store.Effect(topic, libreflux.Effect[[]any](c))
	}

	if err := store.Run(ctx); err != nil {
		return fmt.Errorf("execute %q: %w", topic, err)
	}
	if err := store.Dispatch(topic, libreflux.Data{valuesKey: values}); err != nil {
		return fmt.Errorf("execute %q: %w", topic, err)
	}
	if err := store.Done(ctx); err != nil {
		return fmt.Errorf("execute %q: %w", topic, err)
	}
	return nil
}

// gather calls all producers concurrently and keeps their results in
// registration order
func (o *Orchestrator) gather(ctx context.Context, topic string, producers []Producer, dep any) ([]any, error) {
	results := make([][]any, len(producers))

	g, gctx := errgroup.WithContext(ctx)
	for i, produce := range producers {
		g.Go(func() error {
			values, err := produce(gctx, dep)
			if err != nil {
				return fmt.Errorf("producer %d for %q failed: %w", i, topic, err)
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	values := []any{}
	for _, r := range results {
		values = append(values, r...)
	}
	return values, nil
}
