package topic

import (
	"context"
	"fmt"
)

// ProducerOf adapts a typed producer that declares a dependency of type D.
// A nil dependency is passed as the zero value of D.
func ProducerOf[D, T any](fn func(ctx context.Context, dep D) ([]T, error)) Producer {
	return func(ctx context.Context, dep any) ([]any, error) {
		var d D
		if dep != nil {
			var ok bool
			if d, ok = dep.(D); !ok {
				return nil, fmt.Errorf("dependency %T is not %T", dep, d)
			}
		}
		values, err := fn(ctx, d)
		if err != nil {
			return nil, err
		}
		return box(values), nil
	}
}

// Independent adapts a typed producer that ignores the dependency
func Independent[T any](fn func(ctx context.Context) ([]T, error)) Producer {
	return func(ctx context.Context, _ any) ([]any, error) {
		values, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return box(values), nil
	}
}

// ConsumerOf adapts a typed consumer. Every value must be a T.
func ConsumerOf[T any](fn func(ctx context.Context, values []T) error) Consumer {
	return func(ctx context.Context, values []any) error {
		typed := make([]T, 0, len(values))
		for i, v := range values {
			t, ok := v.(T)
			if !ok {
				return fmt.Errorf("value %d is %T, not %T", i, v, t)
			}
			typed = append(typed, t)
		}
		return fn(ctx, typed)
	}
}

func box[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
