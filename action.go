package libreflux

import (
	"maps"

	"github.com/google/uuid"
)

// Action is a typed message submitted to a Store. The type is the only
// dispatch key; the payload is opaque to the store.
type Action struct {
	ID   string
	Type string
	data Data
}

// NewAction creates an action with a fresh ID. The payload is copied so
// later changes to data do not leak into the action.
func NewAction(actionType string, data Data) Action {
	return Action{
		ID:   uuid.NewString(),
		Type: actionType,
		data: maps.Clone(data),
	}
}

// Data returns a copy of the payload
func (a Action) Data() Data {
	if a.data == nil {
		return Data{}
	}
	return maps.Clone(a.data)
}

// Get returns a single payload value
func (a Action) Get(key string) (any, bool) {
	v, ok := a.data[key]
	return v, ok
}

// Value returns the payload value for key as T, or def if it is missing
// or of a different type.
func Value[T any](a Action, key string, def T) T {
	v, ok := a.data[key]
	if !ok {
		return def
	}
	t, ok := v.(T)
	if !ok {
		return def
	}
	return t
}
