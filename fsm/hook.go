package fsm

import (
	"fmt"
	"sync"

	"github.com/librescoot/libreflux"
)

// StatusHook renders a one-line status for console output. It is fed by a
// store subscription rather than holding a reference into machine state.
type StatusHook struct {
	mu       sync.RWMutex
	message  string
	current  StateStore
	attached bool
	updates  int
}

// NewStatusHook creates a hook with an initial message
func NewStatusHook(message string) *StatusHook {
	return &StatusHook{message: message}
}

func (h *StatusHook) attach(store *libreflux.Store[StateStore]) {
	h.mu.Lock()
	h.current = store.State()
	h.attached = true
	h.mu.Unlock()

	store.Subscribe(h.observe)
}

func (h *StatusHook) observe(_ libreflux.Action, s StateStore) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = s
	h.updates++
}

// SetMessage replaces the message shown before the state
func (h *StatusHook) SetMessage(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.message = message
}

// Snapshot returns the last state the hook observed
func (h *StatusHook) Snapshot() StateStore {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Updates returns how many applied triggers the hook has observed
func (h *StatusHook) Updates() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.updates
}

// Status returns "<message> ⇨ state: <current>"
func (h *StatusHook) Status() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.attached {
		return h.message
	}
	if h.message == "" {
		return fmt.Sprintf("⇨ state: %s", h.current.Current)
	}
	return fmt.Sprintf("%s ⇨ state: %s", h.message, h.current.Current)
}
