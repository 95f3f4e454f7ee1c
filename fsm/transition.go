package fsm

// Transition defines a state change rule
type Transition struct {
	From     StateID                  // Source state (or "*" for any-state)
	To       StateID                  // Target state
	Triggers []Trigger                // Any of these causes the transition
	Guard    func(ctx *Context) bool  // Optional: must return true to take transition
	Action   func(ctx *Context) error // Optional: runs between exit and shift
}

// WildcardState matches any state in transition rules
const WildcardState StateID = "*"

// TransitionOption is a functional option for configuring a Transition
type TransitionOption func(*Transition)

// AlsoOn adds more triggers to the same transition
func AlsoOn(triggers ...Trigger) TransitionOption {
	return func(t *Transition) {
		t.Triggers = append(t.Triggers, triggers...)
	}
}

// WithGuard sets a guard condition for the transition
func WithGuard(fn func(*Context) bool) TransitionOption {
	return func(t *Transition) {
		t.Guard = fn
	}
}

// WithGuards sets multiple guard conditions that must ALL pass (AND logic)
func WithGuards(guards ...func(*Context) bool) TransitionOption {
	return func(t *Transition) {
		t.Guard = func(ctx *Context) bool {
			for _, g := range guards {
				if !g(ctx) {
					return false
				}
			}
			return true
		}
	}
}

// WithAction sets an action to execute during the transition
func WithAction(fn func(*Context) error) TransitionOption {
	return func(t *Transition) {
		t.Action = fn
	}
}

func (t *Transition) hasTrigger(trigger Trigger) bool {
	for _, tr := range t.Triggers {
		if tr == trigger {
			return true
		}
	}
	return false
}
