package fsm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/libreflux"
)

// Test states
const (
	stateA StateID = "a"
	stateB StateID = "b"
	stateC StateID = "c"

	stateRed    StateID = "red"
	stateYellow StateID = "yellow"
	stateGreen  StateID = "green"
)

// Test triggers
const (
	trGo      Trigger = "go"
	trStop    Trigger = "stop"
	trBack    Trigger = "back"
	trNext    Trigger = "next"
	trTimeout Trigger = "timeout"
	trDone    Trigger = "done"
)

func trafficLight() *Definition {
	return NewDefinition("TrafficLight").
		State("Red", AsInitial()).
		State("Yellow").
		State("Green").
		Transition(stateRed, trGo, stateYellow).
		Transition(stateYellow, trGo, stateGreen).
		Transition(stateYellow, trStop, stateRed).
		Transition(stateGreen, trStop, stateYellow)
}

func abc() *Definition {
	return NewDefinition("ABC").
		State("A", AsInitial()).
		State("B").
		State("C")
}

func build(t *testing.T, def *Definition, opts ...MachineOption) *Machine {
	t.Helper()
	m, err := def.Build(append([]MachineOption{WithRegistry(libreflux.NewRegistry())}, opts...)...)
	require.NoError(t, err)
	return m
}

func start(t *testing.T, m *Machine) {
	t.Helper()
	require.NoError(t, m.Run(context.Background()))
}

func finish(t *testing.T, m *Machine) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.Done(ctx)
}

// stepper sends one trigger at a time and waits until it has been applied
func stepper(t *testing.T, m *Machine) func(Trigger, libreflux.Data) StateStore {
	applied := make(chan StateStore, 64)
	m.Subscribe(func(_ libreflux.Action, s StateStore) {
		applied <- s
	})
	return func(trigger Trigger, payload libreflux.Data) StateStore {
		t.Helper()
		require.NoError(t, m.Trigger(trigger, payload))
		select {
		case s := <-applied:
			return s
		case <-time.After(time.Second):
			t.Fatalf("trigger %s was not applied", trigger)
			return StateStore{}
		}
	}
}

func TestBasicTransition(t *testing.T) {
	def := abc().
		Transition(stateA, trGo, stateB).
		Transition(stateB, trBack, stateA)

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	assert.Equal(t, stateA, m.CurrentState())
	assert.Equal(t, stateB, step(trGo, nil).Current)
	assert.Equal(t, stateA, step(trBack, nil).Current)

	require.NoError(t, finish(t, m))
	assert.Equal(t, stateA, m.CurrentState())
}

func TestInitialState(t *testing.T) {
	tests := []struct {
		name    string
		def     *Definition
		wantErr error
	}{
		{
			name:    "no initial state",
			def:     NewDefinition("M").State("A").State("B"),
			wantErr: ErrNoInitialState,
		},
		{
			name:    "two initial states",
			def:     NewDefinition("M").State("A", AsInitial()).State("B", AsInitial()),
			wantErr: ErrMultipleInitialStates,
		},
		{
			name:    "option and builder disagree",
			def:     NewDefinition("M").State("A", AsInitial()).State("B").Initial("b"),
			wantErr: ErrMultipleInitialStates,
		},
		{
			name:    "undefined initial",
			def:     NewDefinition("M").State("A").Initial("z"),
			wantErr: ErrUndefinedState,
		},
		{
			name: "builder initial declared before state",
			def:  NewDefinition("M").Initial("b").State("A").State("B"),
		},
		{
			name: "same state marked twice",
			def:  NewDefinition("M").State("A", AsInitial()).Initial("a"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.def.Build(WithRegistry(libreflux.NewRegistry()))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsConfigError(err))
				assert.Nil(t, m)
				return
			}
			require.NoError(t, err)

			states, err := tt.def.States()
			require.NoError(t, err)
			var initial StateID
			for _, s := range states {
				if s.Initial {
					initial = s.ID
				}
			}
			assert.Equal(t, initial, m.CurrentState())
			assert.True(t, m.Current().Initial)
			assert.Empty(t, m.Previous())
		})
	}
}

func TestStateErrorMessage(t *testing.T) {
	err := NewDefinition("TrafficLight").State("Red").Compile()
	require.Error(t, err)
	assert.Equal(t, "no initial state defined for state machine TrafficLight", err.Error())
}

func TestValidation(t *testing.T) {
	hook := func(*Context) error { return nil }

	tests := []struct {
		name    string
		def     *Definition
		wantErr error
	}{
		{
			name:    "undefined transition target",
			def:     abc().Transition(stateA, trGo, "z"),
			wantErr: ErrUndefinedState,
		},
		{
			name:    "undefined transition source",
			def:     abc().Transition("z", trGo, stateA),
			wantErr: ErrUndefinedState,
		},
		{
			name:    "duplicate state",
			def:     abc().State("a"),
			wantErr: ErrDuplicateState,
		},
		{
			name:    "empty trigger",
			def:     abc().Transition(stateA, "", stateB),
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "after-hook without transition",
			def:     abc().Transition(stateA, trGo, stateB).After(trStop, hook),
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "timeout fires unknown trigger",
			def:     abc().State("D", WithTimeout(time.Second, "typo")).Transition(stateA, trGo, stateB),
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "timeout without trigger",
			def:     abc().State("D", WithTimeout(time.Second, "")).Transition(stateA, trGo, stateB),
			wantErr: ErrInvalidTransition,
		},
		{
			name: "valid definition",
			def:  abc().Transition(stateA, trGo, stateB).After(trGo, hook),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStateIDs(t *testing.T) {
	def := NewDefinition("M").
		State("Red", AsInitial()).
		State("Dark Blue", WithID("blue"))

	states, err := def.States()
	require.NoError(t, err)
	require.Len(t, states, 2)

	assert.Equal(t, StateID("red"), states[0].ID)
	assert.Equal(t, "Red", states[0].Name)
	assert.Equal(t, StateID("blue"), states[1].ID)
	assert.Equal(t, "Dark Blue", states[1].Name)
}

func TestTrafficLightSequence(t *testing.T) {
	m := build(t, trafficLight())
	step := stepper(t, m)
	start(t, m)

	sequence := []StateID{m.CurrentState()}
	for _, trigger := range []Trigger{trGo, trGo, trStop, trStop} {
		sequence = append(sequence, step(trigger, nil).Current)
	}
	require.NoError(t, finish(t, m))

	assert.Equal(t, []StateID{stateRed, stateYellow, stateGreen, stateYellow, stateRed}, sequence)
}

func TestPreviousTracksShifts(t *testing.T) {
	m := build(t, trafficLight())
	step := stepper(t, m)
	start(t, m)

	assert.False(t, m.Snapshot().HasPrevious())

	s := step(trGo, nil)
	assert.Equal(t, StateStore{Current: stateYellow, Previous: stateRed}, s)

	s = step(trGo, nil)
	assert.Equal(t, StateStore{Current: stateGreen, Previous: stateYellow}, s)

	// no transition for go from green: nothing shifts
	s = step(trGo, nil)
	assert.Equal(t, StateStore{Current: stateGreen, Previous: stateYellow}, s)

	require.NoError(t, finish(t, m))
	assert.Equal(t, stateYellow, m.Previous())
}

func TestNoTransitionIsNoop(t *testing.T) {
	var hookCalls atomic.Int32
	def := trafficLight().After(trStop, func(*Context) error {
		hookCalls.Add(1)
		return nil
	})

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	// stop is known, but red has no transition for it
	s := step(trStop, nil)
	require.NoError(t, finish(t, m))

	assert.Equal(t, stateRed, s.Current)
	assert.False(t, s.HasPrevious())
	assert.Zero(t, hookCalls.Load())
}

func TestUnknownTriggerDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))

	var hookCalls atomic.Int32
	def := trafficLight().After(trGo, func(*Context) error {
		hookCalls.Add(1)
		return nil
	})

	hook := NewStatusHook("")
	m := build(t, def, WithLogger(logger), WithHook(hook))
	start(t, m)

	require.NoError(t, m.Trigger("bogus", nil))
	require.NoError(t, finish(t, m))

	assert.Equal(t, stateRed, m.CurrentState())
	assert.Zero(t, hookCalls.Load())
	assert.Zero(t, hook.Updates(), "unknown trigger must not be dispatched")
	assert.Contains(t, buf.String(), "no trigger found")
	assert.Contains(t, buf.String(), "trigger=bogus")
}

func TestAfterHookSeesNewState(t *testing.T) {
	type observation struct {
		current, previous StateID
		payload           any
	}
	var seen []observation

	def := trafficLight().After(trGo, func(c *Context) error {
		seen = append(seen, observation{c.CurrentState(), c.PreviousState(), c.Payload["by"]})
		return nil
	})

	m := build(t, def)
	start(t, m)
	require.NoError(t, m.Trigger(trGo, libreflux.Data{"by": "operator"}))
	require.NoError(t, m.Trigger(trGo, nil))
	require.NoError(t, finish(t, m))

	assert.Equal(t, []observation{
		{stateYellow, stateRed, "operator"},
		{stateGreen, stateYellow, nil},
	}, seen)
}

func TestAfterHookCompletesBeforeNextTrigger(t *testing.T) {
	var hookDone, sawHook atomic.Bool

	def := NewDefinition("M").
		State("A", AsInitial()).
		State("B").
		State("C", WithOnEnter(func(*Context) error {
			sawHook.Store(hookDone.Load())
			return nil
		})).
		Transition(stateA, trGo, stateB).
		Transition(stateB, trNext, stateC).
		After(trGo, func(c *Context) error {
			select {
			case <-time.After(20 * time.Millisecond):
			case <-c.Ctx.Done():
				return c.Ctx.Err()
			}
			hookDone.Store(true)
			return nil
		})

	m := build(t, def)
	start(t, m)
	require.NoError(t, m.Trigger(trGo, nil))
	require.NoError(t, m.Trigger(trNext, nil))
	require.NoError(t, finish(t, m))

	assert.Equal(t, stateC, m.CurrentState())
	assert.True(t, sawHook.Load())
}

func TestAfterHookChainsTriggers(t *testing.T) {
	var visited []StateID
	def := trafficLight().
		After(trGo, func(c *Context) error {
			visited = append(visited, c.CurrentState())
			switch c.CurrentState() {
			case stateYellow:
				return c.Send(trGo, nil)
			case stateGreen:
				return c.Send(trStop, nil)
			}
			return nil
		}).
		After(trStop, func(c *Context) error {
			visited = append(visited, c.CurrentState())
			if c.CurrentState() == stateYellow {
				return c.Send(trStop, nil)
			}
			return nil
		})

	m := build(t, def)
	start(t, m)
	require.NoError(t, m.Trigger(trGo, nil))
	require.NoError(t, finish(t, m))

	assert.Equal(t, []StateID{stateYellow, stateGreen, stateYellow, stateRed}, visited)
	assert.Equal(t, stateRed, m.CurrentState())
}

func TestAfterHookErrorStopsMachine(t *testing.T) {
	errBoom := errors.New("boom")
	def := trafficLight().After(trGo, func(*Context) error {
		return errBoom
	})

	m := build(t, def)
	start(t, m)
	require.NoError(t, m.Trigger(trGo, nil))
	err := finish(t, m)

	assert.ErrorIs(t, err, errBoom)
	assert.True(t, libreflux.IsHandlerError(err))
	assert.Equal(t, stateRed, m.CurrentState(), "failed transition must not commit")
	assert.ErrorIs(t, m.Trigger(trGo, nil), libreflux.ErrStoreClosed)
}

func TestEntryExitActions(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(s string) func(*Context) error {
		return func(c *Context) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, s+":"+string(c.CurrentState()))
			return nil
		}
	}

	def := NewDefinition("M").
		State("A", AsInitial(), WithOnEnter(record("enter")), WithOnExit(record("exit"))).
		State("B", WithOnEnter(record("enter"))).
		Transition(stateA, trGo, stateB, WithAction(record("action"))).
		After(trGo, record("after"))

	m := build(t, def)
	start(t, m)
	require.NoError(t, m.Trigger(trGo, nil))
	require.NoError(t, finish(t, m))

	assert.Equal(t, []string{"enter:a", "exit:a", "action:a", "enter:b", "after:b"}, calls)
}

func TestGuard(t *testing.T) {
	type appData struct {
		allowed atomic.Bool
	}
	data := &appData{}

	def := abc().Transition(stateA, trGo, stateB,
		WithGuard(func(c *Context) bool {
			return c.Data.(*appData).allowed.Load()
		}),
	)

	m := build(t, def, WithData(data))
	step := stepper(t, m)
	start(t, m)

	// Guard blocks transition
	assert.Equal(t, stateA, step(trGo, nil).Current)

	// Guard allows transition
	data.allowed.Store(true)
	assert.Equal(t, stateB, step(trGo, nil).Current)

	require.NoError(t, finish(t, m))
}

func TestGuardsTriedInOrder(t *testing.T) {
	def := abc().
		Transition(stateA, trGo, stateB, WithGuards(
			func(c *Context) bool { return c.Payload["fast"] == true },
			func(c *Context) bool { return c.Payload["safe"] == true },
		)).
		Transition(stateA, trGo, stateC)

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	assert.Equal(t, stateC, step(trGo, libreflux.Data{"fast": true}).Current)
	require.NoError(t, finish(t, m))

	m2 := build(t, def)
	step2 := stepper(t, m2)
	start(t, m2)
	assert.Equal(t, stateB, step2(trGo, libreflux.Data{"fast": true, "safe": true}).Current)
	require.NoError(t, finish(t, m2))
}

func TestTransitionPayload(t *testing.T) {
	var received string

	def := abc().Transition(stateA, trGo, stateB,
		WithAction(func(c *Context) error {
			received, _ = c.Payload["msg"].(string)
			return nil
		}),
	)

	m := build(t, def)
	start(t, m)
	require.NoError(t, m.Trigger(trGo, libreflux.Data{"msg": "test-data"}))
	require.NoError(t, finish(t, m))

	assert.Equal(t, "test-data", received)
}

func TestMultipleTriggersOneTransition(t *testing.T) {
	def := abc().
		Transition(stateA, trGo, stateB, AlsoOn(trNext)).
		Transition(stateB, trBack, stateA)

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	assert.Equal(t, stateB, step(trNext, nil).Current)
	assert.Equal(t, stateA, step(trBack, nil).Current)
	assert.Equal(t, stateB, step(trGo, nil).Current)
	require.NoError(t, finish(t, m))

	triggers, err := def.Triggers()
	require.NoError(t, err)
	assert.Equal(t, []Trigger{trBack, trGo, trNext}, triggers)
}

func TestWildcardTransition(t *testing.T) {
	def := abc().
		Transition(stateA, trGo, stateB).
		Transition(stateC, trDone, stateA).
		AnyStateTransition(trDone, stateC)

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	assert.Equal(t, stateB, step(trGo, nil).Current)
	// Wildcard transition from B to C
	assert.Equal(t, stateC, step(trDone, nil).Current)
	// C's own transition wins over the wildcard
	assert.Equal(t, stateA, step(trDone, nil).Current)

	require.NoError(t, finish(t, m))
}

func TestDeclarativeTimeout(t *testing.T) {
	def := NewDefinition("M").
		State("A", AsInitial(), WithTimeout(30*time.Millisecond, trTimeout)).
		State("B").
		Transition(stateA, trTimeout, stateB)

	m := build(t, def)
	start(t, m)

	require.Eventually(t, func() bool {
		return m.CurrentState() == stateB
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, finish(t, m))
}

func TestImperativeTimer(t *testing.T) {
	def := NewDefinition("M").
		State("A", AsInitial(), WithOnEnter(func(c *Context) error {
			c.StartTimer("test", 30*time.Millisecond, trTimeout, nil)
			return nil
		})).
		State("B").
		Transition(stateA, trTimeout, stateB)

	m := build(t, def)
	start(t, m)

	// Timer should be active
	assert.True(t, m.TimerActive("test"))

	require.Eventually(t, func() bool {
		return m.CurrentState() == stateB
	}, time.Second, 5*time.Millisecond)

	// Timer should be gone
	assert.False(t, m.TimerActive("test"))
	require.NoError(t, finish(t, m))
}

func TestTimerCancelOnStateExit(t *testing.T) {
	def := NewDefinition("M").
		State("A", AsInitial(), WithOnEnter(func(c *Context) error {
			c.StartTimer("test", 100*time.Millisecond, trTimeout, nil)
			return nil
		})).
		State("B").
		State("C").
		Transition(stateA, trGo, stateB).
		Transition(stateA, trTimeout, stateC). // Should never fire
		Transition(stateB, trTimeout, stateC)

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	// Exit state A before timer fires
	assert.Equal(t, stateB, step(trGo, nil).Current)
	assert.False(t, m.TimerActive("test"))

	// Wait past when timer would have fired
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, stateB, m.CurrentState())

	require.NoError(t, finish(t, m))
}

func TestGlobalTimerStoppedByDone(t *testing.T) {
	m := build(t, trafficLight())
	start(t, m)

	m.StartTimer("later", time.Hour, trGo, nil)
	assert.True(t, m.TimerActive("later"))

	require.NoError(t, finish(t, m))
	assert.False(t, m.TimerActive("later"))
}

func TestStateChangeCallback(t *testing.T) {
	var changes [][2]StateID

	def := abc().
		Transition(stateA, trGo, stateB).
		Transition(stateB, trNext, stateC).
		Transition(stateC, trNext, stateC)

	m := build(t, def, WithStateChangeCallback(func(from, to StateID) {
		changes = append(changes, [2]StateID{from, to})
	}))
	start(t, m)

	require.NoError(t, m.Trigger(trGo, nil))
	require.NoError(t, m.Trigger(trNext, nil))
	require.NoError(t, m.Trigger(trNext, nil)) // self transition, no change reported
	require.NoError(t, finish(t, m))

	assert.Equal(t, [][2]StateID{{stateA, stateB}, {stateB, stateC}}, changes)
	assert.Equal(t, StateStore{Current: stateC, Previous: stateC}, m.Snapshot())
}

func TestApplicationData(t *testing.T) {
	type AppData struct {
		Counter int
	}
	appData := &AppData{}

	def := NewDefinition("M").
		State("A", AsInitial(), WithOnEnter(func(c *Context) error {
			c.Data.(*AppData).Counter++
			return nil
		}))

	m := build(t, def, WithData(appData))
	start(t, m)
	require.NoError(t, m.Run(context.Background()), "second Run is a no-op")
	require.NoError(t, finish(t, m))

	assert.Equal(t, 1, appData.Counter)
}

func TestMachinesShareCompiledTable(t *testing.T) {
	def := trafficLight()

	m1 := build(t, def)
	m2 := build(t, def)
	assert.Same(t, m1.table, m2.table)

	step := stepper(t, m1)
	start(t, m1)
	start(t, m2)

	step(trGo, nil)
	require.NoError(t, finish(t, m1))
	require.NoError(t, finish(t, m2))

	assert.Equal(t, stateYellow, m1.CurrentState())
	assert.Equal(t, stateRed, m2.CurrentState())
	assert.Equal(t, "TrafficLight", m1.Name())
}

func TestMachineEffect(t *testing.T) {
	var observed []StateStore

	m := build(t, trafficLight())
	m.Effect(trGo, func(_ context.Context, s StateStore) error {
		observed = append(observed, s)
		return nil
	})
	start(t, m)
	require.NoError(t, m.Trigger(trGo, nil))
	require.NoError(t, m.Trigger(trGo, nil))
	require.NoError(t, finish(t, m))

	assert.Equal(t, []StateStore{
		{Current: stateYellow, Previous: stateRed},
		{Current: stateGreen, Previous: stateYellow},
	}, observed)
}

func TestStatusHook(t *testing.T) {
	hook := NewStatusHook("waiting")
	assert.Equal(t, "waiting", hook.Status())

	m := build(t, trafficLight(), WithHook(hook))
	assert.Equal(t, "waiting ⇨ state: red", hook.Status(), "hook is set before Run")

	step := stepper(t, m)
	start(t, m)
	step(trGo, nil)

	assert.Equal(t, "waiting ⇨ state: yellow", hook.Status())
	hook.SetMessage("")
	assert.Equal(t, "⇨ state: yellow", hook.Status())
	assert.Equal(t, StateStore{Current: stateYellow, Previous: stateRed}, hook.Snapshot())

	require.NoError(t, finish(t, m))
}

func TestTriggersRegisteredInRegistry(t *testing.T) {
	reg := libreflux.NewRegistry()
	_, err := trafficLight().Build(WithRegistry(reg))
	require.NoError(t, err)

	assert.Equal(t, []string{"go", "stop"}, reg.Names())
}

func TestGlobalTimerSurvivesStateExit(t *testing.T) {
	def := abc().
		Transition(stateA, trGo, stateB).
		Transition(stateB, trNext, stateC).
		Transition(stateC, trBack, stateA).
		After(trGo, func(c *Context) error {
			c.StartTimerGlobal("global", 50*time.Millisecond, trBack, nil)
			return nil
		})

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	assert.Equal(t, stateB, step(trGo, nil).Current)
	assert.Equal(t, stateC, step(trNext, nil).Current)
	assert.True(t, m.TimerActive("global"), "global timers outlive their state")

	require.Eventually(t, func() bool {
		return m.CurrentState() == stateA
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, finish(t, m))
}

func TestResetTimer(t *testing.T) {
	def := NewDefinition("M").
		State("A", AsInitial()).
		State("B", WithOnEnter(func(c *Context) error {
			c.StartTimer("t", 30*time.Millisecond, trTimeout, nil)
			return nil
		})).
		State("C").
		Transition(stateA, trGo, stateB).
		Transition(stateB, trTimeout, stateC).
		After(trGo, func(c *Context) error {
			c.ResetTimer("t", time.Hour)
			c.ResetTimer("missing", time.Hour)
			return nil
		})

	m := build(t, def)
	step := stepper(t, m)
	start(t, m)

	assert.Equal(t, stateB, step(trGo, nil).Current)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, stateB, m.CurrentState())
	assert.True(t, m.TimerActive("t"))
	assert.False(t, m.TimerActive("missing"))

	require.NoError(t, finish(t, m))
	assert.False(t, m.TimerActive("t"))
}

func TestQueuedTimerTriggerDroppedAfterStateExit(t *testing.T) {
	def := NewDefinition("M").
		State("A", AsInitial(), WithTimeout(10*time.Millisecond, trTimeout)).
		State("B").
		State("C").
		// Keeps the loop busy until the timeout has fired and queued its trigger
		Transition(stateA, trNext, stateA, WithGuard(func(*Context) bool {
			time.Sleep(60 * time.Millisecond)
			return false
		})).
		Transition(stateA, trGo, stateB).
		Transition(stateB, trTimeout, stateC)

	m := build(t, def)

	var applied atomic.Int32
	m.Subscribe(func(libreflux.Action, StateStore) { applied.Add(1) })

	start(t, m)
	require.NoError(t, m.Trigger(trNext, nil))
	require.NoError(t, m.Trigger(trGo, nil))

	require.Eventually(t, func() bool {
		return applied.Load() == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, stateB, m.CurrentState())
	require.NoError(t, finish(t, m))
}

func TestCurrentReturnsCopy(t *testing.T) {
	def := trafficLight()
	m1 := build(t, def)
	m2 := build(t, def)

	cur := m1.Current()
	cur.Name = "Changed"
	cur.OnEnter = func(*Context) error { return errors.New("boom") }

	assert.Equal(t, "Red", m1.Current().Name)
	assert.Nil(t, m1.Current().OnEnter)
	assert.Equal(t, "Red", m2.Current().Name)
}

func TestRunAfterDone(t *testing.T) {
	m := build(t, trafficLight())
	start(t, m)
	start(t, m)

	require.NoError(t, finish(t, m))
	assert.ErrorIs(t, m.Run(context.Background()), libreflux.ErrStoreClosed)
}
