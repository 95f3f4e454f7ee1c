package fsm

import (
	"maps"
	"time"

	"github.com/librescoot/libreflux"
)

// timerEpochKey marks triggers fired by state-scoped timers with the
// state entry they belong to
const timerEpochKey = "_fsm_timer_epoch"

// timerEntry tracks a running timer
type timerEntry struct {
	timer      *time.Timer
	trigger    Trigger
	payload    libreflux.Data
	scope      TimerScope
	ownerState StateID
	epoch      uint64
	duration   time.Duration
}

// startTimerInternal starts a named timer with scope tracking
func (m *Machine) startTimerInternal(name string, duration time.Duration, trigger Trigger, payload libreflux.Data, scope TimerScope, owner StateID) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	// Cancel existing timer with same name
	if existing, ok := m.timers[name]; ok {
		existing.timer.Stop()
		delete(m.timers, name)
	}

	entry := &timerEntry{
		trigger:    trigger,
		payload:    payload,
		scope:      scope,
		ownerState: owner,
		duration:   duration,
	}
	if scope == TimerScopeState {
		entry.epoch = m.entries.Load()
	}

	entry.timer = time.AfterFunc(duration, func() {
		m.timerMu.Lock()
		// Check this timer wasn't cancelled or replaced
		if current, ok := m.timers[name]; !ok || current != entry {
			m.timerMu.Unlock()
			return
		}
		delete(m.timers, name)
		m.timerMu.Unlock()

		m.logger.Debug("timer fired", "name", name, "trigger", trigger)

		// The owner may be exited before the trigger is processed
		data := payload
		if entry.epoch != 0 {
			data = maps.Clone(payload)
			if data == nil {
				data = make(libreflux.Data, 1)
			}
			data[timerEpochKey] = entry.epoch
		}

		if err := m.Trigger(trigger, data); err != nil {
			m.logger.Debug("timer trigger dropped", "name", name, "trigger", trigger, "error", err)
		}
	})

	m.timers[name] = entry

	m.logger.Debug("timer started", "name", name, "duration", duration, "trigger", trigger)
}

// StartTimer starts a named timer (global scope by default from external calls)
func (m *Machine) StartTimer(name string, duration time.Duration, trigger Trigger, payload libreflux.Data) {
	m.startTimerInternal(name, duration, trigger, payload, TimerScopeGlobal, "")
}

// StopTimer stops a timer by name
func (m *Machine) StopTimer(name string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if entry, ok := m.timers[name]; ok {
		entry.timer.Stop()
		delete(m.timers, name)
		m.logger.Debug("timer stopped", "name", name)
	}
}

// StopAllTimers stops all running timers
func (m *Machine) StopAllTimers() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	for name, entry := range m.timers {
		entry.timer.Stop()
		m.logger.Debug("timer stopped (cleanup)", "name", name)
	}
	m.timers = make(map[string]*timerEntry)
}

// TimerActive checks if a timer is running
func (m *Machine) TimerActive(name string) bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	_, ok := m.timers[name]
	return ok
}

// resetTimer restarts a timer with a new duration, keeping its trigger
func (m *Machine) resetTimer(name string, duration time.Duration) {
	m.timerMu.Lock()
	entry, ok := m.timers[name]
	if !ok {
		m.timerMu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(m.timers, name)
	m.timerMu.Unlock()

	m.startTimerInternal(name, duration, entry.trigger, entry.payload, entry.scope, entry.ownerState)
}

// cleanupTimersForState cancels all state-scoped timers owned by the given state
func (m *Machine) cleanupTimersForState(stateID StateID) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	for name, entry := range m.timers {
		if entry.scope == TimerScopeState && entry.ownerState == stateID {
			entry.timer.Stop()
			delete(m.timers, name)
			m.logger.Debug("timer cleaned up (state exit)", "name", name, "state", stateID)
		}
	}
}
