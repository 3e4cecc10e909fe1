package statemachine

import (
	"sync"
)

// StateFn represents a state function following Rob Pike's pattern.
// The states are the functions themselves; each one does its work and
// returns the next state function, or nil to terminate.
type StateFn[T any] func(*T) StateFn[T]

// StateMachine is a small, thread-safe wrapper around the current state
// function of some entity.
type StateMachine[T any] struct {
	entity  *T
	stateFn StateFn[T]
	mutex   sync.RWMutex
}

// NewStateMachine creates a new state machine for the given entity.
func NewStateMachine[T any](entity *T, initialStateFn StateFn[T]) *StateMachine[T] {
	return &StateMachine[T]{
		entity:  entity,
		stateFn: initialStateFn,
	}
}

// Dispatch sets stateFn as the current state, executes it once, and
// transitions to whatever state it returns.
func (sm *StateMachine[T]) Dispatch(stateFn StateFn[T]) {
	sm.mutex.Lock()
	sm.stateFn = stateFn
	sm.mutex.Unlock()

	if stateFn == nil {
		return
	}

	nextStateFn := stateFn(sm.entity)

	sm.mutex.Lock()
	sm.stateFn = nextStateFn
	sm.mutex.Unlock()
}

// Step executes the current state function once, if any.
func (sm *StateMachine[T]) Step() {
	sm.mutex.RLock()
	current := sm.stateFn
	sm.mutex.RUnlock()

	if current == nil {
		return
	}

	nextStateFn := current(sm.entity)

	sm.mutex.Lock()
	sm.stateFn = nextStateFn
	sm.mutex.Unlock()
}

// GetCurrentState returns the current state function.
func (sm *StateMachine[T]) GetCurrentState() StateFn[T] {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.stateFn
}

// Terminated reports whether the machine has reached the nil state.
func (sm *StateMachine[T]) Terminated() bool {
	return sm.GetCurrentState() == nil
}
