package apitrcutil

import "sync"

// Value is a mutex-guarded value of any type. It's meant for values like
// funcs, which can't be stored with package sync/atomic directly.
type Value[T any] struct {
	mtx sync.RWMutex
	val T
}

// NewValue returns a new Value initialized to val.
func NewValue[T any](val T) *Value[T] {
	return &Value[T]{val: val}
}

// Load returns the current value.
func (v *Value[T]) Load() T {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	return v.val
}

// Store sets the value to val.
func (v *Value[T]) Store(val T) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	v.val = val
}

// Swap sets the value to val, and returns the previous value.
func (v *Value[T]) Swap(val T) (old T) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	old, v.val = v.val, val
	return old
}
