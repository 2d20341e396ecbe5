package core

import "sync/atomic"

// Signal is a wake handle. Notify never blocks and coalesces: any number of
// notifications between two receives collapse into one, so an ISR can signal
// a task without knowing whether the task is currently suspended.
type Signal struct {
	c chan struct{}
}

// NewSignal creates a wake handle with nothing pending.
func NewSignal() *Signal {
	return &Signal{c: make(chan struct{}, 1)}
}

// Notify marks the signal pending. Safe from interrupt context.
func (s *Signal) Notify() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

// C returns the channel a suspended task selects on.
func (s *Signal) C() <-chan struct{} { return s.c }

// Pending consumes a pending notification without blocking.
func (s *Signal) Pending() bool {
	select {
	case <-s.c:
		return true
	default:
		return false
	}
}

// WakerSlot holds at most one registered Signal. Registering replaces the
// previous registration; there is a single waiter per slot.
type WakerSlot struct {
	sig atomic.Pointer[Signal]
}

// Register stores s as the handle to wake.
func (w *WakerSlot) Register(s *Signal) {
	w.sig.Store(s)
}

// Wake notifies the registered handle, if any. Waking an empty slot is a no-op.
func (w *WakerSlot) Wake() {
	if s := w.sig.Load(); s != nil {
		s.Notify()
	}
}

// Clear drops the registration.
func (w *WakerSlot) Clear() {
	w.sig.Store(nil)
}
