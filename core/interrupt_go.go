//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// irqMask stands in for the interrupt mask on the host. Simulated ISRs run on
// other goroutines and take the same lock, so they are held off while a
// critical section is open, the same way a masked interrupt stays pending.
var irqMask sync.Mutex

// disableInterrupts enters the critical section and returns the previous state
func disableInterrupts() State {
	irqMask.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	irqMask.Unlock()
}
