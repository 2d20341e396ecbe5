package core

import "errors"

var (
	// Configuration
	ErrPortNoInterrupts    = errors.New("port does not support interrupts")
	ErrInvalidOffset       = errors.New("pin offset out of range for port")
	ErrInvalidPort         = errors.New("port not available on this family")
	ErrInvalidBank         = errors.New("uart bank not available on this family")
	ErrNoDriver            = errors.New("no register driver for peripheral")
	ErrClockNotInitialized = errors.New("time driver not initialized")
	ErrInvalidClock        = errors.New("clock and tick rate must be non-zero")

	// Transient hardware conditions, reported next to byte counts
	ErrRxQueueOverflow = errors.New("rx queue overflow")
	ErrUART            = errors.New("uart receive error")
	ErrTxOverrun       = errors.New("tx overrun")

	ErrBusy = errors.New("busy")
)
