package core

import "sync/atomic"

// TxFIFODepth is the depth of the hardware TX FIFO.
const TxFIFODepth = 16

// IRQFlags is a set of UART interrupt conditions.
type IRQFlags uint8

const (
	IRQRx        IRQFlags = 1 << iota // RX FIFO reached its trigger level
	IRQRxStatus                       // RX error; clearing it clears the overrun latch
	IRQRxTimeout                      // data idle in the RX FIFO below the trigger level
	IRQTx                             // TX FIFO can accept data
	IRQTxStatus                       // TX error; clearing it clears the lost-write latch
	IRQTxEmpty                        // TX FIFO empty and shift register idle
)

const (
	rxIRQs = IRQRx | IRQRxStatus | IRQRxTimeout
	txIRQs = IRQTx | IRQTxStatus | IRQTxEmpty
)

// RxStatus is a snapshot of the receiver status register.
type RxStatus struct {
	DataAvailable bool
	Overrun       bool
	Framing       bool
	Parity        bool
}

// TxStatus is a snapshot of the transmitter status register.
type TxStatus struct {
	Ready  bool // FIFO not full
	Busy   bool // FIFO or shift register still holds data
	WrLost bool // a write was attempted while the FIFO was full
}

// UARTErrors are the receive error conditions sampled by the RX interrupt.
type UARTErrors struct {
	Overrun bool
	Framing bool
	Parity  bool
}

// Any reports whether any condition is set.
func (e UARTErrors) Any() bool {
	return e.Overrun || e.Framing || e.Parity
}

// Err returns nil or an error matching ErrUART that lists the conditions.
func (e UARTErrors) Err() error {
	if !e.Any() {
		return nil
	}
	return uartError{e}
}

func (e UARTErrors) bits() uint32 {
	var b uint32
	if e.Overrun {
		b |= 1
	}
	if e.Framing {
		b |= 2
	}
	if e.Parity {
		b |= 4
	}
	return b
}

func uartErrorsFromBits(b uint32) UARTErrors {
	return UARTErrors{Overrun: b&1 != 0, Framing: b&2 != 0, Parity: b&4 != 0}
}

type uartError struct{ e UARTErrors }

func (u uartError) Error() string {
	s := ErrUART.Error() + ":"
	if u.e.Overrun {
		s += " overrun"
	}
	if u.e.Framing {
		s += " framing"
	}
	if u.e.Parity {
		s += " parity"
	}
	return s
}

func (u uartError) Is(target error) bool { return target == ErrUART }

// RxReport is what one RX interrupt observed. The conditions are
// informational; reception continues regardless.
type RxReport struct {
	Moved   int // bytes moved into the queue
	Dropped int // incoming bytes dropped, or old bytes evicted, because the queue was full
	Errors  UARTErrors
}

// Err returns nil, ErrRxQueueOverflow, an ErrUART error, or both joined.
func (r RxReport) Err() error {
	return joinRxErrors(r.Dropped > 0, r.Errors)
}

func joinRxErrors(overflow bool, e UARTErrors) error {
	uerr := e.Err()
	switch {
	case overflow && uerr != nil:
		return joinedError{ErrRxQueueOverflow, uerr}
	case overflow:
		return ErrRxQueueOverflow
	}
	return uerr
}

// joinedError is errors.Join for two errors without the allocation of a slice.
type joinedError struct{ a, b error }

func (j joinedError) Error() string   { return j.a.Error() + "\n" + j.b.Error() }
func (j joinedError) Unwrap() []error { return []error{j.a, j.b} }

// rxState is the per-bank state shared between the RX interrupt and the reader.
type rxState struct {
	waker   WakerSlot
	reading atomic.Bool

	// Accumulated since the reader last collected them.
	dropped atomic.Uint32
	errs    atomic.Uint32
}

// txContext describes the transmission in flight. Guarded by the critical
// section.
type txContext struct {
	buf      []byte
	progress int
	overrun  bool
}

type txState struct {
	waker  WakerSlot
	done   atomic.Bool
	active atomic.Bool

	ctx txContext
}

// Allocated once for the process lifetime and indexed by bank.
var uartStates [numBanks]struct {
	rx rxState
	tx txState
}
