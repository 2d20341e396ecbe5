package core

import (
	"context"
	"math/bits"
	"sync/atomic"
)

// Edge selects which transition raises a pin interrupt.
type Edge uint8

const (
	EdgeFalling Edge = iota // high to low
	EdgeRising              // low to high
	EdgeBoth
)

// portWakeTable holds the per-pin wake slots and sticky edge flags of one port.
type portWakeTable struct {
	wakers [maxPortPins]WakerSlot
	edge   [maxPortPins]atomic.Bool
}

// Allocated once for the process lifetime and indexed by port and pin offset.
var portTables [numPorts]portWakeTable

// Dispatch services a GPIO interrupt for port. The user ISR of every
// interrupt line that carries pins of this port must call it.
func Dispatch(port Port) error {
	if err := checkPort(port); err != nil {
		return err
	}
	if !port.HasInterrupts() {
		return ErrPortNoInterrupts
	}
	p, err := gpioPort(port)
	if err != nil {
		return err
	}
	dispatch(port, p.IRQEnabled(), p.EdgeStatus())
	return nil
}

// dispatch wakes every enabled pin in ascending offset order and latches the
// edge flag of the pins whose edge status is set.
func dispatch(port Port, enabled, edgeStatus uint32) {
	t := &portTables[port]
	for enabled != 0 {
		pos := bits.TrailingZeros32(enabled)
		mask := uint32(1) << pos

		// A wake without a matching edge only makes the waiter re-poll.
		t.wakers[pos].Wake()

		if edgeStatus&mask != 0 {
			t.edge[pos].Store(true)
			RecordTiming(EvtGPIOEdge, uint8(pos), uint32(port), 0)
		}
		enabled &^= mask
	}
}

// irqPort validates that pin exists and can raise interrupts and returns
// its port driver.
func irqPort(pin PinID) (GPIOPort, error) {
	if err := checkPort(pin.Port); err != nil {
		return nil, err
	}
	if !pin.Port.HasInterrupts() {
		return nil, ErrPortNoInterrupts
	}
	if int(pin.Offset) >= pin.Port.NumPins() {
		return nil, ErrInvalidOffset
	}
	return gpioPort(pin.Port)
}

// EdgeDetected reports the sticky edge flag of a pin without consuming it.
// Pins that do not exist on the configured family report false.
func EdgeDetected(pin PinID) bool {
	if checkPort(pin.Port) != nil || int(pin.Offset) >= pin.Port.NumPins() {
		return false
	}
	return portTables[pin.Port].edge[pin.Offset].Load()
}

// PinWait is an armed wait for an edge on one pin. It is owned by a single
// task. Close disables the pin interrupt; an abandoned wait must be closed.
type PinWait struct {
	id     PinID
	irq    IRQ
	port   GPIOPort
	table  *portWakeTable
	closed bool
}

// NewPinWait clears the pin's edge flag, programs the edge sensitivity and
// enables the pin interrupt.
//
// A flag latched by a previous wait that was abandoned after the interrupt
// fired is discarded here, so a new wait never completes from a stale edge.
func NewPinWait(pin PinID, edge Edge, irq IRQ) (*PinWait, error) {
	p, err := irqPort(pin)
	if err != nil {
		return nil, err
	}
	t := &portTables[pin.Port]
	t.edge[pin.Offset].Store(false)
	p.SetEdgeSensitivity(pin.Offset, edge)
	p.SetPinIRQEnabled(pin.Offset, irq, true)
	unmaskIRQ(irq)
	return &PinWait{id: pin, irq: irq, port: p, table: t}, nil
}

// Pin returns the pin this wait is bound to.
func (w *PinWait) Pin() PinID { return w.id }

// Poll registers sig as the pin's wake handle and consumes the edge flag.
// It reports true once the edge was seen.
func (w *PinWait) Poll(sig *Signal) bool {
	w.table.wakers[w.id.Offset].Register(sig)
	return w.table.edge[w.id.Offset].Swap(false)
}

// Wait suspends until the edge is seen or ctx is done. The wait is closed
// in both cases.
func (w *PinWait) Wait(ctx context.Context) error {
	defer w.Close()

	sig := NewSignal()
	for !w.Poll(sig) {
		select {
		case <-sig.C():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close disables the pin interrupt. A flag latched after that point is left
// for the next NewPinWait to discard.
func (w *PinWait) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.port.SetPinIRQEnabled(w.id.Offset, w.irq, false)
}

// AsyncInput is an input pin with suspendable level and edge waits.
type AsyncInput struct {
	id   PinID
	irq  IRQ
	port GPIOPort
}

// NewAsyncInput binds an input pin to the interrupt line used to wake it.
// Pins of a port without interrupt wiring are rejected.
func NewAsyncInput(pin PinID, irq IRQ) (*AsyncInput, error) {
	p, err := irqPort(pin)
	if err != nil {
		return nil, err
	}
	return &AsyncInput{id: pin, irq: irq, port: p}, nil
}

// Pin returns the bound pin.
func (in *AsyncInput) Pin() PinID { return in.id }

// IsHigh reads the current level.
func (in *AsyncInput) IsHigh() bool { return in.port.Level(in.id.Offset) }

// WaitForHigh returns once the pin is high, immediately if it already is.
func (in *AsyncInput) WaitForHigh(ctx context.Context) error {
	return in.waitLevel(ctx, EdgeRising, true)
}

// WaitForLow returns once the pin is low, immediately if it already is.
func (in *AsyncInput) WaitForLow(ctx context.Context) error {
	return in.waitLevel(ctx, EdgeFalling, false)
}

// WaitForRisingEdge waits for the next low to high transition.
func (in *AsyncInput) WaitForRisingEdge(ctx context.Context) error {
	return in.waitEdge(ctx, EdgeRising)
}

// WaitForFallingEdge waits for the next high to low transition.
func (in *AsyncInput) WaitForFallingEdge(ctx context.Context) error {
	return in.waitEdge(ctx, EdgeFalling)
}

// WaitForAnyEdge waits for the next transition in either direction.
func (in *AsyncInput) WaitForAnyEdge(ctx context.Context) error {
	return in.waitEdge(ctx, EdgeBoth)
}

func (in *AsyncInput) waitEdge(ctx context.Context, edge Edge) error {
	w, err := NewPinWait(in.id, edge, in.irq)
	if err != nil {
		return err
	}
	return w.Wait(ctx)
}

func (in *AsyncInput) waitLevel(ctx context.Context, edge Edge, high bool) error {
	// Arm first: a transition between the level check and arming would
	// otherwise be lost.
	w, err := NewPinWait(in.id, edge, in.irq)
	if err != nil {
		return err
	}
	if in.port.Level(in.id.Offset) == high {
		w.Close()
		return nil
	}
	return w.Wait(ctx)
}
