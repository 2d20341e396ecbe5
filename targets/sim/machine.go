// Package sim is a host-side model of the VA108xx/VA416xx peripherals the
// core consumes: decrementing counters, GPIO ports with edge detection, UART
// banks with FIFOs and an interrupt controller.
//
// Register writes made by core code only latch pending interrupt lines.
// Handlers run when the simulated hardware acts (Advance, SetLevel, Inject,
// Transmit, Service), one at a time, on the caller's goroutine, the way a
// single core runs its ISRs to completion.
package sim

import (
	"sync"

	"vorhal/core"
)

// Handler is an interrupt service routine.
type Handler func()

// Machine owns all simulated peripherals and the interrupt controller.
type Machine struct {
	mu sync.Mutex // peripheral state

	// isrMu serializes hardware actions and the handlers they run.
	isrMu sync.Mutex

	family   core.Family
	clocks   uint64
	counters []*Counter
	ports    [7]*GPIOPort
	uarts    [3]*UART

	handlers map[core.IRQ]Handler
	unmasked map[core.IRQ]bool
	pending  map[core.IRQ]bool
}

// NewMachine creates the peripherals of family. No driver is registered with
// core until Install is called.
func NewMachine(family core.Family) *Machine {
	m := &Machine{
		family:   family,
		handlers: make(map[core.IRQ]Handler),
		unmasked: make(map[core.IRQ]bool),
		pending:  make(map[core.IRQ]bool),
	}

	prev := core.CurrentFamily()
	core.SetFamily(family)
	for p := core.PortA; p <= core.PortG; p++ {
		if n := p.NumPins(); n > 0 {
			m.ports[p] = &GPIOPort{m: m, port: p, pins: n}
		}
	}
	for b := 0; b < core.NumBanks(); b++ {
		m.uarts[b] = newUART(m, core.Bank(b))
	}
	core.SetFamily(prev)
	return m
}

// Install selects the machine's family and registers its interrupt controller,
// GPIO ports and UART banks with core.
func (m *Machine) Install() {
	core.SetFamily(m.family)
	core.SetIRQController(m)
	for i, p := range m.ports {
		if p != nil {
			core.SetGPIOPort(core.Port(i), p)
		}
	}
	for i, u := range m.uarts {
		if u != nil {
			core.SetUARTBank(core.Bank(i), u)
		}
	}
}

// NewCounter adds a counter whose wrap raises irq.
func (m *Machine) NewCounter(irq core.IRQ) *Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &Counter{m: m, irq: irq}
	m.counters = append(m.counters, c)
	return c
}

// Port returns the simulated port, or nil if the family lacks it.
func (m *Machine) Port(p core.Port) *GPIOPort {
	if int(p) >= len(m.ports) {
		return nil
	}
	return m.ports[p]
}

// UART returns the simulated bank, or nil if the family lacks it.
func (m *Machine) UART(b core.Bank) *UART {
	if int(b) >= len(m.uarts) {
		return nil
	}
	return m.uarts[b]
}

// Handle installs the ISR of irq.
func (m *Machine) Handle(irq core.IRQ, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[irq] = h
}

// Unmask implements core.IRQController.
func (m *Machine) Unmask(irq core.IRQ) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unmasked[irq] = true
}

// Mask implements core.IRQController.
func (m *Machine) Mask(irq core.IRQ) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unmasked[irq] = false
}

// Unmasked reports whether irq is enabled at the controller.
func (m *Machine) Unmasked(irq core.IRQ) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.unmasked[irq]
}

// Clocks returns the number of input clocks simulated so far.
func (m *Machine) Clocks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.clocks
}

// pend latches irq. m.mu held.
func (m *Machine) pend(irq core.IRQ) {
	if irq >= 0 {
		m.pending[irq] = true
	}
}

// Service runs the handlers of all pending, unmasked interrupt lines until
// none is left, lowest line first.
func (m *Machine) Service() {
	m.isrMu.Lock()
	defer m.isrMu.Unlock()

	m.service()
}

// service is Service with isrMu held.
func (m *Machine) service() {
	// A handler that keeps re-pending its own line is a stuck peripheral.
	for budget := 1 << 16; budget > 0; budget-- {
		h := m.nextHandler()
		if h == nil {
			return
		}
		h()
	}
}

func (m *Machine) nextHandler() Handler {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		best  core.IRQ = -1
		found bool
	)
	for irq := range m.pending {
		if !m.unmasked[irq] || m.handlers[irq] == nil {
			continue
		}
		if !found || irq < best {
			best, found = irq, true
		}
	}
	if !found {
		return nil
	}
	delete(m.pending, best)
	return m.handlers[best]
}

// Advance runs the counters for n input clocks. Every wrap runs the
// counter's handler at the clock it happens on.
func (m *Machine) Advance(n uint64) {
	m.isrMu.Lock()
	defer m.isrMu.Unlock()

	for n > 0 {
		step, wrapped := m.step(n)
		n -= step
		if wrapped {
			m.service()
		}
	}
	m.service()
}

// step advances to the next wrap of any counter, or by n clocks if no wrap
// comes sooner.
func (m *Machine) step(n uint64) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	step := n
	for _, c := range m.counters {
		if d := c.untilWrap(); d < step {
			step = d
		}
	}
	wrapped := false
	for _, c := range m.counters {
		if c.advance(step) {
			wrapped = true
		}
	}
	m.clocks += step
	return step, wrapped
}
