package sim

import "vorhal/core"

// GPIOPort models one port's input levels, per-pin edge detection and
// interrupt routing. The edge status register is cleared by reading it.
type GPIOPort struct {
	m    *Machine
	port core.Port
	pins int

	level      uint32
	irqEnabled uint32
	edgeStatus uint32
	sense      [32]core.Edge
	route      [32]core.IRQ
}

var _ core.GPIOPort = (*GPIOPort)(nil)

func (p *GPIOPort) IRQEnabled() uint32 {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.irqEnabled
}

func (p *GPIOPort) EdgeStatus() uint32 {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	s := p.edgeStatus
	p.edgeStatus = 0
	return s
}

func (p *GPIOPort) SetEdgeSensitivity(offset uint8, edge core.Edge) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.sense[offset] = edge
}

func (p *GPIOPort) SetPinIRQEnabled(offset uint8, irq core.IRQ, enabled bool) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if enabled {
		p.irqEnabled |= 1 << offset
		p.route[offset] = irq
	} else {
		p.irqEnabled &^= 1 << offset
	}
}

func (p *GPIOPort) Level(offset uint8) bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.level&(1<<offset) != 0
}

// PinIRQEnabled reports whether the pin interrupt is enabled.
func (p *GPIOPort) PinIRQEnabled(offset uint8) bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.irqEnabled&(1<<offset) != 0
}

// SetLevel drives the input level of a pin. A transition matching the pin's
// edge sensitivity latches its edge status and raises its routed interrupt
// if the pin interrupt is enabled.
func (p *GPIOPort) SetLevel(offset uint8, high bool) {
	if int(offset) >= p.pins {
		return
	}
	p.m.isrMu.Lock()
	defer p.m.isrMu.Unlock()

	p.setLevel(offset, high)
	p.m.service()
}

// Pulse drives several pins to high at once, so their edges are latched
// before any handler runs.
func (p *GPIOPort) Pulse(mask uint32) {
	p.m.isrMu.Lock()
	defer p.m.isrMu.Unlock()

	for off := 0; off < p.pins; off++ {
		if mask&(1<<off) != 0 {
			p.setLevel(uint8(off), true)
		}
	}
	p.m.service()
}

func (p *GPIOPort) setLevel(offset uint8, high bool) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	bit := uint32(1) << offset
	was := p.level&bit != 0
	if high {
		p.level |= bit
	} else {
		p.level &^= bit
	}
	if was == high || p.irqEnabled&bit == 0 {
		return
	}
	match := false
	switch p.sense[offset] {
	case core.EdgeRising:
		match = high
	case core.EdgeFalling:
		match = !high
	case core.EdgeBoth:
		match = true
	}
	if match {
		p.edgeStatus |= bit
		p.m.pend(p.route[offset])
	}
}
