package sim

import "vorhal/core"

// Counter models a 32-bit decrementing timer. It counts down to zero; the
// clock after zero reloads it and, with the wrap interrupt enabled, raises
// its interrupt line.
type Counter struct {
	m   *Machine
	irq core.IRQ

	count   uint32
	reload  uint32
	enabled bool
	irqOn   bool
	wraps   uint64
}

var _ core.Counter = (*Counter)(nil)

func (c *Counter) ReadCount() uint32 {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.count
}

func (c *Counter) WriteCount(v uint32) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.count = v
}

func (c *Counter) WriteReload(v uint32) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.reload = v
}

func (c *Counter) Enable() {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.enabled = true
}

func (c *Counter) Disable() {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.enabled = false
}

func (c *Counter) SetWrapIRQEnabled(enabled bool) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.irqOn = enabled
}

// Enabled reports whether the counter is running.
func (c *Counter) Enabled() bool {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.enabled
}

// Wraps returns the number of wraps seen.
func (c *Counter) Wraps() uint64 {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.wraps
}

// untilWrap returns the clocks until the next wrap. m.mu held.
func (c *Counter) untilWrap() uint64 {
	if !c.enabled {
		return ^uint64(0)
	}
	return uint64(c.count) + 1
}

// advance runs the counter for n clocks, at most up to its next wrap, and
// reports whether it wrapped. m.mu held.
func (c *Counter) advance(n uint64) bool {
	if !c.enabled || n == 0 {
		return false
	}
	if n <= uint64(c.count) {
		c.count -= uint32(n)
		return false
	}
	c.count = c.reload
	c.wraps++
	if c.irqOn {
		c.m.pend(c.irq)
	}
	return true
}
