package core

import (
	"sync"
	"testing"
)

// fakeCounter is a register-level Counter whose count only changes when a
// test writes it.
type fakeCounter struct {
	mu      sync.Mutex
	count   uint32
	reload  uint32
	enabled bool
	irqOn   bool

	// onRead, if set, runs before every ReadCount and may change the count.
	onRead func(c *fakeCounter)
}

func (c *fakeCounter) ReadCount() uint32 {
	c.mu.Lock()
	hook := c.onRead
	c.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *fakeCounter) WriteCount(v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = v
}

func (c *fakeCounter) WriteReload(v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reload = v
}

func (c *fakeCounter) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

func (c *fakeCounter) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

func (c *fakeCounter) SetWrapIRQEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.irqOn = enabled
}

// setElapsed sets the count so that raw elapsed hardware ticks equal n.
func (c *fakeCounter) setElapsed(n uint32) {
	c.WriteCount(^uint32(0) - n)
}

func (c *fakeCounter) state() (count uint32, enabled, irqOn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, c.enabled, c.irqOn
}

type fakeNVIC struct {
	mu       sync.Mutex
	unmasked map[IRQ]bool
}

func newFakeNVIC() *fakeNVIC { return &fakeNVIC{unmasked: make(map[IRQ]bool)} }

func (n *fakeNVIC) Unmask(irq IRQ) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unmasked[irq] = true
}

func (n *fakeNVIC) Mask(irq IRQ) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unmasked[irq] = false
}

func (n *fakeNVIC) isUnmasked(irq IRQ) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unmasked[irq]
}

// fakePort is a GPIOPort whose registers are plain fields.
type fakePort struct {
	mu         sync.Mutex
	level      uint32
	irqEnabled uint32
	edgeStatus uint32
	sense      [32]Edge
}

func (p *fakePort) IRQEnabled() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.irqEnabled
}

func (p *fakePort) EdgeStatus() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.edgeStatus
}

func (p *fakePort) SetEdgeSensitivity(offset uint8, edge Edge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sense[offset] = edge
}

func (p *fakePort) SetPinIRQEnabled(offset uint8, irq IRQ, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if enabled {
		p.irqEnabled |= 1 << offset
	} else {
		p.irqEnabled &^= 1 << offset
	}
}

func (p *fakePort) Level(offset uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level&(1<<offset) != 0
}

func (p *fakePort) setLevel(offset uint8, high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if high {
		p.level |= 1 << offset
	} else {
		p.level &^= 1 << offset
	}
}

// fakeUART is a UARTBank with explicit FIFOs. The RX FIFO is unbounded and
// the status bits are set by the test.
type fakeUART struct {
	mu sync.Mutex

	irqStatus  IRQFlags
	irqEnabled IRQFlags
	cleared    IRQFlags
	trigger    int

	rxOn    bool
	rx      []byte
	rxErr   RxStatus
	txOn    bool
	tx      []byte
	txCap   int
	wrLost  bool
	sent    []byte
	maxFill int
}

func newFakeUART() *fakeUART {
	return &fakeUART{trigger: 8, txCap: TxFIFODepth}
}

func (u *fakeUART) IRQStatus() IRQFlags {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.irqStatus
}

func (u *fakeUART) IRQEnabled() IRQFlags {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.irqEnabled
}

func (u *fakeUART) SetIRQEnabled(flags IRQFlags) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.irqEnabled = flags
}

func (u *fakeUART) ClearIRQ(flags IRQFlags) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cleared |= flags
	if flags&IRQTxStatus != 0 {
		u.wrLost = false
	}
}

func (u *fakeUART) RxStatus() RxStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.rxErr
	s.DataAvailable = len(u.rx) > 0
	return s
}

func (u *fakeUART) TxStatus() TxStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return TxStatus{Ready: len(u.tx) < u.txCap, Busy: len(u.tx) > 0, WrLost: u.wrLost}
}

func (u *fakeUART) ReadRxByte() byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.rx) == 0 {
		return 0
	}
	b := u.rx[0]
	u.rx = u.rx[1:]
	return b
}

func (u *fakeUART) WriteTxByte(b byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.tx) >= u.txCap {
		u.wrLost = true
		return
	}
	u.tx = append(u.tx, b)
	u.sent = append(u.sent, b)
	if len(u.tx) > u.maxFill {
		u.maxFill = len(u.tx)
	}
}

func (u *fakeUART) RxFIFOTriggerLevel() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.trigger
}

func (u *fakeUART) EnableRx()  { u.set(&u.rxOn, true) }
func (u *fakeUART) DisableRx() { u.set(&u.rxOn, false) }
func (u *fakeUART) EnableTx()  { u.set(&u.txOn, true) }
func (u *fakeUART) DisableTx() { u.set(&u.txOn, false) }

func (u *fakeUART) set(f *bool, v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	*f = v
}

func (u *fakeUART) ClearRxFIFO() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rx = nil
}

func (u *fakeUART) ClearTxFIFO() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tx = nil
}

// receive appends bytes to the RX FIFO and sets the given status.
func (u *fakeUART) receive(status IRQFlags, data ...byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rx = append(u.rx, data...)
	u.irqStatus = status
}

// shift moves up to n bytes out of the TX FIFO.
func (u *fakeUART) shift(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if n > len(u.tx) {
		n = len(u.tx)
	}
	u.tx = u.tx[n:]
}

func (u *fakeUART) snapshot() (sent []byte, fifo int, txOn bool, enabled IRQFlags) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.sent...), len(u.tx), u.txOn, u.irqEnabled
}

// resetCore drops every registered driver and all per-pin and per-bank state.
func resetCore(t *testing.T) {
	t.Helper()

	SetFamily(FamilyVA108xx)
	irqController = nil
	for i := range gpioPorts {
		gpioPorts[i] = nil
	}
	for i := range uartBanks {
		uartBanks[i] = nil
	}
	for p := range portTables {
		for i := range portTables[p].wakers {
			portTables[p].wakers[i].Clear()
			portTables[p].edge[i].Store(false)
		}
	}
	for b := range uartStates {
		rx := &uartStates[b].rx
		rx.waker.Clear()
		rx.reading.Store(false)
		rx.dropped.Store(0)
		rx.errs.Store(0)

		tx := &uartStates[b].tx
		tx.waker.Clear()
		tx.done.Store(false)
		tx.active.Store(false)
		tx.ctx = txContext{}
	}
	ClearTimingRing()
}

// newTestDriver returns an initialized driver at scale 1 with its counters.
func newTestDriver(t *testing.T) (*TimerDriver, *fakeCounter, *fakeCounter) {
	t.Helper()

	tk, al := &fakeCounter{}, &fakeCounter{}
	d := NewTimerDriver()
	err := d.Init(TimerConfig{
		SysClkHz:      TickHz,
		Timekeeper:    tk,
		Alarm:         al,
		TimekeeperIRQ: 1,
		AlarmIRQ:      2,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return d, tk, al
}
