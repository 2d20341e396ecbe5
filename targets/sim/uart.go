package sim

import (
	"io"

	"vorhal/core"
)

const (
	// FIFODepth is the depth of both hardware FIFOs.
	FIFODepth = core.TxFIFODepth

	defaultTriggerLevel = FIFODepth / 2
)

// UART models one bank: a receive FIFO with trigger level and idle timeout,
// a transmit FIFO drained by Transmit, and the interrupt conditions of both.
type UART struct {
	m    *Machine
	bank core.Bank
	irq  core.IRQ

	irqEnabled core.IRQFlags
	trigger    int

	rxOn    bool
	rx      []byte
	idle    bool
	overrun bool
	framing bool
	parity  bool

	txOn   bool
	tx     []byte
	wrLost bool
	sent   []byte
	line   io.Writer
}

var _ core.UARTBank = (*UART)(nil)

func newUART(m *Machine, bank core.Bank) *UART {
	return &UART{m: m, bank: bank, irq: -1, trigger: defaultTriggerLevel}
}

// SetIRQ routes the bank's interrupt to irq.
func (u *UART) SetIRQ(irq core.IRQ) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.irq = irq
}

// SetTriggerLevel sets the RX FIFO fill level that raises IRQRx.
func (u *UART) SetTriggerLevel(n int) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if n >= 1 && n <= FIFODepth {
		u.trigger = n
	}
}

// SetLine copies every transmitted byte to w. w is called with the machine
// lock held and must not call back into the machine.
func (u *UART) SetLine(w io.Writer) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.line = w
}

// status computes the raw interrupt conditions. m.mu held.
func (u *UART) status() core.IRQFlags {
	var f core.IRQFlags
	if u.rxOn && len(u.rx) >= u.trigger {
		f |= core.IRQRx
	}
	if u.rxOn && u.idle && len(u.rx) > 0 {
		f |= core.IRQRxTimeout
	}
	if u.overrun || u.framing || u.parity {
		f |= core.IRQRxStatus
	}
	if u.txOn && len(u.tx) < FIFODepth {
		f |= core.IRQTx
	}
	if u.wrLost {
		f |= core.IRQTxStatus
	}
	if u.txOn && len(u.tx) == 0 {
		f |= core.IRQTxEmpty
	}
	return f
}

// raise pends the bank interrupt if an enabled condition holds. m.mu held.
func (u *UART) raise() {
	if u.status()&u.irqEnabled != 0 {
		u.m.pend(u.irq)
	}
}

func (u *UART) IRQStatus() core.IRQFlags {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return u.status()
}

func (u *UART) IRQEnabled() core.IRQFlags {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return u.irqEnabled
}

func (u *UART) SetIRQEnabled(flags core.IRQFlags) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.irqEnabled = flags
	u.raise()
}

func (u *UART) ClearIRQ(flags core.IRQFlags) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if flags&core.IRQRxStatus != 0 {
		u.overrun = false
		u.framing = false
		u.parity = false
	}
	if flags&core.IRQTxStatus != 0 {
		u.wrLost = false
	}
}

func (u *UART) RxStatus() core.RxStatus {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return core.RxStatus{
		DataAvailable: len(u.rx) > 0,
		Overrun:       u.overrun,
		Framing:       u.framing,
		Parity:        u.parity,
	}
}

func (u *UART) TxStatus() core.TxStatus {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return core.TxStatus{
		Ready:  len(u.tx) < FIFODepth,
		Busy:   len(u.tx) > 0,
		WrLost: u.wrLost,
	}
}

func (u *UART) ReadRxByte() byte {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if len(u.rx) == 0 {
		return 0
	}
	b := u.rx[0]
	u.rx = u.rx[1:]
	if len(u.rx) == 0 {
		u.idle = false
	}
	return b
}

func (u *UART) WriteTxByte(b byte) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if len(u.tx) >= FIFODepth {
		u.wrLost = true
		return
	}
	u.tx = append(u.tx, b)
}

func (u *UART) RxFIFOTriggerLevel() int {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return u.trigger
}

func (u *UART) EnableRx() {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.rxOn = true
	u.raise()
}

func (u *UART) DisableRx() {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.rxOn = false
}

func (u *UART) EnableTx() {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.txOn = true
	u.raise()
}

func (u *UART) DisableTx() {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.txOn = false
}

func (u *UART) ClearRxFIFO() {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.rx = nil
	u.idle = false
	u.overrun = false
	u.framing = false
	u.parity = false
}

func (u *UART) ClearTxFIFO() {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	u.tx = nil
	u.wrLost = false
}

// Inject receives bytes on the line. Bytes arriving while the receiver is off
// are lost; bytes arriving while the FIFO is full set the overrun latch.
// The interrupt is raised once the trigger level is reached.
func (u *UART) Inject(data ...byte) {
	u.m.isrMu.Lock()
	defer u.m.isrMu.Unlock()

	for _, b := range data {
		u.m.mu.Lock()
		if u.rxOn {
			if len(u.rx) >= FIFODepth {
				u.overrun = true
			} else {
				u.rx = append(u.rx, b)
			}
			u.idle = false
			u.raise()
		}
		u.m.mu.Unlock()
		u.m.service()
	}
}

// InjectErrors latches receive error conditions and raises the interrupt.
func (u *UART) InjectErrors(framing, parity bool) {
	u.m.isrMu.Lock()
	defer u.m.isrMu.Unlock()

	u.m.mu.Lock()
	u.framing = u.framing || framing
	u.parity = u.parity || parity
	u.raise()
	u.m.mu.Unlock()
	u.m.service()
}

// Idle marks the line idle long enough for the receive timeout condition.
func (u *UART) Idle() {
	u.m.isrMu.Lock()
	defer u.m.isrMu.Unlock()

	u.m.mu.Lock()
	if u.rxOn && len(u.rx) > 0 {
		u.idle = true
		u.raise()
	}
	u.m.mu.Unlock()
	u.m.service()
}

// Transmit shifts up to n bytes out of the TX FIFO and returns how many left.
func (u *UART) Transmit(n int) int {
	u.m.isrMu.Lock()
	defer u.m.isrMu.Unlock()

	u.m.mu.Lock()
	if !u.txOn {
		u.m.mu.Unlock()
		return 0
	}
	if n > len(u.tx) {
		n = len(u.tx)
	}
	out := u.tx[:n]
	u.tx = u.tx[n:]
	u.sent = append(u.sent, out...)
	if u.line != nil && n > 0 {
		u.line.Write(out)
	}
	u.raise()
	u.m.mu.Unlock()

	u.m.service()
	return n
}

// Sent returns a copy of all bytes transmitted so far.
func (u *UART) Sent() []byte {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return append([]byte(nil), u.sent...)
}

// TxFIFOLen returns the number of bytes waiting in the TX FIFO.
func (u *UART) TxFIFOLen() int {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return len(u.tx)
}

// TxEnabled reports whether the transmitter is on.
func (u *UART) TxEnabled() bool {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return u.txOn
}
