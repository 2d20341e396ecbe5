package core

import "context"

// TxAsync transmits caller buffers on one UART bank from its TX interrupt.
//
// The buffer handed to Write is referenced, not copied, until Write returns.
// The caller must not modify it meanwhile. Abandoning a Write through its
// context disables the transmitter before Write returns, so the interrupt
// never touches the buffer afterwards.
type TxAsync struct {
	bank  Bank
	irq   IRQ
	uart  UARTBank
	state *txState
}

// NewTxAsync binds bank's transmitter. The user ISR of the bank must call
// OnInterruptTx.
func NewTxAsync(bank Bank, irq IRQ) (*TxAsync, error) {
	u, err := uartBank(bank)
	if err != nil {
		return nil, err
	}
	return &TxAsync{bank: bank, irq: irq, uart: u, state: &uartStates[bank].tx}, nil
}

// Write transmits p and suspends until the last byte left the shift
// register. On completion it returns len(p), together with ErrTxOverrun if
// the hardware reported a lost write. If ctx is done first the transmission
// is abandoned and the number of bytes already handed to the hardware is
// returned with ctx.Err().
func (t *TxAsync) Write(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !t.state.active.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer t.state.active.Store(false)

	t.start(p)

	sig := NewSignal()
	for {
		n, overrun, done := t.Poll(sig)
		if done {
			if overrun {
				return n, ErrTxOverrun
			}
			return n, nil
		}
		select {
		case <-sig.C():
		case <-ctx.Done():
			return t.abandon(), ctx.Err()
		}
	}
}

// start prefills the FIFO and publishes the transmission to the interrupt.
func (t *TxAsync) start(p []byte) {
	u := t.uart

	state := disableInterrupts()
	u.SetIRQEnabled(u.IRQEnabled() &^ txIRQs)
	u.DisableTx()
	restoreInterrupts(state)

	u.ClearTxFIFO()

	n := len(p)
	if n > TxFIFODepth {
		n = TxFIFODepth
	}
	for i := 0; i < n; i++ {
		u.WriteTxByte(p[i])
	}
	t.state.done.Store(false)

	state = disableInterrupts()
	t.state.ctx = txContext{buf: p, progress: n}
	u.SetIRQEnabled(u.IRQEnabled() | txIRQs)
	u.EnableTx()
	restoreInterrupts(state)

	unmaskIRQ(t.irq)
}

// Poll registers sig and reports whether the transmission finished. Once it
// has, n is the number of bytes written and overrun whether a write was lost.
func (t *TxAsync) Poll(sig *Signal) (n int, overrun, done bool) {
	t.state.waker.Register(sig)
	if !t.state.done.Swap(false) {
		return 0, false, false
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	c := t.state.ctx
	t.state.ctx = txContext{}
	return c.progress, c.overrun, true
}

// abandon stops the transmitter and releases the buffer. Bytes already in the
// FIFO are not retracted.
func (t *TxAsync) abandon() int {
	u := t.uart

	state := disableInterrupts()
	u.SetIRQEnabled(u.IRQEnabled() &^ txIRQs)
	u.DisableTx()
	n := t.state.ctx.progress
	t.state.ctx = txContext{}
	restoreInterrupts(state)

	t.state.done.Store(false)
	t.state.waker.Clear()
	return n
}

// OnInterruptTx services the TX interrupt of bank.
func OnInterruptTx(bank Bank) {
	u, err := uartBank(bank)
	if err != nil {
		return
	}
	st := &uartStates[bank].tx

	state := disableInterrupts()
	defer restoreInterrupts(state)

	c := &st.ctx
	if c.buf == nil {
		return
	}

	ts := u.TxStatus()
	if ts.WrLost {
		c.overrun = true
		u.ClearIRQ(IRQTxStatus)
	}

	if c.progress >= len(c.buf) {
		if !ts.Busy {
			u.SetIRQEnabled(u.IRQEnabled() &^ txIRQs)
			u.DisableTx()
			c.buf = nil
			st.done.Store(true)
			RecordTiming(EvtTxDone, uint8(bank), uint32(c.progress), 0)
			st.waker.Wake()
		}
		return
	}

	for c.progress < len(c.buf) && u.TxStatus().Ready {
		u.WriteTxByte(c.buf[c.progress])
		c.progress++
	}
}
