package core

import (
	"context"

	"vorhal/ringbuf"
)

// SharedConsumer is the consumer end of an RX queue that both the reader and
// the overwriting RX interrupt use. Every access runs inside the critical
// section.
type SharedConsumer struct {
	c *ringbuf.Consumer
}

// NewSharedConsumer wraps the consumer end of an RX queue.
func NewSharedConsumer(c *ringbuf.Consumer) *SharedConsumer {
	return &SharedConsumer{c: c}
}

// Read copies up to len(p) queued bytes into p.
func (s *SharedConsumer) Read(p []byte) int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return s.c.Read(p)
}

// Len returns the number of queued bytes.
func (s *SharedConsumer) Len() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return s.c.Len()
}

// pushEvicting enqueues b, evicting the oldest byte first if the queue is
// full. It reports whether a byte was evicted.
func (s *SharedConsumer) pushEvicting(prod *ringbuf.Producer, b byte) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	evicted := false
	if !prod.Ready() {
		s.c.Dequeue()
		evicted = true
	}
	prod.Enqueue(b)
	return evicted
}

// OnInterruptRx services the RX interrupt of bank for a queue that drops
// incoming bytes when full. The user ISR of the bank calls it with the
// producer end of the queue handed to NewRxAsync.
func OnInterruptRx(bank Bank, prod *ringbuf.Producer) RxReport {
	return onInterruptRx(bank, prod, nil)
}

// OnInterruptRxOverwriting services the RX interrupt of bank for a queue that
// evicts its oldest byte when full, so it always holds the most recent bytes.
func OnInterruptRxOverwriting(bank Bank, prod *ringbuf.Producer, shared *SharedConsumer) RxReport {
	return onInterruptRx(bank, prod, shared)
}

func onInterruptRx(bank Bank, prod *ringbuf.Producer, shared *SharedConsumer) RxReport {
	var rep RxReport
	u, err := uartBank(bank)
	if err != nil {
		return rep
	}
	st := &uartStates[bank].rx

	enabled := u.IRQEnabled()
	status := u.IRQStatus()

	if status&IRQRx != 0 {
		// The trigger level is guaranteed to be in the FIFO.
		for n := u.RxFIFOTriggerLevel(); n > 0; n-- {
			rxPush(prod, shared, u.ReadRxByte(), &rep)
		}
	}
	if status&IRQRxTimeout != 0 {
		for u.RxStatus().DataAvailable {
			rxPush(prod, shared, u.ReadRxByte(), &rep)
		}
	}

	if rep.Moved > 0 {
		st.waker.Wake()
	}
	if rep.Dropped > 0 {
		st.dropped.Add(uint32(rep.Dropped))
		RecordTiming(EvtRxOverflow, uint8(bank), uint32(rep.Dropped), 0)
	}

	if enabled&IRQRx != 0 {
		rs := u.RxStatus()
		rep.Errors = UARTErrors{Overrun: rs.Overrun, Framing: rs.Framing, Parity: rs.Parity}
		if b := rep.Errors.bits(); b != 0 {
			st.errs.Or(b)
		}
	}
	u.ClearIRQ(IRQRxStatus)
	return rep
}

func rxPush(prod *ringbuf.Producer, shared *SharedConsumer, b byte, rep *RxReport) {
	if shared != nil {
		if shared.pushEvicting(prod, b) {
			rep.Dropped++
		}
		rep.Moved++
		return
	}
	if !prod.Enqueue(b) {
		rep.Dropped++
		return
	}
	rep.Moved++
}

// rxCore is the reader side common to both overflow policies.
type rxCore struct {
	bank  Bank
	irq   IRQ
	uart  UARTBank
	state *rxState
}

func newRxCore(bank Bank, irq IRQ) (rxCore, error) {
	u, err := uartBank(bank)
	if err != nil {
		return rxCore{}, err
	}
	return rxCore{bank: bank, irq: irq, uart: u, state: &uartStates[bank].rx}, nil
}

// start empties the hardware FIFO and enables reception and its interrupts.
func (r *rxCore) start() {
	r.uart.DisableRx()
	r.uart.ClearRxFIFO()

	r.state.dropped.Store(0)
	r.state.errs.Store(0)

	state := disableInterrupts()
	r.uart.SetIRQEnabled(r.uart.IRQEnabled() | rxIRQs)
	r.uart.EnableRx()
	restoreInterrupts(state)

	unmaskIRQ(r.irq)
}

// Stop disables reception and its interrupts. Queued bytes stay readable.
func (r *rxCore) Stop() {
	state := disableInterrupts()
	r.uart.SetIRQEnabled(r.uart.IRQEnabled() &^ rxIRQs)
	r.uart.DisableRx()
	restoreInterrupts(state)

	r.state.waker.Clear()
}

// Errors returns and clears the conditions the RX interrupt reported since
// the last call: ErrRxQueueOverflow, an ErrUART error, both, or nil.
func (r *rxCore) Errors() error {
	dropped := r.state.dropped.Swap(0)
	errs := r.state.errs.Swap(0)
	return joinRxErrors(dropped > 0, uartErrorsFromBits(errs))
}

// poll registers sig, then drains whatever is queued into p.
func (r *rxCore) poll(sig *Signal, p []byte, take func([]byte) int) int {
	if n := take(p); n > 0 {
		return n
	}
	r.state.waker.Register(sig)
	// Bytes that arrived before the registration woke nobody.
	return take(p)
}

// read suspends until at least one byte is copied into p or ctx is done.
// Receive conditions seen meanwhile are returned alongside the count.
func (r *rxCore) read(ctx context.Context, p []byte, take func([]byte) int) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !r.state.reading.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer r.state.reading.Store(false)

	sig := NewSignal()
	for {
		if n := r.poll(sig, p, take); n > 0 {
			return n, r.Errors()
		}
		select {
		case <-sig.C():
		case <-ctx.Done():
			r.state.waker.Clear()
			return 0, ctx.Err()
		}
	}
}

// RxAsync receives from a UART bank into a queue that drops incoming bytes
// while full.
type RxAsync struct {
	rxCore
	cons *ringbuf.Consumer
}

// NewRxAsync starts interrupt-driven reception on bank. The caller keeps the
// producer end of the queue for its ISR, which calls OnInterruptRx.
func NewRxAsync(bank Bank, irq IRQ, cons *ringbuf.Consumer) (*RxAsync, error) {
	c, err := newRxCore(bank, irq)
	if err != nil {
		return nil, err
	}
	r := &RxAsync{rxCore: c, cons: cons}
	r.start()
	return r, nil
}

// Read copies queued bytes into p, suspending while the queue is empty.
func (r *RxAsync) Read(ctx context.Context, p []byte) (int, error) {
	return r.read(ctx, p, r.cons.Read)
}

// Poll is the single-step form of Read for callers that drive their own
// wait: it registers sig and returns the bytes available now, possibly none.
func (r *RxAsync) Poll(sig *Signal, p []byte) int {
	return r.poll(sig, p, r.cons.Read)
}

// TryRead copies queued bytes into p without suspending and collects the
// receive conditions, like Errors.
func (r *RxAsync) TryRead(p []byte) (int, error) {
	n := r.ReadBuffered(p)
	return n, r.Errors()
}

// ReadBuffered copies queued bytes into p without suspending. Receive
// conditions stay pending.
func (r *RxAsync) ReadBuffered(p []byte) int { return r.cons.Read(p) }

// Buffered returns the number of queued bytes.
func (r *RxAsync) Buffered() int { return r.cons.Len() }

// RxAsyncOverwriting receives from a UART bank into a queue that evicts its
// oldest byte for every byte arriving while full.
type RxAsyncOverwriting struct {
	rxCore
	shared *SharedConsumer
}

// NewRxAsyncOverwriting starts interrupt-driven reception on bank. The ISR
// calls OnInterruptRxOverwriting with the same shared consumer.
func NewRxAsyncOverwriting(bank Bank, irq IRQ, shared *SharedConsumer) (*RxAsyncOverwriting, error) {
	c, err := newRxCore(bank, irq)
	if err != nil {
		return nil, err
	}
	r := &RxAsyncOverwriting{rxCore: c, shared: shared}
	r.start()
	return r, nil
}

// Read copies queued bytes into p, suspending while the queue is empty.
func (r *RxAsyncOverwriting) Read(ctx context.Context, p []byte) (int, error) {
	return r.read(ctx, p, r.shared.Read)
}

// Poll is the single-step form of Read.
func (r *RxAsyncOverwriting) Poll(sig *Signal, p []byte) int {
	return r.poll(sig, p, r.shared.Read)
}

// TryRead copies queued bytes into p without suspending and collects the
// receive conditions, like Errors.
func (r *RxAsyncOverwriting) TryRead(p []byte) (int, error) {
	n := r.ReadBuffered(p)
	return n, r.Errors()
}

// ReadBuffered copies queued bytes into p without suspending. Receive
// conditions stay pending.
func (r *RxAsyncOverwriting) ReadBuffered(p []byte) int { return r.shared.Read(p) }

// Buffered returns the number of queued bytes.
func (r *RxAsyncOverwriting) Buffered() int { return r.shared.Len() }
