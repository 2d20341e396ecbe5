package sim

import (
	"vorhal/core"
	"vorhal/ringbuf"
)

// Timer is the counter pair backing a time driver.
type Timer struct {
	Timekeeper *Counter
	Alarm      *Counter
}

// StartTimer creates the timekeeper and alarm counters, installs their ISRs
// and initializes d on them.
func (m *Machine) StartTimer(d *core.TimerDriver, sysClkHz, tickHz uint32, tkIRQ, alarmIRQ core.IRQ) (Timer, error) {
	t := Timer{
		Timekeeper: m.NewCounter(tkIRQ),
		Alarm:      m.NewCounter(alarmIRQ),
	}
	m.Handle(tkIRQ, d.OnTimekeeperInterrupt)
	m.Handle(alarmIRQ, d.OnAlarmInterrupt)

	err := d.Init(core.TimerConfig{
		SysClkHz:      sysClkHz,
		TickHz:        tickHz,
		Timekeeper:    t.Timekeeper,
		Alarm:         t.Alarm,
		TimekeeperIRQ: tkIRQ,
		AlarmIRQ:      alarmIRQ,
	})
	return t, err
}

// HandlePort installs a GPIO ISR on irq that dispatches the given ports.
// Dispatch errors are counted by the returned function.
func (m *Machine) HandlePort(irq core.IRQ, ports ...core.Port) func() int {
	var failures int
	m.Handle(irq, func() {
		for _, p := range ports {
			if err := core.Dispatch(p); err != nil {
				failures++
			}
		}
	})
	return func() int {
		m.isrMu.Lock()
		defer m.isrMu.Unlock()
		return failures
	}
}

// UARTHandler collects what the RX half of a bank's ISR reported.
type UARTHandler struct {
	m       *Machine
	reports []core.RxReport
}

// Reports returns the RX reports seen so far.
func (h *UARTHandler) Reports() []core.RxReport {
	h.m.isrMu.Lock()
	defer h.m.isrMu.Unlock()
	return append([]core.RxReport(nil), h.reports...)
}

// HandleUART routes bank's interrupt to irq and installs an ISR servicing
// both halves. With shared set, RX uses the overwriting policy.
func (m *Machine) HandleUART(bank core.Bank, irq core.IRQ, prod *ringbuf.Producer, shared *core.SharedConsumer) *UARTHandler {
	h := &UARTHandler{m: m}
	if u := m.UART(bank); u != nil {
		u.SetIRQ(irq)
	}
	m.Handle(irq, func() {
		var rep core.RxReport
		if shared != nil {
			rep = core.OnInterruptRxOverwriting(bank, prod, shared)
		} else {
			rep = core.OnInterruptRx(bank, prod)
		}
		if rep.Moved > 0 || rep.Dropped > 0 || rep.Errors.Any() {
			h.reports = append(h.reports, rep)
		}
		core.OnInterruptTx(bank)
	})
	return h
}
