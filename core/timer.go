package core

import (
	"sync/atomic"
	"time"
)

// TickHz is the default logical tick rate of the monotonic clock
const TickHz = 1000000

// TimerConfig describes the two counter peripherals backing the time driver.
type TimerConfig struct {
	SysClkHz uint32 // counter input clock
	TickHz   uint32 // logical tick rate, TickHz if zero

	Timekeeper    Counter // free-running, wraps every 2^32 input clocks
	Alarm         Counter // one-shot deadline counter
	TimekeeperIRQ IRQ
	AlarmIRQ      IRQ
}

// TimerDriver extends a wrapping 32-bit decrementing counter into a
// monotonic 64-bit tick clock and owns the single hardware alarm.
type TimerDriver struct {
	periods atomic.Uint32
	scale   atomic.Uint64 // hardware ticks per logical tick, 0 until Init
	tickHz  uint32

	timekeeper Counter
	alarm      Counter

	// Guarded by the critical section.
	alarmAt uint64
	queue   DeadlineQueue
}

var defaultDriver = NewTimerDriver()

// DefaultTimerDriver returns the process-wide time driver whose interrupt
// entry points the user ISRs call.
func DefaultTimerDriver() *TimerDriver {
	return defaultDriver
}

// NewTimerDriver returns an uninitialized driver.
func NewTimerDriver() *TimerDriver {
	return &TimerDriver{alarmAt: NoAlarm}
}

// Init programs both counters and starts timekeeping. Only the first call has
// an effect; later calls return nil without touching the hardware.
func (d *TimerDriver) Init(cfg TimerConfig) error {
	if d.scale.Load() != 0 {
		return nil
	}
	if cfg.TickHz == 0 {
		cfg.TickHz = TickHz
	}
	if cfg.SysClkHz == 0 || cfg.SysClkHz < cfg.TickHz {
		return ErrInvalidClock
	}
	if cfg.Timekeeper == nil || cfg.Alarm == nil {
		return ErrNoDriver
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	d.timekeeper = cfg.Timekeeper
	d.alarm = cfg.Alarm
	d.tickHz = cfg.TickHz

	tk := cfg.Timekeeper
	tk.Disable()
	tk.WriteReload(^uint32(0))
	tk.WriteCount(^uint32(0))
	unmaskIRQ(cfg.TimekeeperIRQ)
	tk.SetWrapIRQEnabled(true)

	// Alarm stays off until needed; only the NVIC line is unmasked.
	d.alarm.SetWrapIRQEnabled(false)
	d.alarm.Disable()
	unmaskIRQ(cfg.AlarmIRQ)

	// Publish scale last: Now reports 0 until here.
	d.scale.Store(uint64(cfg.SysClkHz / cfg.TickHz))
	tk.Enable()

	DebugPrintln("[TIMER] init scale=" + utoa(cfg.SysClkHz/cfg.TickHz))
	return nil
}

// Initialized reports whether Init has completed.
func (d *TimerDriver) Initialized() bool {
	return d.scale.Load() != 0
}

// Now returns the current time in logical ticks, or 0 before Init. Safe from
// task and interrupt context; never blocks.
func (d *TimerDriver) Now() uint64 {
	scale := d.scale.Load()
	if scale == 0 {
		return 0
	}
	for {
		p1 := d.periods.Load()
		raw := ^uint32(0) - d.timekeeper.ReadCount()
		p2 := d.periods.Load()
		// A wrap between the two loads makes the pair inconsistent; a second
		// wrap cannot happen within one retry.
		if p1 == p2 {
			return (uint64(p1)<<32 | uint64(raw)) / scale
		}
	}
}

// TickRate returns the logical tick rate in Hz.
func (d *TimerDriver) TickRate() uint32 {
	if d.tickHz == 0 {
		return TickHz
	}
	return d.tickHz
}

// TicksFromDuration converts a duration to logical ticks, rounding up so a
// sleep is never shorter than asked.
func (d *TimerDriver) TicksFromDuration(dur time.Duration) uint64 {
	if dur <= 0 {
		return 0
	}
	hz := uint64(d.TickRate())
	ns := uint64(dur)
	return (ns/uint64(time.Second))*hz + ((ns%uint64(time.Second))*hz+uint64(time.Second)-1)/uint64(time.Second)
}

// DurationFromTicks converts logical ticks to a duration.
func (d *TimerDriver) DurationFromTicks(ticks uint64) time.Duration {
	hz := uint64(d.TickRate())
	return time.Duration(ticks/hz)*time.Second + time.Duration((ticks%hz)*uint64(time.Second)/hz)
}
