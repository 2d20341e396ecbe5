package core

import "math/bits"

// alarmFloor is the minimum distance, in ticks, between now and a programmed
// alarm. Programming the counter takes a few ticks itself; an alarm may
// therefore fire up to two ticks late but never early.
const alarmFloor = 3

// OnTimekeeperInterrupt must be called once from the timekeeper counter's ISR.
func (d *TimerDriver) OnTimekeeperInterrupt() {
	period := d.periods.Add(1)
	scale := d.scale.Load()
	RecordTiming(EvtPeriod, 0, period, 0)

	state := disableInterrupts()
	defer restoreInterrupts(state)

	at := d.alarmAt
	if at == NoAlarm || scale == 0 {
		return
	}
	base := uint64(period) << 32
	hi, atHW := bits.Mul64(at, scale)
	if hi != 0 {
		// Far beyond this period, leave the alarm off.
		return
	}
	if atHW <= base {
		d.trigger()
		return
	}
	remaining := atHW - base
	if remaining > uint64(^uint32(0)) {
		return
	}
	d.alarm.Disable()
	d.alarm.WriteCount(uint32(remaining - 1))
	d.alarm.SetWrapIRQEnabled(true)
	d.alarm.Enable()
	RecordTiming(EvtAlarmArmed, 0, period, uint32(remaining))
}

// OnAlarmInterrupt must be called once from the alarm counter's ISR.
func (d *TimerDriver) OnAlarmInterrupt() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if d.alarmAt <= d.Now() {
		d.trigger()
	}
}

// ScheduleWake queues sig to be notified once Now reaches at, reprogramming
// the hardware alarm if the nearest deadline changed. A deadline already in
// the past notifies sig before returning.
func (d *TimerDriver) ScheduleWake(at uint64, sig *Signal) error {
	if !d.Initialized() {
		return ErrClockNotInitialized
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if d.queue.Schedule(at, sig) {
		d.rearm()
	}
	return nil
}

// CancelWake drops a pending request of sig.
func (d *TimerDriver) CancelWake(sig *Signal) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	d.queue.Remove(sig)
}

// AlarmAt returns the deadline the hardware alarm is primed for, or NoAlarm.
func (d *TimerDriver) AlarmAt() uint64 {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return d.alarmAt
}

// Pending returns the number of queued wake requests.
func (d *TimerDriver) Pending() int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return d.queue.Len()
}

// trigger fires the alarm: expired requests are woken and the next future
// deadline is armed. Critical section held.
func (d *TimerDriver) trigger() {
	d.alarm.SetWrapIRQEnabled(false)
	d.alarm.Disable()

	// Cleared before waking anyone so a woken task that schedules again
	// starts from an idle alarm.
	d.alarmAt = NoAlarm
	RecordTiming(EvtAlarmFire, 0, uint32(d.Now()), 0)

	d.rearm()
}

// rearm arms the nearest queued deadline. A deadline that passes while being
// programmed is expired by the queue on the next round, so the loop ends with
// either an armed future deadline or an empty queue. Critical section held.
func (d *TimerDriver) rearm() {
	next := d.queue.NextExpiration(d.Now())
	for !d.setAlarm(next) {
		next = d.queue.NextExpiration(d.Now())
	}
}

// setAlarm primes the alarm counter for tick at. It fails if at is already
// due; the caller must derive the next deadline and retry. Critical section held.
func (d *TimerDriver) setAlarm(at uint64) bool {
	scale := d.scale.Load()
	if scale == 0 {
		return false
	}
	d.alarm.SetWrapIRQEnabled(false)
	d.alarm.Disable()

	d.alarmAt = at
	t := d.Now()
	if at <= t {
		d.alarmAt = NoAlarm
		RecordTiming(EvtAlarmPast, 0, uint32(at), uint32(t))
		return false
	}

	safe := at
	if safe < t+alarmFloor {
		safe = t + alarmFloor
	}
	// Reload is set even when the alarm stays off so it is right once the
	// wrap handler enables it.
	d.alarm.WriteReload(^uint32(0))
	hi, ticks := bits.Mul64(safe-t, scale)
	if hi == 0 && ticks <= uint64(^uint32(0)) {
		d.alarm.WriteCount(uint32(ticks - 1))
		d.alarm.SetWrapIRQEnabled(true)
		d.alarm.Enable()
		RecordTiming(EvtAlarmArmed, 0, uint32(at), uint32(ticks))
	} else if at != NoAlarm {
		// Out of counter range; OnTimekeeperInterrupt arms it in a later period.
		RecordTiming(EvtAlarmDeferred, 0, uint32(at>>32), uint32(at))
	}
	return true
}
