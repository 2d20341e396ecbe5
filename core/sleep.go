package core

import (
	"context"
	"time"
)

// SleepUntil suspends the calling task until Now reaches at. Cancelling ctx
// abandons the wait and removes the queued request.
func (d *TimerDriver) SleepUntil(ctx context.Context, at uint64) error {
	sig := NewSignal()
	for d.Now() < at {
		if err := d.ScheduleWake(at, sig); err != nil {
			return err
		}
		select {
		case <-sig.C():
		case <-ctx.Done():
			d.CancelWake(sig)
			return ctx.Err()
		}
	}
	return nil
}

// Sleep suspends the calling task for the given number of ticks.
func (d *TimerDriver) Sleep(ctx context.Context, ticks uint64) error {
	return d.SleepUntil(ctx, d.Now()+ticks)
}

// SleepFor suspends the calling task for at least dur.
func (d *TimerDriver) SleepFor(ctx context.Context, dur time.Duration) error {
	return d.Sleep(ctx, d.TicksFromDuration(dur))
}

// Now returns the current tick count of the default time driver.
func Now() uint64 {
	return defaultDriver.Now()
}

// SleepUntil sleeps on the default time driver.
func SleepUntil(ctx context.Context, at uint64) error {
	return defaultDriver.SleepUntil(ctx, at)
}
