package core

import "testing"

func TestErrorsAreStableStrings(t *testing.T) {
	cases := map[string]error{
		"port does not support interrupts":       ErrPortNoInterrupts,
		"pin offset out of range for port":       ErrInvalidOffset,
		"port not available on this family":      ErrInvalidPort,
		"uart bank not available on this family": ErrInvalidBank,
		"no register driver for peripheral":      ErrNoDriver,
		"time driver not initialized":            ErrClockNotInitialized,
		"clock and tick rate must be non-zero":   ErrInvalidClock,
		"rx queue overflow":                      ErrRxQueueOverflow,
		"uart receive error":                     ErrUART,
		"tx overrun":                             ErrTxOverrun,
		"busy":                                   ErrBusy,
	}
	for want, e := range cases {
		if e == nil || e.Error() != want {
			t.Fatalf("error %q mismatch: got %#v", want, e)
		}
	}
}
