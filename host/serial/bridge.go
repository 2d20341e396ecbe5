package serial

import (
	"context"
	"errors"
	"io"
	"os"

	"vorhal/targets/sim"
)

// Bridge feeds bytes read from a host port into a simulated UART receiver
// and copies everything the UART transmits back to the port.
type Bridge struct {
	port Port
	uart *sim.UART
}

// NewBridge attaches port as the line of uart.
func NewBridge(port Port, uart *sim.UART) *Bridge {
	uart.SetLine(port)
	return &Bridge{port: port, uart: uart}
}

// Run pumps received bytes until ctx is done or the port fails. Read
// timeouts of the port mark the line idle, which raises the receive
// timeout condition on the UART.
func (b *Bridge) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { b.port.Close() })
	defer stop()

	buf := make([]byte, 64)
	for {
		n, err := b.port.Read(buf)
		if n > 0 {
			b.uart.Inject(buf[:n]...)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err == nil && n > 0:
		case err == nil, errors.Is(err, os.ErrDeadlineExceeded):
			// tarm/serial reports a read timeout as 0, nil
			b.uart.Idle()
		case errors.Is(err, io.EOF):
			b.uart.Idle()
			return nil
		default:
			return err
		}
	}
}
