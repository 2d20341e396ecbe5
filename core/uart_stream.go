package core

import (
	"context"

	"tinygo.org/x/drivers"
)

// RxReader is the reader half of an asynchronous UART.
type RxReader interface {
	ReadBuffered(p []byte) int
	Buffered() int
	Errors() error
}

var (
	_ RxReader = (*RxAsync)(nil)
	_ RxReader = (*RxAsyncOverwriting)(nil)
)

// Stream presents an asynchronous RX half and TX half as a drivers.UART, so
// device drivers written against machine.UART run on top of them. Read does
// not block, like machine.UART; Write blocks until the bytes are out.
type Stream struct {
	ctx context.Context
	rx  RxReader
	tx  *TxAsync
}

var _ drivers.UART = (*Stream)(nil)

// NewStream joins rx and tx. Writes are bound to ctx; either half may be nil.
func NewStream(ctx context.Context, rx RxReader, tx *TxAsync) *Stream {
	return &Stream{ctx: ctx, rx: rx, tx: tx}
}

// Read copies buffered bytes into p. Receive conditions are not reported
// here; collect them with Errors.
func (s *Stream) Read(p []byte) (int, error) {
	if s.rx == nil {
		return 0, ErrNoDriver
	}
	return s.rx.ReadBuffered(p), nil
}

// Errors returns and clears the receive conditions seen since the last call.
func (s *Stream) Errors() error {
	if s.rx == nil {
		return nil
	}
	return s.rx.Errors()
}

// Write transmits p.
func (s *Stream) Write(p []byte) (int, error) {
	if s.tx == nil {
		return 0, ErrNoDriver
	}
	return s.tx.Write(s.ctx, p)
}

// WriteByte transmits a single byte.
func (s *Stream) WriteByte(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// Buffered returns the number of received bytes waiting to be read.
func (s *Stream) Buffered() int {
	if s.rx == nil {
		return 0
	}
	return s.rx.Buffered()
}
