// Package ringbuf provides a fixed-capacity single-producer/single-consumer
// byte ring. The producer end is used from interrupt context, the consumer
// end from the task that reads; neither end ever blocks.
package ringbuf

import "sync/atomic"

// ring is the shared storage. Indices are free-running; the occupied length
// is wr-rd.
type ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index
	wr   atomic.Uint32 // producer index
}

// Producer is the writing end of a ring.
type Producer struct {
	r *ring
}

// Consumer is the reading end of a ring.
type Consumer struct {
	r *ring
}

// New allocates a ring holding up to capacity bytes and returns its two ends.
// The capacity must be a power of two.
func New(capacity int) (*Producer, *Consumer) {
	if capacity < 1 || capacity&(capacity-1) != 0 {
		panic("ringbuf: capacity must be a power of two")
	}
	r := &ring{buf: make([]byte, capacity), mask: uint32(capacity - 1)}
	return &Producer{r: r}, &Consumer{r: r}
}

func (r *ring) len() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Cap returns the capacity of the ring.
func (p *Producer) Cap() int { return len(p.r.buf) }

// Ready reports whether there is room for one more byte.
func (p *Producer) Ready() bool {
	return p.r.len() < len(p.r.buf)
}

// Len returns the number of buffered bytes.
func (p *Producer) Len() int { return p.r.len() }

// Enqueue appends b. It returns false and drops b if the ring is full.
func (p *Producer) Enqueue(b byte) bool {
	r := p.r
	wr := r.wr.Load()
	if int(wr-r.rd.Load()) >= len(r.buf) {
		return false
	}
	r.buf[wr&r.mask] = b
	r.wr.Store(wr + 1) // publishes the byte
	return true
}

// Cap returns the capacity of the ring.
func (c *Consumer) Cap() int { return len(c.r.buf) }

// Len returns the number of buffered bytes.
func (c *Consumer) Len() int { return c.r.len() }

// Dequeue removes and returns the oldest byte.
func (c *Consumer) Dequeue() (byte, bool) {
	r := c.r
	rd := r.rd.Load()
	if rd == r.wr.Load() {
		return 0, false
	}
	b := r.buf[rd&r.mask]
	r.rd.Store(rd + 1) // releases the slot
	return b, true
}

// Read moves up to len(dst) bytes into dst and returns the count.
func (c *Consumer) Read(dst []byte) int {
	n := 0
	for n < len(dst) {
		b, ok := c.Dequeue()
		if !ok {
			break
		}
		dst[n] = b
		n++
	}
	return n
}
