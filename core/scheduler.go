package core

// NoAlarm is the deadline sentinel meaning "nothing pending".
const NoAlarm = ^uint64(0)

// timer is a pending wake request
type timer struct {
	WakeTime uint64
	Sig      *Signal
	Next     *timer
}

// DeadlineQueue is an ordered collection of pending wake requests keyed by
// absolute tick deadline. It is not safe for concurrent use; the time driver
// only touches it inside a critical section.
type DeadlineQueue struct {
	head *timer
	free *timer
	n    int
}

// Schedule adds a wake request for sig at tick at. If sig is already queued
// the earlier of the two deadlines is kept. It reports whether the nearest
// deadline may have changed, in which case the caller must reprogram the
// hardware alarm.
func (q *DeadlineQueue) Schedule(at uint64, sig *Signal) bool {
	if t := q.unlink(sig); t != nil {
		if t.WakeTime < at {
			at = t.WakeTime
		}
		q.release(t)
	}
	t := q.alloc()
	t.WakeTime = at
	t.Sig = sig
	q.insertTimer(t)
	return q.head == t
}

// insertTimer inserts a timer in sorted order by WakeTime
func (q *DeadlineQueue) insertTimer(t *timer) {
	q.n++
	if q.head == nil || t.WakeTime < q.head.WakeTime {
		t.Next = q.head
		q.head = t
		return
	}

	current := q.head
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// NextExpiration wakes and removes every request due at or before now and
// returns the nearest remaining deadline, or NoAlarm.
func (q *DeadlineQueue) NextExpiration(now uint64) uint64 {
	for q.head != nil && q.head.WakeTime <= now {
		t := q.head
		q.head = t.Next
		q.n--
		t.Sig.Notify()
		q.release(t)
	}
	if q.head == nil {
		return NoAlarm
	}
	return q.head.WakeTime
}

// Remove drops the request of sig, if queued.
func (q *DeadlineQueue) Remove(sig *Signal) {
	if t := q.unlink(sig); t != nil {
		q.release(t)
	}
}

// Len returns the number of pending requests.
func (q *DeadlineQueue) Len() int { return q.n }

func (q *DeadlineQueue) unlink(sig *Signal) *timer {
	var prev *timer
	for t := q.head; t != nil; prev, t = t, t.Next {
		if t.Sig != sig {
			continue
		}
		if prev == nil {
			q.head = t.Next
		} else {
			prev.Next = t.Next
		}
		q.n--
		return t
	}
	return nil
}

// Nodes are recycled so steady-state scheduling does not allocate from ISR context.
func (q *DeadlineQueue) alloc() *timer {
	if t := q.free; t != nil {
		q.free = t.Next
		t.Next = nil
		return t
	}
	return &timer{}
}

func (q *DeadlineQueue) release(t *timer) {
	t.Sig = nil
	t.Next = q.free
	q.free = t
}
