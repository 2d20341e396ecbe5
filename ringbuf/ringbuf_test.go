package ringbuf

import "testing"

func TestEnqueueDequeueOrder(t *testing.T) {
	prod, cons := New(4)

	for i := byte(1); i <= 4; i++ {
		if !prod.Enqueue(i) {
			t.Fatalf("enqueue %d failed on non-full ring", i)
		}
	}
	if prod.Ready() {
		t.Errorf("Expected full ring to report not ready")
	}
	if prod.Enqueue(5) {
		t.Errorf("Expected enqueue on full ring to fail")
	}
	if cons.Len() != 4 {
		t.Errorf("Expected 4 bytes buffered, got %d", cons.Len())
	}

	for want := byte(1); want <= 4; want++ {
		got, ok := cons.Dequeue()
		if !ok || got != want {
			t.Fatalf("Dequeue = %d,%v want %d,true", got, ok, want)
		}
	}
	if _, ok := cons.Dequeue(); ok {
		t.Errorf("Expected empty ring")
	}
}

func TestReadAcrossWrap(t *testing.T) {
	prod, cons := New(8)

	// Produce a known sequence in small steps so the indices wrap many times.
	const N = 1000
	src := make([]byte, N)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, 0, N)
	next := 0
	var tmp [5]byte
	for len(dst) < N {
		for k := 0; k < 7 && next < N && prod.Ready(); k++ {
			prod.Enqueue(src[next])
			next++
		}
		n := cons.Read(tmp[:])
		dst = append(dst, tmp[:n]...)
	}

	for i := 0; i < N; i++ {
		if dst[i] != src[i] {
			t.Fatalf("mismatch at %d: got=%d want=%d", i, dst[i], src[i])
		}
	}
}

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected panic for capacity 6")
		}
	}()
	New(6)
}
