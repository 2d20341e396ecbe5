package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures an interrupt-path event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	ID        uint8  // Pin offset, bank or zero
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtAlarmArmed    = 1 // alarm counter programmed
	EvtAlarmDeferred = 2 // deadline beyond counter range
	EvtAlarmFire     = 3 // alarm triggered
	EvtAlarmPast     = 4 // requested deadline already elapsed
	EvtPeriod        = 5 // timekeeper wrapped
	EvtGPIOEdge      = 6 // edge latched for a pin
	EvtRxOverflow    = 7 // rx queue full
	EvtTxDone        = 8 // transmission complete
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

// timingSlot packs one event into two words so ISR writers never tear a
// slot that a reader is dumping.
type timingSlot struct {
	head   atomic.Uint32 // type<<8 | id
	values atomic.Uint64 // value1<<32 | value2
}

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled atomic.Bool

	// Timing capture ring buffer (non-blocking, for post-mortem)
	timingRing     [TimingRingSize]timingSlot
	timingRingHead atomic.Uint32 // Next write position
	timingEnabled  atomic.Bool

	// Async debug output channel
	debugChan chan string
)

func init() {
	timingEnabled.Store(true)
}

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, a console, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// SetTimingEnabled enables or disables timing capture
func SetTimingEnabled(enabled bool) {
	timingEnabled.Store(enabled)
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16) // Buffer 16 messages
	go debugOutputWorker(debugChan)
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker(ch chan string) {
	for msg := range ch {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync for non-blocking)
func DebugPrintln(msg string) {
	if debugEnabled.Load() && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil && debugEnabled.Load() {
		select {
		case debugChan <- msg:
		default:
			// Channel full, drop message (non-blocking)
		}
	}
}

// RecordTiming captures an event in the ring buffer.
// Non-blocking and allocation-free, callable from ISRs.
func RecordTiming(eventType, id uint8, value1, value2 uint32) {
	if !timingEnabled.Load() {
		return
	}
	idx := (timingRingHead.Add(1) - 1) % TimingRingSize
	slot := &timingRing[idx]
	slot.values.Store(uint64(value1)<<32 | uint64(value2))
	slot.head.Store(uint32(eventType)<<8 | uint32(id))
}

// TimingEvents returns the captured events from oldest to newest.
func TimingEvents() []TimingEvent {
	var out []TimingEvent
	start := timingRingHead.Load()
	for i := uint32(0); i < TimingRingSize; i++ {
		slot := &timingRing[(start+i)%TimingRingSize]
		h := slot.head.Load()
		if h == 0 {
			continue // Empty slot
		}
		v := slot.values.Load()
		out = append(out, TimingEvent{
			EventType: uint8(h >> 8),
			ID:        uint8(h),
			Value1:    uint32(v >> 32),
			Value2:    uint32(v),
		})
	}
	return out
}

func eventName(t uint8) string {
	switch t {
	case EvtAlarmArmed:
		return "ALARM_ARMED"
	case EvtAlarmDeferred:
		return "ALARM_DEFER"
	case EvtAlarmFire:
		return "ALARM_FIRE"
	case EvtAlarmPast:
		return "ALARM_PAST!"
	case EvtPeriod:
		return "PERIOD"
	case EvtGPIOEdge:
		return "GPIO_EDGE"
	case EvtRxOverflow:
		return "RX_OVERFLOW!"
	case EvtTxDone:
		return "TX_DONE"
	}
	return "UNKNOWN"
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + eventName(evt.EventType) +
			" id=" + itoa(int(evt.ID)) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i].head.Store(0)
		timingRing[i].values.Store(0)
	}
	timingRingHead.Store(0)
}
