// Package config loads the board description used by host tools: MCU
// family, clocking, interrupt lines and the UART and GPIO setup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vorhal/core"
)

// Board is the complete board configuration.
type Board struct {
	Family        string  `json:"family"`         // "va108xx" or "va416xx"
	SysClkHz      uint32  `json:"sysclk_hz"`      // counter input clock
	TickHz        uint32  `json:"tick_hz"`        // logical tick rate
	TimekeeperIRQ int     `json:"timekeeper_irq"` // wrap interrupt of the timekeeper
	AlarmIRQ      int     `json:"alarm_irq"`      // alarm counter interrupt
	GPIOIRQ       int     `json:"gpio_irq"`       // line all input pins are routed to
	UART          UART    `json:"uart"`
	Inputs        []Input `json:"inputs"`
}

// UART configures the asynchronous UART bank.
type UART struct {
	Bank       int    `json:"bank"`
	IRQ        int    `json:"irq"`
	RxCapacity int    `json:"rx_capacity"` // RX queue size, a power of two
	Overwrite  bool   `json:"overwrite"`   // keep newest bytes when the queue is full
	Serial     Serial `json:"serial"`
}

// Serial is the host serial device bridged to the UART bank.
type Serial struct {
	Device        string `json:"device"` // empty disables the bridge
	Baud          int    `json:"baud"`
	ReadTimeoutMs int    `json:"read_timeout_ms"`
}

// Input is a named GPIO input watched for edges.
type Input struct {
	Name string `json:"name"`
	Port string `json:"port"` // "A".."G"
	Pin  int    `json:"pin"`
	Edge string `json:"edge"` // "rising", "falling" or "both"
}

// Load parses a JSON configuration and applies defaults. The result is not
// validated; call Validate before use.
func Load(jsonData []byte) (*Board, error) {
	var b Board
	if err := json.Unmarshal(jsonData, &b); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&b)
	return &b, nil
}

// applyDefaults fills in missing values
func applyDefaults(b *Board) {
	if b.Family == "" {
		b.Family = "va108xx"
	}
	if b.SysClkHz == 0 {
		b.SysClkHz = 50000000 // 50 MHz
	}
	if b.TickHz == 0 {
		b.TickHz = core.TickHz
	}
	if b.UART.RxCapacity == 0 {
		b.UART.RxCapacity = 256
	}
	if b.UART.Serial.Baud == 0 {
		b.UART.Serial.Baud = 115200
	}
	if b.UART.Serial.ReadTimeoutMs == 0 {
		b.UART.Serial.ReadTimeoutMs = 50
	}
	for i := range b.Inputs {
		if b.Inputs[i].Edge == "" {
			b.Inputs[i].Edge = "both"
		}
	}
}

// Default returns the configuration of a VA108xx evaluation board.
func Default() *Board {
	return &Board{
		Family:        "va108xx",
		SysClkHz:      50000000,
		TickHz:        core.TickHz,
		TimekeeperIRQ: 0,
		AlarmIRQ:      1,
		GPIOIRQ:       2,
		UART: UART{
			Bank:       0,
			IRQ:        3,
			RxCapacity: 256,
			Serial:     Serial{Baud: 115200, ReadTimeoutMs: 50},
		},
		Inputs: []Input{
			{Name: "button", Port: "A", Pin: 3, Edge: "falling"},
			{Name: "sensor", Port: "A", Pin: 5, Edge: "both"},
		},
	}
}

// CoreFamily maps the family name.
func (b *Board) CoreFamily() (core.Family, error) {
	switch strings.ToLower(b.Family) {
	case "va108xx":
		return core.FamilyVA108xx, nil
	case "va416xx":
		return core.FamilyVA416xx, nil
	}
	return 0, fmt.Errorf("config: unknown family %q", b.Family)
}

// ParsePort maps a port letter.
func ParsePort(s string) (core.Port, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("config: bad port %q", s)
	}
	c := strings.ToUpper(s)[0]
	if c < 'A' || c > 'G' {
		return 0, fmt.Errorf("config: bad port %q", s)
	}
	return core.Port(c - 'A'), nil
}

// ParseEdge maps an edge name.
func ParseEdge(s string) (core.Edge, error) {
	switch strings.ToLower(s) {
	case "rising":
		return core.EdgeRising, nil
	case "falling":
		return core.EdgeFalling, nil
	case "both", "any":
		return core.EdgeBoth, nil
	}
	return 0, fmt.Errorf("config: bad edge %q", s)
}

// Validate checks the configuration against the selected family. All
// problems are reported together.
func (b *Board) Validate() error {
	var errs []error

	fam, err := b.CoreFamily()
	if err != nil {
		return err
	}
	if b.SysClkHz == 0 || b.TickHz == 0 || b.SysClkHz < b.TickHz {
		errs = append(errs, fmt.Errorf("config: sysclk %d Hz cannot drive %d Hz ticks: %w",
			b.SysClkHz, b.TickHz, core.ErrInvalidClock))
	}

	prev := core.CurrentFamily()
	core.SetFamily(fam)
	defer core.SetFamily(prev)

	if b.UART.Bank < 0 || b.UART.Bank >= core.NumBanks() {
		errs = append(errs, fmt.Errorf("config: uart bank %d on %s: %w", b.UART.Bank, fam, core.ErrInvalidBank))
	}
	if c := b.UART.RxCapacity; c < 1 || c&(c-1) != 0 {
		errs = append(errs, fmt.Errorf("config: rx_capacity %d is not a power of two", c))
	}

	seen := make(map[string]bool)
	for _, in := range b.Inputs {
		if in.Name == "" {
			errs = append(errs, errors.New("config: input without a name"))
		} else if seen[in.Name] {
			errs = append(errs, fmt.Errorf("config: duplicate input %q", in.Name))
		}
		seen[in.Name] = true

		port, err := ParsePort(in.Port)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := core.NewPinID(port, in.Pin); err != nil {
			errs = append(errs, fmt.Errorf("config: input %q P%s%d: %w", in.Name, in.Port, in.Pin, err))
		} else if !port.HasInterrupts() {
			errs = append(errs, fmt.Errorf("config: input %q: %w", in.Name, core.ErrPortNoInterrupts))
		}
		if _, err := ParseEdge(in.Edge); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TimerConfig returns the clock part of a core.TimerConfig; the caller
// supplies the counters.
func (b *Board) TimerConfig() core.TimerConfig {
	return core.TimerConfig{
		SysClkHz:      b.SysClkHz,
		TickHz:        b.TickHz,
		TimekeeperIRQ: core.IRQ(b.TimekeeperIRQ),
		AlarmIRQ:      core.IRQ(b.AlarmIRQ),
	}
}
