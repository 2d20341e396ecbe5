package core

// Family selects the MCU family. Both share the peripheral architecture but
// differ in port and bank counts.
type Family uint8

const (
	FamilyVA108xx Family = iota
	FamilyVA416xx
)

// Port identifies a GPIO port.
type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
	PortD
	PortE
	PortF
	PortG
)

// Bank identifies a UART bank.
type Bank uint8

const (
	Bank0 Bank = iota
	Bank1
	Bank2
)

const (
	numPorts    = 7
	numBanks    = 3
	maxPortPins = 32
)

var family = FamilyVA108xx

// SetFamily selects the MCU family. Call once at startup before any port or
// bank is used.
func SetFamily(f Family) {
	family = f
}

// CurrentFamily returns the configured family.
func CurrentFamily() Family {
	return family
}

func (f Family) String() string {
	switch f {
	case FamilyVA108xx:
		return "va108xx"
	case FamilyVA416xx:
		return "va416xx"
	}
	return "unknown"
}

func (p Port) String() string {
	if p < numPorts {
		return string(rune('A' + p))
	}
	return "?"
}

// NumPins returns the number of pins of the port on the configured family,
// or 0 if the family has no such port.
func (p Port) NumPins() int {
	if family == FamilyVA108xx {
		switch p {
		case PortA:
			return 32
		case PortB:
			return 24
		}
		return 0
	}
	switch p {
	case PortA, PortB, PortC, PortD, PortE, PortF:
		return 16
	case PortG:
		return 8
	}
	return 0
}

// HasInterrupts reports whether pins of the port can raise interrupts.
func (p Port) HasInterrupts() bool {
	return p.NumPins() > 0 && !(family == FamilyVA416xx && p == PortG)
}

func checkPort(p Port) error {
	if p.NumPins() == 0 {
		return ErrInvalidPort
	}
	return nil
}

// NumBanks returns the number of UART banks on the configured family.
func NumBanks() int {
	if family == FamilyVA108xx {
		return 2
	}
	return 3
}

func checkBank(b Bank) error {
	if int(b) >= NumBanks() {
		return ErrInvalidBank
	}
	return nil
}

// PinID identifies one physical pin.
type PinID struct {
	Port   Port
	Offset uint8
}

// NewPinID validates the offset against the port size.
func NewPinID(port Port, offset int) (PinID, error) {
	if err := checkPort(port); err != nil {
		return PinID{}, err
	}
	if offset < 0 || offset >= port.NumPins() {
		return PinID{}, ErrInvalidOffset
	}
	return PinID{Port: port, Offset: uint8(offset)}, nil
}

func (id PinID) mask() uint32 { return 1 << id.Offset }

func (id PinID) String() string {
	return "P" + id.Port.String() + itoa(int(id.Offset))
}
