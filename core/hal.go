package core

// IRQ is a top-level interrupt controller line number.
type IRQ int16

// IRQController is the top-level interrupt controller (NVIC).
type IRQController interface {
	// Unmask enables delivery of the interrupt line
	Unmask(irq IRQ)

	// Mask disables delivery of the interrupt line
	Mask(irq IRQ)
}

// Counter is a decrementing hardware timer peripheral. It counts down to
// zero; the clock after zero reloads it and raises its interrupt if the wrap
// interrupt is enabled. A counter loaded with n therefore wraps n+1 input
// clocks later.
type Counter interface {
	// ReadCount returns the current counter value
	ReadCount() uint32

	// WriteCount loads the counter value directly
	WriteCount(v uint32)

	// WriteReload sets the value loaded on wrap
	WriteReload(v uint32)

	// Enable starts counting
	Enable()

	// Disable stops counting
	Disable()

	// SetWrapIRQEnabled enables or disables the wrap interrupt
	SetWrapIRQEnabled(enabled bool)
}

// GPIOPort is the register view of one GPIO port that the interrupt core needs.
type GPIOPort interface {
	// IRQEnabled returns the bitmap of pins with their interrupt enabled
	IRQEnabled() uint32

	// EdgeStatus returns the latched edge-detected bitmap
	EdgeStatus() uint32

	// SetEdgeSensitivity programs edge triggering for a pin
	SetEdgeSensitivity(offset uint8, edge Edge)

	// SetPinIRQEnabled enables or disables the pin interrupt, including any
	// routing the family needs (IRQSEL on VA108xx)
	SetPinIRQEnabled(offset uint8, irq IRQ, enabled bool)

	// Level reads the current input level
	Level(offset uint8) bool
}

// UARTBank is the register view of one UART bank.
type UARTBank interface {
	// IRQStatus returns the pending interrupt conditions
	IRQStatus() IRQFlags

	// IRQEnabled returns the enabled interrupt conditions
	IRQEnabled() IRQFlags

	// SetIRQEnabled replaces the enabled interrupt conditions
	SetIRQEnabled(flags IRQFlags)

	// ClearIRQ clears clearable interrupt status bits
	ClearIRQ(flags IRQFlags)

	// RxStatus returns the receiver status
	RxStatus() RxStatus

	// TxStatus returns the transmitter status
	TxStatus() TxStatus

	// ReadRxByte pops one byte from the RX FIFO
	ReadRxByte() byte

	// WriteTxByte pushes one byte into the TX FIFO
	WriteTxByte(b byte)

	// RxFIFOTriggerLevel returns the fill level that raises the RX interrupt
	RxFIFOTriggerLevel() int

	EnableRx()
	DisableRx()
	EnableTx()
	DisableTx()

	// ClearRxFIFO empties the RX FIFO and its status conditions
	ClearRxFIFO()

	// ClearTxFIFO empties the TX FIFO and its status conditions
	ClearTxFIFO()
}

// Global drivers used by core code, registered by target-specific code.
var (
	irqController IRQController
	gpioPorts     [numPorts]GPIOPort
	uartBanks     [numBanks]UARTBank
)

// SetIRQController is called by target-specific code to register the NVIC driver.
func SetIRQController(c IRQController) {
	irqController = c
}

// SetGPIOPort registers the register driver of one port.
func SetGPIOPort(port Port, p GPIOPort) {
	if int(port) < numPorts {
		gpioPorts[port] = p
	}
}

// SetUARTBank registers the register driver of one UART bank.
func SetUARTBank(bank Bank, b UARTBank) {
	if int(bank) < numBanks {
		uartBanks[bank] = b
	}
}

func unmaskIRQ(irq IRQ) {
	if irqController != nil && irq >= 0 {
		irqController.Unmask(irq)
	}
}

func maskIRQ(irq IRQ) {
	if irqController != nil && irq >= 0 {
		irqController.Mask(irq)
	}
}

func gpioPort(port Port) (GPIOPort, error) {
	if err := checkPort(port); err != nil {
		return nil, err
	}
	p := gpioPorts[port]
	if p == nil {
		return nil, ErrNoDriver
	}
	return p, nil
}

func uartBank(bank Bank) (UARTBank, error) {
	if err := checkBank(bank); err != nil {
		return nil, err
	}
	b := uartBanks[bank]
	if b == nil {
		return nil, ErrNoDriver
	}
	return b, nil
}
