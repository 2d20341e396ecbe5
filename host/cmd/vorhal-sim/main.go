package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"vorhal/config"
	"vorhal/core"
	"vorhal/host/console"
	"vorhal/host/serial"
	"vorhal/ringbuf"
	"vorhal/targets/sim"
)

var (
	configPath = flag.String("config", "", "Board configuration (JSON); built-in default if empty")
	device     = flag.String("device", "", "Serial device bridged to the UART (overrides config)")
	keys       = flag.Bool("keys", false, "Raw key mode: keys 1-9 toggle the configured inputs")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

// stepInterval is the host time between simulated clock advances.
const stepInterval = time.Millisecond

// rxReader is the RX half of the UART, whichever overflow policy is used.
type rxReader interface {
	Read(ctx context.Context, p []byte) (int, error)
	Stop()
}

func main() {
	flag.Parse()

	fmt.Print("vorhal simulator\n================\n\n")

	board, err := loadBoard()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(board); err != nil && !errors.Is(err, console.ErrQuit) && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Goodbye!")
}

func loadBoard() (*config.Board, error) {
	board := config.Default()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if board, err = config.Load(data); err != nil {
			return nil, err
		}
	}
	if *device != "" {
		board.UART.Serial.Device = *device
	}
	return board, board.Validate()
}

func run(board *config.Board) error {
	fam, err := board.CoreFamily()
	if err != nil {
		return err
	}

	core.SetDebugWriter(func(s string) { fmt.Println(s) })
	core.SetDebugEnabled(*verbose)
	core.SetTimingEnabled(true)

	m := sim.NewMachine(fam)
	m.Install()

	d := core.DefaultTimerDriver()
	tc := board.TimerConfig()
	if _, err := m.StartTimer(d, tc.SysClkHz, tc.TickHz, tc.TimekeeperIRQ, tc.AlarmIRQ); err != nil {
		return fmt.Errorf("start timer: %w", err)
	}
	scale := uint64(board.SysClkHz / board.TickHz)

	gpioIRQ := core.IRQ(board.GPIOIRQ)
	var ports []core.Port
	for p := core.PortA; p <= core.PortG; p++ {
		if p.HasInterrupts() {
			ports = append(ports, p)
		}
	}
	m.HandlePort(gpioIRQ, ports...)

	bank := core.Bank(board.UART.Bank)
	uartIRQ := core.IRQ(board.UART.IRQ)
	uart := m.UART(bank)
	prod, cons := ringbuf.New(board.UART.RxCapacity)
	var rx rxReader
	if board.UART.Overwrite {
		shared := core.NewSharedConsumer(cons)
		m.HandleUART(bank, uartIRQ, prod, shared)
		rx, err = core.NewRxAsyncOverwriting(bank, uartIRQ, shared)
	} else {
		m.HandleUART(bank, uartIRQ, prod, nil)
		rx, err = core.NewRxAsync(bank, uartIRQ, cons)
	}
	if err != nil {
		return fmt.Errorf("uart rx: %w", err)
	}
	defer rx.Stop()
	tx, err := core.NewTxAsync(bank, uartIRQ)
	if err != nil {
		return fmt.Errorf("uart tx: %w", err)
	}

	inputs, err := console.InputsFromBoard(board)
	if err != nil {
		return err
	}
	con := console.New(m, d, uart, scale, inputs, os.Stdout)

	var bridge *serial.Bridge
	if board.UART.Serial.Device != "" {
		port, err := serial.Open(serial.FromBoard(board.UART.Serial))
		if err != nil {
			return err
		}
		defer port.Close()
		fmt.Printf("UART%d bridged to %s\n", bank, board.UART.Serial.Device)
		bridge = serial.NewBridge(port, uart)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Simulated hardware: clock and UART shifter.
	g.Go(func() error {
		perStep := uint64(board.SysClkHz) * uint64(stepInterval) / uint64(time.Second)
		return every(ctx, stepInterval, func() { m.Advance(perStep) })
	})
	g.Go(func() error {
		return every(ctx, stepInterval, func() { uart.Transmit(sim.FIFODepth) })
	})

	if bridge != nil {
		g.Go(func() error { return bridge.Run(ctx) })
	}

	g.Go(func() error { return echo(ctx, rx, tx) })
	g.Go(func() error { return heartbeat(ctx, d) })

	for i, in := range board.Inputs {
		edge, err := config.ParseEdge(in.Edge)
		if err != nil {
			return err
		}
		w, err := core.NewAsyncInput(inputs[i].Pin, gpioIRQ)
		if err != nil {
			return fmt.Errorf("input %s: %w", in.Name, err)
		}
		name := in.Name
		g.Go(func() error { return watch(ctx, d, name, w, edge) })
	}

	if *keys {
		term, err := console.OpenKeys()
		if err != nil {
			return err
		}
		defer func() {
			if err := term.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}()
		fmt.Print("Keys 1-9 toggle inputs, q quits\r\n")
		g.Go(func() error { return con.RunKeys(ctx, term) })
	} else {
		fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
		g.Go(func() error { return con.Run(ctx, os.Stdin) })
	}

	return g.Wait()
}

// every calls f at each tick of interval until ctx is done.
func every(ctx context.Context, interval time.Duration, f func()) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			f()
		}
	}
}

// echo writes every received line back on the UART.
func echo(ctx context.Context, rx rxReader, tx *core.TxAsync) error {
	var line []byte
	buf := make([]byte, 64)
	for {
		n, err := rx.Read(ctx, buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			fmt.Printf("uart rx: %v\n", err)
		}
		line = append(line, buf[:n]...)
		for {
			i := bytes.IndexByte(line, '\n')
			if i < 0 {
				break
			}
			msg := line[:i+1]
			fmt.Printf("uart rx: %q\n", msg)
			if _, err := tx.Write(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Printf("uart tx: %v\n", err)
			}
			line = line[i+1:]
		}
	}
}

// watch reports edges of one input with their tick.
func watch(ctx context.Context, d *core.TimerDriver, name string, in *core.AsyncInput, edge core.Edge) error {
	wait := in.WaitForAnyEdge
	switch edge {
	case core.EdgeRising:
		wait = in.WaitForRisingEdge
	case core.EdgeFalling:
		wait = in.WaitForFallingEdge
	}
	for {
		if err := wait(ctx); err != nil {
			return err
		}
		fmt.Printf("input %s (%v): edge at tick %d\n", name, in.Pin(), d.Now())
	}
}

// heartbeat logs the clock once per simulated second.
func heartbeat(ctx context.Context, d *core.TimerDriver) error {
	for {
		if err := d.SleepFor(ctx, time.Second); err != nil {
			return err
		}
		core.DebugPrintln("tick " + fmt.Sprint(d.Now()))
	}
}
