// Package console is the operator console of the simulator: a line command
// interpreter driving simulated pins, the UART line and the clock, and a
// raw-key mode toggling configured inputs.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"vorhal/config"
	"vorhal/core"
	"vorhal/targets/sim"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("quit")

// Command is one tokenized console line.
type Command struct {
	Name string
	Args []string
}

// Parse tokenizes a line with shell quoting rules. An empty line yields a
// Command with an empty Name.
func Parse(line string) (Command, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(words) == 0 {
		return Command{}, nil
	}
	return Command{Name: strings.ToLower(words[0]), Args: words[1:]}, nil
}

// Input is a named pin the console can drive.
type Input struct {
	Name string
	Pin  core.PinID
}

// Console executes commands against a simulated machine.
type Console struct {
	m      *sim.Machine
	d      *core.TimerDriver
	uart   *sim.UART
	scale  uint64 // input clocks per tick
	inputs []Input
	out    io.Writer
}

// New creates a console. uart may be nil when the board has no UART bridge.
func New(m *sim.Machine, d *core.TimerDriver, uart *sim.UART, scale uint64, inputs []Input, out io.Writer) *Console {
	if scale == 0 {
		scale = 1
	}
	return &Console{m: m, d: d, uart: uart, scale: scale, inputs: inputs, out: out}
}

// InputsFromBoard resolves the configured inputs. The board must have been
// validated.
func InputsFromBoard(b *config.Board) ([]Input, error) {
	var inputs []Input
	for _, in := range b.Inputs {
		port, err := config.ParsePort(in.Port)
		if err != nil {
			return nil, err
		}
		id, err := core.NewPinID(port, in.Pin)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Name, err)
		}
		inputs = append(inputs, Input{Name: in.Name, Pin: id})
	}
	return inputs, nil
}

// Run reads commands from r until EOF, ctx is done or quit is entered.
// Command errors are printed and do not stop the loop.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line := <-lines:
			cmd, err := Parse(line)
			if err == nil {
				err = c.Exec(cmd)
			}
			if errors.Is(err, ErrQuit) {
				return ErrQuit
			}
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

// Exec runs one command.
func (c *Console) Exec(cmd Command) error {
	switch cmd.Name {
	case "":
		return nil

	case "quit", "exit", "q":
		return ErrQuit

	case "help", "?":
		c.printHelp()
		return nil

	case "now":
		fmt.Fprintf(c.out, "now=%d\n", c.d.Now())
		return nil

	case "advance":
		ticks, err := c.uintArg(cmd, 0)
		if err != nil {
			return err
		}
		c.m.Advance(ticks * c.scale)
		fmt.Fprintf(c.out, "now=%d\n", c.d.Now())
		return nil

	case "pin":
		return c.pin(cmd)

	case "press":
		in, err := c.input(cmd)
		if err != nil {
			return err
		}
		c.Toggle(in.Pin)
		return nil

	case "inputs":
		for _, in := range c.inputs {
			fmt.Fprintf(c.out, "  %-10s %v %s\n", in.Name, in.Pin, levelName(c.level(in.Pin)))
		}
		return nil

	case "send":
		if c.uart == nil {
			return errors.New("no uart configured")
		}
		if len(cmd.Args) == 0 {
			return errors.New("usage: send <text>...")
		}
		c.uart.Inject([]byte(strings.Join(cmd.Args, " ") + "\n")...)
		c.uart.Idle()
		return nil

	case "linerr":
		if c.uart == nil {
			return errors.New("no uart configured")
		}
		var framing, parity bool
		for _, a := range cmd.Args {
			switch a {
			case "framing":
				framing = true
			case "parity":
				parity = true
			default:
				return fmt.Errorf("unknown line error %q", a)
			}
		}
		if !framing && !parity {
			return errors.New("usage: linerr framing|parity")
		}
		c.uart.InjectErrors(framing, parity)
		return nil

	case "dump":
		core.DumpTimingRing()
		return nil

	case "clear":
		core.ClearTimingRing()
		return nil
	}
	return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd.Name)
}

// pin handles "pin <port> <offset> high|low|pulse".
func (c *Console) pin(cmd Command) error {
	if len(cmd.Args) != 3 {
		return errors.New("usage: pin <port> <offset> high|low|pulse")
	}
	port, err := config.ParsePort(cmd.Args[0])
	if err != nil {
		return err
	}
	offset, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return fmt.Errorf("bad offset %q", cmd.Args[1])
	}
	id, err := core.NewPinID(port, offset)
	if err != nil {
		return err
	}
	p := c.m.Port(id.Port)
	if p == nil {
		return core.ErrInvalidPort
	}
	switch cmd.Args[2] {
	case "high", "1":
		p.SetLevel(id.Offset, true)
	case "low", "0":
		p.SetLevel(id.Offset, false)
	case "pulse":
		p.Pulse(1 << id.Offset)
	default:
		return fmt.Errorf("bad level %q", cmd.Args[2])
	}
	return nil
}

// Toggle inverts the level of a pin.
func (c *Console) Toggle(id core.PinID) {
	if p := c.m.Port(id.Port); p != nil {
		p.SetLevel(id.Offset, !p.Level(id.Offset))
	}
}

func (c *Console) level(id core.PinID) bool {
	if p := c.m.Port(id.Port); p != nil {
		return p.Level(id.Offset)
	}
	return false
}

func (c *Console) input(cmd Command) (Input, error) {
	if len(cmd.Args) != 1 {
		return Input{}, fmt.Errorf("usage: %s <input>", cmd.Name)
	}
	for _, in := range c.inputs {
		if in.Name == cmd.Args[0] {
			return in, nil
		}
	}
	return Input{}, fmt.Errorf("no input named %q", cmd.Args[0])
}

func (c *Console) uintArg(cmd Command, i int) (uint64, error) {
	if len(cmd.Args) <= i {
		return 0, fmt.Errorf("usage: %s <n>", cmd.Name)
	}
	v, err := strconv.ParseUint(cmd.Args[i], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", cmd.Args[i])
	}
	return v, nil
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  now                         - Print the tick clock")
	fmt.Fprintln(c.out, "  advance <ticks>             - Advance simulated time")
	fmt.Fprintln(c.out, "  pin <port> <n> high|low|pulse - Drive a pin")
	fmt.Fprintln(c.out, "  press <input>               - Toggle a named input")
	fmt.Fprintln(c.out, "  inputs                      - List named inputs")
	fmt.Fprintln(c.out, "  send <text>                 - Receive a line on the UART")
	fmt.Fprintln(c.out, "  linerr framing|parity       - Receive a corrupted character")
	fmt.Fprintln(c.out, "  dump                        - Print the timing ring")
	fmt.Fprintln(c.out, "  clear                       - Clear the timing ring")
	fmt.Fprintln(c.out, "  quit/exit/q                 - Exit the program")
	fmt.Fprintln(c.out)
}
