package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"vorhal/config"
	"vorhal/core"
	"vorhal/ringbuf"
	"vorhal/targets/sim"
)

const (
	irqTimekeeper core.IRQ = 0
	irqAlarm      core.IRQ = 1
	irqGPIO       core.IRQ = 2
	irqUART       core.IRQ = 3
)

func newConsole(t *testing.T) (*Console, *sim.Machine, *core.TimerDriver, *bytes.Buffer) {
	t.Helper()
	m := sim.NewMachine(core.FamilyVA108xx)
	m.Install()
	d := core.NewTimerDriver()
	if _, err := m.StartTimer(d, core.TickHz, core.TickHz, irqTimekeeper, irqAlarm); err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}
	m.HandlePort(irqGPIO, core.PortA, core.PortB)

	inputs, err := InputsFromBoard(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	return New(m, d, m.UART(core.Bank0), 1, inputs, &out), m, d, &out
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		name string
		args []string
	}{
		{"", "", nil},
		{"   ", "", nil},
		{"NOW", "now", nil},
		{"pin A 3 high", "pin", []string{"A", "3", "high"}},
		{`send "hello world" again`, "send", []string{"hello world", "again"}},
		{`send 'it''s'`, "send", []string{"its"}},
	}
	for _, tt := range tests {
		cmd, err := Parse(tt.line)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tt.line, err)
			continue
		}
		if cmd.Name != tt.name {
			t.Errorf("Parse(%q): expected name %q, got %q", tt.line, tt.name, cmd.Name)
		}
		if strings.Join(cmd.Args, "|") != strings.Join(tt.args, "|") {
			t.Errorf("Parse(%q): expected args %q, got %q", tt.line, tt.args, cmd.Args)
		}
	}

	if _, err := Parse(`send "unterminated`); err == nil {
		t.Errorf("Expected error for unterminated quote")
	}
}

func TestPinCommandWakesWait(t *testing.T) {
	c, m, _, _ := newConsole(t)
	in, err := core.NewAsyncInput(core.PinID{Port: core.PortA, Offset: 7}, irqGPIO)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- in.WaitForHigh(ctx) }()

	// Drive until the waiter has armed and observed the edge.
	for {
		mustExec(t, c, "pin A 7 low")
		mustExec(t, c, "pin a 7 high")
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("WaitForHigh returned %v", err)
			}
			if !m.Port(core.PortA).Level(7) {
				t.Errorf("Expected pin A7 high")
			}
			return
		case <-ctx.Done():
			t.Fatal("WaitForHigh did not complete")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPinCommandErrors(t *testing.T) {
	c, _, _, _ := newConsole(t)

	tests := []struct {
		line string
		want error
	}{
		{"pin A 3", nil},
		{"pin H 3 high", nil},
		{"pin B 24 high", core.ErrInvalidOffset},
		{"pin C 0 high", core.ErrInvalidPort},
		{"pin A 3 sideways", nil},
	}
	for _, tt := range tests {
		cmd, err := Parse(tt.line)
		if err != nil {
			t.Fatal(err)
		}
		err = c.Exec(cmd)
		if err == nil {
			t.Errorf("Exec(%q) succeeded, want error", tt.line)
			continue
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("Exec(%q) = %v, want %v", tt.line, err, tt.want)
		}
	}
}

func TestPressTogglesInput(t *testing.T) {
	c, m, _, out := newConsole(t)

	mustExec(t, c, "press button")
	if !m.Port(core.PortA).Level(3) {
		t.Errorf("Expected button pin high after press")
	}
	mustExec(t, c, "press button")
	if m.Port(core.PortA).Level(3) {
		t.Errorf("Expected button pin low after second press")
	}

	mustExec(t, c, "inputs")
	if !strings.Contains(out.String(), "button") || !strings.Contains(out.String(), "PA3") {
		t.Errorf("Expected input listing, got %q", out.String())
	}

	if err := c.Exec(Command{Name: "press", Args: []string{"nobody"}}); err == nil {
		t.Errorf("Expected error for unknown input")
	}
}

func TestAdvanceAndNow(t *testing.T) {
	c, _, d, out := newConsole(t)

	mustExec(t, c, "advance 1500")
	if now := d.Now(); now != 1500 {
		t.Errorf("Expected now=1500, got %d", now)
	}
	out.Reset()
	mustExec(t, c, "now")
	if got := out.String(); got != "now=1500\n" {
		t.Errorf("Expected \"now=1500\", got %q", got)
	}
	if err := c.Exec(Command{Name: "advance", Args: []string{"-3"}}); err == nil {
		t.Errorf("Expected error for negative ticks")
	}
}

func TestSendReachesReader(t *testing.T) {
	c, m, _, _ := newConsole(t)
	prod, cons := ringbuf.New(64)
	m.HandleUART(core.Bank0, irqUART, prod, nil)
	rx, err := core.NewRxAsync(core.Bank0, irqUART, cons)
	if err != nil {
		t.Fatal(err)
	}
	defer rx.Stop()

	mustExec(t, c, `send "hi there"`)

	buf := make([]byte, 32)
	n, err := rx.TryRead(buf)
	if err != nil {
		t.Fatalf("TryRead failed: %v", err)
	}
	if got := string(buf[:n]); got != "hi there\n" {
		t.Errorf("Expected \"hi there\\n\", got %q", got)
	}

	mustExec(t, c, "linerr framing")
	m.UART(core.Bank0).Idle()
	if _, err := rx.TryRead(buf); !errors.Is(err, core.ErrUART) {
		t.Errorf("Expected ErrUART after a framing error, got %v", err)
	}
}

func TestRun(t *testing.T) {
	c, _, _, out := newConsole(t)
	in := strings.NewReader("now\nbogus\nquit\nnow\n")

	if err := c.Run(context.Background(), in); !errors.Is(err, ErrQuit) {
		t.Errorf("Run() = %v, want ErrQuit", err)
	}
	if !strings.Contains(out.String(), "unknown command: bogus") {
		t.Errorf("Expected unknown command reported, got %q", out.String())
	}
	if strings.Count(out.String(), "now=") != 1 {
		t.Errorf("Expected commands after quit to be ignored, got %q", out.String())
	}
}

func TestRunKeys(t *testing.T) {
	c, m, _, out := newConsole(t)

	keys := keySource("1x29q1")
	err := c.RunKeys(context.Background(), &keys)
	if !errors.Is(err, ErrQuit) {
		t.Errorf("RunKeys() = %v, want ErrQuit", err)
	}
	if !m.Port(core.PortA).Level(3) || !m.Port(core.PortA).Level(5) {
		t.Errorf("Expected keys 1 and 2 to toggle both inputs high")
	}
	if got := out.String(); got != "button high\r\nsensor high\r\n" {
		t.Errorf("Unexpected key echo %q", got)
	}
}

func TestTerminalCloseReportsRestoreError(t *testing.T) {
	errRestore := errors.New("tcsetattr failed")
	closed := false
	closeTTY := func() error {
		closed = true
		return nil
	}
	term := &Terminal{restore: func() error { return errRestore }, close: closeTTY}
	err := term.Close()
	if !errors.Is(err, errRestore) {
		t.Errorf("Close() = %v, want the restore error", err)
	}
	if !closed {
		t.Errorf("Expected the terminal closed after a failed restore")
	}

	term = &Terminal{
		restore: func() error { return nil },
		close:   func() error { return nil },
	}
	if err := term.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

// keySource replays keys like a raw terminal.
type keySource string

func (k *keySource) ReadKey() (rune, error) {
	if len(*k) == 0 {
		return 0, io.EOF
	}
	r := rune((*k)[0])
	*k = (*k)[1:]
	return r, nil
}

func mustExec(t *testing.T, c *Console, line string) {
	t.Helper()
	cmd, err := Parse(line)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Exec(cmd); err != nil {
		t.Fatalf("Exec(%q) failed: %v", line, err)
	}
}
