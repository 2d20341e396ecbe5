package console

import (
	"context"
	"errors"
	"fmt"

	tty "github.com/mattn/go-tty"
)

// KeyReader is the part of a terminal the key loop needs.
type KeyReader interface {
	ReadKey() (rune, error)
}

// RunKeys toggles input i when key '1'+i is pressed. 'q' or Ctrl-C ends the
// loop. ctx is only checked between keys.
func (c *Console) RunKeys(ctx context.Context, keys KeyReader) error {
	for {
		r, err := keys.ReadKey()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case r == 'q' || r == 3:
			return ErrQuit
		case r >= '1' && r <= '9':
			i := int(r - '1')
			if i >= len(c.inputs) {
				continue
			}
			in := c.inputs[i]
			c.Toggle(in.Pin)
			fmt.Fprintf(c.out, "%s %s\r\n", in.Name, levelName(c.level(in.Pin)))
		}
	}
}

// Terminal is the controlling terminal in raw mode.
type Terminal struct {
	readKey func() (rune, error)
	restore func() error
	close   func() error
}

// OpenKeys opens the controlling terminal in raw mode. Close restores the
// terminal mode and closes it.
func OpenKeys() (*Terminal, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, fmt.Errorf("open tty: %w", err)
	}
	restore, err := t.Raw()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	return &Terminal{readKey: t.ReadRune, restore: restore, close: t.Close}, nil
}

// ReadKey blocks for the next key.
func (t *Terminal) ReadKey() (rune, error) { return t.readKey() }

// Close restores the terminal mode and closes the terminal. Both steps run
// even if the first fails.
func (t *Terminal) Close() error {
	var errs []error
	if err := t.restore(); err != nil {
		errs = append(errs, fmt.Errorf("restore tty: %w", err))
	}
	if err := t.close(); err != nil {
		errs = append(errs, fmt.Errorf("close tty: %w", err))
	}
	return errors.Join(errs...)
}
