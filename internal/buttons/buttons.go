// Package buttons drives console button inputs through GPIO output lines.
package buttons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Button names wired to the console.
const (
	A      = "A"
	B      = "B"
	X      = "X"
	Y      = "Y"
	Up     = "UP"
	Down   = "DOWN"
	Left   = "LEFT"
	Right  = "RIGHT"
	Start  = "START"
	Select = "SELECT"
	L      = "L"
	R      = "R"
)

// Names lists every button the actuator understands.
var Names = []string{A, B, X, Y, Up, Down, Left, Right, Start, Select, L, R}

// DefaultPressTime is how long a single press holds a line high.
const DefaultPressTime = 250 * time.Millisecond

// Config maps button names to line offsets on one GPIO chip.
type Config struct {
	Chip      string
	Pins      map[string]int
	PressTime time.Duration
}

// Line is one requested output line.
type Line interface {
	SetValue(value int) error
	Close() error
}

// LineOpener requests an output line initialized low.
type LineOpener func(chip string, offset int) (Line, error)

// GPIOLines requests lines from the Linux GPIO character device.
func GPIOLines(chip string, offset int) (Line, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("shinyhunt"))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	return line, nil
}

// ChipInfo describes a GPIO chip found on the host.
type ChipInfo struct {
	Name  string
	Label string
	Lines int
}

// ProbeChip opens chip briefly to confirm it exists and report its line count.
func ProbeChip(chip string) (ChipInfo, error) {
	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer("shinyhunt"))
	if err != nil {
		return ChipInfo{}, fmt.Errorf("open %s: %w", chip, err)
	}
	defer c.Close()
	return ChipInfo{Name: c.Name, Label: c.Label, Lines: c.Lines()}, nil
}

// Actuator presses buttons. Presses are serialized; one press finishes before the next starts.
type Actuator struct {
	pressTime time.Duration
	logger    *slog.Logger
	sleep     func(context.Context, time.Duration) error

	mu     sync.Mutex
	lines  map[string]Line
	closed bool
}

// New requests one output line per configured button.
func New(cfg Config, open LineOpener, logger *slog.Logger) (*Actuator, error) {
	if open == nil {
		open = GPIOLines
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pressTime := cfg.PressTime
	if pressTime <= 0 {
		pressTime = DefaultPressTime
	}

	a := &Actuator{
		pressTime: pressTime,
		logger:    logger,
		sleep:     Sleep,
		lines:     make(map[string]Line, len(cfg.Pins)),
	}

	names := make([]string, 0, len(cfg.Pins))
	for name := range cfg.Pins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		line, err := open(cfg.Chip, cfg.Pins[name])
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("button %s: %w", name, err)
		}
		a.lines[normalize(name)] = line
	}
	return a, nil
}

// Press holds one button for the configured press time, then releases it.
func (a *Actuator) Press(ctx context.Context, name string) error {
	return a.PressMultiple(ctx, []string{name}, a.pressTime)
}

// PressMultiple holds every named button together for hold (the press time when hold <= 0).
// Lines are released even when ctx ends mid-hold.
func (a *Actuator) PressMultiple(ctx context.Context, names []string, hold time.Duration) error {
	if hold <= 0 {
		hold = a.pressTime
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("buttons: actuator closed")
	}

	lines := make([]Line, 0, len(names))
	for _, name := range names {
		line, ok := a.lines[normalize(name)]
		if !ok {
			return fmt.Errorf("unknown button %q", name)
		}
		lines = append(lines, line)
	}

	var pressErr error
	for _, line := range lines {
		if err := line.SetValue(1); err != nil {
			pressErr = err
			break
		}
	}
	if pressErr == nil {
		pressErr = a.sleep(ctx, hold)
	}

	var releaseErr error
	for _, line := range lines {
		releaseErr = errors.Join(releaseErr, line.SetValue(0))
	}

	a.logger.Debug("buttons pressed", "buttons", strings.Join(names, "+"), "hold_ms", hold.Milliseconds())
	return errors.Join(pressErr, releaseErr)
}

// Close drives every line low and releases it. Safe to call more than once.
func (a *Actuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	for name, line := range a.lines {
		if setErr := line.SetValue(0); setErr != nil {
			err = errors.Join(err, fmt.Errorf("release %s: %w", name, setErr))
		}
		if closeErr := line.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", name, closeErr))
		}
	}
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
