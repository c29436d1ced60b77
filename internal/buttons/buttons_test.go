package buttons

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLine struct {
	mu      sync.Mutex
	offset  int
	values  []int
	closed  bool
	failSet bool
}

func (l *fakeLine) SetValue(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSet && v == 1 {
		return errors.New("line busy")
	}
	l.values = append(l.values, v)
	return nil
}

func (l *fakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

type fakeChip struct {
	chip  string
	lines map[int]*fakeLine
	fail  int
}

func (c *fakeChip) open(chip string, offset int) (Line, error) {
	if offset == c.fail {
		return nil, errors.New("no such line")
	}
	c.chip = chip
	line := &fakeLine{offset: offset}
	c.lines[offset] = line
	return line, nil
}

func newTestActuator(t *testing.T) (*Actuator, *fakeChip, *[]time.Duration) {
	t.Helper()
	chip := &fakeChip{lines: map[int]*fakeLine{}, fail: -1}
	a, err := New(Config{
		Chip:      "gpiochip0",
		Pins:      map[string]int{"A": 5, "L": 6, "R": 13, "START": 19, "SELECT": 26},
		PressTime: 100 * time.Millisecond,
	}, chip.open, nil)
	require.NoError(t, err)

	var slept []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return a, chip, &slept
}

func TestPressPulsesLineHighThenLow(t *testing.T) {
	a, chip, slept := newTestActuator(t)

	require.NoError(t, a.Press(context.Background(), "a"))
	require.Equal(t, "gpiochip0", chip.chip)
	require.Equal(t, []int{1, 0}, chip.lines[5].values)
	require.Equal(t, []time.Duration{100 * time.Millisecond}, *slept)
}

func TestPressMultipleHoldsAllLinesTogether(t *testing.T) {
	a, chip, slept := newTestActuator(t)

	require.NoError(t, a.PressMultiple(context.Background(), []string{"L", "R", "START", "SELECT"}, 250*time.Millisecond))
	for _, offset := range []int{6, 13, 19, 26} {
		require.Equal(t, []int{1, 0}, chip.lines[offset].values, "offset %d", offset)
	}
	require.Empty(t, chip.lines[5].values)
	require.Equal(t, []time.Duration{250 * time.Millisecond}, *slept)

	require.NoError(t, a.PressMultiple(context.Background(), []string{"A"}, 0))
	require.Equal(t, 100*time.Millisecond, (*slept)[1])
}

func TestPressUnknownButton(t *testing.T) {
	a, chip, _ := newTestActuator(t)
	err := a.PressMultiple(context.Background(), []string{"A", "Z"}, 0)
	require.ErrorContains(t, err, `unknown button "Z"`)
	require.Empty(t, chip.lines[5].values)
}

func TestPressReleasesOnCancel(t *testing.T) {
	a, chip, _ := newTestActuator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Press(ctx, "A")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []int{1, 0}, chip.lines[5].values)
}

func TestPressReleasesWhenSetFails(t *testing.T) {
	a, chip, slept := newTestActuator(t)
	chip.lines[5].failSet = true

	err := a.Press(context.Background(), "A")
	require.ErrorContains(t, err, "line busy")
	require.Equal(t, []int{0}, chip.lines[5].values)
	require.Empty(t, *slept)
}

func TestCloseReleasesEveryLine(t *testing.T) {
	a, chip, _ := newTestActuator(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	for offset, line := range chip.lines {
		require.True(t, line.closed, "offset %d", offset)
		require.Equal(t, []int{0}, line.values, "offset %d", offset)
	}
	require.ErrorContains(t, a.Press(context.Background(), "A"), "closed")
}

func TestNewReleasesLinesOnPartialFailure(t *testing.T) {
	chip := &fakeChip{lines: map[int]*fakeLine{}, fail: 13}
	_, err := New(Config{Pins: map[string]int{"A": 5, "L": 6, "R": 13}}, chip.open, nil)
	require.ErrorContains(t, err, "button R")

	for _, line := range chip.lines {
		require.True(t, line.closed)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}
