package moves

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingPresser struct {
	events []string
	fail   string
}

func (p *recordingPresser) Press(_ context.Context, name string) error {
	p.events = append(p.events, name)
	if name == p.fail {
		return errors.New("stuck")
	}
	return nil
}

func (p *recordingPresser) PressMultiple(_ context.Context, names []string, hold time.Duration) error {
	p.events = append(p.events, strings.Join(names, "+")+"@"+hold.String())
	return nil
}

func newTestRunner(p Presser) (*Runner, *[]time.Duration) {
	r := NewRunner(p)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestSoftResetTimeline(t *testing.T) {
	p := &recordingPresser{}
	r, slept := newTestRunner(p)

	require.NoError(t, r.Run(context.Background(), SoftReset()))
	require.Equal(t, []string{"L+R+START+SELECT@250ms"}, p.events)
	require.Equal(t, []time.Duration{500 * time.Millisecond}, *slept)
}

func TestBeforeListeningTimelines(t *testing.T) {
	tests := []struct {
		generation string
		presses    int
		waiting    time.Duration
		firstWait  time.Duration
	}{
		{generation: "4", presses: 7, waiting: 22 * time.Second, firstWait: 10 * time.Second},
		{generation: "5", presses: 9, waiting: 26 * time.Second, firstWait: 11 * time.Second},
	}

	for _, tc := range tests {
		t.Run("gen"+tc.generation, func(t *testing.T) {
			seq, err := BeforeListening(tc.generation)
			require.NoError(t, err)
			require.Equal(t, tc.presses, seq.Presses())
			require.Equal(t, tc.waiting, seq.Waiting())
			require.Equal(t, tc.firstWait, seq.Steps[0].Wait)
			require.Equal(t, "A", seq.Steps[len(seq.Steps)-1].Buttons[0])
		})
	}

	_, err := BeforeListening("3")
	require.ErrorContains(t, err, "generation \"3\"")
}

func TestRandomMoveAlwaysPairsDirections(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	seen := map[string]bool{}
	for range 32 {
		seq := RandomMove(rng)
		require.Len(t, seq.Steps, 3)
		first, second := seq.Steps[0].Buttons[0], seq.Steps[2].Buttons[0]
		require.NotEqual(t, first, second)
		require.Equal(t, 300*time.Millisecond, seq.Steps[1].Wait)
		seen[first] = true
	}
	require.True(t, seen["LEFT"])
	require.True(t, seen["RIGHT"])
}

func TestRunFromBattleAndRescueTimelines(t *testing.T) {
	p := &recordingPresser{}
	r, slept := newTestRunner(p)

	require.NoError(t, r.Run(context.Background(), RunFromBattle()))
	require.Equal(t, []string{"DOWN", "DOWN", "RIGHT", "A", "A"}, p.events)
	require.Equal(t, 4600*time.Millisecond, sum(*slept))

	p.events = nil
	*slept = nil
	require.NoError(t, r.Run(context.Background(), Rescue()))
	require.Equal(t, []string{"LEFT", "LEFT", "RIGHT", "A"}, p.events)
	require.Equal(t, 2400*time.Millisecond, sum(*slept))
}

func TestStarterTimelineMatchesGen4Intro(t *testing.T) {
	gen4, err := BeforeListening("4")
	require.NoError(t, err)
	require.Equal(t, gen4.Steps, StarterBeforeListening().Steps)
}

func TestRunStopsOnPressFailure(t *testing.T) {
	p := &recordingPresser{fail: "RIGHT"}
	r, _ := newTestRunner(p)

	err := r.Run(context.Background(), Rescue())
	require.ErrorContains(t, err, "rescue step 4 (press RIGHT): stuck")
	require.Equal(t, []string{"LEFT", "LEFT", "RIGHT"}, p.events)
}

func TestRunStopsWhenContextDone(t *testing.T) {
	p := &recordingPresser{}
	r, _ := newTestRunner(p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, r.Run(ctx, RunFromBattle()), context.Canceled)
	require.Empty(t, p.events)
}

func sum(ds []time.Duration) time.Duration {
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total
}

func TestSequenceButtons(t *testing.T) {
	require.Equal(t, []string{"L", "R", "START", "SELECT"}, SoftReset().Buttons())
	require.Equal(t, []string{"DOWN", "RIGHT", "A"}, RunFromBattle().Buttons())
	require.Equal(t, []string{"A"}, StarterBeforeListening().Buttons())
	require.Empty(t, Sequence{Steps: []Step{Wait(time.Second)}}.Buttons())
}
