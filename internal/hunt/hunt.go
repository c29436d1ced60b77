// Package hunt runs the reset/encounter loop: drive button timelines, listen for cues, and
// report the outcome.
package hunt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rbright/shinyhunt/internal/buttons"
	"github.com/rbright/shinyhunt/internal/config"
	"github.com/rbright/shinyhunt/internal/detector"
	"github.com/rbright/shinyhunt/internal/fsm"
	"github.com/rbright/shinyhunt/internal/ipc"
	"github.com/rbright/shinyhunt/internal/moves"
	"github.com/rbright/shinyhunt/internal/notify"
)

const (
	softResetShinyWait = 8 * time.Second
	starterSettle      = 9 * time.Second
	starterShinyWait   = 5 * time.Second
	battleSettle       = 2 * time.Second
	battlePoll         = 500 * time.Millisecond
	notifyTimeout      = 15 * time.Second
)

// randomShinyWait is how long the shiny cue may take to play after a wild battle starts.
var randomShinyWait = map[string]time.Duration{
	"4": 10 * time.Second,
	"5": 7 * time.Second,
}

// ErrUnsupportedHunt reports a generation/strategy pair without a move timeline.
var ErrUnsupportedHunt = errors.New("unsupported hunt")

// Detector is the hunt-facing subset of the cue detector.
type Detector interface {
	Start(ctx context.Context) error
	Stop() error
	Err() error
	WaitForShiny(ctx context.Context, timeout time.Duration) bool
	WaitForBattle(ctx context.Context, timeout time.Duration) bool
	ArmBattleDetection()
	DisarmBattleDetection()
	ClearBattle()
}

// MoveRunner plays a button timeline.
type MoveRunner interface {
	Run(ctx context.Context, seq moves.Sequence) error
}

// Recorder receives hunt counters.
type Recorder interface {
	ObserveEncounter()
	ObserveWait(cue detector.Cue, hit bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEncounter()                             {}
func (nopRecorder) ObserveWait(detector.Cue, bool, time.Duration) {}

// Config selects one hunt.
type Config struct {
	RunID       string
	Generation  string
	Type        string
	ExtraWait   time.Duration
	RescueAfter time.Duration
}

// Validate rejects generation/strategy pairs that have no timeline.
func (c Config) Validate() error {
	var supported []string
	switch c.Type {
	case config.HuntSoftReset, config.HuntRandomEncounter:
		supported = []string{"4", "5"}
	case config.HuntStarter:
		supported = []string{"4"}
	default:
		return fmt.Errorf("%w: unknown hunt type %q", ErrUnsupportedHunt, c.Type)
	}
	if !slices.Contains(supported, c.Generation) {
		return fmt.Errorf("%w: %s is not available for generation %s", ErrUnsupportedHunt, c.Type, c.Generation)
	}
	if c.ExtraWait < 0 {
		return errors.New("extra wait must be >= 0")
	}
	if c.Type == config.HuntRandomEncounter && c.RescueAfter <= 0 {
		return errors.New("rescue interval must be > 0")
	}
	return nil
}

// Buttons lists every button the strategy can press. Validate must pass first.
func (c Config) Buttons() []string {
	var seqs []moves.Sequence
	switch c.Type {
	case config.HuntRandomEncounter:
		seqs = []moves.Sequence{moves.RandomMove(rand.New(rand.NewPCG(0, 0))), moves.RunFromBattle(), moves.Rescue()}
	case config.HuntStarter:
		seqs = []moves.Sequence{moves.SoftReset(), moves.StarterBeforeListening()}
	default:
		intro, _ := moves.BeforeListening(c.Generation)
		seqs = []moves.Sequence{moves.SoftReset(), intro}
	}

	var names []string
	for _, seq := range seqs {
		for _, name := range seq.Buttons() {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}

// Result is the outcome of one Run.
type Result struct {
	RunID      string
	State      fsm.State
	Found      bool
	Stopped    bool
	Encounters int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Detector Detector
	Moves    MoveRunner
	Notifier notify.Notifier
	Recorder Recorder
	Logger   *slog.Logger
	// Out receives operator-facing progress lines.
	Out io.Writer
	// Rand drives random-encounter step order.
	Rand *rand.Rand
}

// Controller owns one hunt's state and serves IPC commands while it runs.
type Controller struct {
	cfg      Config
	detector Detector
	moves    MoveRunner
	notifier notify.Notifier
	recorder Recorder
	logger   *slog.Logger
	out      io.Writer
	rng      *rand.Rand

	sleep func(context.Context, time.Duration) error
	now   func() time.Time

	mu         sync.RWMutex
	state      fsm.State
	encounters int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewController validates cfg and fills defaults for optional collaborators.
func NewController(cfg Config, deps Dependencies) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Detector == nil || deps.Moves == nil {
		return nil, errors.New("hunt requires a detector and a move runner")
	}

	c := &Controller{
		cfg:      cfg,
		detector: deps.Detector,
		moves:    deps.Moves,
		notifier: deps.Notifier,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		out:      deps.Out,
		rng:      deps.Rand,
		sleep:    buttons.Sleep,
		now:      time.Now,
		state:    fsm.StateIdle,
		stopCh:   make(chan struct{}),
	}
	if c.notifier == nil {
		c.notifier = notify.NewMulti(nil)
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.out == nil {
		c.out = io.Discard
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return c, nil
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Encounters returns the number of encounters counted so far.
func (c *Controller) Encounters() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encounters
}

func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run starts the detector and hunts until a shiny is found, a stop is requested, ctx ends,
// or the detector or buttons fail. The detector is always stopped before Run returns.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{RunID: c.cfg.RunID, StartedAt: c.now()}
	finish := func(err error) Result {
		switch {
		case err == nil:
		case errors.Is(err, errStopRequested):
			result.Stopped = true
			_ = c.transition(fsm.EventStop)
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			result.Err = err
			_ = c.transition(fsm.EventStop)
		default:
			result.Err = err
			_ = c.transition(fsm.EventFail)
		}
		result.State = c.State()
		result.Encounters = c.Encounters()
		result.FinishedAt = c.now()
		return result
	}

	if err := c.detector.Start(ctx); err != nil {
		return finish(fmt.Errorf("start detector: %w", err))
	}
	defer func() {
		if err := c.detector.Stop(); err != nil {
			c.logger.Warn("detector stop failed", "error", err.Error())
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-c.stopCh:
			cancel(errStopRequested)
		case <-runCtx.Done():
		}
	}()

	c.logger.Info("hunt started",
		"generation", c.cfg.Generation,
		"hunt_type", c.cfg.Type,
		"extra_wait_ms", c.cfg.ExtraWait.Milliseconds(),
	)

	var err error
	switch c.cfg.Type {
	case config.HuntRandomEncounter:
		err = c.huntRandom(runCtx)
	default:
		err = c.huntResets(runCtx)
	}
	if cause := context.Cause(runCtx); err != nil && cause != nil && !errors.Is(cause, context.Canceled) {
		err = cause
	}
	if err == nil {
		result.Found = true
	}

	res := finish(err)
	c.logger.Info("hunt finished",
		"state", string(res.State),
		"found", res.Found,
		"stopped", res.Stopped,
		"encounters", res.Encounters,
	)
	return res
}

var errStopRequested = errors.New("stop requested")

// huntResets loops soft resets until the shiny cue plays. It returns nil only on a find.
func (c *Controller) huntResets(ctx context.Context) error {
	intro, wait, err := c.resetTimeline()
	if err != nil {
		return err
	}

	for {
		if err := c.transition(fsm.EventStart); err != nil {
			return err
		}
		if err := c.moves.Run(ctx, moves.SoftReset()); err != nil {
			return err
		}
		if err := c.moves.Run(ctx, intro); err != nil {
			return err
		}
		if c.cfg.Type == config.HuntStarter {
			if err := c.sleep(ctx, starterSettle); err != nil {
				return err
			}
		}

		found, err := c.listen(ctx, wait)
		if err != nil || found {
			return err
		}
	}
}

func (c *Controller) resetTimeline() (moves.Sequence, time.Duration, error) {
	if c.cfg.Type == config.HuntStarter {
		return moves.StarterBeforeListening(), starterShinyWait + c.cfg.ExtraWait, nil
	}
	intro, err := moves.BeforeListening(c.cfg.Generation)
	if err != nil {
		return moves.Sequence{}, 0, err
	}
	return intro, softResetShinyWait + c.cfg.ExtraWait, nil
}

// huntRandom walks back and forth, polling the battle cue, until a wild battle plays the
// shiny cue. It returns nil only on a find.
func (c *Controller) huntRandom(ctx context.Context) error {
	wait := randomShinyWait[c.cfg.Generation] + c.cfg.ExtraWait

	c.detector.ClearBattle()
	lastBattle := c.now()

	if err := c.transition(fsm.EventRoam); err != nil {
		return err
	}
	for {
		if err := c.checkRunning(ctx); err != nil {
			return err
		}

		battle, err := c.pollBattle(ctx)
		if err != nil {
			return err
		}
		if !battle {
			if c.now().Sub(lastBattle) > c.cfg.RescueAfter {
				c.logger.Warn("no battle detected; running rescue",
					"since_ms", c.now().Sub(lastBattle).Milliseconds())
				fmt.Fprintln(c.out, "No battle for a while, trying to get unstuck")
				if err := c.moves.Run(ctx, moves.Rescue()); err != nil {
					return err
				}
				lastBattle = c.now()
			}
			continue
		}

		c.detector.ClearBattle()
		lastBattle = c.now()
		if err := c.sleep(ctx, battleSettle); err != nil {
			return err
		}

		found, err := c.listen(ctx, wait)
		if err != nil || found {
			return err
		}
		if err := c.moves.Run(ctx, moves.RunFromBattle()); err != nil {
			return err
		}
		if err := c.transition(fsm.EventRoam); err != nil {
			return err
		}
	}
}

// pollBattle arms the battle correlator for one random step plus a short wait.
func (c *Controller) pollBattle(ctx context.Context) (bool, error) {
	c.detector.ArmBattleDetection()
	defer c.detector.DisarmBattleDetection()

	if err := c.moves.Run(ctx, moves.RandomMove(c.rng)); err != nil {
		return false, err
	}
	started := c.now()
	hit := c.detector.WaitForBattle(ctx, battlePoll)
	if err := c.checkRunning(ctx); err != nil {
		return false, err
	}
	c.recorder.ObserveWait(detector.CueBattle, hit, c.now().Sub(started))
	return hit, nil
}

// listen counts an encounter and waits for the shiny cue. A miss returns the FSM to idle.
func (c *Controller) listen(ctx context.Context, wait time.Duration) (bool, error) {
	if err := c.transition(fsm.EventEncounter); err != nil {
		return false, err
	}
	count := c.countEncounter()
	fmt.Fprintf(c.out, "Encounter number %d\n", count)
	c.logger.Info("encounter", "encounters", count)
	c.notify(ctx, notify.KindEncounter, count)

	started := c.now()
	hit := c.detector.WaitForShiny(ctx, wait)
	if err := c.checkRunning(ctx); err != nil {
		return false, err
	}
	c.recorder.ObserveWait(detector.CueShiny, hit, c.now().Sub(started))

	if !hit {
		return false, c.transition(fsm.EventMiss)
	}
	if err := c.transition(fsm.EventShiny); err != nil {
		return false, err
	}
	fmt.Fprintf(c.out, "SHINY FOUND after %d encounters!\n", count)
	c.logger.Info("shiny found", "encounters", count)
	c.notify(ctx, notify.KindShiny, count)
	return true, nil
}

func (c *Controller) countEncounter() int {
	c.mu.Lock()
	c.encounters++
	n := c.encounters
	c.mu.Unlock()
	c.recorder.ObserveEncounter()
	return n
}

func (c *Controller) notify(ctx context.Context, kind notify.Kind, count int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	event := notify.Event{
		RunID:      c.cfg.RunID,
		Kind:       kind,
		Encounters: count,
		Generation: c.cfg.Generation,
		HuntType:   c.cfg.Type,
		At:         c.now().UTC(),
	}
	if err := c.notifier.Notify(ctx, event); err != nil {
		c.logger.Warn("notify failed", "kind", string(kind), "error", err.Error())
	}
}

// checkRunning surfaces cancellation and detector stream faults between steps.
func (c *Controller) checkRunning(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.detector.Err(); err != nil {
		return fmt.Errorf("audio stream: %w", err)
	}
	return nil
}

// Handle serves IPC commands for the active hunt.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	state := string(c.State())
	switch req.Command {
	case "status":
		return ipc.Response{
			OK:         true,
			State:      state,
			Encounters: c.Encounters(),
			Message:    fmt.Sprintf("%s gen %s", c.cfg.Type, c.cfg.Generation),
		}
	case "stop":
		requested := false
		c.stopOnce.Do(func() {
			close(c.stopCh)
			requested = true
		})
		if !requested {
			return ipc.Response{OK: true, State: state, Message: "stop already requested"}
		}
		return ipc.Response{OK: true, State: state, Message: "stop requested"}
	default:
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}
