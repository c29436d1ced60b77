// Package detector recognizes short reference sound cues inside a live mono audio stream.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rbright/shinyhunt/internal/audio"
)

// Config is the immutable detector setup.
type Config struct {
	Generation      string
	AssetDir        string
	SampleRate      int
	ShinyThreshold  float64
	BattleThreshold float64
	Device          string
	Fallback        string
	// StallTimeout is the minimum silence before a running stream is declared stalled.
	// Zero disables the watchdog.
	StallTimeout time.Duration
}

// Observer receives per-chunk scores from the audio callback. Implementations must not block.
type Observer interface {
	ObserveChunk(cue Cue, peak float64, detected bool)
	ObserveCallbackError()
}

type nopObserver struct{}

func (nopObserver) ObserveChunk(Cue, float64, bool) {}
func (nopObserver) ObserveCallbackError()          {}

// Option customizes a Detector.
type Option func(*Detector)

// WithLogger routes detector logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver installs a per-chunk observer.
func WithObserver(observer Observer) Option {
	return func(d *Detector) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// Detector runs the shiny and battle correlators against one input stream.
type Detector struct {
	cfg      Config
	opener   audio.Opener
	logger   *slog.Logger
	observer Observer
	limiter  *rate.Limiter
	now      func() time.Time

	blockSize int

	procMu sync.Mutex
	shiny  *Correlator
	battle *Correlator

	shinyFound  *Flag
	battleFound *Flag
	battleArmed atomic.Bool

	lifecycle  sync.Mutex
	stream     audio.Stream
	running    bool
	stopWatch  context.CancelFunc
	watchDone  chan struct{}
	lastBlockN atomic.Int64

	faultMu sync.Mutex
	fault   error
	faulted chan struct{} // closed once fault is set
}

// New loads the configured generation's templates and builds a stopped detector.
func New(cfg Config, opener audio.Opener, opts ...Option) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, &ConfigurationError{Op: "new detector", Err: fmt.Errorf("sample rate must be > 0 (got %d)", cfg.SampleRate)}
	}
	shiny, battle, err := LoadTemplates(cfg.AssetDir, cfg.Generation, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return NewWithTemplates(cfg, shiny, battle, opener, opts...)
}

// NewWithTemplates builds a stopped detector from already-loaded templates.
func NewWithTemplates(cfg Config, shiny, battle Template, opener audio.Opener, opts ...Option) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, &ConfigurationError{Op: "new detector", Err: fmt.Errorf("sample rate must be > 0 (got %d)", cfg.SampleRate)}
	}
	if shiny.Len() == 0 || battle.Len() == 0 {
		return nil, &ConfigurationError{Op: "new detector", Err: errors.New("templates must not be empty")}
	}
	if opener == nil {
		return nil, &ConfigurationError{Op: "new detector", Err: errors.New("audio opener is required")}
	}

	d := &Detector{
		cfg:         cfg,
		opener:      opener,
		logger:      slog.New(slog.DiscardHandler),
		observer:    nopObserver{},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 3),
		now:         time.Now,
		blockSize:   int(math.Round(1.5 * float64(shiny.Len()))),
		shiny:       NewCorrelator(shiny, cfg.ShinyThreshold),
		battle:      NewCorrelator(battle, cfg.BattleThreshold),
		shinyFound:  NewFlag(),
		battleFound: NewFlag(),
		faulted:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// BlockSize is the number of samples per callback block: round(1.5 x shiny template length).
func (d *Detector) BlockSize() int {
	return d.blockSize
}

// Running reports whether the input stream is open.
func (d *Detector) Running() bool {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	return d.running
}

// Start opens the input stream. Calling Start on a running detector is a no-op.
func (d *Detector) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running {
		return nil
	}

	d.setFault(nil)
	d.lastBlockN.Store(d.now().UnixNano())

	stream, err := d.opener.Open(ctx, audio.StreamConfig{
		Device:     d.cfg.Device,
		Fallback:   d.cfg.Fallback,
		SampleRate: d.cfg.SampleRate,
		BlockSize:  d.blockSize,
		Warn: func(msg string) {
			d.logger.Warn("audio input fallback", "device", d.cfg.Device, "warning", msg)
		},
	}, d.onBlock)
	if err != nil {
		return &DeviceError{Device: d.cfg.Device, Err: err}
	}

	d.stream = stream
	d.running = true

	if stall := d.stallTimeout(); stall > 0 {
		watchCtx, cancel := context.WithCancel(context.Background())
		d.stopWatch = cancel
		d.watchDone = make(chan struct{})
		go d.watch(watchCtx, stall, d.watchDone)
	}

	d.logger.Info("detector started",
		"device", d.cfg.Device,
		"sample_rate", d.cfg.SampleRate,
		"block_size", d.blockSize,
		"generation", d.cfg.Generation,
	)
	return nil
}

// Stop closes the input stream. It is safe to call on a stopped or never-started detector.
func (d *Detector) Stop() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running {
		return nil
	}
	d.running = false

	if d.stopWatch != nil {
		d.stopWatch()
		<-d.watchDone
		d.stopWatch = nil
		d.watchDone = nil
	}

	err := d.stream.Stop()
	d.stream = nil
	d.logger.Info("detector stopped")
	if err != nil {
		return &DeviceError{Device: d.cfg.Device, Err: err}
	}
	return nil
}

// Err returns the last stream fault observed while running, or nil.
func (d *Detector) Err() error {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	return d.fault
}

// WaitForShiny clears the shiny flag, then blocks until a shiny cue, timeout, ctx is done,
// or the stream faults.
func (d *Detector) WaitForShiny(ctx context.Context, timeout time.Duration) bool {
	d.shinyFound.Clear()
	ctx, cancel := d.untilFault(ctx)
	defer cancel()
	return d.shinyFound.Wait(ctx, timeout)
}

// WaitForBattle blocks until the battle flag is set, timeout, ctx is done, or the stream faults.
// The flag is not cleared first, so a detection that already happened is observed.
func (d *Detector) WaitForBattle(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := d.untilFault(ctx)
	defer cancel()
	return d.battleFound.Wait(ctx, timeout)
}

// untilFault derives a context that also ends when a stream fault is recorded.
func (d *Detector) untilFault(ctx context.Context) (context.Context, context.CancelFunc) {
	d.faultMu.Lock()
	faulted := d.faulted
	d.faultMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-faulted:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ArmBattleDetection makes the battle correlator score chunks from the next block on.
func (d *Detector) ArmBattleDetection() {
	d.battleArmed.Store(true)
}

// DisarmBattleDetection stops battle scoring; the battle carry buffer keeps advancing.
func (d *Detector) DisarmBattleDetection() {
	d.battleArmed.Store(false)
}

// BattleArmed reports the battle-listening mode.
func (d *Detector) BattleArmed() bool {
	return d.battleArmed.Load()
}

// ClearBattle lowers the battle flag.
func (d *Detector) ClearBattle() {
	d.battleFound.Clear()
}

// onBlock is the audio callback. It never blocks on consumers and skips blocks it cannot score.
func (d *Detector) onBlock(samples []float32) {
	d.lastBlockN.Store(d.now().UnixNano())

	defer func() {
		if r := recover(); r != nil {
			d.callbackFailed(fmt.Errorf("panic: %v", r))
		}
	}()

	if i := firstNonFinite(samples); i >= 0 {
		d.callbackFailed(fmt.Errorf("non-finite sample at index %d", i))
		return
	}

	chunk := NormalizeChunk(samples)

	shinyPeak, shinyHit, battlePeak, battleHit, armed := d.score(chunk)
	if shinyHit {
		d.shinyFound.Set()
	}
	if battleHit {
		d.battleFound.Set()
	}

	d.observe(CueShiny, shinyPeak, shinyHit)
	if armed {
		d.observe(CueBattle, battlePeak, battleHit)
	}
}

// score runs both correlators over chunk. A disarmed battle correlator only advances its carry.
func (d *Detector) score(chunk []float64) (shinyPeak float64, shinyHit bool, battlePeak float64, battleHit bool, armed bool) {
	d.procMu.Lock()
	defer d.procMu.Unlock()

	shinyPeak, shinyHit = d.shiny.Process(chunk)
	armed = d.battleArmed.Load()
	if armed {
		battlePeak, battleHit = d.battle.Process(chunk)
	} else {
		d.battle.Advance(chunk)
	}
	return shinyPeak, shinyHit, battlePeak, battleHit, armed
}

// observe reports one score. Flags and carries are already updated, so an observer panic
// costs only the metric.
func (d *Detector) observe(cue Cue, peak float64, detected bool) {
	defer func() {
		if r := recover(); r != nil {
			d.callbackFailed(fmt.Errorf("observer panic: %v", r))
		}
	}()
	d.observer.ObserveChunk(cue, peak, detected)
}

func (d *Detector) callbackFailed(err error) {
	d.observer.ObserveCallbackError()
	if d.limiter.Allow() {
		d.logger.Warn("audio block skipped", "error", err.Error())
	}
}

// stallTimeout never undercuts three block durations so slow block delivery is not a stall.
func (d *Detector) stallTimeout() time.Duration {
	if d.cfg.StallTimeout <= 0 {
		return 0
	}
	blocks := time.Duration(3*d.blockSize) * time.Second / time.Duration(d.cfg.SampleRate)
	return max(d.cfg.StallTimeout, blocks)
}

func (d *Detector) watch(ctx context.Context, stall time.Duration, done chan<- struct{}) {
	defer close(done)

	interval := max(stall/4, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		last := time.Unix(0, d.lastBlockN.Load())
		silence := d.now().Sub(last)
		if silence < stall || d.Err() != nil {
			continue
		}

		fault := &DeviceError{
			Device: d.cfg.Device,
			Err:    fmt.Errorf("%w: no audio for %s", ErrStreamStalled, silence.Round(time.Millisecond)),
		}
		d.setFault(fault)
		d.logger.Error("audio stream stalled", "device", d.cfg.Device, "silence_ms", silence.Milliseconds())
	}
}

func (d *Detector) setFault(err error) {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	wasFaulted := d.fault != nil
	d.fault = err
	switch {
	case err != nil && !wasFaulted:
		close(d.faulted)
	case err == nil && wasFaulted:
		d.faulted = make(chan struct{})
	}
}

func firstNonFinite(samples []float32) int {
	for i, v := range samples {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}
