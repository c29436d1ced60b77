package detector

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/shinyhunt/internal/audio"
)

const testRate = 8000

type fakeStream struct {
	stops atomic.Int32
	err   error
}

func (s *fakeStream) Stop() error {
	s.stops.Add(1)
	return s.err
}

type fakeOpener struct {
	mu      sync.Mutex
	opens   int
	cfg     audio.StreamConfig
	onBlock audio.BlockFunc
	stream  *fakeStream
	err     error
	feed    func(audio.BlockFunc)
}

func (o *fakeOpener) Open(_ context.Context, cfg audio.StreamConfig, onBlock audio.BlockFunc) (audio.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.opens++
	o.cfg = cfg
	o.onBlock = onBlock
	o.stream = &fakeStream{}
	if o.feed != nil {
		go o.feed(onBlock)
	}
	return o.stream, nil
}

type recordingObserver struct {
	mu             sync.Mutex
	chunks         map[Cue]int
	peaks          map[Cue][]float64
	firstDetection map[Cue]int
	callbackErrors int
	panicNext      bool
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		chunks:         map[Cue]int{},
		peaks:          map[Cue][]float64{},
		firstDetection: map[Cue]int{},
	}
}

func (o *recordingObserver) ObserveChunk(cue Cue, peak float64, detected bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.panicNext {
		o.panicNext = false
		panic("observer exploded")
	}
	if _, seen := o.firstDetection[cue]; detected && !seen {
		o.firstDetection[cue] = o.chunks[cue]
	}
	o.chunks[cue]++
	o.peaks[cue] = append(o.peaks[cue], peak)
}

func (o *recordingObserver) ObserveCallbackError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbackErrors++
}

func (o *recordingObserver) snapshot() (map[Cue]int, map[Cue]int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	chunks := map[Cue]int{}
	for k, v := range o.chunks {
		chunks[k] = v
	}
	first := map[Cue]int{}
	for k, v := range o.firstDetection {
		first[k] = v
	}
	return chunks, first, o.callbackErrors
}

func testTemplates() (Template, Template) {
	shiny := Template{Cue: CueShiny, SampleRate: testRate, Samples: chirp(400, testRate, 300, 2500)}
	battle := Template{Cue: CueBattle, SampleRate: testRate, Samples: chirp(300, testRate, 2000, 600)}
	return shiny, battle
}

func newTestDetector(t *testing.T, opener audio.Opener, opts ...Option) *Detector {
	t.Helper()
	shiny, battle := testTemplates()
	d, err := NewWithTemplates(Config{
		Generation:      "4",
		SampleRate:      testRate,
		ShinyThreshold:  100,
		BattleThreshold: 100,
		Device:          "test-mic",
	}, shiny, battle, opener, opts...)
	require.NoError(t, err)
	return d
}

// blockWith places samples at offset inside an otherwise silent block.
func blockWith(size, offset int, samples []float64) []float32 {
	block := make([]float32, size)
	for i, v := range samples {
		block[offset+i] = float32(v)
	}
	return block
}

func TestDetectorBlockSize(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{})
	require.Equal(t, 600, d.BlockSize())
}

func TestDetectorStartStopLifecycle(t *testing.T) {
	opener := &fakeOpener{}
	d := newTestDetector(t, opener)

	require.NoError(t, d.Stop())
	require.False(t, d.Running())

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Start(context.Background()))
	require.True(t, d.Running())
	require.Equal(t, 1, opener.opens)
	require.Equal(t, audio.StreamConfig{Device: "test-mic", SampleRate: testRate, BlockSize: 600}, opener.cfg)

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	require.False(t, d.Running())
	require.Equal(t, int32(1), opener.stream.stops.Load())
}

func TestDetectorStartWrapsOpenFailureAsDeviceError(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{err: errors.New("no such device")})

	err := d.Start(context.Background())
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	require.Equal(t, "test-mic", devErr.Device)
	require.ErrorContains(t, err, "no such device")
	require.False(t, d.Running())
}

func TestNewWithTemplatesValidates(t *testing.T) {
	shiny, battle := testTemplates()

	_, err := NewWithTemplates(Config{SampleRate: 0}, shiny, battle, &fakeOpener{})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	_, err = NewWithTemplates(Config{SampleRate: testRate}, Template{}, battle, &fakeOpener{})
	require.ErrorContains(t, err, "templates must not be empty")

	_, err = NewWithTemplates(Config{SampleRate: testRate}, shiny, battle, nil)
	require.ErrorContains(t, err, "opener is required")
}

func TestWaitForShinyTimesOutAfterTimeout(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{})
	start := time.Now()
	require.False(t, d.WaitForShiny(context.Background(), 100*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitForShinyClearsStaleDetection(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{})
	shiny, _ := testTemplates()

	d.onBlock(blockWith(d.BlockSize(), 100, shiny.Samples))
	require.True(t, d.shinyFound.IsSet())
	require.False(t, d.WaitForShiny(context.Background(), 20*time.Millisecond))
}

func TestWaitForShinyObservesDetectionDuringWait(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{})
	shiny, _ := testTemplates()

	go func() {
		time.Sleep(30 * time.Millisecond)
		d.onBlock(blockWith(d.BlockSize(), 100, shiny.Samples))
	}()
	require.True(t, d.WaitForShiny(context.Background(), 2*time.Second))
}

func TestWaitForBattleObservesEarlierDetection(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{})
	_, battle := testTemplates()

	d.ArmBattleDetection()
	d.onBlock(blockWith(d.BlockSize(), 100, battle.Samples))
	time.Sleep(10 * time.Millisecond)

	require.True(t, d.WaitForBattle(context.Background(), 50*time.Millisecond))
	// Not cleared by the wait itself.
	require.True(t, d.WaitForBattle(context.Background(), 0))

	d.ClearBattle()
	require.False(t, d.WaitForBattle(context.Background(), 10*time.Millisecond))
}

func TestDisarmedBattleDoesNotDetectButAdvancesCarry(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{})
	_, battle := testTemplates()
	require.False(t, d.BattleArmed())

	block := blockWith(d.BlockSize(), 100, battle.Samples)
	d.onBlock(block)
	require.False(t, d.battleFound.IsSet())

	chunk := NormalizeChunk(block)
	require.Equal(t, chunk[len(chunk)-battle.Len():], d.battle.Carry())

	d.ArmBattleDetection()
	require.True(t, d.BattleArmed())
	d.DisarmBattleDetection()
	require.False(t, d.BattleArmed())
}

func TestBattleRearmMatchesAlwaysArmedRun(t *testing.T) {
	_, battle := testTemplates()
	rng := rand.New(rand.NewPCG(5, 6))

	const size = 600
	stream := make([]float64, 6*size)
	for i := range stream {
		stream[i] = rng.NormFloat64() * 0.01
	}
	copy(stream[700:], battle.Samples)  // block 1
	copy(stream[2950:], battle.Samples) // straddles blocks 4 and 5
	blocks := make([][]float32, 6)
	for i := range blocks {
		blocks[i] = make([]float32, size)
		for j := range blocks[i] {
			blocks[i][j] = float32(stream[i*size+j])
		}
	}

	alwaysObs := newRecordingObserver()
	always := newTestDetector(t, &fakeOpener{}, WithObserver(alwaysObs))
	always.ArmBattleDetection()

	rearmObs := newRecordingObserver()
	rearmed := newTestDetector(t, &fakeOpener{}, WithObserver(rearmObs))

	for i, block := range blocks {
		if i == 3 {
			rearmed.ArmBattleDetection()
		}
		always.onBlock(block)
		rearmed.onBlock(block)
	}

	require.Len(t, alwaysObs.peaks[CueBattle], 6)
	require.Equal(t, alwaysObs.peaks[CueBattle][3:], rearmObs.peaks[CueBattle])
	require.Equal(t, 1, alwaysObs.firstDetection[CueBattle])
	require.True(t, rearmed.battleFound.IsSet())
}

func TestOnBlockSkipsNonFiniteSamples(t *testing.T) {
	obs := newRecordingObserver()
	d := newTestDetector(t, &fakeOpener{}, WithObserver(obs))

	block := make([]float32, d.BlockSize())
	block[3] = float32(math.NaN())
	d.onBlock(block)

	block[3] = float32(math.Inf(1))
	d.onBlock(block)

	chunks, _, callbackErrors := obs.snapshot()
	require.Equal(t, 2, callbackErrors)
	require.Zero(t, chunks[CueShiny])
	require.Equal(t, make([]float64, 400), d.shiny.Carry())
}

func TestOnBlockRecoversPanics(t *testing.T) {
	obs := newRecordingObserver()
	obs.panicNext = true
	d := newTestDetector(t, &fakeOpener{}, WithObserver(obs))
	shiny, _ := testTemplates()

	require.NotPanics(t, func() { d.onBlock(make([]float32, d.BlockSize())) })
	_, _, callbackErrors := obs.snapshot()
	require.Equal(t, 1, callbackErrors)

	d.onBlock(blockWith(d.BlockSize(), 100, shiny.Samples))
	require.True(t, d.shinyFound.IsSet())
}

func TestObserverPanicKeepsDetectionAndCarries(t *testing.T) {
	obs := newRecordingObserver()
	obs.panicNext = true
	d := newTestDetector(t, &fakeOpener{}, WithObserver(obs))
	shiny, battle := testTemplates()

	block := blockWith(d.BlockSize(), 100, shiny.Samples)
	require.NotPanics(t, func() { d.onBlock(block) })

	require.True(t, d.shinyFound.IsSet())
	chunk := NormalizeChunk(block)
	require.Equal(t, chunk[len(chunk)-shiny.Len():], d.shiny.Carry())
	require.Equal(t, chunk[len(chunk)-battle.Len():], d.battle.Carry())

	_, _, callbackErrors := obs.snapshot()
	require.Equal(t, 1, callbackErrors)
}

func TestDetectorLogsInputFallback(t *testing.T) {
	var logs bytes.Buffer
	opener := audio.OpenerFunc(func(_ context.Context, cfg audio.StreamConfig, _ audio.BlockFunc) (audio.Stream, error) {
		cfg.Warn(`audio.input "hw:2,0" did not match any input device; falling back to "default"`)
		return &fakeStream{}, nil
	})
	d := newTestDetector(t, opener, WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop())
	require.Contains(t, logs.String(), `"msg":"audio input fallback"`)
	require.Contains(t, logs.String(), `hw:2,0`)
}

func TestStallWatchdogRecordsDeviceError(t *testing.T) {
	shiny, battle := testTemplates()
	d, err := NewWithTemplates(Config{
		SampleRate:      testRate,
		ShinyThreshold:  100,
		BattleThreshold: 100,
		Device:          "quiet-mic",
		StallTimeout:    20 * time.Millisecond,
	}, shiny, battle, &fakeOpener{})
	require.NoError(t, err)

	// Three 600-sample blocks at 8kHz.
	require.Equal(t, 225*time.Millisecond, d.stallTimeout())

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.Eventually(t, func() bool { return d.Err() != nil }, 3*time.Second, 10*time.Millisecond)

	err = d.Err()
	require.ErrorIs(t, err, ErrStreamStalled)
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	require.Equal(t, "quiet-mic", devErr.Device)
}

func TestStallEndsPendingWaits(t *testing.T) {
	shiny, battle := testTemplates()
	d, err := NewWithTemplates(Config{
		SampleRate:      testRate,
		ShinyThreshold:  100,
		BattleThreshold: 100,
		Device:          "quiet-mic",
		StallTimeout:    20 * time.Millisecond,
	}, shiny, battle, &fakeOpener{})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	started := time.Now()
	require.False(t, d.WaitForShiny(context.Background(), 10*time.Second))
	require.Less(t, time.Since(started), 5*time.Second)
	require.ErrorIs(t, d.Err(), ErrStreamStalled)

	// An already faulted stream does not hold later waits either.
	started = time.Now()
	require.False(t, d.WaitForBattle(context.Background(), 10*time.Second))
	require.Less(t, time.Since(started), time.Second)

	// Restarting clears the fault.
	require.NoError(t, d.Stop())
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Err())
	require.False(t, d.WaitForBattle(context.Background(), 20*time.Millisecond))
}

func TestStallWatchdogDisabledByZeroTimeout(t *testing.T) {
	d := newTestDetector(t, &fakeOpener{})
	require.Zero(t, d.stallTimeout())
	require.NoError(t, d.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, d.Err())
	require.NoError(t, d.Stop())
}

func TestDetectorEndToEndFindsShinyInNoisyStream(t *testing.T) {
	const rate = 48000
	dir := t.TempDir()

	shinyPCM := toPCM16(chirp(rate/2, rate, 500, 4000))
	writeWAV(t, TemplatePath(dir, CueShiny, "4"), rate, 1, shinyPCM)
	writeWAV(t, TemplatePath(dir, CueBattle, "4"), rate, 1, toPCM16(chirp(rate/4, rate, 3000, 800)))

	rng := rand.New(rand.NewPCG(42, 43))
	signal := make([]float32, 2*rate+rate/2+2*rate)
	for i := range signal {
		signal[i] = float32(rng.NormFloat64() * 0.01)
	}

	obs := newRecordingObserver()
	opener := &fakeOpener{}
	d, err := New(Config{
		Generation:      "4",
		AssetDir:        dir,
		SampleRate:      rate,
		ShinyThreshold:  5000,
		BattleThreshold: 10000,
		Device:          "default",
	}, opener, WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, 36000, d.BlockSize())

	shinyTmpl, _, err := LoadTemplates(dir, "4", rate)
	require.NoError(t, err)
	for i, v := range shinyTmpl.Samples {
		signal[96000+i] = float32(v)
	}

	opener.feed = func(onBlock audio.BlockFunc) {
		time.Sleep(50 * time.Millisecond)
		for start := 0; start+36000 <= len(signal); start += 36000 {
			onBlock(signal[start : start+36000])
			time.Sleep(5 * time.Millisecond)
		}
	}

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.True(t, d.WaitForShiny(context.Background(), 6*time.Second))

	require.Eventually(t, func() bool {
		chunks, _, _ := obs.snapshot()
		return chunks[CueShiny] == 6
	}, 3*time.Second, 10*time.Millisecond)

	_, first, callbackErrors := obs.snapshot()
	require.Zero(t, callbackErrors)
	require.GreaterOrEqual(t, first[CueShiny], 96000/36000)
	require.LessOrEqual(t, first[CueShiny], 3)
}

func TestNewLoadsTemplatesFromAssetDir(t *testing.T) {
	_, err := New(Config{Generation: "4", AssetDir: filepath.Join(t.TempDir(), "missing"), SampleRate: testRate}, &fakeOpener{})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	_, err = New(Config{Generation: "7", SampleRate: testRate}, &fakeOpener{})
	require.ErrorIs(t, err, ErrUnknownGeneration)
}

func toPCM16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, v := range samples {
		out[i] = int(math.Round(v * 32767))
	}
	return out
}
