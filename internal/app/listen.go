package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbright/shinyhunt/internal/cli"
	"github.com/rbright/shinyhunt/internal/config"
	"github.com/rbright/shinyhunt/internal/detector"
)

const (
	listenQueue     = 64
	listenFaultPoll = 250 * time.Millisecond
)

type chunkScore struct {
	cue      detector.Cue
	peak     float64
	detected bool
}

// scoreFeed hands per-chunk scores from the audio callback to the printing loop.
// Scores are dropped when the printer falls behind.
type scoreFeed struct {
	scores  chan chunkScore
	dropped atomic.Int64
}

func newScoreFeed() *scoreFeed {
	return &scoreFeed{scores: make(chan chunkScore, listenQueue)}
}

func (f *scoreFeed) ObserveChunk(cue detector.Cue, peak float64, detected bool) {
	select {
	case f.scores <- chunkScore{cue: cue, peak: peak, detected: detected}:
	default:
		f.dropped.Add(1)
	}
}

func (f *scoreFeed) ObserveCallbackError() {}

// commandListen prints every chunk's correlation peak so thresholds can be tuned
// against the live capture.
func (r Runner) commandListen(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	generation := firstNonEmpty(parsed.Generation, cfg.Hunt.Generation)
	if generation == "" {
		return r.fail(logger, "listen setup failed", errors.New("listen requires --generation or hunt.generation"))
	}

	feed := newScoreFeed()
	det, warnings, err := r.buildDetector(cfg, generation, logger, feed)
	for _, w := range warnings {
		r.warn(logger, w)
	}
	if err != nil {
		return r.fail(logger, "detector setup failed", err)
	}

	det.ArmBattleDetection()
	if err := det.Start(ctx); err != nil {
		return r.fail(logger, "detector start failed", err)
	}
	defer func() { _ = det.Stop() }()

	fmt.Fprintf(r.Stdout, "Listening for generation %s cues (block %d samples); Ctrl+C to stop\n", generation, det.BlockSize())

	ticker := time.NewTicker(listenFaultPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if n := feed.dropped.Load(); n > 0 {
				logger.Info("listen dropped scores", "count", n)
			}
			return 0
		case score := <-feed.scores:
			mark := ""
			if score.detected {
				mark = " DETECTED"
			}
			fmt.Fprintf(r.Stdout, "%-6s peak %12.2f%s\n", score.cue, score.peak, mark)
		case <-ticker.C:
			if err := det.Err(); err != nil {
				return r.fail(logger, "audio stream failed", err)
			}
		}
	}
}
