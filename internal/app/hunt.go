package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/shinyhunt/internal/buttons"
	"github.com/rbright/shinyhunt/internal/cli"
	"github.com/rbright/shinyhunt/internal/config"
	"github.com/rbright/shinyhunt/internal/hunt"
	"github.com/rbright/shinyhunt/internal/ipc"
	"github.com/rbright/shinyhunt/internal/logging"
	"github.com/rbright/shinyhunt/internal/metrics"
	"github.com/rbright/shinyhunt/internal/moves"
	"github.com/rbright/shinyhunt/internal/prompt"
)

const exitInterrupted = 130

// selection merges flags over config defaults and prompts only for what is still missing.
func (r Runner) selection(parsed cli.Parsed, cfg config.Config) (prompt.Selection, error) {
	sel := prompt.Selection{
		Generation: firstNonEmpty(parsed.Generation, cfg.Hunt.Generation),
		HuntType:   firstNonEmpty(parsed.HuntType, cfg.Hunt.Type),
		ExtraWait:  ms(cfg.Timings.ExtraWaitMS),
	}
	if parsed.ExtraWait != nil {
		sel.ExtraWait = *parsed.ExtraWait
	}
	if sel.Generation != "" && sel.HuntType != "" {
		return sel, nil
	}

	ui := r.UI
	if ui == nil {
		ui = prompt.Terminal{}
	}
	return prompt.Ask(ui, sel)
}

func pluralButtons(n int) string {
	if n == 1 {
		return "button"
	}
	return "buttons"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r Runner) commandHunt(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	sel, err := r.selection(parsed, cfg)
	if errors.Is(err, prompt.ErrCanceled) {
		fmt.Fprintln(r.Stderr, "canceled")
		return exitInterrupted
	}
	if err != nil {
		return r.fail(logger, "hunt setup failed", err)
	}

	logger, runID := logging.WithRun(logger)
	huntCfg := hunt.Config{
		RunID:       runID,
		Generation:  sel.Generation,
		Type:        sel.HuntType,
		ExtraWait:   sel.ExtraWait,
		RescueAfter: ms(cfg.Timings.RescueAfterMS),
	}
	if err := huntCfg.Validate(); err != nil {
		return r.fail(logger, "hunt setup failed", err)
	}
	if missing := config.MissingPins(cfg.GPIO, huntCfg.Buttons()); len(missing) > 0 {
		err := fmt.Errorf("gpio.pins has no line for %s (needed by %s): %s",
			pluralButtons(len(missing)), huntCfg.Type, strings.Join(missing, ", "))
		return r.fail(logger, "hunt setup failed", err)
	}

	socketPath, err := ipc.SocketPath()
	if err != nil {
		return r.fail(logger, "hunt setup failed", err)
	}
	listener, err := ipc.Listen(ctx, socketPath, controlTimeout)
	if err != nil {
		return r.fail(logger, "hunt setup failed", err)
	}
	defer listener.Close()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		exporter := metrics.NewExporter(cfg.Metrics.Listen, m.Registry())
		if err := exporter.Start(); err != nil {
			return r.fail(logger, "metrics exporter failed", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = exporter.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics exporter listening", "addr", exporter.Addr())
	}

	det, warnings, err := r.buildDetector(cfg, sel.Generation, logger, m)
	for _, w := range warnings {
		r.warn(logger, w)
	}
	if err != nil {
		return r.fail(logger, "detector setup failed", err)
	}
	defer func() { _ = det.Stop() }()

	actuator, err := buttons.New(buttons.Config{
		Chip:      cfg.GPIO.Chip,
		Pins:      cfg.GPIO.Pins,
		PressTime: ms(cfg.Timings.PressMS),
	}, r.Lines, logger)
	if err != nil {
		return r.fail(logger, "gpio setup failed", err)
	}
	defer func() {
		if err := actuator.Close(); err != nil {
			logger.Warn("release gpio lines failed", "error", err.Error())
		}
	}()

	notifier, notifyWarnings := buildNotifier(cfg.Notify, logger)
	defer func() { _ = notifier.Close() }()
	for _, msg := range notifyWarnings {
		r.warn(logger, config.Warning{Message: msg})
	}

	ctrl, err := hunt.NewController(huntCfg, hunt.Dependencies{
		Detector: det,
		Moves:    moves.NewRunner(actuator),
		Notifier: notifier,
		Recorder: m,
		Logger:   logger,
		Out:      r.Stdout,
	})
	if err != nil {
		return r.fail(logger, "hunt setup failed", err)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErr := make(chan error, 1)
	go func() { serverErr <- ipc.Serve(serverCtx, listener, ctrl, logger) }()

	fmt.Fprintf(r.Stdout, "Hunting: %s, generation %s (run %s)\n", sel.HuntType, sel.Generation, runID)
	result := ctrl.Run(ctx)

	serverCancel()
	if err := <-serverErr; err != nil {
		logger.Warn("control socket failed", "error", err.Error())
	}

	logHuntResult(logger, result)
	switch {
	case result.Found:
		return 0
	case result.Stopped:
		fmt.Fprintf(r.Stdout, "Stopped after %d encounters\n", result.Encounters)
		return 0
	case errors.Is(result.Err, context.Canceled):
		fmt.Fprintf(r.Stdout, "Interrupted after %d encounters\n", result.Encounters)
		return exitInterrupted
	default:
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
}

func logHuntResult(logger *slog.Logger, result hunt.Result) {
	fields := []any{
		"state", string(result.State),
		"found", result.Found,
		"stopped", result.Stopped,
		"encounters", result.Encounters,
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}
	if result.Err != nil {
		logger.Error("hunt failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("hunt complete", fields...)
}
