// Package app dispatches shinyhunt commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/shinyhunt/internal/audio"
	"github.com/rbright/shinyhunt/internal/buttons"
	"github.com/rbright/shinyhunt/internal/cli"
	"github.com/rbright/shinyhunt/internal/config"
	"github.com/rbright/shinyhunt/internal/doctor"
	"github.com/rbright/shinyhunt/internal/ipc"
	"github.com/rbright/shinyhunt/internal/logging"
	"github.com/rbright/shinyhunt/internal/prompt"
	"github.com/rbright/shinyhunt/internal/version"
)

const controlTimeout = 500 * time.Millisecond

// Runner executes one command. Zero-valued hardware fields use the configured backends.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Opener audio.Opener
	Lines  buttons.LineOpener
	UI     prompt.UI
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("shinyhunt"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("shinyhunt"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	loaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range loaded.Warnings {
		r.warn(logger, w)
	}

	logger.Info("command start",
		"command", string(parsed.Command),
		"config", loaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, loaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.commandStop(ctx)
	case cli.CommandListen:
		return r.commandListen(ctx, parsed, loaded.Config, logger)
	case cli.CommandHunt:
		return r.commandHunt(ctx, parsed, loaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) warn(logger *slog.Logger, w config.Warning) {
	msg := w.Message
	if w.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
	logger.Warn("config warning", "line", w.Line, "message", w.Message)
}

func (r Runner) fail(logger *slog.Logger, msg string, err error) int {
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	logger.Error(msg, "error", err.Error())
	return 1
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio input devices found")
		return 1
	}

	for _, device := range devices {
		mark := " "
		if device.Default {
			mark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s %s\n    %s (state=%s, available=%t, muted=%t)\n",
			mark, device.ID, device.Description, device.State, device.Available, device.Muted)
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, err := ipc.Call(ctx, socketPath, "status", controlTimeout)
	if ipc.NotRunning(err) {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !resp.OK {
		fmt.Fprintf(r.Stderr, "error: %s\n", resp.Error)
		return 1
	}
	fmt.Fprintf(r.Stdout, "%s, %d encounters (%s)\n", resp.State, resp.Encounters, resp.Message)
	return 0
}

func (r Runner) commandStop(ctx context.Context) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, err := ipc.Call(ctx, socketPath, "stop", controlTimeout)
	if ipc.NotRunning(err) {
		fmt.Fprintln(r.Stderr, "error: no running hunt")
		return 1
	}
	if err == nil && !resp.OK {
		err = errors.New(resp.Error)
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, resp.Message)
	return 0
}
