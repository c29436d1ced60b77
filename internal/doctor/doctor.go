// Package doctor checks that a host is ready to hunt: config, reference clips, audio, GPIO,
// and notification channels.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/rbright/shinyhunt/internal/audio"
	"github.com/rbright/shinyhunt/internal/buttons"
	"github.com/rbright/shinyhunt/internal/config"
	"github.com/rbright/shinyhunt/internal/detector"
	"github.com/rbright/shinyhunt/internal/notify"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders one "[OK] name: message" line per check.
func (r Report) String() string {
	lines := make([]string, 0, len(r.Checks))
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", status, check.Name, check.Message))
	}
	return strings.Join(lines, "\n")
}

// probes are the host-touching calls, swapped out in tests.
type probes struct {
	selectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error)
	opener       func(backend string) (audio.Opener, error)
	probeChip    func(chip string) (buttons.ChipInfo, error)
	lookPath     func(bin string) (string, error)
}

var hostProbes = probes{
	selectDevice: audio.SelectDevice,
	opener:       audio.OpenerFor,
	probeChip:    buttons.ProbeChip,
	lookPath:     exec.LookPath,
}

// Run executes every check for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	return run(ctx, loaded, hostProbes)
}

func run(ctx context.Context, loaded config.Loaded, p probes) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}
	checks = append(checks, checkTemplates(cfg)...)
	checks = append(checks, checkAudio(ctx, cfg, p))
	checks = append(checks, checkGPIO(cfg.GPIO, p))
	checks = append(checks, checkNotify(cfg.Notify, p)...)
	if cfg.Metrics.Listen != "" {
		checks = append(checks, checkListen(cfg.Metrics.Listen))
	}
	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", loaded.Path)}
}

// checkTemplates loads the configured generation's clips, or every generation when none is set.
func checkTemplates(cfg config.Config) []Check {
	generations := config.Generations
	if cfg.Hunt.Generation != "" {
		generations = []string{cfg.Hunt.Generation}
	}

	checks := make([]Check, 0, len(generations))
	for _, gen := range generations {
		name := "templates.gen" + gen
		shiny, battle, err := detector.LoadTemplates(cfg.Assets.Dir, gen, cfg.Audio.SampleRate)
		if err != nil {
			checks = append(checks, Check{Name: name, Pass: false, Message: err.Error()})
			continue
		}
		threshold, _ := cfg.ShinyThreshold(gen)
		checks = append(checks, Check{
			Name: name,
			Pass: true,
			Message: fmt.Sprintf("shiny %.2fs (threshold %g), battle %.2fs (threshold %g)",
				shiny.Duration(), threshold, battle.Duration(), cfg.Thresholds.Battle),
		})
	}
	return checks
}

func checkAudio(ctx context.Context, cfg config.Config, p probes) Check {
	if _, err := p.opener(cfg.Audio.Backend); err != nil {
		return Check{Name: "audio.backend", Pass: false, Message: err.Error()}
	}
	if cfg.Audio.Backend == audio.BackendPortAudio {
		return Check{Name: "audio.backend", Pass: true, Message: fmt.Sprintf("portaudio input %q", cfg.Audio.Input)}
	}

	selection, err := p.selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message += " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkGPIO(gpio config.GPIOConfig, p probes) Check {
	info, err := p.probeChip(gpio.Chip)
	if err != nil {
		return Check{Name: "gpio", Pass: false, Message: err.Error()}
	}
	if missing := config.MissingButtons(gpio); len(missing) > 0 {
		return Check{Name: "gpio", Pass: false, Message: "no line configured for " + strings.Join(missing, ", ")}
	}
	for name, offset := range gpio.Pins {
		if offset >= info.Lines {
			return Check{Name: "gpio", Pass: false, Message: fmt.Sprintf("%s uses line %d but %s has %d lines", name, offset, info.Name, info.Lines)}
		}
	}
	return Check{Name: "gpio", Pass: true, Message: fmt.Sprintf("%s (%s) has %d lines; %d buttons mapped", info.Name, info.Label, info.Lines, len(gpio.Pins))}
}

func checkNotify(n config.NotifyConfig, p probes) []Check {
	var checks []Check
	if n.Pushover.Enable {
		if notify.PushoverConfigured(n.Pushover.UserKey, n.Pushover.APIToken) {
			checks = append(checks, Check{Name: "notify.pushover", Pass: true, Message: "credentials set"})
		} else {
			checks = append(checks, Check{Name: "notify.pushover", Pass: false, Message: "set PUSHOVER_USER_KEY and PUSHOVER_API_TOKEN"})
		}
	}
	if n.MQTT.Enable {
		checks = append(checks, Check{Name: "notify.mqtt", Pass: true, Message: fmt.Sprintf("publishing to %s under %s/", n.MQTT.Broker, n.MQTT.Topic)})
	}
	if n.Desktop.Enable {
		checks = append(checks, checkBinary(p, "notify.desktop", "busctl"))
	}
	if n.Chime.Enable {
		if n.Chime.File == "" {
			checks = append(checks, Check{Name: "notify.chime", Pass: true, Message: "built-in fanfare over pulse"})
		} else {
			checks = append(checks, checkBinary(p, "notify.chime", "pw-play"))
		}
	}
	if n.Command.Enable {
		if len(n.Command.Argv) == 0 {
			checks = append(checks, Check{Name: "notify.command", Pass: false, Message: "command is empty"})
		} else {
			checks = append(checks, checkBinary(p, "notify.command", n.Command.Argv[0]))
		}
	}
	if len(checks) == 0 {
		checks = append(checks, Check{Name: "notify", Pass: true, Message: "no channels enabled; results print to the terminal only"})
	}
	return checks
}

func checkBinary(p probes, name, bin string) Check {
	path, err := p.lookPath(bin)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: name, Pass: true, Message: "found " + path}
}

func checkListen(addr string) Check {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: "metrics.listen", Pass: false, Message: err.Error()}
	}
	_ = l.Close()
	return Check{Name: "metrics.listen", Pass: true, Message: addr + " is free"}
}
