package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rbright/shinyhunt/internal/buttons"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch strings.ToLower(cfg.Audio.Backend) {
	case "pulse", "portaudio":
	default:
		return nil, fmt.Errorf("audio.backend must be one of: pulse, portaudio")
	}
	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.StallTimeoutMS < 0 {
		return nil, fmt.Errorf("audio.stall_timeout_ms must be >= 0")
	}
	if strings.TrimSpace(cfg.Assets.Dir) == "" {
		return nil, fmt.Errorf("assets.dir must not be empty")
	}

	if cfg.Thresholds.Battle <= 0 {
		return nil, fmt.Errorf("thresholds.battle must be > 0")
	}
	for gen, value := range cfg.Thresholds.Shiny {
		if !slices.Contains(Generations, gen) {
			return nil, fmt.Errorf("thresholds.shiny has unsupported generation %q", gen)
		}
		if value <= 0 {
			return nil, fmt.Errorf("thresholds.shiny.%s must be > 0", gen)
		}
	}

	if cfg.Timings.PressMS <= 0 {
		return nil, fmt.Errorf("timings.press_ms must be > 0")
	}
	if cfg.Timings.ExtraWaitMS < 0 {
		return nil, fmt.Errorf("timings.extra_wait_ms must be >= 0")
	}
	if cfg.Timings.RescueAfterMS <= 0 {
		return nil, fmt.Errorf("timings.rescue_after_ms must be > 0")
	}

	pinWarnings, err := validatePins(cfg.GPIO)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, pinWarnings...)

	n := cfg.Notify
	if n.Pushover.Enable && !credentialSet(n.Pushover.UserKey, n.Pushover.APIToken) {
		warnings = append(warnings, Warning{Message: "notify.pushover is enabled but credentials are unset; Pushover alerts will be skipped"})
	}
	if n.MQTT.Enable {
		if n.MQTT.Broker == "" {
			return nil, fmt.Errorf("notify.mqtt.broker must not be empty when notify.mqtt.enable=true")
		}
		if n.MQTT.Topic == "" {
			return nil, fmt.Errorf("notify.mqtt.topic must not be empty when notify.mqtt.enable=true")
		}
	}
	if n.Desktop.Enable && n.Desktop.AppName == "" {
		return nil, fmt.Errorf("notify.desktop.app_name must not be empty when notify.desktop.enable=true")
	}
	if n.Command.Enable && len(n.Command.Argv) == 0 {
		return nil, fmt.Errorf("notify.command.run must not be empty when notify.command.enable=true")
	}

	if cfg.Metrics.Listen != "" && !strings.Contains(cfg.Metrics.Listen, ":") {
		return nil, fmt.Errorf("metrics.listen must be host:port (got %q)", cfg.Metrics.Listen)
	}

	if cfg.Hunt.Generation != "" && !slices.Contains(Generations, cfg.Hunt.Generation) {
		return nil, fmt.Errorf("hunt.generation must be one of: %s", strings.Join(Generations, ", "))
	}
	if cfg.Hunt.Type != "" && !slices.Contains(HuntTypes, cfg.Hunt.Type) {
		return nil, fmt.Errorf("hunt.type must be one of: %s", strings.Join(HuntTypes, ", "))
	}

	return warnings, nil
}

func validatePins(gpio GPIOConfig) ([]Warning, error) {
	if strings.TrimSpace(gpio.Chip) == "" {
		return nil, fmt.Errorf("gpio.chip must not be empty")
	}

	owner := make(map[int]string, len(gpio.Pins))
	names := make([]string, 0, len(gpio.Pins))
	for name := range gpio.Pins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		offset := gpio.Pins[name]
		if !slices.Contains(buttons.Names, name) {
			return nil, fmt.Errorf("gpio.pins has unknown button %q", name)
		}
		if offset < 0 {
			return nil, fmt.Errorf("gpio.pins.%s must be >= 0", name)
		}
		if other, taken := owner[offset]; taken {
			return nil, fmt.Errorf("gpio.pins.%s reuses line %d already assigned to %s", name, offset, other)
		}
		owner[offset] = name
	}

	return nil, nil
}

// MissingButtons lists known buttons without a configured line offset.
func MissingButtons(gpio GPIOConfig) []string {
	return MissingPins(gpio, buttons.Names)
}

// MissingPins lists the names, in order, that have no line offset.
func MissingPins(gpio GPIOConfig, names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := gpio.Pins[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func credentialSet(values ...string) bool {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || strings.HasPrefix(v, "YOUR_") {
			return false
		}
	}
	return true
}
