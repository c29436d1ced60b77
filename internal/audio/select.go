package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// unusable reports why a device cannot record, or "" when it can.
func (d Device) unusable() string {
	switch {
	case d.Muted:
		return "muted"
	case !d.Available:
		return "unavailable"
	default:
		return ""
	}
}

// Selection is the resolved capture source. Warning is set when the configured input was
// skipped in favor of the fallback.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// SelectDevice resolves audio.input and audio.fallback against the live source list.
func SelectDevice(ctx context.Context, input, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList picks the input source: the named (or default) input when it can record,
// otherwise the named (or default) fallback with a warning.
func selectDeviceFromList(devices []Device, input, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	primary, err := resolveDevice(devices, input)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input %w", err)
	}
	reason := primary.unusable()
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	backup, err := resolveDevice(devices, fallback)
	if err != nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and fallback %w", primary.ID, reason, err)
	}
	if why := backup.unusable(); why != "" {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", backup.ID, why)
	}

	return Selection{
		Device:   backup,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, backup.ID),
		Fallback: backup.ID != primary.ID,
	}, nil
}

// resolveDevice returns the first device matching term, or the default source for "" and "default".
func resolveDevice(devices []Device, term string) (Device, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || term == "default" {
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		return Device{}, errors.New("default source is unavailable")
	}

	for _, d := range devices {
		if deviceMatches(d, term) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%q did not match any device", term)
}

// deviceMatches is a case-insensitive substring match on id or description. term must be lowercase.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}
