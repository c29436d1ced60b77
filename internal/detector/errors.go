package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrSampleRateMismatch indicates a reference clip was recorded at a rate other than the stream rate.
	ErrSampleRateMismatch = errors.New("template sample rate does not match stream sample rate")
	// ErrSilentTemplate indicates a reference clip has zero peak amplitude.
	ErrSilentTemplate = errors.New("template is silent (zero peak amplitude)")
	// ErrUnknownGeneration indicates no reference clips exist for the requested generation.
	ErrUnknownGeneration = errors.New("unknown generation")
	// ErrStreamStalled indicates the input device stopped delivering blocks while running.
	ErrStreamStalled = errors.New("audio stream stalled")
)

// ConfigurationError reports a detector setup problem that prevents the stream from starting.
type ConfigurationError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("detector configuration: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("detector configuration: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DeviceError reports an audio input device that failed to open or dropped while running.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %q: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
