package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// StreamConfig describes one mono input stream delivering fixed-size float blocks.
type StreamConfig struct {
	Device     string
	Fallback   string
	SampleRate int
	BlockSize  int
	// Warn receives a message when the stream opens on the fallback instead of Device.
	Warn func(msg string)
}

func (c StreamConfig) warn(msg string) {
	if c.Warn != nil && msg != "" {
		c.Warn(msg)
	}
}

// BlockFunc receives one block of mono samples in [-1, 1].
// It runs on the backend's delivery goroutine and must not block.
type BlockFunc func(samples []float32)

// Stream is a running input stream.
type Stream interface {
	Stop() error
}

// Opener opens input streams for one audio backend.
type Opener interface {
	Open(ctx context.Context, cfg StreamConfig, onBlock BlockFunc) (Stream, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(context.Context, StreamConfig, BlockFunc) (Stream, error)

func (f OpenerFunc) Open(ctx context.Context, cfg StreamConfig, onBlock BlockFunc) (Stream, error) {
	return f(ctx, cfg, onBlock)
}

const (
	BackendPulse     = "pulse"
	BackendPortAudio = "portaudio"
)

// OpenerFor returns the stream opener for a configured backend name.
func OpenerFor(backend string) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendPulse:
		return PulseOpener{}, nil
	case BackendPortAudio:
		return newPortAudioOpener()
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

func (c StreamConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0")
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be > 0")
	}
	return nil
}

// pickByName resolves input, then fallback, against device names. "" and "default" pick
// defaultIdx; other terms are case-insensitive substrings. The warning is set when the
// fallback was used.
func pickByName(names []string, defaultIdx int, input, fallback string) (int, string, error) {
	pick := func(term string) (int, error) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || term == "default" {
			if defaultIdx < 0 || defaultIdx >= len(names) {
				return -1, errors.New("default input device is unavailable")
			}
			return defaultIdx, nil
		}
		for i, name := range names {
			if strings.Contains(strings.ToLower(name), term) {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%q did not match any input device", term)
	}

	idx, err := pick(input)
	if err == nil {
		return idx, "", nil
	}
	idx, fbErr := pick(fallback)
	if fbErr != nil {
		return -1, "", fmt.Errorf("audio.input %w; fallback %w", err, fbErr)
	}
	return idx, fmt.Sprintf("audio.input %v; falling back to %q", err, names[idx]), nil
}

// Rechunker turns arbitrary-length sample runs into exactly BlockSize-sample blocks.
type Rechunker struct {
	size    int
	pending []float32
}

// NewRechunker returns a rechunker for size-sample blocks.
func NewRechunker(size int) *Rechunker {
	return &Rechunker{size: size, pending: make([]float32, 0, size)}
}

// Push appends samples and calls emit for each completed block.
// Emitted slices are freshly allocated and owned by the callee.
func (r *Rechunker) Push(samples []float32, emit BlockFunc) {
	for len(samples) > 0 {
		need := r.size - len(r.pending)
		if need > len(samples) {
			need = len(samples)
		}
		r.pending = append(r.pending, samples[:need]...)
		samples = samples[need:]

		if len(r.pending) == r.size {
			block := make([]float32, r.size)
			copy(block, r.pending)
			r.pending = r.pending[:0]
			emit(block)
		}
	}
}

// Pending reports how many samples are buffered toward the next block.
func (r *Rechunker) Pending() int {
	return len(r.pending)
}
