//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// portAudioOpener records through PortAudio (ALSA/CoreAudio/WASAPI).
type portAudioOpener struct{}

func newPortAudioOpener() (Opener, error) {
	return portAudioOpener{}, nil
}

type portAudioStream struct {
	stream *portaudio.Stream

	mu      sync.Mutex
	stopped bool
}

func (portAudioOpener) Open(ctx context.Context, cfg StreamConfig, onBlock BlockFunc) (Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	device, warning, err := portAudioInputDevice(cfg.Device, cfg.Fallback)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	cfg.warn(warning)

	rechunker := NewRechunker(cfg.BlockSize)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BlockSize,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		rechunker.Push(in, onBlock)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open portaudio stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start portaudio stream: %w", err)
	}

	s := &portAudioStream{stream: stream}
	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
	return s, nil
}

func (s *portAudioStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	portaudio.Terminate()
	return errors.Join(stopErr, closeErr)
}

// portAudioInputDevice resolves input, then fallback, among devices with input channels.
func portAudioInputDevice(input, fallback string) (*portaudio.DeviceInfo, string, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, "", fmt.Errorf("list portaudio devices: %w", err)
	}
	var def *portaudio.DeviceInfo
	if d, err := portaudio.DefaultInputDevice(); err == nil {
		def = d
	}

	var (
		inputs     []*portaudio.DeviceInfo
		names      []string
		defaultIdx = -1
	)
	for _, device := range all {
		if device.MaxInputChannels <= 0 {
			continue
		}
		if def != nil && device.Name == def.Name {
			defaultIdx = len(inputs)
		}
		inputs = append(inputs, device)
		names = append(names, device.Name)
	}

	idx, warning, err := pickByName(names, defaultIdx, input, fallback)
	if err != nil {
		return nil, "", err
	}
	return inputs[idx], warning, nil
}
