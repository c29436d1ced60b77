// Package audio handles device discovery, selection, and fixed-block input streams.
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// PulseOpener records from a PulseAudio/PipeWire source.
type PulseOpener struct{}

// pulseStream delivers fixed-size float blocks from one Pulse record stream.
type pulseStream struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	onBlock BlockFunc
	stopCh  chan struct{}

	mu        sync.Mutex
	rechunker *Rechunker
	carry     []byte
	stopped   bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// Open selects the configured source and starts a mono s16 record stream.
// onBlock is invoked synchronously from the record writer with BlockSize samples each time.
func (PulseOpener) Open(ctx context.Context, cfg StreamConfig, onBlock BlockFunc) (Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	selection, err := SelectDevice(ctx, cfg.Device, cfg.Fallback)
	if err != nil {
		return nil, err
	}
	cfg.warn(selection.Warning)

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	s := newPulseStream(selection.Device, cfg.BlockSize, onBlock)
	s.client = client

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes(cfg.SampleRate)),
		pulse.RecordMediaName("shinyhunt cue detector"),
	)
	if err != nil {
		_ = s.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	s.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.stopCh:
		}
	}()

	return s, nil
}

func newPulseStream(device Device, blockSize int, onBlock BlockFunc) *pulseStream {
	return &pulseStream{
		device:    device,
		onBlock:   onBlock,
		stopCh:    make(chan struct{}),
		rechunker: NewRechunker(blockSize),
	}
}

// fragmentBytes sizes Pulse fragments at 20ms of mono s16.
func fragmentBytes(sampleRate int) uint32 {
	frames := sampleRate / 50
	if frames < 1 {
		frames = 1
	}
	return uint32(frames * 2)
}

// Device returns the selected source.
func (s *pulseStream) Device() Device {
	return s.device
}

// BytesCaptured reports total bytes accepted from Pulse.
func (s *pulseStream) BytesCaptured() int64 {
	return s.bytes.Load()
}

// Stop halts and releases the record stream. Safe to call more than once.
func (s *pulseStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
	}
	if s.client != nil {
		s.client.Close()
	}

	s.inflight.Wait()
	return nil
}

// onPCM decodes s16le frames and forwards completed blocks to onBlock.
func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as s.stopped to avoid Add/Wait races.
	s.inflight.Add(1)
	defer s.inflight.Done()
	defer s.mu.Unlock()

	s.bytes.Add(int64(len(buffer)))

	data := buffer
	if len(s.carry) > 0 {
		data = append(s.carry, buffer...)
		s.carry = nil
	}
	if len(data)%2 == 1 {
		s.carry = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}

	s.rechunker.Push(decodeS16LE(data), s.onBlock)
	return len(buffer), nil
}

// decodeS16LE converts little-endian signed 16-bit PCM to floats in [-1, 1).
func decodeS16LE(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("shinyhunt"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
