package notify

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfreymuth/pulse"
)

const chimeSampleRate = 22050

type tone struct {
	hz       float64
	duration time.Duration
	volume   float64
}

// shinyFanfare is a rising arpeggio, loud enough to hear across a room.
var shinyFanfare = synthesize([]tone{
	{hz: 784, duration: 110 * time.Millisecond, volume: 0.3},
	{hz: 988, duration: 110 * time.Millisecond, volume: 0.3},
	{hz: 1175, duration: 110 * time.Millisecond, volume: 0.3},
	{hz: 1568, duration: 320 * time.Millisecond, volume: 0.3},
})

// Chime plays a sound on the local output when a shiny is found.
// A configured sound file is played with pw-play; otherwise a synthesized fanfare
// goes straight to the pulse server.
type Chime struct {
	file     string
	playFile func(ctx context.Context, path string) error
	playPCM  func(ctx context.Context, samples []int16) error
}

// NewChime builds a chime channel. file may be empty or start with ~/.
func NewChime(file string) *Chime {
	return &Chime{file: expandHome(file), playFile: playSoundFile, playPCM: playPulse}
}

func (c *Chime) Notify(ctx context.Context, event Event) error {
	if event.Kind != KindShiny {
		return nil
	}
	if c.file != "" {
		err := c.playFile(ctx, c.file)
		if err == nil {
			return nil
		}
		if pcmErr := c.playPCM(ctx, shinyFanfare); pcmErr != nil {
			return fmt.Errorf("%w; fallback fanfare: %v", err, pcmErr)
		}
		return nil
	}
	return c.playPCM(ctx, shinyFanfare)
}

func expandHome(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

func playSoundFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat chime file %q: %w", path, err)
	}
	if err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).Run(); err != nil {
		return fmt.Errorf("play chime file %q: %w", path, err)
	}
	return nil
}

func playPulse(ctx context.Context, samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("shinyhunt"),
		pulse.ClientApplicationIconName("starred"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(chimeSampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName("shinyhunt chime"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play chime: %w", err)
	}
	return nil
}

func synthesize(tones []tone) []int16 {
	gap := samplesFor(25 * time.Millisecond)
	var pcm []int16
	for i, t := range tones {
		pcm = append(pcm, synthesizeTone(t)...)
		if i < len(tones)-1 {
			pcm = append(pcm, make([]int16, gap)...)
		}
	}
	return pcm
}

// synthesizeTone shapes a sine with a short linear attack and release to avoid clicks.
func synthesizeTone(t tone) []int16 {
	n := samplesFor(t.duration)
	if n <= 0 || t.hz <= 0 || t.volume <= 0 {
		return nil
	}

	ramp := min(max(n/10, 1), chimeSampleRate/200)
	pcm := make([]int16, n)
	for i := range pcm {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = math.Min(envelope, float64(tail)/float64(ramp))
		}
		sample := math.Sin(2 * math.Pi * t.hz * float64(i) / chimeSampleRate)
		pcm[i] = int16(math.Round(sample * t.volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * chimeSampleRate))
}
