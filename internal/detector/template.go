package detector

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
)

// Cue identifies which game event a template or correlator listens for.
type Cue string

const (
	CueShiny  Cue = "shiny"
	CueBattle Cue = "battle"
)

var supportedGenerations = map[string]struct{}{
	"3": {},
	"4": {},
	"5": {},
}

// Template is an immutable mono reference clip normalized to unit peak amplitude.
type Template struct {
	Cue        Cue
	Path       string
	SampleRate int
	Samples    []float64
}

// Len returns the template length in samples.
func (t Template) Len() int {
	return len(t.Samples)
}

// Duration reports the clip length at its sample rate.
func (t Template) Duration() float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return float64(len(t.Samples)) / float64(t.SampleRate)
}

// TemplatePath returns the asset path for one (cue, generation) pair.
func TemplatePath(dir string, cue Cue, generation string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_gen_%s.wav", cue, generation))
}

// SupportedGeneration reports whether reference clips are defined for generation.
func SupportedGeneration(generation string) bool {
	_, ok := supportedGenerations[generation]
	return ok
}

// LoadTemplates loads the shiny and battle clips for one generation.
func LoadTemplates(dir string, generation string, sampleRate int) (Template, Template, error) {
	if !SupportedGeneration(generation) {
		return Template{}, Template{}, &ConfigurationError{
			Op:  "load templates",
			Err: fmt.Errorf("%w %q", ErrUnknownGeneration, generation),
		}
	}

	shiny, err := LoadTemplate(TemplatePath(dir, CueShiny, generation), CueShiny, sampleRate)
	if err != nil {
		return Template{}, Template{}, err
	}
	battle, err := LoadTemplate(TemplatePath(dir, CueBattle, generation), CueBattle, sampleRate)
	if err != nil {
		return Template{}, Template{}, err
	}
	return shiny, battle, nil
}

// LoadTemplate decodes a PCM WAV clip, downmixes it to mono, and normalizes it to unit peak.
func LoadTemplate(path string, cue Cue, sampleRate int) (Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return Template{}, &ConfigurationError{Op: "open template", Path: path, Err: err}
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Template{}, &ConfigurationError{Op: "decode template", Path: path, Err: errors.New("not a valid WAV file")}
	}
	// PCM (1) or WAVE_FORMAT_EXTENSIBLE (0xFFFE) carrying PCM.
	if decoder.WavAudioFormat != 1 && decoder.WavAudioFormat != 0xFFFE {
		return Template{}, &ConfigurationError{
			Op:   "decode template",
			Path: path,
			Err:  fmt.Errorf("unsupported WAV encoding %d (expected integer PCM)", decoder.WavAudioFormat),
		}
	}
	if int(decoder.SampleRate) != sampleRate {
		return Template{}, &ConfigurationError{
			Op:   "load template",
			Path: path,
			Err:  fmt.Errorf("%w: %d vs %d", ErrSampleRateMismatch, decoder.SampleRate, sampleRate),
		}
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Template{}, &ConfigurationError{Op: "decode template", Path: path, Err: err}
	}

	channels := int(decoder.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}

	interleaved := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float64(v)
	}

	tmpl, err := NewTemplate(cue, interleaved, channels)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return Template{}, err
	}
	tmpl.Path = path
	tmpl.SampleRate = sampleRate
	return tmpl, nil
}

// NewTemplate averages interleaved frames to mono and divides by the peak absolute sample.
func NewTemplate(cue Cue, interleaved []float64, channels int) (Template, error) {
	if channels <= 0 {
		channels = 1
	}
	frames := len(interleaved) / channels
	if frames == 0 {
		return Template{}, &ConfigurationError{Op: "build template", Err: errors.New("template has no samples")}
	}

	mono := make([]float64, frames)
	peak := 0.0
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
		if a := math.Abs(mono[i]); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		return Template{}, &ConfigurationError{Op: "normalize template", Err: ErrSilentTemplate}
	}
	for i := range mono {
		mono[i] /= peak
	}

	return Template{Cue: cue, Samples: mono}, nil
}
