package detector

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplateNormalizesToUnitPeak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shiny_gen_4.wav")
	writeWAV(t, path, 8000, 1, []int{0, 1000, -4000, 2000})

	tmpl, err := LoadTemplate(path, CueShiny, 8000)
	require.NoError(t, err)
	require.Equal(t, CueShiny, tmpl.Cue)
	require.Equal(t, path, tmpl.Path)
	require.Equal(t, 8000, tmpl.SampleRate)
	require.Equal(t, []float64{0, 0.25, -1, 0.5}, tmpl.Samples)
	require.InDelta(t, 0.0005, tmpl.Duration(), 1e-12)
}

func TestLoadTemplateAveragesChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battle_gen_5.wav")
	writeWAV(t, path, 8000, 2, []int{100, 300, -400, -400, 0, 0})

	tmpl, err := LoadTemplate(path, CueBattle, 8000)
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, -1, 0}, tmpl.Samples)
}

func TestLoadTemplateRejectsSampleRateMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shiny_gen_4.wav")
	writeWAV(t, path, 44100, 1, []int{1, 2, 3})

	_, err := LoadTemplate(path, CueShiny, 48000)
	require.ErrorIs(t, err, ErrSampleRateMismatch)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, path, cfgErr.Path)
}

func TestLoadTemplateRejectsSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shiny_gen_4.wav")
	writeWAV(t, path, 8000, 1, []int{0, 0, 0})

	_, err := LoadTemplate(path, CueShiny, 8000)
	require.ErrorIs(t, err, ErrSilentTemplate)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, path, cfgErr.Path)
}

func TestLoadTemplateRejectsMissingAndInvalidFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTemplate(filepath.Join(dir, "missing.wav"), CueShiny, 8000)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.True(t, errors.Is(err, os.ErrNotExist))

	bogus := filepath.Join(dir, "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("not a wav"), 0o600))
	_, err = LoadTemplate(bogus, CueShiny, 8000)
	require.ErrorContains(t, err, "not a valid WAV file")
}

func TestLoadTemplatesByGeneration(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, TemplatePath(dir, CueShiny, "5"), 8000, 1, []int{1, -2})
	writeWAV(t, TemplatePath(dir, CueBattle, "5"), 8000, 1, []int{4, 2, 1})

	shiny, battle, err := LoadTemplates(dir, "5", 8000)
	require.NoError(t, err)
	require.Equal(t, CueShiny, shiny.Cue)
	require.Equal(t, 2, shiny.Len())
	require.Equal(t, CueBattle, battle.Cue)
	require.Equal(t, 3, battle.Len())
	require.Equal(t, filepath.Join(dir, "battle_gen_5.wav"), battle.Path)

	_, _, err = LoadTemplates(dir, "9", 8000)
	require.ErrorIs(t, err, ErrUnknownGeneration)

	_, _, err = LoadTemplates(dir, "4", 8000)
	require.Error(t, err)
}

func TestNewTemplateRejectsEmpty(t *testing.T) {
	_, err := NewTemplate(CueShiny, nil, 1)
	require.ErrorContains(t, err, "no samples")
}

func TestTemplatePeakIsExactlyOne(t *testing.T) {
	tmpl, err := NewTemplate(CueShiny, chirp(333, 8000, 200, 900), 1)
	require.NoError(t, err)
	peak := 0.0
	for _, v := range tmpl.Samples {
		peak = math.Max(peak, math.Abs(v))
	}
	require.Equal(t, 1.0, peak)
}

func writeWAV(t *testing.T, path string, sampleRate, channels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}
