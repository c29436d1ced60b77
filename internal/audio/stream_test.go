package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRechunkerEmitsExactBlocks(t *testing.T) {
	r := NewRechunker(4)
	var blocks [][]float32
	emit := func(b []float32) { blocks = append(blocks, b) }

	r.Push([]float32{1, 2, 3}, emit)
	require.Empty(t, blocks)
	require.Equal(t, 3, r.Pending())

	r.Push([]float32{4, 5, 6, 7, 8, 9, 10}, emit)
	require.Equal(t, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}, blocks)
	require.Equal(t, 2, r.Pending())
}

func TestRechunkerBlocksAreIndependent(t *testing.T) {
	r := NewRechunker(2)
	var blocks [][]float32
	r.Push([]float32{1, 2, 3, 4}, func(b []float32) { blocks = append(blocks, b) })

	blocks[0][0] = 99
	require.Equal(t, []float32{3, 4}, blocks[1])
}

func TestOpenerFor(t *testing.T) {
	opener, err := OpenerFor("")
	require.NoError(t, err)
	require.IsType(t, PulseOpener{}, opener)

	opener, err = OpenerFor(" Pulse ")
	require.NoError(t, err)
	require.IsType(t, PulseOpener{}, opener)

	_, err = OpenerFor("jack")
	require.ErrorContains(t, err, "unknown audio backend")
}

func TestOpenerFuncDelegates(t *testing.T) {
	called := false
	opener := OpenerFunc(func(_ context.Context, cfg StreamConfig, _ BlockFunc) (Stream, error) {
		called = true
		require.Equal(t, 10, cfg.BlockSize)
		return nil, nil
	})
	_, err := opener.Open(context.Background(), StreamConfig{BlockSize: 10}, nil)
	require.NoError(t, err)
	require.True(t, called)
}

func TestPickByName(t *testing.T) {
	names := []string{"HDA Intel PCH: ALC892 Analog (hw:0,0)", "USB Capture HDMI: Audio (hw:2,0)"}

	tests := []struct {
		name        string
		defaultIdx  int
		input       string
		fallback    string
		want        int
		wantWarning string
		wantErr     string
	}{
		{name: "named input", defaultIdx: 0, input: "hw:2,0", fallback: "default", want: 1},
		{name: "default input", defaultIdx: 0, input: " Default ", want: 0},
		{name: "missing input warns and uses fallback", defaultIdx: 0, input: "hw:3,0", fallback: "default", want: 0, wantWarning: `audio.input "hw:3,0" did not match any input device; falling back to "HDA Intel PCH`},
		{name: "missing input with named fallback", defaultIdx: -1, input: "hw:3,0", fallback: "usb capture", want: 1, wantWarning: "falling back"},
		{name: "both missing", defaultIdx: 0, input: "hw:3,0", fallback: "nowhere", wantErr: `fallback "nowhere" did not match`},
		{name: "no default device", defaultIdx: -1, input: "default", fallback: "", wantErr: "default input device is unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idx, warning, err := pickByName(names, tc.defaultIdx, tc.input, tc.fallback)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, idx)
			if tc.wantWarning == "" {
				require.Empty(t, warning)
			} else {
				require.Contains(t, warning, tc.wantWarning)
			}
		})
	}
}

func TestStreamConfigWarn(t *testing.T) {
	var got []string
	cfg := StreamConfig{Warn: func(msg string) { got = append(got, msg) }}
	cfg.warn("")
	cfg.warn("falling back")
	require.Equal(t, []string{"falling back"}, got)

	require.NotPanics(t, func() { StreamConfig{}.warn("nobody listening") })
}
