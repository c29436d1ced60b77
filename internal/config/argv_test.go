package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "blank", raw: "   ", want: nil},
		{name: "plain words", raw: "notify-send shiny", want: []string{"notify-send", "shiny"}},
		{name: "double quotes", raw: `say "shiny found"`, want: []string{"say", "shiny found"}},
		{name: "single quotes keep backslash", raw: `echo 'a\b'`, want: []string{"echo", `a\b`}},
		{name: "escaped space", raw: `play my\ clip.wav`, want: []string{"play", "my clip.wav"}},
		{name: "empty quoted word", raw: `cmd ""`, want: []string{"cmd", ""}},
		{name: "collapses whitespace", raw: "a \t  b", want: []string{"a", "b"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := splitCommand(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSplitCommandErrors(t *testing.T) {
	_, err := splitCommand(`say "unterminated`)
	require.ErrorContains(t, err, "unterminated")

	_, err = splitCommand(`say trailing\`)
	require.ErrorContains(t, err, "trailing backslash")
}
