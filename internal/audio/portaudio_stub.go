//go:build !portaudio

package audio

import "errors"

// ErrPortAudioUnavailable is returned when the binary was built without the portaudio tag.
var ErrPortAudioUnavailable = errors.New("portaudio backend not compiled in (rebuild with -tags portaudio)")

func newPortAudioOpener() (Opener, error) {
	return nil, ErrPortAudioUnavailable
}
