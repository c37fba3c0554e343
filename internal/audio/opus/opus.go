// Package opus provides the libopus encoder used for voice playback.
package opus

import (
	"fmt"

	"github.com/keshon/warden/internal/audio"
	"layeh.com/gopus"
)

func NewEncoder() (audio.Encoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}
	return enc, nil
}
