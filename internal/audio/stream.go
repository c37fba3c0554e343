// Package audio owns the bot's voice connections and plays decoded audio
// into them, one playback per guild.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Channels   = 2
	SampleRate = 48000
	FrameSize  = 960 // 20ms at 48kHz

	maxOpusFrame = FrameSize * Channels * 2
)

// Encoder turns one PCM frame into an opus packet. *gopus.Encoder
// satisfies it.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// Stream encodes s16le stereo PCM from pcm and sends each opus packet to
// send until the input ends or ctx is done. A short trailing frame is
// dropped.
func Stream(ctx context.Context, pcm io.Reader, enc Encoder, send chan<- []byte) error {
	pcmBuf := make([]byte, FrameSize*Channels*2)
	intBuf := make([]int16, FrameSize*Channels)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := io.ReadFull(pcm, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		packet, err := enc.Encode(intBuf, FrameSize, maxOpusFrame)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		select {
		case send <- packet:
		case <-ctx.Done():
			return nil
		}
	}
}
