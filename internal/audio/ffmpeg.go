package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// Decoder opens input (a URL or file path) as s16le stereo PCM at
// SampleRate. Cancelling ctx ends the stream.
type Decoder interface {
	Decode(ctx context.Context, input string) (io.ReadCloser, error)
}

// FFmpeg decodes through an ffmpeg subprocess.
type FFmpeg struct {
	// Path defaults to "ffmpeg" on PATH.
	Path string
}

type ffmpegStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *ffmpegStream) Close() error {
	_ = s.ReadCloser.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

func (f FFmpeg) Decode(ctx context.Context, input string) (io.ReadCloser, error) {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, path,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", input,
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("command start error: %w", err)
	}
	return &ffmpegStream{ReadCloser: reader, cmd: cmd}, nil
}
