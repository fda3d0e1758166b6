package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"go.uber.org/zap"
)

// Decoder streams frames out of a container as raw RGBA through an ffmpeg pipe.
type Decoder struct {
	ffmpeg string
	prober port.MediaProber
	logger *zap.Logger
}

func NewDecoder(ffmpegBin string, prober port.MediaProber, logger *zap.Logger) *Decoder {
	return &Decoder{ffmpeg: ffmpegBin, prober: prober, logger: logger}
}

func (d *Decoder) Open(ctx context.Context, path string) (port.FrameSource, error) {
	info, err := d.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe input: %w", err)
	}
	if !info.HasVideo {
		return nil, ErrNoVideoStream
	}
	if info.Video.Width <= 0 || info.Video.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", info.Video.Width, info.Video.Height)
	}

	cmd := exec.CommandContext(ctx, d.ffmpeg, decodeArgs(path)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg decoder: %w", err)
	}

	d.logger.Debug("decoder started", zap.String("path", path), zap.Int("expected_frames", info.FrameCount))

	return &frameReader{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		info:   info.Video,
		frame:  image.NewRGBA(image.Rect(0, 0, info.Video.Width, info.Video.Height)),
	}, nil
}

func decodeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		// keep the stored orientation so frames match the probed size
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-vsync", "0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}

type frameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	info   entity.VideoInfo
	frame  *image.RGBA
	done   bool
	err    error
}

func (r *frameReader) Info() entity.VideoInfo { return r.info }

func (r *frameReader) Next() (*image.RGBA, error) {
	if r.done {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}

	_, err := io.ReadFull(r.stdout, r.frame.Pix)
	switch {
	case err == nil:
		return r.frame, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if werr := r.finish(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	default:
		r.finish()
		r.err = fmt.Errorf("read frame: %w", err)
		return nil, r.err
	}
}

func (r *frameReader) finish() error {
	r.done = true
	if err := r.cmd.Wait(); err != nil {
		r.err = fmt.Errorf("ffmpeg decode: %w, output: %s", err, r.stderr.String())
	}
	return r.err
}

// Close stops the decoder. Closing before the stream is exhausted kills ffmpeg.
func (r *frameReader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	return nil
}
