package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"go.uber.org/zap"
)

const fallbackFrameRate = "25"

// Encoder writes raw RGBA frames into a new container through an ffmpeg pipe.
type Encoder struct {
	ffmpeg string
	codec  string
	logger *zap.Logger
}

func NewEncoder(ffmpegBin, codec string, logger *zap.Logger) *Encoder {
	return &Encoder{ffmpeg: ffmpegBin, codec: codec, logger: logger}
}

func (e *Encoder) Create(ctx context.Context, path string, info entity.VideoInfo) (port.FrameSink, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", info.Width, info.Height)
	}

	rate := info.FrameRate
	if parseRate(rate) <= 0 {
		rate = strconv.FormatFloat(info.FPS, 'f', -1, 64)
		if info.FPS <= 0 {
			e.logger.Warn("source frame rate unknown, encoding at fallback rate", zap.String("rate", fallbackFrameRate))
			rate = fallbackFrameRate
		}
	}

	cmd := exec.CommandContext(ctx, e.ffmpeg, encodeArgs(path, info.Width, info.Height, rate, e.codec)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg encoder: %w", err)
	}

	return &frameWriter{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		width:  info.Width,
		height: info.Height,
	}, nil
}

func encodeArgs(path string, width, height int, rate, codec string) []string {
	return []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", rate,
		"-i", "pipe:0",
		"-an",
		"-c:v", codec,
		"-pix_fmt", pixelFormat(codec, width, height),
		"-movflags", "+faststart",
		path,
	}
}

// pixelFormat picks 4:2:0 chroma when the frame size allows it. The x264 and
// x265 encoders refuse 4:2:0 for odd dimensions, so those sizes keep full
// chroma.
func pixelFormat(codec string, width, height int) string {
	if width%2 == 0 && height%2 == 0 {
		return "yuv420p"
	}
	switch codec {
	case "libx264", "libx265":
		return "yuv444p"
	}
	return "yuv420p"
}

type frameWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	width  int
	height int
	closed bool
}

func (w *frameWriter) WriteFrame(frame *image.RGBA) error {
	b := frame.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("frame size %dx%d does not match output %dx%d", b.Dx(), b.Dy(), w.width, w.height)
	}

	rowBytes := w.width * 4
	if frame.Stride == rowBytes {
		start := frame.PixOffset(b.Min.X, b.Min.Y)
		if _, err := w.stdin.Write(frame.Pix[start : start+rowBytes*w.height]); err != nil {
			return fmt.Errorf("write frame: %w, output: %s", err, w.stderr.String())
		}
		return nil
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := frame.PixOffset(b.Min.X, y)
		if _, err := w.stdin.Write(frame.Pix[start : start+rowBytes]); err != nil {
			return fmt.Errorf("write frame: %w, output: %s", err, w.stderr.String())
		}
	}
	return nil
}

// Close flushes the pipe and waits for ffmpeg to finalize the container.
func (w *frameWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.stdin.Close(); err != nil {
		_ = w.cmd.Wait()
		return fmt.Errorf("close encoder input: %w", err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w, output: %s", err, w.stderr.String())
	}
	return nil
}
