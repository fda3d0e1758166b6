package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"go.uber.org/zap"
)

var ErrNoVideoStream = errors.New("no video stream in container")

type Prober struct {
	ffprobe string
	logger  *zap.Logger
}

func NewProber(ffprobeBin string, logger *zap.Logger) *Prober {
	return &Prober{ffprobe: ffprobeBin, logger: logger}
}

func (p *Prober) Probe(ctx context.Context, path string) (*entity.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, p.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w%s", err, exitDetail(err))
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("probed media",
		zap.String("path", path),
		zap.Int("width", info.Video.Width),
		zap.Int("height", info.Video.Height),
		zap.String("frame_rate", info.Video.FrameRate),
		zap.Float64("duration", info.Duration),
		zap.Bool("has_audio", info.HasAudio),
	)
	return info, nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

func parseProbeOutput(data []byte) (*entity.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &entity.MediaInfo{}
	var videoDuration float64
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Video.Width = s.Width
			info.Video.Height = s.Height
			info.Video.FrameRate, info.Video.FPS = pickFrameRate(s.AvgFrameRate, s.RFrameRate)
			info.FrameCount, _ = strconv.Atoi(s.NbFrames)
			videoDuration, _ = strconv.ParseFloat(s.Duration, 64)
		case "audio":
			info.HasAudio = true
		}
	}

	if d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		info.Duration = d
	} else {
		info.Duration = videoDuration
	}
	return info, nil
}

// pickFrameRate prefers the average rate and falls back to the base rate when
// the average is unset ("0/0").
func pickFrameRate(candidates ...string) (string, float64) {
	for _, c := range candidates {
		if fps := parseRate(c); fps > 0 {
			return c, fps
		}
	}
	return "", 0
}

// parseRate reads ffprobe rationals ("30000/1001") and plain decimals.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func exitDetail(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return ", output: " + strings.TrimSpace(string(exitErr.Stderr))
	}
	return ""
}

// CheckBinary verifies that bin can be executed.
func CheckBinary(ctx context.Context, bin string) error {
	if err := exec.CommandContext(ctx, bin, "-version").Run(); err != nil {
		return fmt.Errorf("%s unavailable: %w", bin, err)
	}
	return nil
}
