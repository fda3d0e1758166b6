package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"go.uber.org/zap"
)

// AudioMuxer re-encodes a rendered video together with the audio track of
// another container.
type AudioMuxer struct {
	ffmpeg     string
	videoCodec string
	audioCodec string
	logger     *zap.Logger
}

func NewAudioMuxer(ffmpegBin, videoCodec, audioCodec string, logger *zap.Logger) *AudioMuxer {
	return &AudioMuxer{ffmpeg: ffmpegBin, videoCodec: videoCodec, audioCodec: audioCodec, logger: logger}
}

func (m *AudioMuxer) MuxAudio(ctx context.Context, req port.AudioMuxRequest) error {
	if req.Duration <= 0 {
		return fmt.Errorf("non-positive merge duration %v", req.Duration)
	}

	cmd := exec.CommandContext(ctx, m.ffmpeg, m.muxArgs(req)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	m.logger.Debug("audio muxed",
		zap.String("video", req.VideoPath),
		zap.String("audio_source", req.AudioSource),
		zap.Float64("duration", req.Duration),
	)
	return nil
}

func (m *AudioMuxer) muxArgs(req port.AudioMuxRequest) []string {
	fps := req.FPS
	if fps < 1 {
		fps = 1
	}
	return []string{
		"-v", "error",
		"-nostdin",
		"-y",
		"-i", req.VideoPath,
		"-i", req.AudioSource,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-t", strconv.FormatFloat(req.Duration, 'f', -1, 64),
		"-r", strconv.Itoa(fps),
		"-c:v", m.videoCodec,
		"-c:a", m.audioCodec,
		"-movflags", "+faststart",
		req.OutputPath,
	}
}
