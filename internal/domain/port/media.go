package port

import (
	"context"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
)

type MediaProber interface {
	Probe(ctx context.Context, path string) (*entity.MediaInfo, error)
}

// AudioMuxRequest describes one audio reattachment: the audio of AudioSource,
// trimmed to Duration seconds, is attached to the frames of VideoPath and the
// result is written to OutputPath.
type AudioMuxRequest struct {
	VideoPath   string
	AudioSource string
	OutputPath  string
	Duration    float64
	FPS         int
}

type AudioMuxer interface {
	MuxAudio(ctx context.Context, req AudioMuxRequest) error
}
