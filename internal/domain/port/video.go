package port

import (
	"context"
	"image"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
)

// FrameSource is a forward-only sequence of decoded frames. Next returns
// io.EOF once the stream is exhausted. The returned image is only valid until
// the following call to Next.
type FrameSource interface {
	Info() entity.VideoInfo
	Next() (*image.RGBA, error)
	Close() error
}

type VideoDecoder interface {
	Open(ctx context.Context, path string) (FrameSource, error)
}

// FrameSink appends frames to a container. Close finalizes the file.
type FrameSink interface {
	WriteFrame(frame *image.RGBA) error
	Close() error
}

type VideoEncoder interface {
	Create(ctx context.Context, path string, info entity.VideoInfo) (FrameSink, error)
}
