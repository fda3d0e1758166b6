package usecase

import (
	"context"
	"errors"
	"image"
	"io"
	"os"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
)

const silentVideo = "rendered-silent-video"

type fakeDecoder struct {
	info    entity.VideoInfo
	frames  int
	openErr error
	nextErr error
}

func (d *fakeDecoder) Open(_ context.Context, _ string) (port.FrameSource, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeSource{dec: d, frame: image.NewRGBA(image.Rect(0, 0, d.info.Width, d.info.Height))}, nil
}

type fakeSource struct {
	dec   *fakeDecoder
	frame *image.RGBA
	read  int
}

func (s *fakeSource) Info() entity.VideoInfo { return s.dec.info }

func (s *fakeSource) Next() (*image.RGBA, error) {
	if s.dec.nextErr != nil && s.read == s.dec.frames/2 {
		return nil, s.dec.nextErr
	}
	if s.read >= s.dec.frames {
		return nil, io.EOF
	}
	s.read++
	return s.frame, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeEncoder keeps a copy of every written frame and writes a fixed payload
// to the output path when the sink is closed.
type fakeEncoder struct {
	frames    []*image.RGBA
	createErr error
	closed    bool
}

func (e *fakeEncoder) Create(_ context.Context, path string, _ entity.VideoInfo) (port.FrameSink, error) {
	if e.createErr != nil {
		return nil, e.createErr
	}
	return &fakeSink{enc: e, path: path}, nil
}

type fakeSink struct {
	enc  *fakeEncoder
	path string
}

func (s *fakeSink) WriteFrame(frame *image.RGBA) error {
	cp := image.NewRGBA(frame.Rect)
	copy(cp.Pix, frame.Pix)
	s.enc.frames = append(s.enc.frames, cp)
	return nil
}

func (s *fakeSink) Close() error {
	if s.enc.closed {
		return nil
	}
	s.enc.closed = true
	return os.WriteFile(s.path, []byte(silentVideo), 0o644)
}

// scriptedEstimator returns poses[i] for the i-th call, and an empty pose past the end.
type scriptedEstimator struct {
	poses  []entity.Pose
	calls  int
	err    error
	closed bool
}

func (e *scriptedEstimator) Estimate(_ context.Context, _ image.Image) (entity.Pose, error) {
	if e.err != nil {
		return nil, e.err
	}
	i := e.calls
	e.calls++
	if i < len(e.poses) {
		return e.poses[i], nil
	}
	return nil, nil
}

func (e *scriptedEstimator) Close() error {
	e.closed = true
	return nil
}

func (e *scriptedEstimator) factory() port.EstimatorFactory {
	return func(context.Context) (port.PoseEstimator, error) { return e, nil }
}

type fakeProber struct {
	media map[string]*entity.MediaInfo
	err   error
}

func (p *fakeProber) Probe(_ context.Context, path string) (*entity.MediaInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	info, ok := p.media[path]
	if !ok {
		return nil, errors.New("no such media: " + path)
	}
	return info, nil
}

type fakeMuxer struct {
	requests []port.AudioMuxRequest
	run      func(req port.AudioMuxRequest) error
}

func (m *fakeMuxer) MuxAudio(_ context.Context, req port.AudioMuxRequest) error {
	m.requests = append(m.requests, req)
	if m.run != nil {
		return m.run(req)
	}
	return os.WriteFile(req.OutputPath, []byte("merged-video"), 0o644)
}

type fakeStorage struct {
	keys []string
	err  error
}

func (s *fakeStorage) UploadArtifact(_ context.Context, objectKey, _ string, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, objectKey)
	return "http://minio.local/artifacts/" + objectKey + "?X-Amz-Signature=x", nil
}

type fakePublisher struct {
	messages [][]byte
	err      error
}

func (p *fakePublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.messages = append(p.messages, msg)
	return p.err
}
