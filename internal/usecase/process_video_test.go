package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"github.com/pose2stick/stickfigure-service/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testInfo = entity.VideoInfo{Width: 320, Height: 240, FrameRate: "10/1", FPS: 10}

type harness struct {
	decoder   *fakeDecoder
	encoder   *fakeEncoder
	estimator *scriptedEstimator
	prober    *fakeProber
	muxer     *fakeMuxer
	uc        *ProcessVideoUseCase
	in        ProcessVideoInput
}

func newHarness(t *testing.T, frames int, poses []entity.Pose) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		decoder:   &fakeDecoder{info: testInfo, frames: frames},
		encoder:   &fakeEncoder{},
		estimator: &scriptedEstimator{poses: poses},
		prober:    &fakeProber{media: map[string]*entity.MediaInfo{}},
		muxer:     &fakeMuxer{},
		in: ProcessVideoInput{
			InputPath:       filepath.Join(dir, "in.mp4"),
			OutputVideoPath: filepath.Join(dir, "out.mp4"),
			OutputTracePath: filepath.Join(dir, "out.json"),
			Background:      entity.BackgroundSolid,
		},
	}
	h.uc = NewProcessVideoUseCase(h.decoder, h.encoder, h.estimator.factory(), h.prober, h.muxer, zap.NewNop())
	return h
}

// withMedia registers probe results for the source and the rendered output.
func (h *harness) withMedia(source, output entity.MediaInfo) {
	h.prober.media[h.in.InputPath] = &source
	h.prober.media[h.in.OutputVideoPath] = &output
}

// testPose returns an upright figure moved right by shift, truncated to n
// landmarks.
func testPose(n int, shift float64) entity.Pose {
	p := make(entity.Pose, entity.PoseLandmarkCount)
	for i := 0; i <= 10; i++ {
		p[i] = entity.Landmark{X: 0.45 + 0.01*float64(i), Y: 0.08}
	}
	set := func(i int, x, y float64) { p[i] = entity.Landmark{X: x, Y: y, Z: -0.123456789 * float64(i)} }
	set(11, 0.4, 0.3)
	set(12, 0.6, 0.3)
	set(13, 0.3, 0.45)
	set(14, 0.7, 0.45)
	set(15, 0.25, 0.6)
	set(16, 0.75, 0.6)
	for _, i := range []int{17, 19, 21} {
		set(i, 0.24, 0.62)
	}
	for _, i := range []int{18, 20, 22} {
		set(i, 0.76, 0.62)
	}
	set(23, 0.42, 0.6)
	set(24, 0.58, 0.6)
	set(25, 0.4, 0.78)
	set(26, 0.6, 0.78)
	set(27, 0.4, 0.95)
	set(28, 0.6, 0.95)
	set(29, 0.38, 0.97)
	set(31, 0.38, 0.97)
	set(30, 0.62, 0.97)
	set(32, 0.62, 0.97)
	for i := range p {
		p[i].X += shift
	}
	if n < len(p) {
		p = p[:n]
	}
	return p
}

// torsoMidpoint is the pixel halfway along the left shoulder to hip bone.
func torsoMidpoint(p entity.Pose) (int, int) {
	x1, y1, _ := render.PixelPoint(p[11], testInfo.Width, testInfo.Height)
	x2, y2, _ := render.PixelPoint(p[23], testInfo.Width, testInfo.Height)
	return (x1 + x2) / 2, (y1 + y2) / 2
}

func readTrace(t *testing.T, path string) [][][3]float64 {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out [][][3]float64
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func hasColor(img *image.RGBA, c color.RGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				return true
			}
		}
	}
	return false
}

func TestExecuteTenFrameScenario(t *testing.T) {
	poses := make([]entity.Pose, 5)
	for i := range poses {
		poses[i] = testPose(entity.PoseLandmarkCount, 0.002*float64(i))
	}
	h := newHarness(t, 10, poses)

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)

	assert.Equal(t, 10, res.FrameCount)
	assert.Equal(t, 5, res.DetectedFrames)
	assert.Equal(t, entity.AudioNotRequested, res.Audio)
	assert.Equal(t, testInfo, res.Video)

	trace := readTrace(t, h.in.OutputTracePath)
	require.Len(t, trace, 10)
	for i := 0; i < 5; i++ {
		assert.Len(t, trace[i], entity.PoseLandmarkCount, "frame %d", i)
	}
	for i := 5; i < 10; i++ {
		assert.Empty(t, trace[i], "frame %d", i)
	}

	require.Len(t, h.encoder.frames, 10)
	background := render.New(testInfo.Width, testInfo.Height, entity.BackgroundSolid).Render(nil)
	for i, frame := range h.encoder.frames {
		if i < 5 {
			mx, my := torsoMidpoint(poses[i])
			assert.Equal(t, render.BoneColor, frame.RGBAAt(mx, my), "frame %d bones", i)
			assert.True(t, hasColor(frame, render.JointColor), "frame %d joints", i)
		} else {
			assert.Equal(t, background.Pix, frame.Pix, "frame %d should be background only", i)
		}
	}
	assert.True(t, h.estimator.closed)
	assert.Equal(t, 10, h.estimator.calls)
	assert.True(t, h.encoder.closed)
}

func TestTraceValuesPassThroughUnmodified(t *testing.T) {
	odd := entity.Pose{
		{X: 0.1234567890123, Y: -0.25, Z: 1e-9},
		{X: 1.75, Y: 0.3333333333333333, Z: -2.5},
		{X: 0, Y: 0, Z: 0},
	}
	h := newHarness(t, 3, []entity.Pose{odd, nil, odd[:1]})

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FrameCount)

	trace := readTrace(t, h.in.OutputTracePath)
	require.Len(t, trace, 3)
	require.Len(t, trace[0], 3)
	for i, lm := range odd {
		assert.Equal(t, [3]float64{lm.X, lm.Y, lm.Z}, trace[0][i])
	}
	assert.Empty(t, trace[1])
	assert.Equal(t, [][3]float64{{0.1234567890123, -0.25, 1e-9}}, trace[2])
}

func TestExecuteWritesNonFiniteCoordinates(t *testing.T) {
	pose := testPose(entity.PoseLandmarkCount, 0)
	pose[0].Z = math.NaN()
	pose[32].X = math.Inf(1)
	h := newHarness(t, 2, []entity.Pose{pose})

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FrameCount)
	assert.Equal(t, 1, res.DetectedFrames)

	data, err := os.ReadFile(h.in.OutputTracePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[0.45,0.08,NaN]")
	assert.Contains(t, string(data), "[Infinity,0.97,")
	assert.True(t, strings.HasSuffix(string(data), "]],[]]"))
	require.Len(t, h.encoder.frames, 2)
}

func TestTraceLengthMatchesDecodedFrames(t *testing.T) {
	for _, n := range []int{1, 7, 31} {
		h := newHarness(t, n, nil)
		res, err := h.uc.Execute(context.Background(), h.in)
		require.NoError(t, err)
		assert.Equal(t, n, res.FrameCount)
		assert.Len(t, readTrace(t, h.in.OutputTracePath), n)
		assert.Len(t, h.encoder.frames, n)
	}
}

func TestExecuteFailsWhenInputUnreadable(t *testing.T) {
	h := newHarness(t, 5, nil)
	h.decoder.openErr = errors.New("moov atom not found")

	_, err := h.uc.Execute(context.Background(), h.in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableInput)
	assert.NoFileExists(t, h.in.OutputTracePath)
}

func TestExecuteFailsOnDecodeError(t *testing.T) {
	h := newHarness(t, 6, nil)
	h.decoder.nextErr = errors.New("invalid data found when processing input")

	_, err := h.uc.Execute(context.Background(), h.in)
	assert.ErrorIs(t, err, ErrUnreadableInput)
	assert.NoFileExists(t, h.in.OutputTracePath)
}

func TestExecuteFailsWhenOutputCannotBeCreated(t *testing.T) {
	h := newHarness(t, 5, nil)
	h.encoder.createErr = errors.New("permission denied")

	_, err := h.uc.Execute(context.Background(), h.in)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreadableInput)
	assert.Contains(t, err.Error(), "open output video")
}

func TestExecuteFailsOnEstimatorError(t *testing.T) {
	h := newHarness(t, 5, nil)
	h.estimator.err = errors.New("session run failed")

	_, err := h.uc.Execute(context.Background(), h.in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "estimate pose on frame 0")
	assert.True(t, h.estimator.closed)
}

func TestExecuteRejectsEmptyVideo(t *testing.T) {
	h := newHarness(t, 0, nil)

	_, err := h.uc.Execute(context.Background(), h.in)
	assert.ErrorIs(t, err, ErrNoFrames)
	assert.NoFileExists(t, h.in.OutputTracePath)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, 5, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.uc.Execute(ctx, h.in)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteReportsProgress(t *testing.T) {
	h := newHarness(t, 4, nil)
	var seen []int
	h.in.OnFrame = func(done int) { seen = append(seen, done) }

	_, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
}

func TestAudioNotRequestedLeavesOutputUntouched(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.withMedia(entity.MediaInfo{HasAudio: true, Duration: 1}, entity.MediaInfo{Duration: 1})

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, entity.AudioNotRequested, res.Audio)
	assert.Empty(t, h.muxer.requests)
	assert.NoFileExists(t, TempAudioPath(h.in.OutputVideoPath))

	data, err := os.ReadFile(h.in.OutputVideoPath)
	require.NoError(t, err)
	assert.Equal(t, silentVideo, string(data))
}

func TestAudioSkippedWhenSourceHasNoTrack(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.in.IncludeAudio = true
	h.withMedia(entity.MediaInfo{HasAudio: false, Duration: 1}, entity.MediaInfo{Duration: 1})

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, entity.AudioNoTrack, res.Audio)
	assert.Empty(t, h.muxer.requests)

	data, err := os.ReadFile(h.in.OutputVideoPath)
	require.NoError(t, err)
	assert.Equal(t, silentVideo, string(data))
}

func TestAudioSkippedOnNonPositiveDuration(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.in.IncludeAudio = true
	h.withMedia(entity.MediaInfo{HasAudio: true, Duration: 2}, entity.MediaInfo{Duration: 0})

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, entity.AudioNoDuration, res.Audio)
	assert.Empty(t, h.muxer.requests)
}

func TestAudioMergedReplacesOutput(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.in.IncludeAudio = true
	h.withMedia(
		entity.MediaInfo{HasAudio: true, Duration: 2.5},
		entity.MediaInfo{Duration: 1.9, Video: entity.VideoInfo{FPS: 29.97}},
	)

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, entity.AudioMerged, res.Audio)

	require.Len(t, h.muxer.requests, 1)
	req := h.muxer.requests[0]
	assert.Equal(t, port.AudioMuxRequest{
		VideoPath:   h.in.OutputVideoPath,
		AudioSource: h.in.InputPath,
		OutputPath:  TempAudioPath(h.in.OutputVideoPath),
		Duration:    1.9,
		FPS:         30,
	}, req)

	data, err := os.ReadFile(h.in.OutputVideoPath)
	require.NoError(t, err)
	assert.Equal(t, "merged-video", string(data))
	assert.NoFileExists(t, TempAudioPath(h.in.OutputVideoPath))
}

func TestAudioMergeDefaultsFrameRate(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.in.IncludeAudio = true
	h.withMedia(entity.MediaInfo{HasAudio: true, Duration: 1}, entity.MediaInfo{Duration: 3})

	_, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	require.Len(t, h.muxer.requests, 1)
	assert.Equal(t, 24, h.muxer.requests[0].FPS)
	assert.Equal(t, 1.0, h.muxer.requests[0].Duration)
}

func TestAudioMergeFailureKeepsSilentVideo(t *testing.T) {
	cases := map[string]func(req port.AudioMuxRequest) error{
		"error after partial write": func(req port.AudioMuxRequest) error {
			_ = os.WriteFile(req.OutputPath, []byte("half"), 0o644)
			return errors.New("muxer exited with status 1")
		},
		"panic": func(req port.AudioMuxRequest) error {
			_ = os.WriteFile(req.OutputPath, []byte("half"), 0o644)
			panic("codec library crashed")
		},
	}
	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 3, nil)
			h.in.IncludeAudio = true
			h.muxer.run = run
			h.withMedia(entity.MediaInfo{HasAudio: true, Duration: 1}, entity.MediaInfo{Duration: 1})

			res, err := h.uc.Execute(context.Background(), h.in)
			require.NoError(t, err)
			assert.Equal(t, entity.AudioFailed, res.Audio)

			data, err := os.ReadFile(h.in.OutputVideoPath)
			require.NoError(t, err)
			assert.Equal(t, silentVideo, string(data))
			assert.NoFileExists(t, TempAudioPath(h.in.OutputVideoPath))
			assert.FileExists(t, h.in.OutputTracePath)
		})
	}
}

func TestAudioProbeFailureKeepsSilentVideo(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.in.IncludeAudio = true
	h.prober.err = errors.New("ffprobe not found")

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, entity.AudioFailed, res.Audio)

	data, err := os.ReadFile(h.in.OutputVideoPath)
	require.NoError(t, err)
	assert.Equal(t, silentVideo, string(data))
}

func TestAudioEmptyTempIsDiscarded(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.in.IncludeAudio = true
	h.muxer.run = func(req port.AudioMuxRequest) error {
		return os.WriteFile(req.OutputPath, nil, 0o644)
	}
	h.withMedia(entity.MediaInfo{HasAudio: true, Duration: 1}, entity.MediaInfo{Duration: 1})

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, entity.AudioDiscarded, res.Audio)

	data, err := os.ReadFile(h.in.OutputVideoPath)
	require.NoError(t, err)
	assert.Equal(t, silentVideo, string(data))
	assert.NoFileExists(t, TempAudioPath(h.in.OutputVideoPath))
}

func TestAudioRemovesStaleTempFile(t *testing.T) {
	h := newHarness(t, 3, nil)
	h.in.IncludeAudio = true
	tmp := TempAudioPath(h.in.OutputVideoPath)
	require.NoError(t, os.WriteFile(tmp, []byte("stale"), 0o644))
	h.muxer.run = func(port.AudioMuxRequest) error { return nil }
	h.withMedia(entity.MediaInfo{HasAudio: true, Duration: 1}, entity.MediaInfo{Duration: 1})

	res, err := h.uc.Execute(context.Background(), h.in)
	require.NoError(t, err)
	assert.Equal(t, entity.AudioDiscarded, res.Audio)
	assert.NoFileExists(t, tmp)

	data, err := os.ReadFile(h.in.OutputVideoPath)
	require.NoError(t, err)
	assert.Equal(t, silentVideo, string(data))
}
