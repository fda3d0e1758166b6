package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"github.com/pose2stick/stickfigure-service/internal/infra/metrics"
	"github.com/pose2stick/stickfigure-service/internal/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	// ErrUnreadableInput marks input videos that cannot be opened or decoded.
	ErrUnreadableInput = errors.New("unreadable input video")
	// ErrNoFrames is returned when the input decodes to zero frames.
	ErrNoFrames = errors.New("input video contains no frames")
)

// ProcessVideoUseCase turns one video into a stick-figure video and a
// per-frame keypoint trace. Runs are synchronous and independent: every call
// gets its own pose estimator.
type ProcessVideoUseCase struct {
	decoder    port.VideoDecoder
	encoder    port.VideoEncoder
	estimators port.EstimatorFactory
	prober     port.MediaProber
	muxer      port.AudioMuxer
	logger     *zap.Logger
}

func NewProcessVideoUseCase(
	decoder port.VideoDecoder,
	encoder port.VideoEncoder,
	estimators port.EstimatorFactory,
	prober port.MediaProber,
	muxer port.AudioMuxer,
	logger *zap.Logger,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		decoder:    decoder,
		encoder:    encoder,
		estimators: estimators,
		prober:     prober,
		muxer:      muxer,
		logger:     logger,
	}
}

type ProcessVideoInput struct {
	InputPath       string
	OutputVideoPath string
	OutputTracePath string
	Background      entity.Background
	IncludeAudio    bool
	// OnFrame is called after each frame is written with the number of frames done so far.
	OnFrame func(done int)
}

type ProcessVideoResult struct {
	Video          entity.VideoInfo
	FrameCount     int
	DetectedFrames int
	Audio          entity.AudioOutcome
}

// Execute decodes the input, renders every frame, optionally reattaches the
// source audio and finally writes the trace. Only decode, encode, estimator
// and trace-write failures are returned; audio problems leave a silent video.
func (uc *ProcessVideoUseCase) Execute(ctx context.Context, in ProcessVideoInput) (*ProcessVideoResult, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessVideoUseCase.Execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("video.input", in.InputPath),
		attribute.String("video.background", in.Background.String()),
		attribute.Bool("video.include_audio", in.IncludeAudio),
	)

	totalTimer := time.Now()
	log := uc.logger.With(zap.String("input", in.InputPath), zap.String("output", in.OutputVideoPath))

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	trace, info, err := uc.renderVideo(ctx, in, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
		log.Error("video rendering failed", zap.Error(err))
		return nil, err
	}

	audio := uc.attachAudio(ctx, in, log)

	trStart := time.Now()
	if err := writeTrace(in.OutputTracePath, trace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
		log.Error("trace write failed", zap.Error(err))
		return nil, err
	}
	metrics.JobProcessingDuration.WithLabelValues("trace").Observe(time.Since(trStart).Seconds())

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	result := &ProcessVideoResult{
		Video:          info,
		FrameCount:     trace.Len(),
		DetectedFrames: trace.DetectedFrames(),
		Audio:          audio,
	}
	span.SetAttributes(attribute.Int("video.frames", result.FrameCount))

	log.Info("video processed",
		zap.Int("frame_count", result.FrameCount),
		zap.Int("detected_frames", result.DetectedFrames),
		zap.String("audio", string(audio)),
		zap.Duration("elapsed", time.Since(totalTimer)),
	)
	return result, nil
}

func (uc *ProcessVideoUseCase) renderVideo(
	ctx context.Context,
	in ProcessVideoInput,
	log *zap.Logger,
) (*entity.Trace, entity.VideoInfo, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "render_video")
	defer span.End()
	start := time.Now()

	estimator, err := uc.estimators(ctx)
	if err != nil {
		return nil, entity.VideoInfo{}, fmt.Errorf("create pose estimator: %w", err)
	}
	defer estimator.Close()

	src, err := uc.decoder.Open(ctx, in.InputPath)
	if err != nil {
		return nil, entity.VideoInfo{}, fmt.Errorf("open input video: %w: %w", ErrUnreadableInput, err)
	}
	defer src.Close()
	info := src.Info()

	sink, err := uc.encoder.Create(ctx, in.OutputVideoPath, info)
	if err != nil {
		return nil, info, fmt.Errorf("open output video: %w", err)
	}
	sinkOpen := true
	defer func() {
		if sinkOpen {
			_ = sink.Close()
		}
	}()

	log.Info("rendering video",
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.String("frame_rate", info.FrameRate),
		zap.String("background", in.Background.String()),
	)

	renderer := render.New(info.Width, info.Height, in.Background)
	trace := entity.NewTrace(0)

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, info, err
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, info, fmt.Errorf("decode frame %d: %w: %w", index, ErrUnreadableInput, err)
		}

		pose, err := estimator.Estimate(ctx, frame)
		if err != nil {
			return nil, info, fmt.Errorf("estimate pose on frame %d: %w", index, err)
		}

		if err := sink.WriteFrame(renderer.Render(pose)); err != nil {
			return nil, info, fmt.Errorf("write frame %d: %w", index, err)
		}
		trace.Append(pose)

		metrics.FramesRenderedTotal.Inc()
		if !pose.Detected() {
			metrics.FramesWithoutPoseTotal.Inc()
		}
		if in.OnFrame != nil {
			in.OnFrame(trace.Len())
		}
	}

	_ = src.Close()
	if trace.Len() == 0 {
		return nil, info, ErrNoFrames
	}

	// the output must be finalized before the audio step reopens it
	sinkOpen = false
	if err := sink.Close(); err != nil {
		return nil, info, fmt.Errorf("finalize output video: %w", err)
	}

	metrics.JobProcessingDuration.WithLabelValues("decode_render").Observe(time.Since(start).Seconds())
	return trace, info, nil
}

func writeTrace(path string, trace *entity.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	if err := trace.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close trace file: %w", err)
	}
	return nil
}
