package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"github.com/pose2stick/stickfigure-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// VideoProcessor is the single-video pipeline a job delegates to.
type VideoProcessor interface {
	Execute(ctx context.Context, in ProcessVideoInput) (*ProcessVideoResult, error)
}

type RunJobConfig struct {
	OutputDir string
	// PublicBaseURL roots the local artifact URLs, e.g. "http://localhost:8000".
	PublicBaseURL string
}

type JobRequest struct {
	Upload       io.Reader
	Background   entity.Background
	IncludeAudio bool
}

// RunJobUseCase stores an upload under a fresh job id, processes it and
// resolves the URLs of the two artifacts. Storage and publisher are optional.
type RunJobUseCase struct {
	processor VideoProcessor
	storage   port.ArtifactStorage
	publisher port.StatusPublisher
	logger    *zap.Logger
	cfg       RunJobConfig
	newID     func() string
}

func NewRunJobUseCase(
	processor VideoProcessor,
	storage port.ArtifactStorage,
	publisher port.StatusPublisher,
	logger *zap.Logger,
	cfg RunJobConfig,
) *RunJobUseCase {
	return &RunJobUseCase{
		processor: processor,
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		newID:     NewJobID,
	}
}

// NewJobID returns an 8 character job identifier.
func NewJobID() string {
	return uuid.NewString()[:8]
}

func (uc *RunJobUseCase) Execute(ctx context.Context, req JobRequest) (*entity.Job, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "RunJobUseCase.Execute")
	defer span.End()

	job := entity.NewJob(uc.newID(), uc.cfg.OutputDir, req.Background, req.IncludeAudio)
	span.SetAttributes(attribute.String("job.id", job.ID))
	log := uc.logger.With(zap.String("job_id", job.ID))

	if err := os.MkdirAll(uc.cfg.OutputDir, 0o755); err != nil {
		return uc.fail(ctx, job, fmt.Errorf("create output dir: %w", err), log)
	}

	start := time.Now()
	if err := saveUpload(req.Upload, job.InputPath); err != nil {
		return uc.fail(ctx, job, err, log)
	}
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())

	job.MarkProcessing()
	log.Info("job started",
		zap.String("background", job.Background.String()),
		zap.Bool("include_audio", job.IncludeAudio),
	)

	res, err := uc.processor.Execute(ctx, ProcessVideoInput{
		InputPath:       job.InputPath,
		OutputVideoPath: job.VideoPath,
		OutputTracePath: job.TracePath,
		Background:      job.Background,
		IncludeAudio:    job.IncludeAudio,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return uc.fail(ctx, job, err, log)
	}

	if err := uc.resolveURLs(ctx, job, log); err != nil {
		return uc.fail(ctx, job, err, log)
	}

	job.MarkCompleted(res.FrameCount, res.DetectedFrames, res.Audio)
	uc.publish(ctx, job, log)

	log.Info("job completed",
		zap.String("video_url", job.VideoURL),
		zap.String("keypoints_url", job.TraceURL),
	)
	return job, nil
}

func (uc *RunJobUseCase) fail(ctx context.Context, job *entity.Job, err error, log *zap.Logger) (*entity.Job, error) {
	job.MarkFailed(err.Error())
	uc.publish(ctx, job, log)
	log.Error("job failed", zap.Error(err))
	return job, err
}

// resolveURLs mirrors the artifacts to object storage when configured and
// falls back to the locally served paths if the upload fails.
func (uc *RunJobUseCase) resolveURLs(ctx context.Context, job *entity.Job, log *zap.Logger) error {
	videoURL, err := url.JoinPath(uc.cfg.PublicBaseURL, "outputs", entity.VideoFileName(job.ID))
	if err != nil {
		return fmt.Errorf("build video url: %w", err)
	}
	traceURL, err := url.JoinPath(uc.cfg.PublicBaseURL, "outputs", entity.TraceFileName(job.ID))
	if err != nil {
		return fmt.Errorf("build keypoints url: %w", err)
	}
	job.VideoURL, job.TraceURL = videoURL, traceURL

	if uc.storage == nil {
		return nil
	}

	start := time.Now()
	v, err := uc.storage.UploadArtifact(ctx, entity.VideoFileName(job.ID), job.VideoPath, "video/mp4")
	if err != nil {
		log.Warn("artifact upload failed, serving local files", zap.Error(err))
		return nil
	}
	k, err := uc.storage.UploadArtifact(ctx, entity.TraceFileName(job.ID), job.TracePath, "application/json")
	if err != nil {
		log.Warn("artifact upload failed, serving local files", zap.Error(err))
		return nil
	}
	metrics.JobProcessingDuration.WithLabelValues("mirror").Observe(time.Since(start).Seconds())

	job.VideoURL, job.TraceURL = v, k
	return nil
}

func (uc *RunJobUseCase) publish(ctx context.Context, job *entity.Job, log *zap.Logger) {
	if uc.publisher == nil {
		return
	}
	body, err := json.Marshal(entity.NewJobStatusMessage(job))
	if err != nil {
		log.Warn("failed to marshal status message", zap.Error(err))
		return
	}
	if err := uc.publisher.PublishStatus(ctx, body); err != nil {
		log.Warn("failed to publish job status", zap.String("status", string(job.Status)), zap.Error(err))
	}
}

func saveUpload(r io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create input file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close input file: %w", err)
	}
	return nil
}
