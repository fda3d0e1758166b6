package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"github.com/pose2stick/stickfigure-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// defaultMuxFPS is used when the rendered video reports no frame rate.
const defaultMuxFPS = 24

// TempAudioPath is where the audio merge writes before replacing the output.
func TempAudioPath(outputVideo string) string {
	return outputVideo + ".tmp.mp4"
}

// attachAudio runs the best-effort audio reattachment and returns its terminal
// state. It never fails the job: on any error the silent video stays in place.
func (uc *ProcessVideoUseCase) attachAudio(ctx context.Context, in ProcessVideoInput, log *zap.Logger) entity.AudioOutcome {
	if !in.IncludeAudio {
		return entity.AudioNotRequested
	}

	ctx, span := otel.Tracer("usecase").Start(ctx, "attach_audio")
	defer span.End()
	start := time.Now()

	log.Info("starting audio merge", zap.String("source", in.InputPath))

	outcome, err := uc.mergeAudio(ctx, in, log)
	if err != nil {
		span.RecordError(err)
		log.Warn("audio merge failed, keeping silent video", zap.Error(err))
		outcome = entity.AudioFailed
	}

	span.SetAttributes(attribute.String("audio.outcome", string(outcome)))
	metrics.AudioMergeTotal.WithLabelValues(string(outcome)).Inc()
	metrics.JobProcessingDuration.WithLabelValues("audio").Observe(time.Since(start).Seconds())
	return outcome
}

func (uc *ProcessVideoUseCase) mergeAudio(
	ctx context.Context,
	in ProcessVideoInput,
	log *zap.Logger,
) (outcome entity.AudioOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = entity.AudioFailed, fmt.Errorf("audio merge panic: %v", r)
		}
	}()

	tempPath := TempAudioPath(in.OutputVideoPath)
	if err := removeIfExists(tempPath); err != nil {
		return entity.AudioFailed, fmt.Errorf("remove stale temp file: %w", err)
	}
	defer func() {
		if err := removeIfExists(tempPath); err != nil {
			log.Warn("failed to clean up temp file", zap.String("path", tempPath), zap.Error(err))
		}
	}()

	src, err := uc.prober.Probe(ctx, in.InputPath)
	if err != nil {
		return entity.AudioFailed, fmt.Errorf("probe source video: %w", err)
	}
	log.Info("source probed", zap.Float64("duration", src.Duration), zap.Bool("has_audio", src.HasAudio))

	if !src.HasAudio {
		log.Info("audio merge skipped: source has no audio track")
		return entity.AudioNoTrack, nil
	}

	dst, err := uc.prober.Probe(ctx, in.OutputVideoPath)
	if err != nil {
		return entity.AudioFailed, fmt.Errorf("probe rendered video: %w", err)
	}

	duration := math.Min(src.Duration, dst.Duration)
	if !(duration > 0) {
		log.Info("audio merge skipped: non-positive duration",
			zap.Float64("source_duration", src.Duration),
			zap.Float64("output_duration", dst.Duration),
		)
		return entity.AudioNoDuration, nil
	}

	fps := defaultMuxFPS
	if dst.Video.FPS > 0 {
		fps = max(1, int(math.Round(dst.Video.FPS)))
	}

	log.Info("merging audio", zap.Float64("duration", duration), zap.Int("fps", fps))
	err = uc.muxer.MuxAudio(ctx, port.AudioMuxRequest{
		VideoPath:   in.OutputVideoPath,
		AudioSource: in.InputPath,
		OutputPath:  tempPath,
		Duration:    duration,
		FPS:         fps,
	})
	if err != nil {
		return entity.AudioFailed, fmt.Errorf("mux audio: %w", err)
	}

	merged, err := os.Stat(tempPath)
	if err != nil || merged.Size() == 0 {
		log.Warn("audio merge discarded: temp file not created or empty", zap.String("path", tempPath))
		return entity.AudioDiscarded, nil
	}

	var originalSize int64
	if original, err := os.Stat(in.OutputVideoPath); err == nil {
		originalSize = original.Size()
	}

	if err := os.Rename(tempPath, in.OutputVideoPath); err != nil {
		return entity.AudioFailed, fmt.Errorf("replace output video: %w", err)
	}

	log.Info("audio merged into video",
		zap.Int64("original_size", originalSize),
		zap.Int64("merged_size", merged.Size()),
	)
	return entity.AudioMerged, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
