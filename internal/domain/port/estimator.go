package port

import (
	"context"
	"image"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
)

// PoseEstimator maps one frame to the landmarks of the person in it. A frame
// with no detection yields an empty Pose and a nil error; errors are reserved
// for failures of the estimator itself.
type PoseEstimator interface {
	Estimate(ctx context.Context, frame image.Image) (entity.Pose, error)
	Close() error
}

// EstimatorFactory creates a fresh estimator for one processing run.
type EstimatorFactory func(ctx context.Context) (PoseEstimator, error)
