// Package posehttp delegates pose estimation to a remote inference service.
package posehttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"go.uber.org/zap"
)

const estimatePath = "/v1/pose"

var ErrServiceUnavailable = errors.New("pose service unavailable")

type poseResponse struct {
	Landmarks []entity.Landmark `json:"landmarks"`
}

// Client posts one JPEG frame per request and reads back the landmarks of the
// detected person, if any.
type Client struct {
	client  *resty.Client
	quality int
	logger  *zap.Logger
	buf     bytes.Buffer
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		quality: 90,
		logger:  logger,
	}
}

// Factory returns an EstimatorFactory handing out one client per run.
func Factory(baseURL string, timeout time.Duration, logger *zap.Logger) port.EstimatorFactory {
	return func(context.Context) (port.PoseEstimator, error) {
		return NewClient(baseURL, timeout, logger), nil
	}
}

func (c *Client) Estimate(ctx context.Context, frame image.Image) (entity.Pose, error) {
	c.buf.Reset()
	if err := jpeg.Encode(&c.buf, frame, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	var out poseResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetHeader("Accept", "application/json").
		SetBody(c.buf.Bytes()).
		SetResult(&out).
		Post(estimatePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if !res.IsSuccess() {
		c.logger.Error("pose service returned error",
			zap.Int("status_code", res.StatusCode()),
			zap.String("body", res.String()),
		)
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, res.StatusCode())
	}

	if len(out.Landmarks) == 0 {
		return nil, nil
	}
	return entity.Pose(out.Landmarks), nil
}

// Ping checks that the service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, res.StatusCode())
	}
	return nil
}

func (c *Client) Close() error { return nil }
