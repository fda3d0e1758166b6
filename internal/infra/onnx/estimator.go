// Package onnx runs a pose landmark model in-process with ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitRuntime loads the ONNX Runtime shared library. It is safe to call more
// than once; only the first call has an effect.
func InitRuntime(dylib string) error {
	initOnce.Do(func() {
		if dylib != "" {
			ort.SetSharedLibraryPath(dylib)
		}
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

// Estimator holds one inference session and its preallocated tensors. It is
// not safe for concurrent use.
type Estimator struct {
	manifest  Manifest
	session   *ort.DynamicAdvancedSession
	input     *ort.Tensor[float32]
	landmarks *ort.Tensor[float32]
	score     *ort.Tensor[float32]
	scaled    *image.RGBA
}

func NewEstimator(modelPath string, m Manifest) (*Estimator, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	outputs := []string{m.LandmarksOutput}
	if m.ScoreOutput != "" {
		outputs = append(outputs, m.ScoreOutput)
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{m.InputName}, outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	e := &Estimator{
		manifest: m,
		session:  session,
		scaled:   image.NewRGBA(image.Rect(0, 0, m.InputWidth, m.InputHeight)),
	}

	w, h := int64(m.InputWidth), int64(m.InputHeight)
	shape := ort.NewShape(1, h, w, 3)
	if m.Layout == LayoutNCHW {
		shape = ort.NewShape(1, 3, h, w)
	}
	if e.input, err = ort.NewEmptyTensor[float32](shape); err != nil {
		e.Close()
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	if e.landmarks, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(m.LandmarkValues))); err != nil {
		e.Close()
		return nil, fmt.Errorf("allocate landmark tensor: %w", err)
	}
	if m.ScoreOutput != "" {
		if e.score, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
			e.Close()
			return nil, fmt.Errorf("allocate score tensor: %w", err)
		}
	}
	return e, nil
}

// Factory returns an EstimatorFactory opening a new session per run.
func Factory(modelPath string, m Manifest) port.EstimatorFactory {
	return func(context.Context) (port.PoseEstimator, error) {
		return NewEstimator(modelPath, m)
	}
}

func (e *Estimator) Estimate(ctx context.Context, frame image.Image) (entity.Pose, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	draw.BiLinear.Scale(e.scaled, e.scaled.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	fillInput(e.input.GetData(), e.scaled, e.manifest.Layout, e.manifest.InputScale)

	outputs := []ort.Value{e.landmarks}
	if e.score != nil {
		outputs = append(outputs, e.score)
	}
	if err := e.session.Run([]ort.Value{e.input}, outputs); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	if e.score != nil && !passesThreshold(e.score.GetData()[0], e.manifest) {
		return nil, nil
	}
	return decodeLandmarks(e.landmarks.GetData(), e.manifest), nil
}

func (e *Estimator) Close() error {
	for _, t := range []*ort.Tensor[float32]{e.input, e.landmarks, e.score} {
		if t != nil {
			t.Destroy()
		}
	}
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// fillInput writes the RGB channels of img into dst scaled by scale.
func fillInput(dst []float32, img *image.RGBA, layout string, scale float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := y*w + x
			if layout == LayoutNCHW {
				dst[i] = float32(px[0]) * scale
				dst[plane+i] = float32(px[1]) * scale
				dst[2*plane+i] = float32(px[2]) * scale
			} else {
				dst[i*3] = float32(px[0]) * scale
				dst[i*3+1] = float32(px[1]) * scale
				dst[i*3+2] = float32(px[2]) * scale
			}
		}
	}
}

// decodeLandmarks converts model-space landmarks to coordinates normalized to
// the input size. Depth is scaled by the input width.
func decodeLandmarks(raw []float32, m Manifest) entity.Pose {
	w, h := float64(m.InputWidth), float64(m.InputHeight)
	pose := make(entity.Pose, m.LandmarkCount)
	for i := range pose {
		v := raw[i*m.LandmarkStride:]
		lm := entity.Landmark{X: float64(v[0]) / w, Y: float64(v[1]) / h}
		if m.LandmarkStride > 2 {
			lm.Z = float64(v[2]) / w
		}
		pose[i] = lm
	}
	return pose
}

func passesThreshold(raw float32, m Manifest) bool {
	score := float64(raw)
	if m.ScoreIsLogit {
		score = 1 / (1 + math.Exp(-score))
	}
	return score >= m.ScoreThreshold
}
