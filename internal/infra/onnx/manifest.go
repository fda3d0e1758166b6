package onnx

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// Manifest describes the tensors of a pose landmark model. The defaults match
// the BlazePose full-body landmark model: a 256x256 RGB input and a flat
// landmark output of 39 points with 5 values each, of which the first 33 are
// body landmarks.
type Manifest struct {
	InputName   string  `yaml:"input_name"`
	InputWidth  int     `yaml:"input_width"`
	InputHeight int     `yaml:"input_height"`
	Layout      string  `yaml:"layout"`
	InputScale  float32 `yaml:"input_scale"`

	LandmarksOutput string `yaml:"landmarks_output"`
	// LandmarkValues is the total length of the landmark output tensor.
	LandmarkValues int `yaml:"landmark_values"`
	LandmarkStride int `yaml:"landmark_stride"`
	LandmarkCount  int `yaml:"landmark_count"`

	ScoreOutput    string  `yaml:"score_output"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	ScoreIsLogit   bool    `yaml:"score_is_logit"`
}

func DefaultManifest() Manifest {
	return Manifest{
		InputName:       "input_1",
		InputWidth:      256,
		InputHeight:     256,
		Layout:          LayoutNHWC,
		InputScale:      1.0 / 255,
		LandmarksOutput: "Identity",
		LandmarkValues:  195,
		LandmarkStride:  5,
		LandmarkCount:   33,
		ScoreOutput:     "Identity_1",
		ScoreThreshold:  0.5,
		ScoreIsLogit:    true,
	}
}

// LoadManifest reads a YAML manifest on top of the defaults. An empty path
// returns the defaults unchanged.
func LoadManifest(path string) (Manifest, error) {
	m := DefaultManifest()
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read model manifest: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return m, fmt.Errorf("parse model manifest: %w", err)
	}
	return m, m.Validate()
}

func (m Manifest) Validate() error {
	switch {
	case m.InputName == "" || m.LandmarksOutput == "":
		return fmt.Errorf("manifest: input_name and landmarks_output are required")
	case m.InputWidth <= 0 || m.InputHeight <= 0:
		return fmt.Errorf("manifest: invalid input size %dx%d", m.InputWidth, m.InputHeight)
	case m.Layout != LayoutNHWC && m.Layout != LayoutNCHW:
		return fmt.Errorf("manifest: unknown layout %q", m.Layout)
	case m.LandmarkStride < 2:
		return fmt.Errorf("manifest: landmark_stride must be at least 2, got %d", m.LandmarkStride)
	case m.LandmarkCount <= 0 || m.LandmarkCount*m.LandmarkStride > m.LandmarkValues:
		return fmt.Errorf("manifest: %d landmarks of stride %d do not fit in %d values",
			m.LandmarkCount, m.LandmarkStride, m.LandmarkValues)
	}
	return nil
}
