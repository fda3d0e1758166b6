package entity

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Landmark is one body keypoint in coordinates normalized to the frame
// (x to width, y to height). Z is relative depth and is never drawn.
type Landmark struct {
	X float64
	Y float64
	Z float64
}

func (l *Landmark) UnmarshalJSON(data []byte) error {
	var triple []float64
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if len(triple) != 3 {
		return fmt.Errorf("landmark must have 3 coordinates, got %d", len(triple))
	}
	l.X, l.Y, l.Z = triple[0], triple[1], triple[2]
	return nil
}

// Pose is the ordered landmark list reported for one frame. Index positions
// follow the estimator's anatomical numbering; an empty Pose means no person
// was detected.
type Pose []Landmark

func (p Pose) Detected() bool { return len(p) > 0 }

// Has reports whether landmark index i is present.
func (p Pose) Has(i int) bool { return i >= 0 && i < len(p) }

// Trace accumulates one Pose per decoded frame, in frame order.
type Trace struct {
	frames []Pose
}

func NewTrace(capacity int) *Trace {
	if capacity < 0 {
		capacity = 0
	}
	return &Trace{frames: make([]Pose, 0, capacity)}
}

// Append records the pose for the next frame. A nil pose is stored as empty.
func (t *Trace) Append(p Pose) {
	if p == nil {
		p = Pose{}
	}
	t.frames = append(t.frames, p)
}

func (t *Trace) Len() int { return len(t.frames) }

// DetectedFrames counts frames with a non-empty pose.
func (t *Trace) DetectedFrames() int {
	n := 0
	for _, p := range t.frames {
		if p.Detected() {
			n++
		}
	}
	return n
}

// Encode writes the trace as one document: an array per frame holding
// [x, y, z] triples, with no trailing newline. Coordinates are written as
// reported; non-finite values are written as bare NaN, Infinity and
// -Infinity tokens.
func (t *Trace) Encode(w io.Writer) error {
	buf := make([]byte, 0, 64+len(t.frames)*PoseLandmarkCount*60)
	buf = append(buf, '[')
	for i, p := range t.frames {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for j, lm := range p {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, '[')
			buf = appendCoord(buf, lm.X)
			buf = append(buf, ',')
			buf = appendCoord(buf, lm.Y)
			buf = append(buf, ',')
			buf = appendCoord(buf, lm.Z)
			buf = append(buf, ']')
		}
		buf = append(buf, ']')
	}
	buf = append(buf, ']')

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// appendCoord formats finite values exactly as encoding/json does.
func appendCoord(buf []byte, v float64) []byte {
	switch {
	case math.IsNaN(v):
		return append(buf, "NaN"...)
	case math.IsInf(v, 1):
		return append(buf, "Infinity"...)
	case math.IsInf(v, -1):
		return append(buf, "-Infinity"...)
	}

	abs := math.Abs(v)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	n := len(buf)
	buf = strconv.AppendFloat(buf, v, format, -1, 64)
	if format == 'e' {
		// e-09 to e-9
		if len(buf)-n >= 4 && buf[len(buf)-4] == 'e' && buf[len(buf)-3] == '-' && buf[len(buf)-2] == '0' {
			buf[len(buf)-2] = buf[len(buf)-1]
			buf = buf[:len(buf)-1]
		}
	}
	return buf
}
