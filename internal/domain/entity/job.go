package entity

import (
	"path/filepath"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job is one upload processed by the HTTP service. Its three artifacts live in
// the output directory, named after the job id.
type Job struct {
	ID             string
	Background     Background
	IncludeAudio   bool
	InputPath      string
	VideoPath      string
	TracePath      string
	VideoURL       string
	TraceURL       string
	Status         JobStatus
	FrameCount     int
	DetectedFrames int
	Audio          AudioOutcome
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func NewJob(id, outputDir string, background Background, includeAudio bool) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           id,
		Background:   background,
		IncludeAudio: includeAudio,
		InputPath:    filepath.Join(outputDir, InputFileName(id)),
		VideoPath:    filepath.Join(outputDir, VideoFileName(id)),
		TracePath:    filepath.Join(outputDir, TraceFileName(id)),
		Status:       JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func InputFileName(id string) string { return id + "_input.mp4" }
func VideoFileName(id string) string { return id + "_stick.mp4" }
func TraceFileName(id string) string { return id + "_keypoints.json" }

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(frameCount, detectedFrames int, audio AudioOutcome) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.FrameCount = frameCount
	j.DetectedFrames = detectedFrames
	j.Audio = audio
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}
