package entity

// JobStatusMessage is the event published when a job reaches a terminal state.
type JobStatusMessage struct {
	JobID          string       `json:"job_id"`
	Status         JobStatus    `json:"status"`
	Background     string       `json:"background"`
	IncludeAudio   bool         `json:"include_audio"`
	VideoURL       string       `json:"video_url,omitempty"`
	TraceURL       string       `json:"keypoints_url,omitempty"`
	FrameCount     int          `json:"frame_count,omitempty"`
	DetectedFrames int          `json:"detected_frames,omitempty"`
	Audio          AudioOutcome `json:"audio,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

func NewJobStatusMessage(j *Job) JobStatusMessage {
	return JobStatusMessage{
		JobID:          j.ID,
		Status:         j.Status,
		Background:     j.Background.String(),
		IncludeAudio:   j.IncludeAudio,
		VideoURL:       j.VideoURL,
		TraceURL:       j.TraceURL,
		FrameCount:     j.FrameCount,
		DetectedFrames: j.DetectedFrames,
		Audio:          j.Audio,
		ErrorMessage:   j.ErrorMessage,
	}
}
