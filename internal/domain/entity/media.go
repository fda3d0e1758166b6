package entity

// VideoInfo describes the raster stream of a container.
type VideoInfo struct {
	Width  int
	Height int
	// FrameRate is the rational rate as reported by the container, e.g. "30000/1001".
	FrameRate string
	FPS       float64
}

// MediaInfo is the probe result of a whole container.
type MediaInfo struct {
	Video      VideoInfo
	HasVideo   bool
	HasAudio   bool
	FrameCount int
	Duration   float64
}

// AudioOutcome is the terminal state of the audio reattachment step.
type AudioOutcome string

const (
	AudioNotRequested AudioOutcome = "not_requested"
	AudioNoTrack      AudioOutcome = "no_audio_track"
	AudioNoDuration   AudioOutcome = "non_positive_duration"
	AudioMerged       AudioOutcome = "merged"
	AudioDiscarded    AudioOutcome = "discarded"
	AudioFailed       AudioOutcome = "failed"
)

// Silent reports whether the output video was left without audio.
func (o AudioOutcome) Silent() bool { return o != AudioMerged }
