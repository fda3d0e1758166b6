package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stick_jobs_processed_total",
		Help: "Total number of videos processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stick_job_processing_duration_seconds",
		Help:    "Duration of each stage of the stick-figure pipeline",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesRenderedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stick_frames_rendered_total",
		Help: "Total number of frames rendered across all jobs",
	})

	FramesWithoutPoseTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stick_frames_without_pose_total",
		Help: "Total number of frames where the estimator detected no person",
	})

	AudioMergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stick_audio_merge_total",
		Help: "Audio reattachment attempts, by terminal outcome",
	}, []string{"outcome"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stick_active_jobs",
		Help: "Number of videos currently being processed",
	})
)
