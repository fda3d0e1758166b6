// Package httpapi exposes the stick-figure pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/schema"
	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/usecase"
	"go.uber.org/zap"
)

// multipart parts above this size are spooled to disk
const maxFormMemory = 32 << 20

type JobRunner interface {
	Execute(ctx context.Context, req usecase.JobRequest) (*entity.Job, error)
}

type Config struct {
	OutputDir         string
	FrontendDir       string
	MaxUploadBytes    int64
	DefaultBackground string
	RequestTimeout    time.Duration
}

type Service struct {
	runner  JobRunner
	cfg     Config
	logger  *zap.Logger
	decoder *schema.Decoder
}

func NewService(runner JobRunner, cfg Config, logger *zap.Logger) *Service {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Service{runner: runner, cfg: cfg, logger: logger, decoder: decoder}
}

// NewRouter builds the complete handler: middleware, API routes and static files.
func NewRouter(s *Service) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	s.AddRoutes(r)
	return r
}

func (s *Service) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(s.logger, s.Health))

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.With(limitBody(s.cfg.MaxUploadBytes)).Post("/process", RestHandler(s.logger, s.Process))
	})

	r.Handle("/outputs/*", http.StripPrefix("/outputs/", http.FileServer(http.Dir(s.cfg.OutputDir))))
	if s.cfg.FrontendDir != "" {
		r.Handle("/frontend/*", http.StripPrefix("/frontend/", http.FileServer(http.Dir(s.cfg.FrontendDir))))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/frontend/index.html", http.StatusTemporaryRedirect)
		})
	}
}

type processForm struct {
	Background   string `schema:"background"`
	IncludeAudio string `schema:"include_audio"`
}

type ProcessResponse struct {
	JobID        string `json:"job_id"`
	VideoURL     string `json:"video_url"`
	KeypointsURL string `json:"keypoints_url"`
}

func (s *Service) Process(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", s.cfg.MaxUploadBytes)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	var form processForm
	if err := s.decoder.Decode(&form, r.MultipartForm.Value); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse form fields: %v", err)
	}
	if form.Background == "" {
		form.Background = s.cfg.DefaultBackground
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing video file")
	}
	defer file.Close()

	s.logger.Info("video upload received",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.String("background", form.Background),
		zap.String("include_audio", form.IncludeAudio),
	)

	job, err := s.runner.Execute(r.Context(), usecase.JobRequest{
		Upload:       file,
		Background:   entity.ParseBackground(form.Background),
		IncludeAudio: form.IncludeAudio == "true",
	})
	if err != nil {
		if errors.Is(err, usecase.ErrUnreadableInput) || errors.Is(err, usecase.ErrNoFrames) {
			return nil, CodedError(http.StatusUnprocessableEntity, err)
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	return ProcessResponse{
		JobID:        job.ID,
		VideoURL:     job.VideoURL,
		KeypointsURL: job.TraceURL,
	}, nil
}

func (s *Service) Health(r *http.Request) (any, error) {
	return map[string]string{"status": "ok"}, nil
}
