package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"github.com/pose2stick/stickfigure-service/internal/infra/config"
	"github.com/pose2stick/stickfigure-service/internal/infra/ffmpeg"
	"github.com/pose2stick/stickfigure-service/internal/infra/httpapi"
	"github.com/pose2stick/stickfigure-service/internal/infra/metrics"
	miniostorage "github.com/pose2stick/stickfigure-service/internal/infra/minio"
	"github.com/pose2stick/stickfigure-service/internal/infra/onnx"
	"github.com/pose2stick/stickfigure-service/internal/infra/posehttp"
	"github.com/pose2stick/stickfigure-service/internal/infra/rabbitmq"
	"github.com/pose2stick/stickfigure-service/internal/infra/tracing"
	"github.com/pose2stick/stickfigure-service/internal/usecase"
	"github.com/pose2stick/stickfigure-service/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", "", "optional .env file to load before reading the environment")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting stickfigure-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "stickfigure-service", cfg.JaegerEndpoint, 1.0)
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	fatalOnErr(os.MkdirAll(cfg.OutputDir, 0o755), "create output dir")

	checks := []metrics.ReadinessCheck{
		func(ctx context.Context) error { return ffmpeg.CheckBinary(ctx, cfg.FFmpegBin) },
		func(ctx context.Context) error { return ffmpeg.CheckBinary(ctx, cfg.FFprobeBin) },
	}

	// Pose estimator
	var estimators port.EstimatorFactory
	switch cfg.PoseEstimator {
	case "onnx":
		fatalOnErr(onnx.InitRuntime(cfg.OnnxRuntimeDylib), "init onnx runtime")
		defer func() {
			if err := onnx.DestroyRuntime(); err != nil {
				log.Warn("error destroying onnx env", zap.Error(err))
			}
		}()
		manifest, err := onnx.LoadManifest(cfg.PoseModelManifest)
		fatalOnErr(err, "load pose model manifest")
		_, err = os.Stat(cfg.PoseModelPath)
		fatalOnErr(err, "locate pose model")
		estimators = onnx.Factory(cfg.PoseModelPath, manifest)
	case "http":
		estimators = posehttp.Factory(cfg.PoseServiceURL, cfg.PoseServiceTimeout, log)
		ping := posehttp.NewClient(cfg.PoseServiceURL, cfg.PoseServiceTimeout, log)
		checks = append(checks, ping.Ping)
	}

	// Optional artifact mirror
	var storage port.ArtifactStorage
	if cfg.MinIOEnabled {
		s, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOArtifactBucket,
			URLExpiry: cfg.MinIOURLExpiry,
		})
		fatalOnErr(err, "create minio storage")
		fatalOnErr(s.EnsureBucket(ctx), "ensure minio bucket")
		storage = s
		checks = append(checks, s.Ping)
	}

	// Optional status events
	var publisher port.StatusPublisher
	if cfg.RabbitMQEnabled {
		rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
		fatalOnErr(err, "connect to rabbitmq")
		defer rmqConn.Close()

		statusPub, err := rabbitmq.NewStatusPublisher(rmqConn, cfg.RabbitMQExchange, cfg.RabbitMQStatusRoutingKey)
		fatalOnErr(err, "create rabbitmq publisher")
		defer statusPub.Close()
		publisher = statusPub
		checks = append(checks, func(context.Context) error {
			if rmqConn.IsClosed() {
				return errors.New("rabbitmq connection closed")
			}
			return nil
		})
	}

	// Infra adapters
	prober := ffmpeg.NewProber(cfg.FFprobeBin, log)
	decoder := ffmpeg.NewDecoder(cfg.FFmpegBin, prober, log)
	encoder := ffmpeg.NewEncoder(cfg.FFmpegBin, cfg.VideoCodec, log)
	muxer := ffmpeg.NewAudioMuxer(cfg.FFmpegBin, cfg.VideoCodec, cfg.AudioCodec, log)

	// Use cases
	processVideo := usecase.NewProcessVideoUseCase(decoder, encoder, estimators, prober, muxer, log)
	runJob := usecase.NewRunJobUseCase(processVideo, storage, publisher, log, usecase.RunJobConfig{
		OutputDir:     cfg.OutputDir,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log, checks...)

	// HTTP API
	api := httpapi.NewService(runJob, httpapi.Config{
		OutputDir:         cfg.OutputDir,
		FrontendDir:       cfg.FrontendDir,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		DefaultBackground: cfg.DefaultBackground,
		RequestTimeout:    cfg.RequestTimeout,
	}, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpapi.NewRouter(api),
	}

	go func() {
		log.Info("http server starting", zap.Int("port", cfg.HTTPPort), zap.String("output_dir", cfg.OutputDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("stickfigure-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
