// Command stickify renders the stick-figure video and keypoint trace of one
// local video file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pose2stick/stickfigure-service/internal/domain/entity"
	"github.com/pose2stick/stickfigure-service/internal/domain/port"
	"github.com/pose2stick/stickfigure-service/internal/infra/ffmpeg"
	"github.com/pose2stick/stickfigure-service/internal/infra/onnx"
	"github.com/pose2stick/stickfigure-service/internal/infra/posehttp"
	"github.com/pose2stick/stickfigure-service/internal/usecase"
	"github.com/pose2stick/stickfigure-service/pkg/logger"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

func main() {
	var (
		in         = flag.String("in", "", "input video")
		out        = flag.String("out", "stick.mp4", "output stick-figure video")
		trace      = flag.String("trace", "keypoints.json", "output keypoint trace")
		background = flag.String("background", "grid", "background style: grid, solid, gradient or plain")
		audio      = flag.Bool("audio", false, "copy the source audio onto the output")
		estimator  = flag.String("estimator", "onnx", "pose estimator: onnx or http")
		model      = flag.String("model", "models/pose_landmark_full.onnx", "onnx pose model")
		manifest   = flag.String("manifest", "", "optional yaml manifest for the onnx model")
		dylib      = flag.String("onnxruntime", os.Getenv("ONNX_RUNTIME_DYLIB"), "onnxruntime shared library")
		serviceURL = flag.String("pose-url", "http://localhost:9100", "pose service base url")
		ffmpegBin  = flag.String("ffmpeg", "ffmpeg", "ffmpeg executable")
		ffprobeBin = flag.String("ffprobe", "ffprobe", "ffprobe executable")
		codec      = flag.String("codec", "libx264", "output video codec")
		logLevel   = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: stickify -in input.mp4 [-out stick.mp4] [-trace keypoints.json] [-background grid] [-audio]")
		os.Exit(2)
	}

	log, err := logger.New(*logLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var estimators port.EstimatorFactory
	switch *estimator {
	case "onnx":
		fatalOnErr(onnx.InitRuntime(*dylib), "init onnx runtime")
		defer onnx.DestroyRuntime()
		m, err := onnx.LoadManifest(*manifest)
		fatalOnErr(err, "load model manifest")
		estimators = onnx.Factory(*model, m)
	case "http":
		estimators = posehttp.Factory(*serviceURL, 10*time.Second, log)
	default:
		fatalOnErr(fmt.Errorf("unknown estimator %q", *estimator), "select estimator")
	}

	prober := ffmpeg.NewProber(*ffprobeBin, log)
	uc := usecase.NewProcessVideoUseCase(
		ffmpeg.NewDecoder(*ffmpegBin, prober, log),
		ffmpeg.NewEncoder(*ffmpegBin, *codec, log),
		estimators,
		prober,
		ffmpeg.NewAudioMuxer(*ffmpegBin, *codec, "aac", log),
		log,
	)

	total := -1
	if info, err := prober.Probe(ctx, *in); err == nil && info.FrameCount > 0 {
		total = info.FrameCount
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("rendering"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	res, err := uc.Execute(ctx, usecase.ProcessVideoInput{
		InputPath:       *in,
		OutputVideoPath: *out,
		OutputTracePath: *trace,
		Background:      entity.ParseBackground(*background),
		IncludeAudio:    *audio,
		OnFrame:         func(done int) { _ = bar.Set(done) },
	})
	_ = bar.Finish()
	if err != nil {
		log.Error("processing failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "stickify: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s: %d frames, %d with a pose, audio %s\n", *out, res.FrameCount, res.DetectedFrames, res.Audio)
	fmt.Printf("%s: keypoint trace\n", *trace)
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "stickify: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
