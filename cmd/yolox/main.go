// Command yolox runs a YOLOX ONNX model on image files and prints the detections.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolox/config"
	"github.com/nvr-ai/go-yolox/images"
	"github.com/nvr-ai/go-yolox/inference"
	"github.com/nvr-ai/go-yolox/logger"
	"github.com/nvr-ai/go-yolox/models"
	"github.com/nvr-ai/go-yolox/models/postprocess"
	"github.com/nvr-ai/go-yolox/util"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] image|dir...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(configPath, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	paths, err := util.ExpandImagePaths(args)
	if err != nil {
		return err
	}
	if cfg.Model.ModelPath == "" {
		return errors.New("model path is required (model.path or YOLOX_MODEL_PATH)")
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	labels := models.YOLOClasses
	if cfg.Model.Labels != "" {
		if labels, err = models.LoadLabels(cfg.Model.Labels); err != nil {
			return err
		}
	}

	engine, err := inference.NewEngineBuilder().
		WithLogger(log).
		WithSession(cfg.Model.SessionConfig).
		WithDetector(labels.Names(), cfg.Detector).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, path := range paths {
		img, err := images.LoadImage(path)
		if err != nil {
			log.Error("skipping image", zap.String("path", path), zap.Error(err))
			continue
		}

		start := time.Now()
		detections, err := engine.Detect(ctx, img.Image)
		if err != nil {
			return err
		}
		report(log, engine, path, img, detections, time.Since(start))
	}
	return nil
}

func report(log *zap.Logger, engine *inference.Engine, path string, img images.Image, detections []postprocess.Detection, elapsed time.Duration) {
	log.Info("image processed",
		zap.String("path", path),
		zap.Int("detections", len(detections)),
		zap.Duration("elapsed", elapsed),
	)

	for _, d := range detections {
		name, err := engine.Detector().Label(d)
		if err != nil {
			name = fmt.Sprintf("class %d", d.Label)
		}
		r := d.Box.Scale(float32(img.Width), float32(img.Height))
		log.Info(fmt.Sprintf("%s: %d%%", name, int(d.Probability*100)),
			zap.String("path", path),
			zap.Float32("x", r.X),
			zap.Float32("y", r.Y),
			zap.Float32("w", r.W),
			zap.Float32("h", r.H),
		)
	}
}
