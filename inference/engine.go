// Package inference - Inference engine combining a model runner and a detector.
package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolox/images"
	"github.com/nvr-ai/go-yolox/models/postprocess"
	"github.com/nvr-ai/go-yolox/models/yolox"
)

// Engine runs one inference cycle per image: prepare input, run the model,
// post-process the output. It is not safe for concurrent use.
type Engine struct {
	runner   Runner
	detector *yolox.Detector
	logger   *zap.Logger
}

// Detect runs the model on img and returns the detections.
//
// The context is only checked before the cycle starts; a started cycle runs
// to completion. The returned slice is overwritten by the next call.
//
// Arguments:
//   - ctx: The context for the detection.
//   - img: The image to detect objects in.
//
// Returns:
//   - The detections, highest probability first.
//   - error: The error if any.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]postprocess.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width, height := e.detector.InputSize()
	if err := images.PrepareInput(img, width, height, e.runner.Input()); err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := e.runner.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	detections, err := e.detector.PostProcess(e.runner.Output())
	if err != nil {
		return nil, err
	}
	e.logger.Debug("detection cycle complete", zap.Int("detections", len(detections)))
	return detections, nil
}

// Detector returns the post-processing detector.
func (e *Engine) Detector() *yolox.Detector { return e.detector }

// Close releases the runner.
func (e *Engine) Close() error {
	return e.runner.Close()
}

// EngineBuilder helps assemble an Engine with a fluent API.
type EngineBuilder struct {
	runner   Runner
	detector *yolox.Detector
	logger   *zap.Logger
	err      error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{logger: zap.NewNop()}
}

// WithLogger sets the logger used by the session, detector and engine.
func (b *EngineBuilder) WithLogger(logger *zap.Logger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithRunner sets an already constructed model runner.
func (b *EngineBuilder) WithRunner(runner Runner) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.runner = runner
	return b
}

// WithSession creates an ONNX Runtime session as the model runner.
//
// Arguments:
//   - cfg: The session configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithSession(cfg SessionConfig) *EngineBuilder {
	if b.HasError() {
		return b
	}
	session, err := NewSession(cfg, b.logger)
	if err != nil {
		b.err = err
		return b
	}
	b.runner = session
	return b
}

// WithDetector creates the detector for the configured runner. The input
// size is taken from the runner's [batch, channels, height, width] input.
//
// Arguments:
//   - labels: The class names.
//   - opts: The detector options.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithDetector(labels []string, opts yolox.Options) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if b.runner == nil {
		b.err = errors.New("runner must be configured before the detector")
		return b
	}

	in := b.runner.InputShape()
	if len(in) != 4 || in[1] != 3 {
		b.err = errors.Errorf("unsupported input shape %v, want [1, 3, height, width]", in)
		return b
	}

	detector, err := yolox.NewDetector(yolox.NewDetectorArgs{
		Width:       int(in[3]),
		Height:      int(in[2]),
		NumClasses:  len(labels),
		OutputShape: b.runner.OutputShape(),
		Labels:      labels,
		Options:     opts,
		Logger:      b.logger,
	})
	if err != nil {
		b.err = err
		return b
	}
	b.detector = detector
	return b
}

// HasError checks if the engine builder has errors.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the engine. On error any runner created by the builder is closed.
//
// Returns:
//   - *Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		if b.runner != nil {
			_ = b.runner.Close()
		}
		return nil, b.err
	}
	if b.runner == nil {
		return nil, errors.New("runner not configured")
	}
	if b.detector == nil {
		return nil, errors.New("detector not configured")
	}

	return &Engine{
		runner:   b.runner,
		detector: b.detector,
		logger:   b.logger,
	}, nil
}

// MustBuild builds the engine and panics if there is an error.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}
