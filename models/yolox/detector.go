// Package yolox - YOLOX detector.
package yolox

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolox/models/postprocess"
)

// NewDetectorArgs is the arguments for creating a new Detector.
type NewDetectorArgs struct {
	// Width and Height of the model input in pixels.
	Width  int
	Height int
	// NumClasses is the number of class scores per anchor. Zero means NumClasses.
	NumClasses int
	// OutputShape is the shape of the model output tensor, e.g. [1, 3549, 85].
	OutputShape []int64
	// Labels are the class names, indexed by Detection.Label.
	Labels []string
	// Options are the post-processing options.
	Options Options
	// Logger receives construction diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Detector turns raw YOLOX output into detections.
//
// The anchor grid is built once. The proposal and detection buffers are
// reused by every PostProcess call, so a Detector must not be used from more
// than one goroutine at a time.
type Detector struct {
	options    Options
	params     DecodeParams
	anchors    []Anchor
	labels     []string
	outputSize int

	proposals  []postprocess.Detection
	detections []postprocess.Detection
}

// NewDetector creates a new detector.
//
// Arguments:
//   - args: The arguments for creating a new detector.
//
// Returns:
//   - *Detector: The detector.
//   - error: ErrInvalidOptions, ErrLabelCount or ErrOutputShape when the
//     configuration is inconsistent.
func NewDetector(args NewDetectorArgs) (*Detector, error) {
	if err := args.Options.Validate(); err != nil {
		return nil, err
	}
	if args.Width <= 0 || args.Height <= 0 {
		return nil, errors.Wrapf(ErrInvalidOptions, "invalid input size %dx%d", args.Width, args.Height)
	}

	numClasses := args.NumClasses
	if numClasses == 0 {
		numClasses = NumClasses
	}
	if numClasses < 0 {
		return nil, errors.Wrapf(ErrInvalidOptions, "invalid number of classes %d", numClasses)
	}
	if len(args.Labels) != numClasses {
		return nil, errors.Wrapf(ErrLabelCount, "got %d labels for %d classes", len(args.Labels), numClasses)
	}

	anchors := GenerateAnchors(args.Width, args.Height)
	expected := len(anchors) * (numClasses + BoxFields)

	outputSize := int64(1)
	for _, dim := range args.OutputShape {
		outputSize *= dim
	}
	if len(args.OutputShape) == 0 || outputSize != int64(expected) {
		return nil, errors.Wrapf(ErrOutputShape, "output shape %v holds %d values, %d anchors need %d",
			args.OutputShape, outputSize, len(anchors), expected)
	}

	logger := args.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("yolox detector initialized",
		zap.Int64s("output_shape", args.OutputShape),
		zap.Int("output_size", expected),
		zap.Int("anchors", len(anchors)),
		zap.Int("max_detections", args.Options.MaxDetections),
	)

	return &Detector{
		options: args.Options,
		params: DecodeParams{
			Width:         args.Width,
			Height:        args.Height,
			NumClasses:    numClasses,
			ProbThreshold: args.Options.ProbThreshold,
		},
		anchors:    anchors,
		labels:     args.Labels,
		outputSize: expected,
		proposals:  make([]postprocess.Detection, 0, args.Options.MaxDetections),
		detections: make([]postprocess.Detection, 0, args.Options.MaxDetections),
	}, nil
}

// PostProcess decodes, sorts and suppresses one raw output buffer.
//
// The returned slice aliases the detector's buffer and is overwritten by the
// next call.
//
// Arguments:
//   - output: The raw model output.
//
// Returns:
//   - The detections, highest probability first, at most MaxDetections long.
//   - error: ErrOutputSize if output has the wrong length.
func (d *Detector) PostProcess(output []float32) ([]postprocess.Detection, error) {
	if len(output) != d.outputSize {
		return nil, errors.Wrapf(ErrOutputSize, "got %d values, want %d", len(output), d.outputSize)
	}

	if d.options.Workers > 1 {
		d.proposals = GenerateProposalsParallel(d.proposals, output, d.anchors, d.params, d.options.Workers)
	} else {
		d.proposals = GenerateProposals(d.proposals, output, d.anchors, d.params)
	}
	postprocess.SortByProbability(d.proposals)
	d.detections = postprocess.ApplyNMS(d.detections, d.proposals, d.options.NMSThreshold)

	return d.detections, nil
}

// Detections returns the result of the last PostProcess call.
func (d *Detector) Detections() []postprocess.Detection {
	return d.detections
}

// Label resolves the class name of a detection.
func (d *Detector) Label(det postprocess.Detection) (string, error) {
	if det.Label < 0 || det.Label >= len(d.labels) {
		return "", errors.Errorf("label index %d out of range [0, %d)", det.Label, len(d.labels))
	}
	return d.labels[det.Label], nil
}

// Labels returns the class names.
func (d *Detector) Labels() []string { return d.labels }

// Anchors returns the anchor grid. Callers must not modify it.
func (d *Detector) Anchors() []Anchor { return d.anchors }

// Options returns the detector options.
func (d *Detector) Options() Options { return d.options }

// InputSize returns the model input width and height.
func (d *Detector) InputSize() (int, int) { return d.params.Width, d.params.Height }
