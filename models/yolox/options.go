// Package yolox - detector options.
package yolox

import "github.com/pkg/errors"

// NumClasses is the size of the shipped COCO label set.
const NumClasses = 80

var (
	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("invalid detector options")
	// ErrLabelCount is returned when the label list does not match the class count.
	ErrLabelCount = errors.New("label count does not match number of classes")
	// ErrOutputShape is returned when the model output does not match the anchor grid.
	ErrOutputShape = errors.New("output shape does not match anchor grid")
	// ErrOutputSize is returned when a raw buffer of the wrong length is post-processed.
	ErrOutputSize = errors.New("unexpected output buffer size")
)

// Options holds the post-processing parameters of a Detector.
type Options struct {
	// MaxDetections bounds both the proposal and the detection buffers.
	MaxDetections int `json:"max_detections" yaml:"max_detections" koanf:"maxdetections"`
	// ProbThreshold is the minimum objectness * class score for a proposal.
	ProbThreshold float32 `json:"prob_threshold" yaml:"prob_threshold" koanf:"probthreshold"`
	// NMSThreshold is the IoU above which a same-class box is suppressed.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold" koanf:"nmsthreshold"`
	// Workers enables parallel decoding when greater than 1.
	Workers int `json:"workers" yaml:"workers" koanf:"workers"`
}

// DefaultOptions returns the options the detector ships with.
func DefaultOptions() Options {
	return Options{
		MaxDetections: 10,
		ProbThreshold: 0.3,
		NMSThreshold:  0.45,
		Workers:       1,
	}
}

// Validate checks the option ranges.
//
// Returns:
//   - error: ErrInvalidOptions wrapped with the offending field, or nil.
func (o Options) Validate() error {
	if o.MaxDetections < 1 {
		return errors.Wrapf(ErrInvalidOptions, "max detections must be at least 1, got %d", o.MaxDetections)
	}
	if !(o.ProbThreshold >= 0 && o.ProbThreshold <= 1) {
		return errors.Wrapf(ErrInvalidOptions, "prob threshold must be in [0, 1], got %v", o.ProbThreshold)
	}
	if !(o.NMSThreshold >= 0 && o.NMSThreshold <= 1) {
		return errors.Wrapf(ErrInvalidOptions, "nms threshold must be in [0, 1], got %v", o.NMSThreshold)
	}
	if o.Workers < 0 {
		return errors.Wrapf(ErrInvalidOptions, "workers must not be negative, got %d", o.Workers)
	}
	return nil
}
