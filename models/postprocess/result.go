// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"
	"sort"

	"github.com/nvr-ai/go-yolox/images"
)

// Detection represents a single detection result.
type Detection struct {
	// The predicted class index of the detection.
	Label int `json:"label" yaml:"label"`
	// The bounding box in normalized [0, 1] coordinates.
	Box images.Rect `json:"box" yaml:"box"`
	// Objectness multiplied by the class score.
	Probability float32 `json:"probability" yaml:"probability"`
}

func (d Detection) String() string {
	return fmt.Sprintf("label %d (%.0f%%): (%.3f, %.3f, %.3f, %.3f)",
		d.Label, d.Probability*100, d.Box.X, d.Box.Y, d.Box.W, d.Box.H)
}

// SortByProbability sorts detections by probability, highest first.
//
// The sort is stable, so detections with equal probability keep the order
// they were decoded in.
func SortByProbability(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Probability > detections[j].Probability
	})
}
