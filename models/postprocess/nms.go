// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import "github.com/nvr-ai/go-yolox/images"

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold  float32 `json:"iou_threshold" yaml:"iou_threshold"`   // Overlap threshold for suppression.
	MaxDetections int     `json:"max_detections" yaml:"max_detections"` // Upper bound on kept detections.
}

// ApplyNMS filters overlapping detections using class-aware greedy
// Non-Maximum Suppression.
//
// A candidate is dropped when it overlaps an already accepted detection of the
// same label by more than iouThreshold. Detections of different labels never
// suppress one another. Survivors are appended to dst in input order until
// cap(dst) is reached.
//
// Arguments:
//   - dst: Destination buffer. Its length is reset; its capacity bounds the result.
//   - proposals: Slice of detections sorted by descending probability.
//   - iouThreshold: IoU threshold above which overlapping boxes are suppressed.
//
// Returns:
//   - dst holding the accepted detections.
func ApplyNMS(dst []Detection, proposals []Detection, iouThreshold float32) []Detection {
	dst = dst[:0]
	limit := cap(dst)

	for _, a := range proposals {
		if len(dst) >= limit {
			break
		}

		keep := true
		for _, b := range dst {
			if b.Label != a.Label {
				continue
			}
			if images.CalculateIoU(a.Box, b.Box) > iouThreshold {
				keep = false
				break
			}
		}
		if keep {
			dst = append(dst, a)
		}
	}

	return dst
}

// ApplyGreedyNMS suppresses proposals into a freshly allocated slice.
//
// Arguments:
//   - detections: Slice of detections sorted by descending probability.
//   - config: NMS configuration. A MaxDetections of zero or less means no cap
//     beyond the number of detections.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Detection, config *NMSConfig) []Detection {
	n := len(detections)
	if n == 0 {
		return nil
	}
	if config.MaxDetections > 0 && config.MaxDetections < n {
		n = config.MaxDetections
	}

	return ApplyNMS(make([]Detection, 0, n), detections, config.IoUThreshold)
}
