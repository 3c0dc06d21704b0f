// Package yolox - decode raw YOLOX output into proposals.
package yolox

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-yolox/images"
	"github.com/nvr-ai/go-yolox/models/postprocess"
)

// BoxFields is the number of values preceding the class scores in each
// anchor block: cx offset, cy offset, log width, log height, objectness.
const BoxFields = 5

// DecodeParams describes the raw output being decoded.
type DecodeParams struct {
	// Width and Height of the model input, used to normalize boxes.
	Width  int
	Height int
	// NumClasses is the number of class scores per anchor.
	NumClasses int
	// ProbThreshold is the exclusive lower bound on objectness * class score.
	ProbThreshold float32
}

// decodeAnchor decodes one anchor block and passes every class whose
// probability clears the threshold to emit. It stops as soon as emit returns
// false and reports whether decoding may continue.
func decodeAnchor(block []float32, a Anchor, p DecodeParams, widthScale, heightScale float32, emit func(postprocess.Detection) bool) bool {
	stride := float32(a.Stride)

	cx := (block[0] + float32(a.GridX)) * stride * widthScale
	cy := (block[1] + float32(a.GridY)) * stride * heightScale
	w := math32.Exp(block[2]) * stride * widthScale
	h := math32.Exp(block[3]) * stride * heightScale

	// Reject centers outside the frame before touching the class scores.
	// Written as a negation so NaN centers are rejected too.
	if !(cx >= 0 && cx <= 1 && cy >= 0 && cy <= 1) {
		return true
	}

	box := images.Rect{X: cx - w*0.5, Y: cy - h*0.5, W: w, H: h}
	objectness := block[4]

	for c, score := range block[BoxFields : BoxFields+p.NumClasses] {
		prob := objectness * score
		if prob > p.ProbThreshold {
			if !emit(postprocess.Detection{Label: c, Box: box, Probability: prob}) {
				return false
			}
		}
	}

	return true
}

// GenerateProposals decodes output into at most cap(dst) detections.
//
// Anchors are scanned in order and decoding stops the moment dst is full, so
// at capacity later (possibly more probable) candidates are never seen. The
// result is unsorted.
//
// Arguments:
//   - dst: Destination buffer. Its length is reset; its capacity bounds the result.
//   - output: The raw model output, len(anchors)*(NumClasses+5) values.
//   - anchors: The anchor grid the output was produced for.
//   - p: Decode parameters.
//
// Returns:
//   - dst holding the proposals. Empty when nothing clears the threshold.
func GenerateProposals(dst []postprocess.Detection, output []float32, anchors []Anchor, p DecodeParams) []postprocess.Detection {
	dst = dst[:0]
	limit := cap(dst)
	if limit == 0 {
		return dst
	}

	blockSize := p.NumClasses + BoxFields
	widthScale := 1 / float32(p.Width)
	heightScale := 1 / float32(p.Height)

	emit := func(d postprocess.Detection) bool {
		dst = append(dst, d)
		return len(dst) < limit
	}

	for i, a := range anchors {
		base := i * blockSize
		if !decodeAnchor(output[base:base+blockSize], a, p, widthScale, heightScale, emit) {
			break
		}
	}

	return dst
}

// GenerateProposalsParallel decodes output like GenerateProposals, splitting
// the anchors across workers goroutines.
//
// Workers claim destination slots through a shared counter bounded at
// cap(dst). The order of the result, and at capacity which candidates made it
// in, depends on scheduling.
//
// Arguments:
//   - dst: Destination buffer; its capacity bounds the result.
//   - output: The raw model output.
//   - anchors: The anchor grid the output was produced for.
//   - p: Decode parameters.
//   - workers: Number of goroutines. Values below 1 use runtime.NumCPU().
//
// Returns:
//   - dst holding the proposals.
func GenerateProposalsParallel(dst []postprocess.Detection, output []float32, anchors []Anchor, p DecodeParams, workers int) []postprocess.Detection {
	limit := cap(dst)
	if limit == 0 {
		return dst[:0]
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers == 1 || len(anchors) < workers {
		return GenerateProposals(dst, output, anchors, p)
	}

	dst = dst[:limit]
	blockSize := p.NumClasses + BoxFields
	widthScale := 1 / float32(p.Width)
	heightScale := 1 / float32(p.Height)

	var count atomic.Int64
	emit := func(d postprocess.Detection) bool {
		slot := count.Add(1) - 1
		if slot >= int64(limit) {
			return false
		}
		dst[slot] = d
		return slot+1 < int64(limit)
	}

	var wg sync.WaitGroup
	chunk := (len(anchors) + workers - 1) / workers
	for start := 0; start < len(anchors); start += chunk {
		end := min(start+chunk, len(anchors))
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				if count.Load() >= int64(limit) {
					return
				}
				base := i * blockSize
				if !decodeAnchor(output[base:base+blockSize], anchors[i], p, widthScale, heightScale, emit) {
					return
				}
			}
		}(start, end)
	}
	wg.Wait()

	return dst[:min(int(count.Load()), limit)]
}
