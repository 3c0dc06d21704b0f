package yolox

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolox/models"
	"github.com/nvr-ai/go-yolox/models/postprocess"
)

const blockSize = NumClasses + BoxFields

// anchorIndex returns the position of the anchor at (x, y) on the given stride.
func anchorIndex(t *testing.T, anchors []Anchor, x, y, stride int) int {
	t.Helper()
	for i, a := range anchors {
		if a == (Anchor{GridX: x, GridY: y, Stride: stride}) {
			return i
		}
	}
	t.Fatalf("anchor (%d, %d, %d) not found", x, y, stride)
	return -1
}

// setBlock writes one anchor block of the raw output.
func setBlock(output []float32, idx int, dx, dy, logW, logH, objectness float32, scores map[int]float32) {
	base := idx * blockSize
	output[base+0] = dx
	output[base+1] = dy
	output[base+2] = logW
	output[base+3] = logH
	output[base+4] = objectness
	for c, s := range scores {
		output[base+BoxFields+c] = s
	}
}

func randomOutput(rng *rand.Rand, numAnchors int) []float32 {
	output := make([]float32, numAnchors*blockSize)
	for i := range output {
		output[i] = rng.Float32()
	}
	return output
}

func params416(threshold float32) DecodeParams {
	return DecodeParams{Width: 416, Height: 416, NumClasses: NumClasses, ProbThreshold: threshold}
}

func TestGenerateAnchors(t *testing.T) {
	anchors := GenerateAnchors(416, 416)
	require.Len(t, anchors, 52*52+26*26+13*13)
	assert.Equal(t, 3549, NumAnchors(416, 416))

	assert.Equal(t, Anchor{GridX: 0, GridY: 0, Stride: 8}, anchors[0])
	assert.Equal(t, Anchor{GridX: 1, GridY: 0, Stride: 8}, anchors[1])
	assert.Equal(t, Anchor{GridX: 0, GridY: 1, Stride: 8}, anchors[52])
	assert.Equal(t, Anchor{GridX: 0, GridY: 0, Stride: 16}, anchors[2704])
	assert.Equal(t, Anchor{GridX: 12, GridY: 12, Stride: 32}, anchors[len(anchors)-1])
}

func TestGenerateAnchors_NonSquare(t *testing.T) {
	tests := []struct {
		width, height int
		expected      int
	}{
		{640, 480, 80*60 + 40*30 + 20*15},
		{100, 100, 12*12 + 6*6 + 3*3}, // truncated
		{16, 16, 2*2 + 1},
		{0, 0, 0},
	}

	for _, tt := range tests {
		anchors := GenerateAnchors(tt.width, tt.height)
		assert.Len(t, anchors, tt.expected, "%dx%d", tt.width, tt.height)
		assert.Equal(t, tt.expected, NumAnchors(tt.width, tt.height))
	}
}

func TestGenerateProposals_SingleDetection(t *testing.T) {
	anchors := GenerateAnchors(416, 416)
	output := make([]float32, len(anchors)*blockSize)
	idx := anchorIndex(t, anchors, 10, 10, 16)
	setBlock(output, idx, 0, 0, 0, 0, 0.9, map[int]float32{5: 0.9})

	proposals := GenerateProposals(make([]postprocess.Detection, 0, 10), output, anchors, params416(0.3))
	require.Len(t, proposals, 1)

	d := proposals[0]
	assert.Equal(t, 5, d.Label)
	assert.InDelta(t, 0.81, d.Probability, 1e-5)

	size := float32(16.0 / 416.0)
	center := float32(160.0 / 416.0)
	assert.InDelta(t, size, d.Box.W, 1e-6)
	assert.InDelta(t, size, d.Box.H, 1e-6)
	assert.InDelta(t, center-size/2, d.Box.X, 1e-6)
	assert.InDelta(t, center-size/2, d.Box.Y, 1e-6)
}

func TestGenerateProposals_BoundsGate(t *testing.T) {
	anchors := GenerateAnchors(416, 416)

	tests := []struct {
		name   string
		dx, dy float32
	}{
		{"right of frame", 5, 0},
		{"left of frame", -20, 0},
		{"below frame", 0, 5},
		{"above frame", 0, -20},
		{"NaN center", float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := make([]float32, len(anchors)*blockSize)
			idx := anchorIndex(t, anchors, 12, 12, 32)
			if tt.dx < 0 || tt.dy < 0 {
				idx = anchorIndex(t, anchors, 0, 0, 32)
			}
			setBlock(output, idx, tt.dx, tt.dy, 0, 0, 1, map[int]float32{0: 1, 1: 1, 79: 1})

			proposals := GenerateProposals(make([]postprocess.Detection, 0, 10), output, anchors, params416(0.1))
			assert.Empty(t, proposals)
		})
	}
}

func TestGenerateProposals_MultipleClassesPerAnchor(t *testing.T) {
	anchors := GenerateAnchors(416, 416)
	output := make([]float32, len(anchors)*blockSize)
	setBlock(output, 100, 0.5, 0.5, 0, 0, 1, map[int]float32{2: 0.8, 7: 0.6})

	proposals := GenerateProposals(make([]postprocess.Detection, 0, 10), output, anchors, params416(0.3))
	require.Len(t, proposals, 2)
	assert.Equal(t, 2, proposals[0].Label)
	assert.Equal(t, 7, proposals[1].Label)
	assert.Equal(t, proposals[0].Box, proposals[1].Box)
}

func TestGenerateProposals_Capacity(t *testing.T) {
	anchors := GenerateAnchors(416, 416)
	output := make([]float32, len(anchors)*blockSize)
	// The first anchor alone qualifies for 3 classes, the second for 2 more.
	setBlock(output, 0, 0.5, 0.5, 0, 0, 1, map[int]float32{0: 0.9, 1: 0.9, 2: 0.9})
	setBlock(output, 1, 0.5, 0.5, 0, 0, 1, map[int]float32{0: 0.99, 1: 0.99})

	proposals := GenerateProposals(make([]postprocess.Detection, 0, 2), output, anchors, params416(0.3))
	require.Len(t, proposals, 2)
	// Decoding stops mid-anchor; the more probable second anchor is never reached.
	assert.Equal(t, 0, proposals[0].Label)
	assert.Equal(t, 1, proposals[1].Label)
	assert.InDelta(t, 0.9, proposals[1].Probability, 1e-6)

	assert.Empty(t, GenerateProposals(nil, output, anchors, params416(0.3)))
}

func TestGenerateProposals_ThresholdMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	anchors := GenerateAnchors(128, 128)
	output := randomOutput(rng, len(anchors))
	for i := range output {
		// Keep offsets small so most anchors pass the bounds gate.
		if i%blockSize < 4 {
			output[i] *= 0.5
		}
	}
	p := DecodeParams{Width: 128, Height: 128, NumClasses: NumClasses}

	prev := math.MaxInt
	for _, threshold := range []float32{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
		p.ProbThreshold = threshold
		n := len(GenerateProposals(make([]postprocess.Detection, 0, len(anchors)*NumClasses), output, anchors, p))
		assert.LessOrEqual(t, n, prev, "threshold %v", threshold)
		prev = n
	}
	assert.Zero(t, prev)
}

func TestGenerateProposals_NaNProbability(t *testing.T) {
	anchors := GenerateAnchors(416, 416)
	output := make([]float32, len(anchors)*blockSize)
	setBlock(output, 10, 0.5, 0.5, 0, 0, float32(math.NaN()), map[int]float32{0: 1})

	assert.Empty(t, GenerateProposals(make([]postprocess.Detection, 0, 10), output, anchors, params416(0)))
}

func TestGenerateProposalsParallel(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	anchors := GenerateAnchors(256, 256)
	output := randomOutput(rng, len(anchors))
	p := DecodeParams{Width: 256, Height: 256, NumClasses: NumClasses, ProbThreshold: 0.85}

	all := len(anchors) * NumClasses
	sequential := GenerateProposals(make([]postprocess.Detection, 0, all), output, anchors, p)
	require.NotEmpty(t, sequential)

	t.Run("matches sequential when capacity is not reached", func(t *testing.T) {
		parallel := GenerateProposalsParallel(make([]postprocess.Detection, 0, all), output, anchors, p, 4)
		assert.ElementsMatch(t, sequential, parallel)
	})

	t.Run("respects capacity", func(t *testing.T) {
		for _, capacity := range []int{1, 7, 50} {
			parallel := GenerateProposalsParallel(make([]postprocess.Detection, 0, capacity), output, anchors, p, 8)
			assert.Len(t, parallel, min(capacity, len(sequential)))
			for _, d := range parallel {
				assert.Greater(t, d.Probability, p.ProbThreshold)
			}
		}
	})

	t.Run("zero capacity", func(t *testing.T) {
		assert.Empty(t, GenerateProposalsParallel(nil, output, anchors, p, 4))
	})
}

func newTestDetector(t *testing.T, opts Options) *Detector {
	t.Helper()
	d, err := NewDetector(NewDetectorArgs{
		Width:       416,
		Height:      416,
		OutputShape: []int64{1, 3549, blockSize},
		Labels:      models.YOLOClasses.Names(),
		Options:     opts,
	})
	require.NoError(t, err)
	return d
}

func TestDetector_EndToEnd(t *testing.T) {
	d := newTestDetector(t, DefaultOptions())

	output := make([]float32, 3549*blockSize)
	idx := anchorIndex(t, d.Anchors(), 10, 10, 16)
	setBlock(output, idx, 0, 0, 0, 0, 0.9, map[int]float32{5: 0.9})

	detections, err := d.PostProcess(output)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, 5, detections[0].Label)
	assert.InDelta(t, 0.81, detections[0].Probability, 1e-5)

	name, err := d.Label(detections[0])
	require.NoError(t, err)
	assert.Equal(t, "bus", name)
	assert.Equal(t, detections, d.Detections())

	// Buffers are reused across cycles.
	empty, err := d.PostProcess(make([]float32, 3549*blockSize))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDetector_SuppressesDuplicates(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDetections = 20
	d := newTestDetector(t, opts)

	output := make([]float32, 3549*blockSize)
	// Two neighbouring stride-8 cells predicting the same large car, plus a
	// person at the same place.
	setBlock(output, anchorIndex(t, d.Anchors(), 20, 20, 8), 0.5, 0.5, 2, 2, 0.9, map[int]float32{2: 0.9, 0: 0.6})
	setBlock(output, anchorIndex(t, d.Anchors(), 21, 20, 8), 0.1, 0.5, 2, 2, 0.9, map[int]float32{2: 0.8})

	detections, err := d.PostProcess(output)
	require.NoError(t, err)
	require.Len(t, detections, 2)
	assert.Equal(t, 2, detections[0].Label)
	assert.InDelta(t, 0.81, detections[0].Probability, 1e-5)
	assert.Equal(t, 0, detections[1].Label)
}

func TestDetector_Parallel(t *testing.T) {
	opts := DefaultOptions()
	opts.Workers = 4
	d := newTestDetector(t, opts)

	output := make([]float32, 3549*blockSize)
	setBlock(output, anchorIndex(t, d.Anchors(), 3, 3, 32), 0.5, 0.5, 0, 0, 0.95, map[int]float32{16: 0.9})

	detections, err := d.PostProcess(output)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, 16, detections[0].Label)
}

func TestDetector_PostProcessSize(t *testing.T) {
	d := newTestDetector(t, DefaultOptions())

	_, err := d.PostProcess(make([]float32, 10))
	assert.True(t, errors.Is(err, ErrOutputSize))
}

func TestNewDetector_Errors(t *testing.T) {
	valid := NewDetectorArgs{
		Width:       416,
		Height:      416,
		OutputShape: []int64{1, 3549, blockSize},
		Labels:      models.YOLOClasses.Names(),
		Options:     DefaultOptions(),
	}

	tests := []struct {
		name   string
		mutate func(*NewDetectorArgs)
		err    error
	}{
		{"zero max detections", func(a *NewDetectorArgs) { a.Options.MaxDetections = 0 }, ErrInvalidOptions},
		{"prob threshold above 1", func(a *NewDetectorArgs) { a.Options.ProbThreshold = 1.5 }, ErrInvalidOptions},
		{"negative nms threshold", func(a *NewDetectorArgs) { a.Options.NMSThreshold = -0.1 }, ErrInvalidOptions},
		{"NaN prob threshold", func(a *NewDetectorArgs) { a.Options.ProbThreshold = float32(math.NaN()) }, ErrInvalidOptions},
		{"zero width", func(a *NewDetectorArgs) { a.Width = 0 }, ErrInvalidOptions},
		{"missing labels", func(a *NewDetectorArgs) { a.Labels = a.Labels[:79] }, ErrLabelCount},
		{"output for another resolution", func(a *NewDetectorArgs) { a.OutputShape = []int64{1, 8400, blockSize} }, ErrOutputShape},
		{"empty output shape", func(a *NewDetectorArgs) { a.OutputShape = nil }, ErrOutputShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := valid
			args.Labels = append([]string(nil), valid.Labels...)
			tt.mutate(&args)

			d, err := NewDetector(args)
			assert.Nil(t, d)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}

	_, err := NewDetector(valid)
	assert.NoError(t, err)
}

func TestDetector_LabelOutOfRange(t *testing.T) {
	d := newTestDetector(t, DefaultOptions())

	_, err := d.Label(postprocess.Detection{Label: 80})
	assert.Error(t, err)
	_, err = d.Label(postprocess.Detection{Label: -1})
	assert.Error(t, err)
}

func BenchmarkDetector_PostProcess(b *testing.B) {
	rng := rand.New(rand.NewSource(5))
	d, err := NewDetector(NewDetectorArgs{
		Width:       416,
		Height:      416,
		OutputShape: []int64{1, 3549, blockSize},
		Labels:      models.YOLOClasses.Names(),
		Options:     DefaultOptions(),
	})
	require.NoError(b, err)
	output := randomOutput(rng, 3549)
	for i := range output {
		output[i] *= 0.5
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = d.PostProcess(output)
	}
}
