// Package yolox - YOLOX anchor-free detector post-processing.
package yolox

// Strides are the feature-map downsampling factors of the detection heads,
// lowest first. The raw output lists every cell of each level in this order.
var Strides = [...]int{8, 16, 32}

// Anchor is a feature-map cell that a row of the raw output is decoded against.
type Anchor struct {
	GridX  int
	GridY  int
	Stride int
}

// GenerateAnchors builds the anchor grid for an input of width x height.
//
// Cells are emitted per stride in Strides order, row-major within a stride.
// Dimensions that are not multiples of a stride are truncated.
//
// Arguments:
//   - width: The model input width in pixels.
//   - height: The model input height in pixels.
//
// Returns:
//   - The anchors, one per feature-map cell.
func GenerateAnchors(width, height int) []Anchor {
	anchors := make([]Anchor, 0, NumAnchors(width, height))

	for _, stride := range Strides {
		rows := height / stride
		cols := width / stride
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				anchors = append(anchors, Anchor{GridX: x, GridY: y, Stride: stride})
			}
		}
	}

	return anchors
}

// NumAnchors returns len(GenerateAnchors(width, height)) without building the grid.
func NumAnchors(width, height int) int {
	n := 0
	for _, stride := range Strides {
		rows, cols := height/stride, width/stride
		if rows > 0 && cols > 0 {
			n += rows * cols
		}
	}
	return n
}
