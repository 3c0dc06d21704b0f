// Package images - Image geometry and input preparation utilities.
package images

// Rect is an axis-aligned box in normalized image coordinates.
//
// X and Y are the top-left corner, W and H the extent. All values are
// fractions of the model input size, so a box covering the whole input is
// Rect{0, 0, 1, 1}.
type Rect struct {
	X, Y, W, H float32
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float32 { return r.X + r.W }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float32 { return r.Y + r.H }

// Area returns the area of the rectangle, or 0 for degenerate rectangles.
func (r Rect) Area() float32 {
	if !(r.W > 0 && r.H > 0) {
		return 0
	}
	return r.W * r.H
}

// Scale converts a normalized rectangle into pixel space.
//
// Arguments:
//   - width: The width of the target surface in pixels.
//   - height: The height of the target surface in pixels.
//
// Returns:
//   - The rectangle in pixel coordinates.
func (r Rect) Scale(width, height float32) Rect {
	return Rect{X: r.X * width, Y: r.Y * height, W: r.W * width, H: r.H * height}
}

// CalculateIoU returns the Intersection over Union of two rectangles.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the rectangles are identical and 0.0 means they do not
// overlap at all. Rectangles that only touch along an edge do not overlap.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X: 0, Y: 0, W: 0.5, H: 0.5}
//	b := Rect{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}
//
//	CalculateIoU(a, b) // intersection 0.0625, union 0.4375: 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X, o.X)
	iy1 := max(r.Y, o.Y)
	ix2 := min(r.Right(), o.Right())
	iy2 := min(r.Bottom(), o.Bottom())

	interW := ix2 - ix1
	interH := iy2 - iy1
	// Negated comparison so NaN extents count as no overlap.
	if !(interW > 0 && interH > 0) {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if !(unionArea > 0) {
		return 0.0
	}

	return interArea / unionArea
}
