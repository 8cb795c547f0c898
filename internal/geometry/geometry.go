// Package geometry implements the planar geometry the Analyze driver
// needs: turning a four-point region of interest into a top-down
// rectangle and building the perspective transform between the two,
// grounded on
// original_source/cctv_recanalyzer/srv/cctv_tracking_analysis.py's
// find_closest_rectangle and its cv2.getPerspectiveTransform/
// cv2.perspectiveTransform calls, reimplemented without OpenCV
// bindings since vision/video bindings are out of scope (spec.md §1).
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is a single 2D coordinate, pixel or metric depending on context.
type Point struct {
	X, Y float64
}

// ClosestRectangle derives the destination rectangle for a region of
// interest given as lt, lb, rt, rb (left-top, left-bottom, right-top,
// right-bottom), sized from the ROI's bottom edge length and the
// road's height/width ratio (spec.md §4.7 step 1).
func ClosestRectangle(lt, lb, rt, rb Point, ratio float64) (dst [4]Point, width, height int) {
	width = int(math.Sqrt(math.Pow(lb.X-rb.X, 2) + math.Pow(lb.Y-rb.Y, 2)))
	height = int(math.Round(float64(width) * ratio))
	dst = [4]Point{
		{X: 0, Y: 0},
		{X: 0, Y: float64(height)},
		{X: float64(width), Y: 0},
		{X: float64(width), Y: float64(height)},
	}
	return dst, width, height
}

// Homography is a 3x3 projective transform mapping src-plane points to
// dst-plane points.
type Homography struct {
	h [9]float64
}

// NewHomography solves the 8-unknown homogeneous linear system for the
// projective transform carrying src[i] onto dst[i], for exactly four
// point correspondences (the ROI's four corners), matching
// cv2.getPerspectiveTransform's exact-solve (non-least-squares) case.
func NewHomography(src, dst [4]Point) (*Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewDense(8, 1, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		X, Y := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -x * X, -y * X})
		b.Set(2*i, 0, X)

		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -x * Y, -y * Y})
		b.Set(2*i+1, 0, Y)
	}

	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return nil, err
	}

	return &Homography{h: [9]float64{
		x.At(0, 0), x.At(1, 0), x.At(2, 0),
		x.At(3, 0), x.At(4, 0), x.At(5, 0),
		x.At(6, 0), x.At(7, 0), 1,
	}}, nil
}

// Transform maps p through the homography, equivalent to
// cv2.perspectiveTransform for a single point.
func (h *Homography) Transform(p Point) Point {
	w := h.h[6]*p.X + h.h[7]*p.Y + h.h[8]
	return Point{
		X: (h.h[0]*p.X + h.h[1]*p.Y + h.h[2]) / w,
		Y: (h.h[3]*p.X + h.h[4]*p.Y + h.h[5]) / w,
	}
}

// Matrix3x3 exposes the transform as a flat row-major [9]float64, for
// callers that need to hand it to a warpPerspective-equivalent.
func (h *Homography) Matrix3x3() [9]float64 { return h.h }
