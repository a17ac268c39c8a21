package geometry

import (
	"math"

	"github.com/menta2k/face-capture/pkg/types"
)

// DefaultMargin expands the target ellipse for the containment test
const DefaultMargin = 1.5

// Default share of the frame covered by the target ellipse
const (
	DefaultWidthRatio  = 0.4
	DefaultHeightRatio = 0.75
)

// FitResult reports how a face box sits relative to the target ellipse
type FitResult struct {
	InEllipse bool `json:"in_ellipse"`
	SizeOK    bool `json:"size_ok"`
}

// OK reports whether both the containment and the size test passed
func (r FitResult) OK() bool {
	return r.InEllipse && r.SizeOK
}

// Errors returns the rejection reasons for a failed fit
func (r FitResult) Errors() types.ErrorSet {
	var s types.ErrorSet
	if !r.InEllipse {
		s = s.With(types.OutOfBox)
	}
	if !r.SizeOK {
		s = s.With(types.TooFar)
	}
	return s
}

// RegionFor returns the target ellipse centred in a frame of the given size
func RegionFor(frameWidth, frameHeight int, widthRatio, heightRatio float64) types.Ellipse {
	w, h := float64(frameWidth), float64(frameHeight)
	return types.Ellipse{
		CenterX: w / 2,
		CenterY: h / 2,
		Width:   w * widthRatio,
		Height:  h * heightRatio,
	}
}

// Fit tests a face box against the target region.
// Containment uses the region scaled by margin and requires every corner of
// the box inside it; the size test uses the unscaled region and is inclusive.
func Fit(box types.FaceBox, region types.Ellipse, margin float64) FitResult {
	return FitResult{
		InEllipse: Contains(region, margin, box),
		SizeOK:    box.Width >= region.Width/2 && box.Height >= region.Height/2,
	}
}

// Contains reports whether all four corners of box lie inside the region
// expanded by margin
func Contains(region types.Ellipse, margin float64, box types.FaceBox) bool {
	a := region.Width / 2 * margin
	b := region.Height / 2 * margin
	if !(a > 0) || !(b > 0) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}

	for _, c := range box.Corners() {
		dx := c.X - region.CenterX
		dy := c.Y - region.CenterY
		v := (dx*dx)/(a*a) + (dy*dy)/(b*b)
		if math.IsNaN(v) || v > 1 {
			return false
		}
	}
	return true
}
