// Package overlay renders debug images of an evaluation: the target ellipse,
// the detected face box and the landmark groups.
package overlay

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/face-capture/pkg/types"
)

// EllipseStroke is the width of the target ellipse outline in pixels
const EllipseStroke = 2

// Colors used by Draw
var (
	Red   = color.NRGBA{255, 0, 0, 255}   // target ellipse
	Green = color.NRGBA{0, 255, 0, 255}   // face box, ready
	Gold  = color.NRGBA{255, 204, 0, 255} // face box, not ready
	Blue  = color.NRGBA{0, 170, 255, 255} // landmarks
)

// Draw returns a copy of img with the region, the detection and its landmarks drawn on it.
// det may be nil.
func Draw(img image.Image, region types.Ellipse, det *types.Detection, ready bool) *image.NRGBA {
	dst := DrawRegion(img, region)
	if det == nil {
		return dst
	}

	boxColor := Gold
	if ready {
		boxColor = Green
	}
	drawBox(dst, det.Box, boxColor, EllipseStroke)

	if l := det.Landmarks; l != nil {
		for _, group := range [][]types.Point{l.LeftEye, l.RightEye, l.Nose, l.Mouth} {
			for _, p := range group {
				drawDot(dst, p, Blue)
			}
		}
	}
	return dst
}

// DrawRegion returns a copy of img with the target ellipse outlined in red
func DrawRegion(img image.Image, region types.Ellipse) *image.NRGBA {
	dst := imaging.Clone(img)
	drawEllipse(dst, region, Red, EllipseStroke)
	return dst
}

// drawEllipse paints the ring between the ellipse and the same ellipse shrunk by stroke
func drawEllipse(img *image.NRGBA, e types.Ellipse, c color.NRGBA, stroke int) {
	a, b := e.Width/2, e.Height/2
	if a <= 0 || b <= 0 {
		return
	}
	ia, ib := a-float64(stroke), b-float64(stroke)

	x0, x1 := int(e.CenterX-a)-1, int(e.CenterX+a)+1
	y0, y1 := int(e.CenterY-b)-1, int(e.CenterY+b)+1

	for y := y0; y <= y1; y++ {
		dy := float64(y) + 0.5 - e.CenterY
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - e.CenterX
			if (dx*dx)/(a*a)+(dy*dy)/(b*b) > 1 {
				continue
			}
			if ia > 0 && ib > 0 && (dx*dx)/(ia*ia)+(dy*dy)/(ib*ib) < 1 {
				continue
			}
			setPixel(img, x, y, c)
		}
	}
}

func drawBox(img *image.NRGBA, box types.FaceBox, c color.NRGBA, stroke int) {
	x0, y0 := int(box.X+0.5), int(box.Y+0.5)
	x1, y1 := int(box.X+box.Width+0.5), int(box.Y+box.Height+0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawDot(img *image.NRGBA, p types.Point, c color.NRGBA) {
	x, y := int(p.X+0.5), int(p.Y+0.5)
	for dy := -1; dy <= 1; dy++ {
		drawHLine(img, y+dy, x-1, x+2, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	for x := x0; x < x1; x++ {
		setPixel(img, x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y < y1; y++ {
		setPixel(img, x, y, c)
	}
}

// setPixel writes c at (x, y) relative to the image origin, ignoring points outside
func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	b := img.Bounds()
	if x < 0 || y < 0 || x >= b.Dx() || y >= b.Dy() {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}
