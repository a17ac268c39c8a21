// Package testutil builds synthetic frames and detections for tests.
// The frontal face is laid out for a 640x480 frame and is symmetric about x=320.
package testutil

import (
	"image"
	"image/color"

	"github.com/menta2k/face-capture/pkg/types"
)

// Frame dimensions the fixtures are laid out for
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// FrontalBox is a face box centred in the frame and large enough for the default region
var FrontalBox = types.FaceBox{X: 240, Y: 130, Width: 160, Height: 220}

// FrontalLandmarks returns a level, frontal face: eyes at y=200, nose tip at
// (320,240), mouth centre at (320,280)
func FrontalLandmarks() *types.Landmarks {
	return &types.Landmarks{
		LeftEye: []types.Point{
			{X: 275, Y: 200}, {X: 285, Y: 196}, {X: 295, Y: 196},
			{X: 305, Y: 200}, {X: 295, Y: 204}, {X: 285, Y: 204},
		},
		RightEye: []types.Point{
			{X: 335, Y: 200}, {X: 345, Y: 196}, {X: 355, Y: 196},
			{X: 365, Y: 200}, {X: 355, Y: 204}, {X: 345, Y: 204},
		},
		Nose: []types.Point{
			{X: 320, Y: 205}, {X: 320, Y: 217}, {X: 320, Y: 229}, {X: 320, Y: 240},
			{X: 305, Y: 248}, {X: 312, Y: 250}, {X: 320, Y: 252}, {X: 328, Y: 250}, {X: 335, Y: 248},
		},
		Mouth: []types.Point{
			{X: 295, Y: 280}, {X: 303, Y: 276}, {X: 312, Y: 273}, {X: 320, Y: 272},
			{X: 328, Y: 273}, {X: 337, Y: 276}, {X: 345, Y: 280}, {X: 337, Y: 284},
			{X: 328, Y: 287}, {X: 320, Y: 288}, {X: 312, Y: 287}, {X: 303, Y: 284},
			{X: 299, Y: 280}, {X: 312, Y: 277}, {X: 320, Y: 277}, {X: 328, Y: 277},
			{X: 341, Y: 280}, {X: 328, Y: 283}, {X: 320, Y: 283}, {X: 312, Y: 283},
		},
	}
}

// FrontalPoints68 returns the frontal face as a flat 68-point array
func FrontalPoints68() []types.Point {
	l := FrontalLandmarks()
	points := make([]types.Point, 0, 68)

	// jaw line 0-16
	for i := 0; i < 17; i++ {
		points = append(points, types.Point{X: 245 + float64(i)*150/16, Y: 200 + float64(8-abs(i-8))*15})
	}
	// brows 17-26
	for i := 0; i < 10; i++ {
		points = append(points, types.Point{X: 270 + float64(i)*11, Y: 185})
	}
	points = append(points, l.Nose...)
	points = append(points, l.LeftEye...)
	points = append(points, l.RightEye...)
	points = append(points, l.Mouth...)
	return points
}

// FrontalDetection returns a well framed frontal detection with the given score
func FrontalDetection(score float64) *types.Detection {
	return &types.Detection{
		Box:       FrontalBox,
		Score:     score,
		Landmarks: FrontalLandmarks(),
	}
}

// StripedFrame creates a frame of vertical stripes alternating between two grey levels
func StripedFrame(width, height int, a, b uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := a
			if (x/8)%2 == 1 {
				v = b
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

// LitFrame is bright with strong contrast (mean 160, std dev 70)
func LitFrame() *image.RGBA {
	return StripedFrame(FrameWidth, FrameHeight, 90, 230)
}

// DarkFrame fails the lighting gate (mean 40, std dev 10)
func DarkFrame() *image.RGBA {
	return StripedFrame(FrameWidth, FrameHeight, 30, 50)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
