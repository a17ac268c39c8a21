// Package landmarks maps the 68-point facial landmark scheme onto the feature
// groups used for pose checks and validates that a detector returned usable
// eye points.
package landmarks

import (
	"fmt"

	"github.com/menta2k/face-capture/pkg/types"
)

// Group boundaries in the 68-point scheme (start inclusive, end exclusive)
const (
	NoseStart     = 27
	NoseEnd       = 36
	LeftEyeStart  = 36
	LeftEyeEnd    = 42
	RightEyeStart = 42
	RightEyeEnd   = 48
	MouthStart    = 48
	MouthEnd      = 68
	NumLandmarks  = 68
)

// Indices within each group that the pose checks read
const (
	EyeOuter    = 0
	EyeUpper    = 1
	EyeInner    = 3
	EyeLower    = 5
	NoseTip     = 3
	MouthLeft   = 0
	MouthTop    = 3
	MouthRight  = 6
	MouthBottom = 9
)

// Minimum group sizes needed by the pose checks
const (
	EyePoints      = 6
	MinNosePoints  = NoseTip + 1
	MinMouthPoints = MouthBottom + 1
)

// FromPoints68 splits a full 68-point landmark array into feature groups
func FromPoints68(points []types.Point) (*types.Landmarks, error) {
	if len(points) != NumLandmarks {
		return nil, fmt.Errorf("expected %d landmarks, got %d", NumLandmarks, len(points))
	}

	group := func(start, end int) []types.Point {
		out := make([]types.Point, end-start)
		copy(out, points[start:end])
		return out
	}

	return &types.Landmarks{
		LeftEye:  group(LeftEyeStart, LeftEyeEnd),
		RightEye: group(RightEyeStart, RightEyeEnd),
		Nose:     group(NoseStart, NoseEnd),
		Mouth:    group(MouthStart, MouthEnd),
	}, nil
}

// Valid reports whether both eye point sets are present.
// A detector that loses the eyes cannot be trusted to have seen a face.
func Valid(l *types.Landmarks) bool {
	return l != nil && len(l.LeftEye) > 0 && len(l.RightEye) > 0
}

// Complete reports whether every group is large enough to be indexed by the pose checks
func Complete(l *types.Landmarks) bool {
	return l != nil &&
		len(l.LeftEye) >= EyePoints &&
		len(l.RightEye) >= EyePoints &&
		len(l.Nose) >= MinNosePoints &&
		len(l.Mouth) >= MinMouthPoints
}
