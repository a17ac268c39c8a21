package pose

import (
	"math"

	"github.com/menta2k/face-capture/pkg/landmarks"
	"github.com/menta2k/face-capture/pkg/types"
)

// minNoseToMouth is the smallest nose to mouth distance the pitch ratio is computed for
const minNoseToMouth = 1e-6

// Config holds the head pose tolerances
type Config struct {
	TiltThreshold     float64 // maximum eye line angle in degrees
	VerticalThreshold float64 // maximum vertical misalignment in pixels
	YawThreshold      float64 // allowed nose to eye asymmetry, relative to the shorter side
	HeadTiltThreshold float64 // allowed deviation of the eyes-nose / nose-mouth ratio from 1
}

// DefaultConfig returns the recommended tolerances
func DefaultConfig() Config {
	return Config{
		TiltThreshold:     10,
		VerticalThreshold: 50,
		YawThreshold:      0.5,
		HeadTiltThreshold: 0.3,
	}
}

// Result reports the three pose checks and the measurements behind them
type Result struct {
	HorizontallyStraight bool `json:"horizontally_straight"`
	VerticallyStraight   bool `json:"vertically_straight"`
	YawStraight          bool `json:"yaw_straight"`

	EyeAngle     float64 `json:"eye_angle"`
	EyeDeltaY    float64 `json:"eye_delta_y"`
	NoseToMouthY float64 `json:"nose_to_mouth_y"`
	PitchRatio   float64 `json:"pitch_ratio"`
	NoseToLeftX  float64 `json:"nose_to_left_x"`
	NoseToRightX float64 `json:"nose_to_right_x"`
}

// OK reports whether the head is straight on every axis
func (r Result) OK() bool {
	return r.HorizontallyStraight && r.VerticallyStraight && r.YawStraight
}

// Errors returns the rejection reasons for the failed checks
func (r Result) Errors() types.ErrorSet {
	var s types.ErrorSet
	if !r.HorizontallyStraight {
		s = s.With(types.HorizontalTilt)
	}
	if !r.VerticallyStraight {
		s = s.With(types.VerticalTilt)
	}
	if !r.YawStraight {
		s = s.With(types.YawRotate)
	}
	return s
}

// Validator checks head orientation from facial landmarks
type Validator struct {
	config Config
}

// New creates a new Validator with default configuration
func New() *Validator {
	return &Validator{config: DefaultConfig()}
}

// NewWithConfig creates a new Validator with custom configuration
func NewWithConfig(config Config) *Validator {
	return &Validator{config: config}
}

// Check measures roll, pitch and yaw of the head.
// Landmark groups too small to index fail every check.
func (v *Validator) Check(l *types.Landmarks) Result {
	if !landmarks.Complete(l) {
		return Result{PitchRatio: math.NaN()}
	}

	leftEye := eyeCenter(l.LeftEye)
	rightEye := eyeCenter(l.RightEye)
	noseTip := l.Nose[landmarks.NoseTip]
	mouth := mouthCenter(l.Mouth)

	var r Result

	// roll: angle of the line between the eye centres
	r.EyeAngle = math.Atan2(rightEye.Y-leftEye.Y, rightEye.X-leftEye.X) * 180 / math.Pi
	r.HorizontallyStraight = math.Abs(r.EyeAngle) <= v.config.TiltThreshold

	// pitch: eyes-to-nose should match nose-to-mouth
	r.EyeDeltaY = math.Abs(leftEye.Y - rightEye.Y)
	eyesToNose := math.Abs((leftEye.Y+rightEye.Y)/2 - noseTip.Y)
	r.NoseToMouthY = math.Abs(noseTip.Y - mouth.Y)

	ratioOK := false
	if r.NoseToMouthY >= minNoseToMouth {
		r.PitchRatio = eyesToNose / r.NoseToMouthY
		ratioOK = !math.IsNaN(r.PitchRatio) && !math.IsInf(r.PitchRatio, 0) &&
			math.Abs(r.PitchRatio-1) <= v.config.HeadTiltThreshold
	} else {
		r.PitchRatio = math.Inf(1)
	}
	r.VerticallyStraight = r.EyeDeltaY <= v.config.VerticalThreshold &&
		r.NoseToMouthY <= v.config.VerticalThreshold &&
		ratioOK

	// yaw: the nose sits halfway between the eyes when facing the camera
	r.NoseToLeftX = math.Abs(noseTip.X - leftEye.X)
	r.NoseToRightX = math.Abs(noseTip.X - rightEye.X)
	r.YawStraight = math.Abs(r.NoseToLeftX-r.NoseToRightX) <=
		v.config.YawThreshold*math.Min(r.NoseToLeftX, r.NoseToRightX)

	return r
}

// eyeCenter averages the corner x-pair and the lid y-pair of a 6-point eye
func eyeCenter(eye []types.Point) types.Point {
	return types.Point{
		X: (eye[landmarks.EyeOuter].X + eye[landmarks.EyeInner].X) / 2,
		Y: (eye[landmarks.EyeUpper].Y + eye[landmarks.EyeLower].Y) / 2,
	}
}

func mouthCenter(mouth []types.Point) types.Point {
	return types.Point{
		X: (mouth[landmarks.MouthLeft].X + mouth[landmarks.MouthRight].X) / 2,
		Y: (mouth[landmarks.MouthTop].Y + mouth[landmarks.MouthBottom].Y) / 2,
	}
}
