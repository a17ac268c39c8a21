package pose

import (
	"math"
	"math/rand"
	"testing"

	"github.com/menta2k/face-capture/internal/testutil"
	"github.com/menta2k/face-capture/pkg/types"
)

func shiftY(points []types.Point, dy float64) {
	for i := range points {
		points[i].Y += dy
	}
}

func TestNew(t *testing.T) {
	v := New()
	if v == nil {
		t.Fatal("New() returned nil")
	}

	if v.config.TiltThreshold != 10 {
		t.Errorf("Expected tilt threshold 10, got %f", v.config.TiltThreshold)
	}
	if v.config.YawThreshold != 0.5 {
		t.Errorf("Expected yaw threshold 0.5, got %f", v.config.YawThreshold)
	}
}

func TestCheckFrontal(t *testing.T) {
	r := New().Check(testutil.FrontalLandmarks())

	if !r.OK() {
		t.Fatalf("Frontal face should pass, got %+v", r)
	}
	if r.EyeAngle != 0 {
		t.Errorf("Expected level eyes, got angle %f", r.EyeAngle)
	}
	if r.PitchRatio != 1 {
		t.Errorf("Expected pitch ratio 1, got %f", r.PitchRatio)
	}
	if !r.Errors().Empty() {
		t.Errorf("Expected no errors, got %s", r.Errors())
	}
}

func TestCheckRoll(t *testing.T) {
	l := testutil.FrontalLandmarks()
	shiftY(l.RightEye, -15) // ~14 degrees

	r := New().Check(l)
	if r.HorizontallyStraight {
		t.Errorf("Expected roll to fail, angle %f", r.EyeAngle)
	}
	if !r.Errors().Equal(types.NewErrorSet(types.HorizontalTilt)) {
		t.Errorf("Expected only horizontalTilt, got %s", r.Errors())
	}

	lenient := NewWithConfig(Config{TiltThreshold: 20, VerticalThreshold: 50, YawThreshold: 0.5, HeadTiltThreshold: 0.3})
	if !lenient.Check(l).HorizontallyStraight {
		t.Error("Roll should pass with a 20 degree tolerance")
	}
}

func TestCheckPitch(t *testing.T) {
	l := testutil.FrontalLandmarks()
	l.Nose[3].Y = 232 // eyes to nose 32, nose to mouth 48

	r := New().Check(l)
	if r.VerticallyStraight {
		t.Errorf("Expected pitch to fail, ratio %f", r.PitchRatio)
	}
	if !r.Errors().Equal(types.NewErrorSet(types.VerticalTilt)) {
		t.Errorf("Expected only verticalTilt, got %s", r.Errors())
	}
}

func TestCheckVerticalDistance(t *testing.T) {
	l := testutil.FrontalLandmarks()
	// scale the lower face so nose to mouth exceeds 50px while the ratio stays 1
	for i := range l.Nose {
		l.Nose[i].Y = 200 + (l.Nose[i].Y-200)*1.5
	}
	for i := range l.Mouth {
		l.Mouth[i].Y = 200 + (l.Mouth[i].Y-200)*1.5
	}

	r := New().Check(l)
	if math.Abs(r.PitchRatio-1) > 1e-9 {
		t.Fatalf("Expected ratio 1, got %f", r.PitchRatio)
	}
	if r.VerticallyStraight {
		t.Errorf("Nose to mouth of %f px should fail", r.NoseToMouthY)
	}
}

func TestCheckYaw(t *testing.T) {
	l := testutil.FrontalLandmarks()
	l.Nose[3].X = 340

	r := New().Check(l)
	if r.YawStraight {
		t.Errorf("Expected yaw to fail, left %f right %f", r.NoseToLeftX, r.NoseToRightX)
	}
	if !r.Errors().Equal(types.NewErrorSet(types.YawRotate)) {
		t.Errorf("Expected only yawRotate, got %s", r.Errors())
	}
}

func TestCheckDegenerateNoseToMouth(t *testing.T) {
	l := testutil.FrontalLandmarks()
	l.Mouth[3].Y = 240
	l.Mouth[9].Y = 240

	r := New().Check(l)
	if r.VerticallyStraight {
		t.Error("Zero nose to mouth distance must fail the vertical check")
	}
	if !math.IsInf(r.PitchRatio, 1) {
		t.Errorf("Expected infinite ratio marker, got %f", r.PitchRatio)
	}
}

func TestCheckIncompleteLandmarks(t *testing.T) {
	v := New()

	if v.Check(nil).OK() {
		t.Error("Missing landmarks must fail")
	}

	l := testutil.FrontalLandmarks()
	l.Mouth = l.Mouth[:4]
	r := v.Check(l)
	if r.Errors().Len() != 3 {
		t.Errorf("Expected all three pose errors, got %s", r.Errors())
	}
}

func TestCheckSymmetricFacesHaveNoYaw(t *testing.T) {
	v := New()
	rng := rand.New(rand.NewSource(11))

	for n := 0; n < 300; n++ {
		axis := 100 + rng.Float64()*400
		l := testutil.FrontalLandmarks()

		// rebuild the left eye at a random offset and mirror it onto the right
		offset := 10 + rng.Float64()*60
		for i, p := range l.LeftEye {
			l.LeftEye[i].X = axis - offset - (320 - p.X - 30)
			l.RightEye[i].X = axis + offset + (320 - p.X - 30)
			l.RightEye[i].Y = p.Y
		}
		for i := range l.Nose {
			l.Nose[i].X = axis
		}

		if r := v.Check(l); !r.YawStraight {
			t.Fatalf("Symmetric face about x=%f reported yaw: left %f right %f", axis, r.NoseToLeftX, r.NoseToRightX)
		}
	}
}

func BenchmarkCheck(b *testing.B) {
	v := New()
	l := testutil.FrontalLandmarks()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Check(l)
	}
}
