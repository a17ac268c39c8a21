package landmarks

import (
	"testing"

	"github.com/menta2k/face-capture/internal/testutil"
	"github.com/menta2k/face-capture/pkg/types"
)

func TestFromPoints68(t *testing.T) {
	l, err := FromPoints68(testutil.FrontalPoints68())
	if err != nil {
		t.Fatalf("FromPoints68 failed: %v", err)
	}

	want := testutil.FrontalLandmarks()

	if len(l.LeftEye) != 6 || len(l.RightEye) != 6 {
		t.Fatalf("Expected 6 points per eye, got %d and %d", len(l.LeftEye), len(l.RightEye))
	}
	if len(l.Nose) != 9 {
		t.Errorf("Expected 9 nose points, got %d", len(l.Nose))
	}
	if len(l.Mouth) != 20 {
		t.Errorf("Expected 20 mouth points, got %d", len(l.Mouth))
	}

	if l.LeftEye[0] != want.LeftEye[0] || l.RightEye[3] != want.RightEye[3] {
		t.Error("Eye groups were not taken from indices 36-47")
	}
	if l.Nose[NoseTip] != (types.Point{X: 320, Y: 240}) {
		t.Errorf("Unexpected nose tip %v", l.Nose[NoseTip])
	}
	if l.Mouth[MouthBottom] != want.Mouth[MouthBottom] {
		t.Error("Mouth group was not taken from indices 48-67")
	}
}

func TestFromPoints68WrongLength(t *testing.T) {
	if _, err := FromPoints68(make([]types.Point, 5)); err == nil {
		t.Error("Expected an error for a partial landmark set")
	}
}

func TestValid(t *testing.T) {
	if !Valid(testutil.FrontalLandmarks()) {
		t.Error("Frontal landmarks should be valid")
	}

	if Valid(nil) {
		t.Error("Missing landmarks must be invalid")
	}

	noLeft := testutil.FrontalLandmarks()
	noLeft.LeftEye = nil
	if Valid(noLeft) {
		t.Error("Missing left eye must be invalid")
	}

	noRight := testutil.FrontalLandmarks()
	noRight.RightEye = []types.Point{}
	if Valid(noRight) {
		t.Error("Empty right eye must be invalid")
	}
}

func TestComplete(t *testing.T) {
	if !Complete(testutil.FrontalLandmarks()) {
		t.Error("Frontal landmarks should be complete")
	}

	shortMouth := testutil.FrontalLandmarks()
	shortMouth.Mouth = shortMouth.Mouth[:9]
	if Complete(shortMouth) {
		t.Error("Mouth without a bottom mid point must be incomplete")
	}

	shortNose := testutil.FrontalLandmarks()
	shortNose.Nose = shortNose.Nose[:3]
	if Complete(shortNose) {
		t.Error("Nose without a tip must be incomplete")
	}

	partialEye := testutil.FrontalLandmarks()
	partialEye.LeftEye = partialEye.LeftEye[:2]
	if Complete(partialEye) {
		t.Error("Partial eye must be incomplete")
	}
	if !Valid(partialEye) {
		t.Error("Partial eye is still non-empty")
	}
}
