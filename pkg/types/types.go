package types

// Point is a position in frame pixel coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FaceBox is the axis-aligned face bounding box reported by a detector, in pixels
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Corners returns the four corners of the box: top-left, top-right, bottom-left, bottom-right
func (b FaceBox) Corners() [4]Point {
	return [4]Point{
		{X: b.X, Y: b.Y},
		{X: b.X + b.Width, Y: b.Y},
		{X: b.X, Y: b.Y + b.Height},
		{X: b.X + b.Width, Y: b.Y + b.Height},
	}
}

// Landmarks holds the facial feature groups used by the pose checks.
// Groups follow the 68-point scheme: 6 points per eye, the nose ridge and
// base (tip at index 3), and the 20 mouth points.
type Landmarks struct {
	LeftEye  []Point `json:"left_eye"`
	RightEye []Point `json:"right_eye"`
	Nose     []Point `json:"nose"`
	Mouth    []Point `json:"mouth"`
}

// Detection is one detector result for a single frame
type Detection struct {
	Box       FaceBox    `json:"box"`
	Score     float64    `json:"score"`
	Landmarks *Landmarks `json:"landmarks,omitempty"`
}

// Ellipse is the target capture region
type Ellipse struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// FrameStats are the greyscale intensity statistics of one frame
type FrameStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// EvaluationResult is the outcome of one evaluation cycle
type EvaluationResult struct {
	Ready  bool     `json:"ready"`
	Errors ErrorSet `json:"errors"`
}
