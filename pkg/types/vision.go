package types

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FaceAnalysis is the face location a vision model reports for an image.
// Coordinates are normalized to [0,1]; Landmarks holds the 68-point scheme
// in order when the model provides it.
type FaceAnalysis struct {
	Found      bool         `json:"found"`
	Confidence float64      `json:"confidence"`
	Box        Box          `json:"box"`
	Landmarks  [][2]float64 `json:"landmarks,omitempty"`
}
