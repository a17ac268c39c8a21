package detection

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/face-capture/pkg/client"
	"github.com/menta2k/face-capture/pkg/frame"
	"github.com/menta2k/face-capture/pkg/landmarks"
	"github.com/menta2k/face-capture/pkg/types"
)

// ErrNoBackend is returned when a detector has no backend to ask
var ErrNoBackend = errors.New("no detection backend configured")

// Detector finds the most prominent face in a frame.
// A nil detection with a nil error means no face was found.
type Detector interface {
	DetectFace(ctx context.Context, img image.Image) (*types.Detection, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, img image.Image) (*types.Detection, error)

// DetectFace calls f(ctx, img)
func (f DetectorFunc) DetectFace(ctx context.Context, img image.Image) (*types.Detection, error) {
	return f(ctx, img)
}

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks a vision model for a face box and 68 landmarks
const DefaultPrompt = `You are a face locator for a photo booth.

Return JSON only:
{
  "found": true,
  "confidence": 0.0,
  "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
  "landmarks": [[0.0, 0.0]]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels), origin top left.
- Locate the single most prominent human face. The box covers forehead to chin and ear to ear.
- confidence is how sure you are that the box holds a real, unobstructed face.
- landmarks is the standard 68-point facial landmark scheme in order: jaw 0-16, brows 17-26, nose 27-35, eyes 36-47, mouth 48-67. Omit the field if you cannot place all 68 points.
- If no face is visible, return {"found": false, "confidence": 0.0, "box": {"x": 0, "y": 0, "w": 0, "h": 0}}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionConfig controls how frames are sent to a vision model
type VisionConfig struct {
	Model   string
	Prompt  string
	MaxDim  int // longest side sent to the model, 0 keeps the frame size
	Quality int // JPEG quality
}

// DefaultVisionConfig returns the recommended settings
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		Prompt:  DefaultPrompt,
		MaxDim:  768,
		Quality: 90,
	}
}

// VisionDetector locates faces by asking a vision-language model
type VisionDetector struct {
	client client.VisionClient
	config VisionConfig
}

// NewVisionDetector creates a detector backed by a vision client
func NewVisionDetector(c client.VisionClient, config VisionConfig) *VisionDetector {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Quality <= 0 {
		config.Quality = 90
	}
	return &VisionDetector{client: c, config: config}
}

// DetectFace sends the frame to the model and converts its answer to frame pixels
func (d *VisionDetector) DetectFace(ctx context.Context, img image.Image) (*types.Detection, error) {
	if d.client == nil {
		return nil, ErrNoBackend
	}

	imgB64, err := frame.PrepareForModel(img, "jpg", d.config.MaxDim, d.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare frame: %w", err)
	}

	analysis, err := d.client.LocateFace(ctx, d.config.Model, d.config.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("face location failed: %w", err)
	}

	b := img.Bounds()
	return ToDetection(analysis, b.Dx(), b.Dy()), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *VisionDetector) TestVision(ctx context.Context, img image.Image) (string, error) {
	if d.client == nil {
		return "", ErrNoBackend
	}
	imgB64, err := frame.PrepareForModel(img, "jpg", d.config.MaxDim, d.config.Quality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare frame: %w", err)
	}
	return d.client.SimpleQuery(ctx, d.config.Model, SimpleTestPrompt, imgB64)
}

// ToDetection converts a normalized analysis to a pixel detection for a
// frame of the given size. It returns nil when no face was found.
// Landmarks are kept only when all 68 points are present.
func ToDetection(a *types.FaceAnalysis, width, height int) *types.Detection {
	if a == nil || !a.Found {
		return nil
	}

	w, h := float64(width), float64(height)
	det := &types.Detection{
		Box: types.FaceBox{
			X:      a.Box.X * w,
			Y:      a.Box.Y * h,
			Width:  a.Box.W * w,
			Height: a.Box.H * h,
		},
		Score: a.Confidence,
	}

	if len(a.Landmarks) == landmarks.NumLandmarks {
		points := make([]types.Point, len(a.Landmarks))
		for i, p := range a.Landmarks {
			points[i] = types.Point{X: p[0] * w, Y: p[1] * h}
		}
		if l, err := landmarks.FromPoints68(points); err == nil {
			det.Landmarks = l
		}
	}

	return det
}
