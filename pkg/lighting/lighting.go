// Package lighting gates frames on brightness and contrast before any face
// analysis runs. Statistics come from a 256-bucket greyscale histogram.
package lighting

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/face-capture/pkg/types"
)

// ErrDegenerateFrame is returned when a histogram holds no pixels
var ErrDegenerateFrame = errors.New("degenerate frame: histogram is empty")

// Buckets is the number of intensity levels in a histogram
const Buckets = 256

// Config holds the lighting gate thresholds
type Config struct {
	LightThreshold    float64 // mean intensity must exceed this
	ContrastThreshold float64 // intensity standard deviation must exceed this
}

// DefaultConfig returns the recommended thresholds
func DefaultConfig() Config {
	return Config{
		LightThreshold:    80,
		ContrastThreshold: 30,
	}
}

// Analyzer computes frame statistics and applies the lighting gate
type Analyzer struct {
	config Config
}

// New creates a new Analyzer with default configuration
func New() *Analyzer {
	return &Analyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new Analyzer with custom configuration
func NewWithConfig(config Config) *Analyzer {
	return &Analyzer{config: config}
}

// Config returns the analyzer thresholds
func (a *Analyzer) Config() Config {
	return a.config
}

// Analyze computes mean and standard deviation of intensity from a histogram.
// The pixel count is the sum of all buckets.
func Analyze(hist [Buckets]int) (types.FrameStats, error) {
	var total, weighted float64
	for i, count := range hist {
		if count < 0 {
			return types.FrameStats{}, ErrDegenerateFrame
		}
		total += float64(count)
		weighted += float64(i) * float64(count)
	}
	if total == 0 {
		return types.FrameStats{}, ErrDegenerateFrame
	}

	mean := weighted / total

	var sq float64
	for i, count := range hist {
		d := float64(i) - mean
		sq += d * d * float64(count)
	}

	return types.FrameStats{
		Mean:   mean,
		StdDev: math.Sqrt(sq / total),
	}, nil
}

// Pass reports whether the frame is bright enough and has enough contrast
func (a *Analyzer) Pass(stats types.FrameStats) bool {
	return stats.Mean > a.config.LightThreshold && stats.StdDev > a.config.ContrastThreshold
}

// AnalyzeImage converts the image to greyscale and returns its statistics
func (a *Analyzer) AnalyzeImage(img image.Image) (types.FrameStats, error) {
	return Analyze(Histogram(img))
}

// Histogram counts greyscale intensities of every pixel in img
func Histogram(img image.Image) [Buckets]int {
	var hist [Buckets]int
	if img == nil || img.Bounds().Empty() {
		return hist
	}

	grey := imaging.Grayscale(img)
	w, h := grey.Bounds().Dx(), grey.Bounds().Dy()
	for y := 0; y < h; y++ {
		i := y * grey.Stride
		for x := 0; x < w; x++ {
			// R, G and B are equal after Grayscale
			hist[grey.Pix[i]]++
			i += 4
		}
	}
	return hist
}
