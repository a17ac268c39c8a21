package evaluator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/face-capture/internal/logging"
	"github.com/menta2k/face-capture/pkg/detection"
	"github.com/menta2k/face-capture/pkg/frame"
	"github.com/menta2k/face-capture/pkg/geometry"
	"github.com/menta2k/face-capture/pkg/lighting"
	"github.com/menta2k/face-capture/pkg/readiness"
	"github.com/menta2k/face-capture/pkg/types"
)

// Config controls frame preparation and the target region
type Config struct {
	Mirror      bool
	WidthRatio  float64 // ellipse width as a share of the frame width
	HeightRatio float64 // ellipse height as a share of the frame height
}

// DefaultConfig returns the recommended settings
func DefaultConfig() Config {
	return Config{
		Mirror:      true,
		WidthRatio:  geometry.DefaultWidthRatio,
		HeightRatio: geometry.DefaultHeightRatio,
	}
}

// Outcome is everything one evaluation cycle produced
type Outcome struct {
	Frame     image.Image      `json:"-"`
	Region    types.Ellipse    `json:"region"`
	Detection *types.Detection `json:"detection,omitempty"`
	Report    readiness.Report `json:"report"`
	Duration  time.Duration    `json:"duration"`
}

// Result returns the verdict of the cycle
func (o *Outcome) Result() types.EvaluationResult {
	return o.Report.EvaluationResult
}

// Evaluator runs one readiness evaluation per call: take a frame, mirror it,
// gate on lighting, detect, and aggregate
type Evaluator struct {
	source     frame.Source
	detector   detection.Detector
	aggregator *readiness.Aggregator
	config     Config
	log        logrus.FieldLogger
}

// New creates an Evaluator. A nil aggregator uses the defaults; log may be nil.
func New(source frame.Source, detector detection.Detector, aggregator *readiness.Aggregator, config Config, log logrus.FieldLogger) *Evaluator {
	if aggregator == nil {
		aggregator = readiness.New()
	}
	return &Evaluator{
		source:     source,
		detector:   detector,
		aggregator: aggregator,
		config:     config,
		log:        logging.OrDiscard(log),
	}
}

// Cycle pulls the next frame from the source and evaluates it.
// Source and detector failures are returned as errors; quality problems are
// reported in the outcome.
func (e *Evaluator) Cycle(ctx context.Context) (*Outcome, error) {
	if e.source == nil {
		return nil, fmt.Errorf("no frame source configured")
	}
	img, err := e.source.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return e.Evaluate(ctx, img)
}

// Grab pulls the next frame from the source, mirrored as configured, without evaluating it
func (e *Evaluator) Grab(ctx context.Context) (image.Image, error) {
	if e.source == nil {
		return nil, fmt.Errorf("no frame source configured")
	}
	img, err := e.source.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	if e.config.Mirror {
		return frame.Mirror(img), nil
	}
	return img, nil
}

// Evaluate runs the checks on a single frame
func (e *Evaluator) Evaluate(ctx context.Context, img image.Image) (*Outcome, error) {
	start := time.Now()

	var f image.Image = img
	if e.config.Mirror {
		f = frame.Mirror(img)
	}

	b := f.Bounds()
	out := &Outcome{
		Frame:  f,
		Region: geometry.RegionFor(b.Dx(), b.Dy(), e.config.WidthRatio, e.config.HeightRatio),
	}

	stats, err := e.aggregator.Lighting().AnalyzeImage(f)
	if err != nil && !errors.Is(err, lighting.ErrDegenerateFrame) {
		return nil, fmt.Errorf("failed to analyze lighting: %w", err)
	}

	// a dark or empty frame never reaches the detector
	if err == nil && e.aggregator.Lighting().Pass(stats) {
		if e.detector == nil {
			return nil, detection.ErrNoBackend
		}
		det, err := e.detector.DetectFace(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("face detection failed: %w", err)
		}
		out.Detection = det
	}

	out.Report = e.aggregator.Inspect(stats, out.Detection, out.Region)
	out.Duration = time.Since(start)

	e.log.WithFields(logrus.Fields{
		"mean":     stats.Mean,
		"std_dev":  stats.StdDev,
		"detected": out.Detection != nil,
		"ready":    out.Report.Ready,
		"errors":   out.Report.Errors.String(),
		"took":     out.Duration,
	}).Debug("evaluation cycle")

	return out, nil
}
