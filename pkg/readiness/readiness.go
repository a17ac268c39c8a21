// Package readiness combines the lighting, framing, pose, landmark and
// visibility checks into a single capture verdict.
//
// Checks run in a fixed order. A frame that fails the lighting gate is
// rejected with LowLight alone. A frame without a detected face is rejected
// with no reason at all: the detector found nothing to complain about, and
// callers that need a "no face" hint must derive it from Ready=false with an
// empty error set. Every call builds a fresh error set; nothing carries over
// between calls.
package readiness

import (
	"github.com/menta2k/face-capture/pkg/geometry"
	"github.com/menta2k/face-capture/pkg/landmarks"
	"github.com/menta2k/face-capture/pkg/lighting"
	"github.com/menta2k/face-capture/pkg/pose"
	"github.com/menta2k/face-capture/pkg/types"
)

// Config holds the aggregator settings that are not owned by a sub-validator
type Config struct {
	ScoreThreshold float64 // detection score must exceed this
	EllipseMargin  float64 // expansion of the target ellipse for containment
}

// DefaultConfig returns the recommended settings
func DefaultConfig() Config {
	return Config{
		ScoreThreshold: 0.9,
		EllipseMargin:  geometry.DefaultMargin,
	}
}

// Report is the verdict of one evaluation together with the sub-results that produced it
type Report struct {
	types.EvaluationResult
	Stats     types.FrameStats   `json:"stats"`
	Lit       bool               `json:"lit"`
	Detected  bool               `json:"detected"`
	Fit       geometry.FitResult `json:"fit"`
	Pose      pose.Result        `json:"pose"`
	Landmarks bool               `json:"landmarks_valid"`
	Visible   bool               `json:"visible"`
}

// Aggregator runs the readiness checks in order
type Aggregator struct {
	config   Config
	lighting *lighting.Analyzer
	pose     *pose.Validator
}

// New creates a new Aggregator with default configuration
func New() *Aggregator {
	return &Aggregator{
		config:   DefaultConfig(),
		lighting: lighting.New(),
		pose:     pose.New(),
	}
}

// NewWithConfig creates a new Aggregator with custom configuration
func NewWithConfig(config Config, lightingConfig lighting.Config, poseConfig pose.Config) *Aggregator {
	return &Aggregator{
		config:   config,
		lighting: lighting.NewWithConfig(lightingConfig),
		pose:     pose.NewWithConfig(poseConfig),
	}
}

// Lighting returns the lighting analyzer used for the gate
func (a *Aggregator) Lighting() *lighting.Analyzer {
	return a.lighting
}

// Evaluate returns the capture verdict for one frame.
// det is nil when no face was found.
func (a *Aggregator) Evaluate(stats types.FrameStats, det *types.Detection, region types.Ellipse) types.EvaluationResult {
	return a.Inspect(stats, det, region).EvaluationResult
}

// Inspect is Evaluate with the intermediate results exposed
func (a *Aggregator) Inspect(stats types.FrameStats, det *types.Detection, region types.Ellipse) Report {
	rep := Report{Stats: stats}

	if !a.lighting.Pass(stats) {
		rep.Errors = types.NewErrorSet(types.LowLight)
		return rep
	}
	rep.Lit = true

	if det == nil {
		return rep
	}
	rep.Detected = true

	rep.Fit = geometry.Fit(det.Box, region, a.config.EllipseMargin)
	rep.Pose = a.pose.Check(det.Landmarks)
	rep.Landmarks = landmarks.Valid(det.Landmarks)
	rep.Visible = det.Score > a.config.ScoreThreshold

	errs := rep.Fit.Errors().Union(rep.Pose.Errors())
	if !rep.Landmarks || !rep.Visible {
		errs = errs.With(types.FaceVisibility)
	}

	rep.Errors = errs
	rep.Ready = rep.Fit.OK() && rep.Pose.OK() && rep.Landmarks && rep.Visible
	return rep
}
