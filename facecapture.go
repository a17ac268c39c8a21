// Package facecapture decides, frame by frame, whether a camera frame is good
// enough to capture a face photo or to start a short face video.
//
// Every cycle runs the same checks in a fixed order: a lighting gate on the
// greyscale histogram, face detection, containment of the face box in a
// centred target ellipse, head pose from facial landmarks, landmark
// completeness and the detector confidence. The outcome is a readiness verdict
// together with the set of reasons the frame was rejected.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		facecapture "github.com/menta2k/face-capture"
//	)
//
//	func main() {
//		cfg := facecapture.DefaultConfig()
//		cfg.Backend.Model = "qwen2.5vl:7b"
//
//		fc, err := facecapture.New(cfg, nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer fc.Close()
//
//		out, err := fc.EvaluateFile(context.Background(), "frame.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("ready=%v errors=%s\n", out.Result().Ready, out.Result().Errors)
//	}
//
// The building blocks live in their own packages:
//
//   - pkg/lighting, pkg/geometry, pkg/pose and pkg/landmarks: the individual checks
//   - pkg/readiness: combines the checks into one verdict
//   - pkg/evaluator: one cycle over a frame source and a face detector
//   - pkg/session: the capture state machine driving cycles on a timer
//   - pkg/capture: photo and video artifacts and where they are stored
//
// Face detectors are pluggable. Vision-language models are reached through
// Ollama or a llama.cpp server, and a dedicated landmark service through a
// websocket connection.
package facecapture

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/face-capture/internal/config"
	"github.com/menta2k/face-capture/internal/logging"
	"github.com/menta2k/face-capture/pkg/capture"
	"github.com/menta2k/face-capture/pkg/client"
	"github.com/menta2k/face-capture/pkg/detection"
	"github.com/menta2k/face-capture/pkg/evaluator"
	"github.com/menta2k/face-capture/pkg/frame"
	"github.com/menta2k/face-capture/pkg/llamacpp"
	"github.com/menta2k/face-capture/pkg/ollama"
	"github.com/menta2k/face-capture/pkg/overlay"
	"github.com/menta2k/face-capture/pkg/readiness"
	"github.com/menta2k/face-capture/pkg/session"
	"github.com/menta2k/face-capture/pkg/types"
	"github.com/menta2k/face-capture/pkg/wsdetector"
)

// Version of the face capture library
const Version = "1.0.0"

// Config is the complete configuration of a FaceCapture
type Config = config.Config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return config.Default()
}

// Backend is a face detector together with its lifecycle hooks
type Backend struct {
	Detector detection.Detector
	Warmup   func(ctx context.Context) error // optional
	Close    func() error                    // optional
}

// FaceCapture wires a detector backend, the readiness checks and an artifact
// store together according to one configuration
type FaceCapture struct {
	config     *Config
	backend    Backend
	store      capture.Store
	aggregator *readiness.Aggregator
	log        logrus.FieldLogger
}

// New validates the configuration and builds the configured backend and store
func New(cfg *Config, log logrus.FieldLogger) (*FaceCapture, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log = logging.OrDiscard(log)

	backend, err := NewBackend(cfg.Backend, log)
	if err != nil {
		return nil, err
	}

	store, err := NewStore(cfg.Store)
	if err != nil {
		if backend.Close != nil {
			backend.Close()
		}
		return nil, err
	}

	return NewWithBackend(cfg, backend, store, log), nil
}

// NewWithBackend creates a FaceCapture around an existing backend and store.
// store may be nil, in which case Save fails.
func NewWithBackend(cfg *Config, backend Backend, store capture.Store, log logrus.FieldLogger) *FaceCapture {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &FaceCapture{
		config:     cfg,
		backend:    backend,
		store:      store,
		aggregator: cfg.Aggregator(),
		log:        logging.OrDiscard(log),
	}
}

// NewBackend creates the face detector selected by cfg.Kind.
// Every detection call is bounded by the configured timeout.
func NewBackend(cfg config.BackendConfig, log logrus.FieldLogger) (Backend, error) {
	var b Backend
	log = logging.OrDiscard(log)

	switch cfg.Kind {
	case "ollama", "llamacpp":
		var c client.VisionClient
		if cfg.Kind == "ollama" {
			oc, err := ollama.NewClient(cfg.URL)
			if err != nil {
				return b, fmt.Errorf("failed to create ollama client: %w", err)
			}
			c = oc
		} else {
			lc, err := llamacpp.NewClient(cfg.URL)
			if err != nil {
				return b, fmt.Errorf("failed to create llama.cpp client: %w", err)
			}
			c = lc
		}

		vd := detection.NewVisionDetector(c, cfg.ToVision())
		b.Detector = vd
		b.Warmup = func(ctx context.Context) error {
			reply, err := vd.TestVision(ctx, warmupFrame())
			if err != nil {
				return fmt.Errorf("model %s is not available: %w", cfg.Model, err)
			}
			log.WithField("reply", reply).Debug("vision model warmed up")
			return nil
		}

	case "ws":
		wcfg := wsdetector.DefaultConfig(cfg.URL)
		if cfg.Quality > 0 {
			wcfg.JPEGQuality = cfg.Quality
		}
		wd := wsdetector.New(wcfg, log)
		b.Detector = wd
		b.Warmup = wd.Connect
		b.Close = wd.Close

	default:
		return b, fmt.Errorf("unknown backend %q", cfg.Kind)
	}

	if timeout := cfg.Timeout(); timeout > 0 {
		inner := b.Detector
		b.Detector = detection.DetectorFunc(func(ctx context.Context, img image.Image) (*types.Detection, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return inner.DetectFace(ctx, img)
		})
	}

	return b, nil
}

// NewStore creates the artifact store selected by cfg.Kind; "none" returns nil
func NewStore(cfg config.StoreConfig) (capture.Store, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "local":
		return capture.NewLocalStore(cfg.Dir)
	case "s3":
		return capture.NewS3Store(cfg.ToS3())
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Kind)
	}
}

// warmupFrame is a plain mid-grey frame for the model availability probe
func warmupFrame() image.Image {
	return imaging.New(64, 64, color.NRGBA{128, 128, 128, 255})
}

// Config returns the active configuration
func (fc *FaceCapture) Config() *Config {
	return fc.config
}

// Detector returns the face detector
func (fc *FaceCapture) Detector() detection.Detector {
	return fc.backend.Detector
}

// Evaluator creates an evaluator reading frames from source
func (fc *FaceCapture) Evaluator(source frame.Source) *evaluator.Evaluator {
	return evaluator.New(source, fc.backend.Detector, fc.aggregator, fc.config.Region.ToEvaluator(), fc.log)
}

// Evaluate runs one evaluation on a single frame
func (fc *FaceCapture) Evaluate(ctx context.Context, img image.Image) (*evaluator.Outcome, error) {
	return fc.Evaluator(nil).Evaluate(ctx, img)
}

// EvaluateFile loads an image file or URL and evaluates it
func (fc *FaceCapture) EvaluateFile(ctx context.Context, location string) (*evaluator.Outcome, error) {
	src, err := frame.Open(location, false)
	if err != nil {
		return nil, err
	}
	return fc.Evaluator(src).Cycle(ctx)
}

// NewSession creates a capture session over source. The backend warmup runs
// before the first evaluation.
func (fc *FaceCapture) NewSession(source frame.Source) *session.Session {
	cfg := fc.config.ToSession()
	cfg.Warmup = fc.backend.Warmup
	return session.New(fc.Evaluator(source), cfg, fc.log)
}

// Overlay draws the target region, the face box and the landmarks of an outcome
func (fc *FaceCapture) Overlay(out *evaluator.Outcome) image.Image {
	return overlay.Draw(out.Frame, out.Region, out.Detection, out.Report.Ready)
}

// Save writes an artifact to the configured store and returns its location
func (fc *FaceCapture) Save(ctx context.Context, a *capture.Artifact) (string, error) {
	if fc.store == nil {
		return "", fmt.Errorf("no artifact store configured")
	}
	loc, err := fc.store.Save(ctx, a)
	if err != nil {
		return "", fmt.Errorf("failed to store %s artifact: %w", a.Kind, err)
	}
	fc.log.WithFields(logrus.Fields{
		"id":       a.ID,
		"kind":     a.Kind,
		"location": loc,
	}).Info("artifact stored")
	return loc, nil
}

// Close releases the backend connection
func (fc *FaceCapture) Close() error {
	if fc.backend.Close != nil {
		return fc.backend.Close()
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
