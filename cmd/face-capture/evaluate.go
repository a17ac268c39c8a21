package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	facecapture "github.com/menta2k/face-capture"
	"github.com/menta2k/face-capture/internal/utils"
	"github.com/menta2k/face-capture/pkg/capture"
	"github.com/menta2k/face-capture/pkg/evaluator"
	"github.com/menta2k/face-capture/pkg/types"
)

type evaluateOptions struct {
	Input          string
	Overlay        string
	OverlayQuality int
}

var evalOpts evaluateOptions

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a single image and print the readiness verdict as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.Store.Kind = "none"

		fc, err := facecapture.New(&c, log)
		if err != nil {
			return err
		}
		defer fc.Close()

		out, err := fc.EvaluateFile(cmd.Context(), evalOpts.Input)
		if err != nil {
			return err
		}

		if evalOpts.Overlay != "" {
			if err := writeOverlay(fc, out, evalOpts.Overlay, evalOpts.OverlayQuality); err != nil {
				return err
			}
			log.WithField("path", evalOpts.Overlay).Info("wrote overlay")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(newEvaluationView(out))
	},
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVarP(&evalOpts.Input, "input", "i", "", "image path or URL (jpg/png/webp)")
	f.StringVar(&evalOpts.Overlay, "overlay", "", "write a debug overlay to this path (.png, .jpg or .webp)")
	f.IntVar(&evalOpts.OverlayQuality, "overlay-quality", 92, "overlay quality for jpg/webp (1-100)")
	evaluateCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(evaluateCmd)
}

func writeOverlay(fc *facecapture.FaceCapture, out *evaluator.Outcome, path string, quality int) error {
	a, err := capture.EncodePhoto(fc.Overlay(out), capture.PhotoOptions{
		Format:  utils.ImageFormat(path),
		Quality: quality,
	})
	if err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return utils.WriteFileAtomic(path, a.Data)
}

// evaluationView is the printed form of an outcome.
// Pose measurements can be NaN, which JSON cannot carry, so they become null.
type evaluationView struct {
	Ready      bool             `json:"ready"`
	Errors     types.ErrorSet   `json:"errors"`
	Stats      types.FrameStats `json:"stats"`
	Region     types.Ellipse    `json:"region"`
	Detection  *types.Detection `json:"detection,omitempty"`
	Pose       *poseView        `json:"pose,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

type poseView struct {
	EyeAngle     *float64 `json:"eye_angle"`
	EyeDeltaY    *float64 `json:"eye_delta_y"`
	PitchRatio   *float64 `json:"pitch_ratio"`
	NoseToLeftX  *float64 `json:"nose_to_left_x"`
	NoseToRightX *float64 `json:"nose_to_right_x"`
}

func newEvaluationView(out *evaluator.Outcome) evaluationView {
	r := out.Report
	v := evaluationView{
		Ready:      r.Ready,
		Errors:     r.Errors,
		Stats:      r.Stats,
		Region:     out.Region,
		Detection:  out.Detection,
		DurationMs: out.Duration.Milliseconds(),
	}
	if out.Detection != nil && out.Detection.Landmarks != nil {
		v.Pose = &poseView{
			EyeAngle:     finite(r.Pose.EyeAngle),
			EyeDeltaY:    finite(r.Pose.EyeDeltaY),
			PitchRatio:   finite(r.Pose.PitchRatio),
			NoseToLeftX:  finite(r.Pose.NoseToLeftX),
			NoseToRightX: finite(r.Pose.NoseToRightX),
		}
	}
	return v
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
