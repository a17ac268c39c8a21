package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/face-capture/pkg/types"
)

// ErrMalformedResponse is returned when a model reply holds no usable JSON
var ErrMalformedResponse = errors.New("malformed model response")

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline       = regexp.MustCompile(`(?m)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseFaceAnalysis extracts a FaceAnalysis from a model reply.
// Coordinates are clamped to [0,1]; a box with no area is reported as no face.
func ParseFaceAnalysis(raw string) (*types.FaceAnalysis, error) {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var result types.FaceAnalysis
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result.Confidence = clamp(result.Confidence, 0, 1)
	result.Box = types.Box{
		X: clamp(result.Box.X, 0, 1),
		Y: clamp(result.Box.Y, 0, 1),
		W: clamp(result.Box.W, 0, 1),
		H: clamp(result.Box.H, 0, 1),
	}
	if result.Box.W == 0 || result.Box.H == 0 {
		result.Found = false
	}
	if !result.Found {
		result.Landmarks = nil
	}

	return &result, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a JSON reply
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
