package client

import (
	"context"

	"github.com/menta2k/face-capture/pkg/types"
)

// VisionClient is a vision-language model backend that can locate a face
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	LocateFace(ctx context.Context, model, prompt, imgB64 string) (*types.FaceAnalysis, error)
}
