// Package capture turns evaluated frames into photo and video artifacts and
// persists them.
package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// Kind distinguishes photo and video artifacts
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// Artifact is one captured photo or recording
type Artifact struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	ContentType string        `json:"content_type"`
	Ext         string        `json:"ext"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Frames      int           `json:"frames,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Data        []byte        `json:"-"`
}

// Filename returns the artifact's storage name
func (a *Artifact) Filename() string {
	return a.ID + a.Ext
}

// DataURL encodes the artifact as a data: URL
func (a *Artifact) DataURL() string {
	return "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// PhotoOptions controls photo encoding
type PhotoOptions struct {
	Format   string // png, jpg or webp
	Quality  int    // jpg and lossy webp
	Lossless bool   // webp only
}

// DefaultPhotoOptions returns PNG encoding
func DefaultPhotoOptions() PhotoOptions {
	return PhotoOptions{Format: "png", Quality: 92}
}

// EncodePhoto encodes a captured frame as a photo artifact
func EncodePhoto(img image.Image, opts PhotoOptions) (*Artifact, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("cannot encode an empty frame")
	}
	if opts.Quality <= 0 {
		opts.Quality = 92
	}

	a := &Artifact{
		ID:        uuid.New().String(),
		Kind:      KindPhoto,
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
		CreatedAt: time.Now(),
	}

	var buf bytes.Buffer
	switch strings.ToLower(opts.Format) {
	case "", "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
		a.ContentType, a.Ext = "image/png", ".png"
	case "jpg", "jpeg":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
		a.ContentType, a.Ext = "image/jpeg", ".jpg"
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(opts.Quality)}); err != nil {
			return nil, fmt.Errorf("failed to encode webp: %w", err)
		}
		a.ContentType, a.Ext = "image/webp", ".webp"
	default:
		return nil, fmt.Errorf("unsupported photo format: %s", opts.Format)
	}

	a.Data = buf.Bytes()
	return a, nil
}
