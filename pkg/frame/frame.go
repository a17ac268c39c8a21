// Package frame provides the frames a capture session evaluates.
//
// A Source yields one image per call to Next. Sources never share a mutable
// canvas with the caller: each returned image belongs to the caller.
package frame

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Source yields frames to evaluate. Next returns io.EOF when no frames are left.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(ctx context.Context) (image.Image, error)

// Next calls f(ctx)
func (f SourceFunc) Next(ctx context.Context) (image.Image, error) {
	return f(ctx)
}

// Mirror flips a frame horizontally so the subject sees themselves as in a mirror
func Mirror(img image.Image) *image.NRGBA {
	return imaging.FlipH(img)
}

// Load loads an image from a file path with WebP support
func Load(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode decodes an image from bytes with WebP support
func Decode(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// PrepareForModel encodes a frame as base64 for a vision model,
// downscaling it so neither side exceeds maxDim
func PrepareForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// StaticSource yields the same image on every call
type StaticSource struct {
	img image.Image
}

// NewStaticSource creates a source that always returns img
func NewStaticSource(img image.Image) *StaticSource {
	return &StaticSource{img: img}
}

// Next returns a copy of the image
func (s *StaticSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return imaging.Clone(s.img), nil
}

// DirSource yields the images of a directory in name order
type DirSource struct {
	paths []string
	loop  bool

	mu   sync.Mutex
	next int
}

// Extensions lists the file extensions DirSource picks up
var Extensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp"}

// NewDirSource scans dir for images. With loop set the frames repeat forever.
func NewDirSource(dir string, loop bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(paths)

	return &DirSource{paths: paths, loop: loop}, nil
}

// Len returns the number of frames in the directory
func (s *DirSource) Len() int {
	return len(s.paths)
}

// Next loads the next frame
func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.next >= len(s.paths) {
		if !s.loop {
			s.mu.Unlock()
			return nil, io.EOF
		}
		s.next = 0
	}
	path := s.paths[s.next]
	s.next++
	s.mu.Unlock()

	return Load(path)
}

// MaxFrameBytes caps the size of a single snapshot read by URLSource
const MaxFrameBytes = 32 << 20

// URLSource fetches a snapshot from an HTTP endpoint on every call,
// as exposed by most IP cameras
type URLSource struct {
	url      string
	client   *http.Client
	maxBytes int64
}

// NewURLSource validates the snapshot URL
func NewURLSource(imageURL string, timeout time.Duration) (*URLSource, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &URLSource{
		url:      imageURL,
		client:   &http.Client{Timeout: timeout},
		maxBytes: MaxFrameBytes,
	}, nil
}

// Next downloads and decodes one snapshot
func (s *URLSource) Next(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "face-capture/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download frame: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("frame exceeds %d bytes", s.maxBytes)
	}
	return Decode(data)
}

// Open picks a source for the given location: an http(s) URL, a directory or a single file
func Open(location string, loop bool) (Source, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewURLSource(location, 0)
	}

	info, err := os.Stat(location)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return NewDirSource(location, loop)
	}

	img, err := Load(location)
	if err != nil {
		return nil, err
	}
	return NewStaticSource(img), nil
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
