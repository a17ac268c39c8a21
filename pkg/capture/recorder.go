package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRecorderStopped is returned when frames are added after Stop or Discard
var ErrRecorderStopped = errors.New("recorder stopped")

// JPEG start and end of image markers
var (
	JpegSOI = []byte{0xFF, 0xD8}
	JpegEOI = []byte{0xFF, 0xD9}
)

// Recorder collects frames during a recording
type Recorder interface {
	AddFrame(img image.Image) error
	// Stop finishes the recording and returns its artifact
	Stop() (*Artifact, error)
	// Discard drops everything recorded so far
	Discard()
}

// RecorderFactory starts a new recording
type RecorderFactory func() Recorder

// MJPEGRecorder records a motion JPEG stream: every frame is one complete
// JPEG image appended to the buffer
type MJPEGRecorder struct {
	quality   int
	maxFrames int

	mu      sync.Mutex
	buf     bytes.Buffer
	frames  int
	width   int
	height  int
	started time.Time
	stopped bool
}

// NewMJPEGRecorder creates a recorder. maxFrames of 0 means no limit;
// frames beyond the limit are dropped silently.
func NewMJPEGRecorder(quality, maxFrames int) *MJPEGRecorder {
	if quality <= 0 {
		quality = 85
	}
	return &MJPEGRecorder{quality: quality, maxFrames: maxFrames}
}

// MJPEGFactory returns a RecorderFactory for MJPEGRecorder
func MJPEGFactory(quality, maxFrames int) RecorderFactory {
	return func() Recorder {
		return NewMJPEGRecorder(quality, maxFrames)
	}
}

// AddFrame encodes img and appends it to the stream
func (r *MJPEGRecorder) AddFrame(img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return ErrRecorderStopped
	}
	if r.maxFrames > 0 && r.frames >= r.maxFrames {
		return nil
	}
	if r.frames == 0 {
		r.started = time.Now()
		r.width, r.height = img.Bounds().Dx(), img.Bounds().Dy()
	}

	if err := jpeg.Encode(&r.buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames recorded so far
func (r *MJPEGRecorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Stop finishes the recording
func (r *MJPEGRecorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, ErrRecorderStopped
	}
	r.stopped = true

	if r.frames == 0 {
		return nil, fmt.Errorf("no frames recorded")
	}

	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()

	return &Artifact{
		ID:          uuid.New().String(),
		Kind:        KindVideo,
		ContentType: "video/x-motion-jpeg",
		Ext:         ".mjpeg",
		Width:       r.width,
		Height:      r.height,
		Frames:      r.frames,
		Duration:    time.Since(r.started),
		CreatedAt:   time.Now(),
		Data:        data,
	}, nil
}

// Discard drops the recording
func (r *MJPEGRecorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.buf.Reset()
	r.frames = 0
}

// SplitJpeg is a bufio.SplitFunc that yields the JPEG images of an MJPEG stream.
// It locates the start of image (FFD8) and end of image (FFD9) markers.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// SplitFrames splits a recorded MJPEG stream into its JPEG frames
func SplitFrames(data []byte) ([][]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	scanner.Split(SplitJpeg)

	var frames [][]byte
	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())
		frames = append(frames, frame)
	}
	return frames, scanner.Err()
}
