// Package wsdetector talks to a remote face landmark service over a websocket.
//
// Each frame is sent as one binary JPEG message; the service answers with
// one JSON text message listing the faces it found in frame pixels.
package wsdetector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/face-capture/internal/logging"
	"github.com/menta2k/face-capture/pkg/landmarks"
	"github.com/menta2k/face-capture/pkg/types"
)

// Face is one face in a service response
type Face struct {
	Box       types.FaceBox `json:"box"`
	Score     float64       `json:"score"`
	Landmarks [][2]float64  `json:"landmarks,omitempty"`
}

// Response is the service reply to one frame
type Response struct {
	Faces []Face `json:"faces"`
	Error string `json:"error,omitempty"`
}

// Config holds connection settings
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	JPEGQuality      int
}

// DefaultConfig returns the recommended settings for url
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		JPEGQuality:      85,
	}
}

// Detector is a detection.Detector backed by a websocket service.
// The connection is dialled lazily and re-dialled after any failure.
type Detector struct {
	config Config
	log    logrus.FieldLogger

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}
}

// New creates a websocket detector. log may be nil.
func New(config Config, log logrus.FieldLogger) *Detector {
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 85
	}
	return &Detector{
		config: config,
		log:    logging.OrDiscard(log).WithField("component", "wsdetector"),
	}
}

// Connect dials the service if not already connected
func (d *Detector) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.connectLocked(ctx)
	return err
}

// IsConnected reports whether a connection is currently held
func (d *Detector) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

func (d *Detector) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	if d.config.URL == "" {
		return nil, fmt.Errorf("landmark service URL not configured")
	}

	dialer := websocket.Dialer{HandshakeTimeout: d.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.config.URL, err)
	}

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(d.config.WriteTimeout)); err != nil {
			d.log.WithError(err).Warn("failed to send pong")
		}
		return nil
	})

	d.conn = conn
	d.stop = make(chan struct{})
	if d.config.PingInterval > 0 {
		go d.keepAlive(conn, d.stop)
	}

	d.log.WithField("url", d.config.URL).Info("connected to landmark service")
	return conn, nil
}

func (d *Detector) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(d.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		if d.conn != conn {
			d.mu.Unlock()
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(d.config.WriteTimeout)); err != nil {
			d.log.WithError(err).Warn("ping failed, dropping connection")
			d.dropLocked()
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

// dropLocked closes the current connection; d.mu must be held
func (d *Detector) dropLocked() {
	if d.conn == nil {
		return
	}
	close(d.stop)
	d.conn.Close()
	d.conn = nil
	d.stop = nil
}

// DetectFace sends the frame and returns the highest scoring face
func (d *Detector) DetectFace(ctx context.Context, img image.Image) (*types.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.config.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	// one request in flight per connection
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connectLocked(ctx)
	if err != nil {
		return nil, err
	}

	// unblock the read if the caller gives up
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(d.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.dropLocked()
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(d.config.ReadTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		d.dropLocked()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var resp Response
	if err := json.Unmarshal(message, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("landmark service: %s", resp.Error)
	}

	d.log.WithField("faces", len(resp.Faces)).Debug("landmark service replied")
	return best(resp.Faces), nil
}

// Close drops the connection
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(d.config.WriteTimeout))
	d.dropLocked()
	return nil
}

func best(faces []Face) *types.Detection {
	var top *Face
	for i := range faces {
		if top == nil || faces[i].Score > top.Score {
			top = &faces[i]
		}
	}
	if top == nil {
		return nil
	}

	det := &types.Detection{Box: top.Box, Score: top.Score}
	if len(top.Landmarks) == landmarks.NumLandmarks {
		points := make([]types.Point, len(top.Landmarks))
		for i, p := range top.Landmarks {
			points[i] = types.Point{X: p[0], Y: p[1]}
		}
		if l, err := landmarks.FromPoints68(points); err == nil {
			det.Landmarks = l
		}
	}
	return det
}
