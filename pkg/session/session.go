// Package session drives a capture session: it evaluates frames on a fixed
// tick, tracks readiness, and takes a photo or a recording once the subject
// is ready.
//
// Exactly one goroutine runs evaluation cycles and each cycle completes
// before the next tick is taken; ticks that fire during a cycle are dropped.
// Capture requests wait for the in-flight cycle and then act on its result.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/face-capture/internal/logging"
	"github.com/menta2k/face-capture/pkg/capture"
	"github.com/menta2k/face-capture/pkg/evaluator"
	"github.com/menta2k/face-capture/pkg/types"
)

var (
	// ErrNotReady is returned when a capture is requested while the latest result is not ready
	ErrNotReady = errors.New("subject is not ready for capture")
	// ErrInvalidState is returned when an operation does not apply to the current state
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("session closed")
)

// Engine evaluates frames and grabs frames for recording
type Engine interface {
	Cycle(ctx context.Context) (*evaluator.Outcome, error)
	Grab(ctx context.Context) (image.Image, error)
}

// Config controls session timing and capture encoding
type Config struct {
	TickInterval time.Duration
	StartDelay   time.Duration
	Countdown    time.Duration
	RecordFor    time.Duration
	Photo        capture.PhotoOptions

	// Captured starts the session in the Captured state; it never evaluates
	Captured bool

	// Warmup runs once before evaluation starts, e.g. to load a model
	Warmup func(ctx context.Context) error

	// Recorder starts a recording; defaults to an MJPEG recorder
	Recorder capture.RecorderFactory
}

// DefaultConfig returns the recommended timing
func DefaultConfig() Config {
	return Config{
		TickInterval: 500 * time.Millisecond,
		Countdown:    3 * time.Second,
		RecordFor:    5 * time.Second,
		Photo:        capture.DefaultPhotoOptions(),
	}
}

// Update is published after every cycle and on every state change.
// Err is set when warmup (state Loading) or an evaluation cycle fails.
type Update struct {
	State    State                  `json:"state"`
	Result   types.EvaluationResult `json:"result"`
	Deadline time.Time              `json:"deadline,omitempty"` // end of the countdown or recording
	Err      error                  `json:"-"`
	At       time.Time              `json:"at"`
}

// Session is one capture session
type Session struct {
	engine Engine
	config Config
	log    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// cycleMu is held for the duration of a cycle so capture requests
	// observe a settled result
	cycleMu sync.Mutex

	mu        sync.Mutex
	state     State
	latest    *evaluator.Outcome
	deadline  time.Time
	recorder  capture.Recorder
	started   bool
	closed    bool
	stopAfter func() bool

	updates   chan Update
	captures  chan *capture.Artifact
	closeOnce sync.Once
}

// New creates a session in the Loading state. log may be nil.
func New(engine Engine, config Config, log logrus.FieldLogger) *Session {
	defaults := DefaultConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.Countdown < 0 {
		config.Countdown = 0
	}
	if config.RecordFor <= 0 {
		config.RecordFor = defaults.RecordFor
	}
	if config.Recorder == nil {
		config.Recorder = capture.MJPEGFactory(85, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		engine:   engine,
		config:   config,
		log:      logging.OrDiscard(log).WithField("component", "session"),
		ctx:      ctx,
		cancel:   cancel,
		state:    Loading,
		updates:  make(chan Update, 1),
		captures: make(chan *capture.Artifact, 1),
	}
	if config.Captured {
		s.state = Captured
	}
	return s
}

// Updates delivers evaluation results and state changes. A slow reader
// only sees the newest update. The channel is closed by Close.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Captures delivers the captured artifact. The channel is closed by Close.
func (s *Session) Captures() <-chan *capture.Artifact {
	return s.captures
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latest returns the most recent evaluation result. A failed cycle resets it.
func (s *Session) Latest() types.EvaluationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return types.EvaluationResult{}
	}
	return s.latest.Result()
}

// Start begins evaluation in the background. Cancelling ctx closes the session.
// Starting a session created as Captured does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state == Captured {
		return nil
	}
	if s.started {
		return ErrInvalidState
	}
	s.started = true
	s.stopAfter = context.AfterFunc(ctx, func() { s.Close() })

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Session) run() {
	defer s.wg.Done()

	if s.config.Warmup != nil {
		if err := s.config.Warmup(s.ctx); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("warmup failed")
			s.mu.Lock()
			s.publishLocked(err)
			s.mu.Unlock()
			return
		}
	}

	if s.config.StartDelay > 0 {
		t := time.NewTimer(s.config.StartDelay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	s.mu.Lock()
	if s.state != Loading {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(Evaluating)
	s.mu.Unlock()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		s.tick()
	}
}

func (s *Session) tick() {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	switch s.State() {
	case Evaluating, Ready:
		s.evaluate()
	case Recording:
		s.record()
	}
}

func (s *Session) evaluate() {
	out, err := s.engine.Cycle(s.ctx)
	if s.ctx.Err() != nil {
		// closed mid-cycle, the result is stale
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Evaluating && s.state != Ready {
		return
	}

	if err != nil {
		s.log.WithError(err).Warn("evaluation cycle failed")
		// no verdict for the current frame, so nothing may be captured from it
		s.latest = nil
		s.moveLocked(Evaluating, err)
		return
	}

	s.latest = out
	next := Evaluating
	if out.Result().Ready {
		next = Ready
	}
	if next != s.state {
		s.setStateLocked(next)
		return
	}
	s.publishLocked(nil)
}

func (s *Session) record() {
	img, err := s.engine.Grab(s.ctx)
	if s.ctx.Err() != nil {
		return
	}
	if err != nil {
		s.log.WithError(err).Warn("failed to grab frame for recording")
		return
	}

	s.mu.Lock()
	rec := s.recorder
	s.mu.Unlock()
	if rec == nil {
		return
	}
	if err := rec.AddFrame(img); err != nil && !errors.Is(err, capture.ErrRecorderStopped) {
		s.log.WithError(err).Warn("failed to record frame")
	}
}

// CapturePhoto encodes the frame behind the latest ready result.
// The session ends in Captured and stops evaluating.
func (s *Session) CapturePhoto() (*capture.Artifact, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	if err := s.checkReadyLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	latest := s.latest
	s.setStateLocked(CapturingPhoto)
	s.mu.Unlock()

	a, err := capture.EncodePhoto(latest.Frame, s.config.Photo)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err != nil {
		s.log.WithError(err).Error("failed to encode photo")
		s.setStateLocked(Evaluating)
		return nil, err
	}

	s.finishLocked(a)
	return a, nil
}

// StartRecording starts the countdown; recording follows automatically and
// stops after the configured duration.
func (s *Session) StartRecording() error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReadyLocked(); err != nil {
		return err
	}

	s.deadline = time.Now().Add(s.config.Countdown)
	s.setStateLocked(TimerBeforeRecord)
	s.afterLocked(s.config.Countdown, s.beginRecording)
	return nil
}

func (s *Session) beginRecording() {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	if s.state != TimerBeforeRecord {
		s.mu.Unlock()
		return
	}
	s.recorder = s.config.Recorder()
	s.deadline = time.Now().Add(s.config.RecordFor)
	s.setStateLocked(Recording)
	s.afterLocked(s.config.RecordFor, s.endRecording)
	s.mu.Unlock()

	// first frame lands now so a recording shorter than a tick is never empty
	s.record()
}

func (s *Session) endRecording() {
	// let an in-flight frame grab land first
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return
	}
	rec := s.recorder
	s.recorder = nil
	s.deadline = time.Time{}
	s.setStateLocked(EndRecorded)
	s.mu.Unlock()

	a, err := rec.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err != nil {
		s.log.WithError(err).Error("failed to finish recording")
		s.setStateLocked(Evaluating)
		return
	}
	s.finishLocked(a)
}

// afterLocked runs fn after d unless the session is closed first
func (s *Session) afterLocked(d time.Duration, fn func()) {
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
		case <-t.C:
			fn()
		}
	}()
}

func (s *Session) checkReadyLocked() error {
	if s.closed {
		return ErrClosed
	}
	switch s.state {
	case Ready:
		if s.latest == nil || !s.latest.Result().Ready {
			return ErrNotReady
		}
		return nil
	case Loading, Evaluating:
		return ErrNotReady
	default:
		return ErrInvalidState
	}
}

// finishLocked publishes the artifact and ends the session in Captured
func (s *Session) finishLocked(a *capture.Artifact) {
	s.setStateLocked(Captured)
	select {
	case s.captures <- a:
	default:
		s.log.Warn("capture channel full, artifact only returned to caller")
	}
	s.log.WithFields(logrus.Fields{
		"id":    a.ID,
		"kind":  a.Kind,
		"bytes": len(a.Data),
	}).Info("captured")

	// evaluation stops for good
	s.cancel()
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.moveLocked(next, nil)
}

// moveLocked switches to next and always publishes, carrying err if set
func (s *Session) moveLocked(next State, err error) {
	if s.state != next {
		s.log.WithFields(logrus.Fields{"from": s.state, "to": next}).Info("state changed")
		s.state = next
	}
	s.publishLocked(err)
}

// publishLocked sends the current state and result, replacing an unread update
func (s *Session) publishLocked(err error) {
	if s.closed {
		return
	}
	u := Update{State: s.state, Deadline: s.deadline, Err: err, At: time.Now()}
	if s.latest != nil {
		u.Result = s.latest.Result()
	}

	select {
	case s.updates <- u:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- u:
	default:
	}
}

// Close stops evaluation, cancels any countdown or recording and releases
// the recorder. It is safe to call more than once. No timer fires after
// Close returns.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		stopAfter := s.stopAfter
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		if s.recorder != nil {
			s.recorder.Discard()
			s.recorder = nil
		}
		prev := s.state
		s.state = Destroyed
		s.mu.Unlock()

		if stopAfter != nil {
			stopAfter()
		}
		s.log.WithField("from", prev).Info("session closed")

		close(s.updates)
		close(s.captures)
	})
	return nil
}
