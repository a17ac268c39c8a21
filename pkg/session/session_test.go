package session

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/face-capture/internal/testutil"
	"github.com/menta2k/face-capture/pkg/capture"
	"github.com/menta2k/face-capture/pkg/evaluator"
	"github.com/menta2k/face-capture/pkg/readiness"
	"github.com/menta2k/face-capture/pkg/types"
)

type fakeEngine struct {
	mu       sync.Mutex
	ready    func(n int) bool
	err      error
	delay    time.Duration
	cycles   int
	grabs    int
	last     bool
	inFlight int32
	maxSeen  int32
}

func newFakeEngine(ready bool) *fakeEngine {
	return &fakeEngine{ready: func(int) bool { return ready }}
}

func (f *fakeEngine) Cycle(ctx context.Context) (*evaluator.Outcome, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	if f.err != nil {
		return nil, f.err
	}

	ready := f.ready(f.cycles)
	f.last = ready
	res := types.EvaluationResult{Ready: ready}
	if !ready {
		res.Errors = types.NewErrorSet(types.TooFar)
	}
	return &evaluator.Outcome{
		Frame:  testutil.LitFrame(),
		Report: readiness.Report{EvaluationResult: res},
	}, nil
}

func (f *fakeEngine) Grab(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabs++
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
}

func (f *fakeEngine) counts() (cycles, grabs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles, f.grabs
}

func (f *fakeEngine) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = func(int) bool { return ready }
}

func (f *fakeEngine) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// lateEngine ignores cancellation and answers ready once released
type lateEngine struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (e *lateEngine) Cycle(ctx context.Context) (*evaluator.Outcome, error) {
	e.once.Do(func() { close(e.entered) })
	<-e.release
	return &evaluator.Outcome{
		Frame:  testutil.LitFrame(),
		Report: readiness.Report{EvaluationResult: types.EvaluationResult{Ready: true}},
	}, nil
}

func (e *lateEngine) Grab(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 32, 24)), nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	frames    int
	discarded bool
}

func (r *fakeRecorder) AddFrame(img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	return nil
}

func (r *fakeRecorder) Stop() (*capture.Artifact, error) {
	return &capture.Artifact{ID: "rec", Kind: capture.KindVideo}, nil
}

func (r *fakeRecorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded = true
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.Countdown = 20 * time.Millisecond
	cfg.RecordFor = 60 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, want.String(), func() bool { return s.State() == want })
}

func TestNewSession(t *testing.T) {
	s := New(newFakeEngine(true), DefaultConfig(), nil)
	defer s.Close()

	if s.State() != Loading {
		t.Errorf("Expected loading, got %s", s.State())
	}
	if s.Latest().Ready {
		t.Error("A fresh session has no ready result")
	}
}

func TestStartEvaluates(t *testing.T) {
	eng := newFakeEngine(false)
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "three cycles", func() bool { c, _ := eng.counts(); return c >= 3 })

	if s.State() != Evaluating {
		t.Errorf("Expected evaluating, got %s", s.State())
	}
	if !s.Latest().Errors.Has(types.TooFar) {
		t.Errorf("Expected the latest result to be kept, got %+v", s.Latest())
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on second Start, got %v", err)
	}
}

func TestCapturePhoto(t *testing.T) {
	eng := newFakeEngine(true)
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	s.Start(context.Background())
	waitState(t, s, Ready)

	a, err := s.CapturePhoto()
	if err != nil {
		t.Fatalf("CapturePhoto failed: %v", err)
	}
	if a.Kind != capture.KindPhoto || a.ContentType != "image/png" {
		t.Errorf("Unexpected artifact %+v", a)
	}
	if a.Width != testutil.FrameWidth || a.Height != testutil.FrameHeight {
		t.Errorf("Expected a full frame photo, got %dx%d", a.Width, a.Height)
	}
	if s.State() != Captured {
		t.Errorf("Expected captured, got %s", s.State())
	}

	select {
	case got := <-s.Captures():
		if got.ID != a.ID {
			t.Errorf("Published artifact %s differs from returned %s", got.ID, a.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Artifact was not published")
	}

	// evaluation has stopped
	before, _ := eng.counts()
	time.Sleep(40 * time.Millisecond)
	if after, _ := eng.counts(); after > before+1 {
		t.Errorf("Evaluation continued after capture: %d -> %d cycles", before, after)
	}

	if _, err := s.CapturePhoto(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState after capture, got %v", err)
	}
}

func TestCaptureNotReady(t *testing.T) {
	eng := newFakeEngine(false)
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	if _, err := s.CapturePhoto(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady before start, got %v", err)
	}

	s.Start(context.Background())
	waitFor(t, "a cycle", func() bool { c, _ := eng.counts(); return c >= 1 })

	if _, err := s.CapturePhoto(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
	if err := s.StartRecording(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady for recording, got %v", err)
	}
	if s.State() != Evaluating {
		t.Errorf("A refused capture must not change state, got %s", s.State())
	}
}

func TestReadinessLost(t *testing.T) {
	eng := newFakeEngine(true)
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	s.Start(context.Background())
	waitState(t, s, Ready)

	eng.setReady(false)
	waitState(t, s, Evaluating)

	if _, err := s.CapturePhoto(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady once readiness is lost, got %v", err)
	}
}

func TestNeverCapturesWhileNotReady(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		var rngMu sync.Mutex

		eng := &fakeEngine{ready: func(int) bool {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.Intn(3) == 0
		}}
		s := New(eng, fastConfig(), nil)
		s.Start(context.Background())

		var captured *capture.Artifact
		waitFor(t, "a capture", func() bool {
			a, err := s.CapturePhoto()
			if err != nil {
				if !errors.Is(err, ErrNotReady) {
					t.Fatalf("Unexpected error %v", err)
				}
				return false
			}
			captured = a
			return true
		})

		eng.mu.Lock()
		last := eng.last
		eng.mu.Unlock()
		if captured == nil || !last {
			t.Errorf("seed %d: captured while the latest cycle was not ready", seed)
		}
		s.Close()
	}
}

func TestRecording(t *testing.T) {
	eng := newFakeEngine(true)
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	s.Start(context.Background())
	waitState(t, s, Ready)

	if err := s.StartRecording(); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	if s.State() != TimerBeforeRecord {
		t.Errorf("Expected the countdown, got %s", s.State())
	}

	waitState(t, s, Recording)

	select {
	case a := <-s.Captures():
		if a.Kind != capture.KindVideo {
			t.Errorf("Expected a video artifact, got %s", a.Kind)
		}
		if a.Frames == 0 {
			t.Error("Expected recorded frames")
		}
		frames, err := capture.SplitFrames(a.Data)
		if err != nil || len(frames) != a.Frames {
			t.Errorf("Stream holds %d frames, artifact says %d (%v)", len(frames), a.Frames, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Recording was not published")
	}

	waitState(t, s, Captured)
	if _, grabs := eng.counts(); grabs == 0 {
		t.Error("Expected frames to be grabbed while recording")
	}
}

func TestRecordingShorterThanTick(t *testing.T) {
	eng := newFakeEngine(true)
	cfg := fastConfig()
	cfg.TickInterval = 150 * time.Millisecond
	cfg.Countdown = 0
	cfg.RecordFor = 10 * time.Millisecond
	s := New(eng, cfg, nil)
	defer s.Close()

	s.Start(context.Background())
	waitState(t, s, Ready)

	if err := s.StartRecording(); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	select {
	case a := <-s.Captures():
		if a.Kind != capture.KindVideo || a.Frames == 0 {
			t.Errorf("Expected a video with frames, got %s with %d frames", a.Kind, a.Frames)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Recording was not published, session is %s", s.State())
	}
	waitState(t, s, Captured)
}

func TestCloseCancelsCountdown(t *testing.T) {
	rec := &fakeRecorder{}
	cfg := fastConfig()
	cfg.Countdown = time.Hour
	cfg.Recorder = func() capture.Recorder { return rec }

	s := New(newFakeEngine(true), cfg, nil)
	s.Start(context.Background())
	waitState(t, s, Ready)

	if err := s.StartRecording(); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on the countdown")
	}

	if s.State() != Destroyed {
		t.Errorf("Expected destroyed, got %s", s.State())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if _, err := s.CapturePhoto(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Start, got %v", err)
	}
}

func TestCloseDuringRecording(t *testing.T) {
	rec := &fakeRecorder{}
	cfg := fastConfig()
	cfg.RecordFor = time.Hour
	cfg.Recorder = func() capture.Recorder { return rec }

	s := New(newFakeEngine(true), cfg, nil)
	s.Start(context.Background())
	waitState(t, s, Ready)
	s.StartRecording()
	waitState(t, s, Recording)
	waitFor(t, "a recorded frame", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.frames > 0
	})

	s.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.discarded {
		t.Error("Close must release the recorder")
	}
	if _, ok := <-s.Captures(); ok {
		t.Error("No artifact expected after Close")
	}
}

func TestUpdatesChannelClosed(t *testing.T) {
	s := New(newFakeEngine(false), fastConfig(), nil)
	s.Start(context.Background())
	s.Close()

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-s.Updates():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("Updates channel was not closed")
		}
	}
}

func TestUpdatesNeverBlock(t *testing.T) {
	eng := newFakeEngine(false)
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	s.Start(context.Background())
	// nobody reads updates
	waitFor(t, "ten cycles", func() bool { c, _ := eng.counts(); return c >= 10 })

	u := <-s.Updates()
	if u.State != Evaluating || u.Result.Ready {
		t.Errorf("Unexpected update %+v", u)
	}
}

func TestCapturedFlag(t *testing.T) {
	eng := newFakeEngine(true)
	cfg := fastConfig()
	cfg.Captured = true

	s := New(eng, cfg, nil)
	defer s.Close()

	if s.State() != Captured {
		t.Fatalf("Expected captured, got %s", s.State())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("Start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if c, _ := eng.counts(); c != 0 {
		t.Errorf("A captured session must not evaluate, ran %d cycles", c)
	}
}

func TestWarmupAndStartDelay(t *testing.T) {
	var warmed atomic.Bool
	cfg := fastConfig()
	cfg.StartDelay = 50 * time.Millisecond
	cfg.Warmup = func(ctx context.Context) error {
		warmed.Store(true)
		return nil
	}

	eng := newFakeEngine(false)
	s := New(eng, cfg, nil)
	defer s.Close()

	s.Start(context.Background())
	waitFor(t, "warmup", warmed.Load)
	if s.State() != Loading {
		t.Errorf("Expected loading during the start delay, got %s", s.State())
	}
	waitState(t, s, Evaluating)
}

func TestWarmupFailure(t *testing.T) {
	loadErr := errors.New("model missing")
	cfg := fastConfig()
	cfg.Warmup = func(ctx context.Context) error { return loadErr }

	eng := newFakeEngine(true)
	s := New(eng, cfg, nil)
	defer s.Close()

	s.Start(context.Background())

	select {
	case u := <-s.Updates():
		if !errors.Is(u.Err, loadErr) {
			t.Errorf("Expected the warmup error, got %v", u.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("Warmup failure was not reported")
	}
	if s.State() != Loading {
		t.Errorf("Expected loading after a failed warmup, got %s", s.State())
	}
	if c, _ := eng.counts(); c != 0 {
		t.Error("No cycle may run after a failed warmup")
	}
}

func TestCycleErrorKeepsEvaluating(t *testing.T) {
	eng := newFakeEngine(true)
	eng.err = errors.New("detector offline")
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	s.Start(context.Background())
	waitFor(t, "failing cycles", func() bool { c, _ := eng.counts(); return c >= 3 })

	if s.State() != Evaluating {
		t.Errorf("Expected evaluating after failed cycles, got %s", s.State())
	}
}

func TestCycleErrorDropsReadiness(t *testing.T) {
	offline := errors.New("detector offline")
	eng := newFakeEngine(true)
	s := New(eng, fastConfig(), nil)
	defer s.Close()

	s.Start(context.Background())
	waitState(t, s, Ready)

	eng.setErr(offline)

	deadline := time.After(3 * time.Second)
	for seen := false; !seen; {
		select {
		case u := <-s.Updates():
			if errors.Is(u.Err, offline) {
				seen = true
				if u.State != Evaluating {
					t.Errorf("Expected the error update in evaluating, got %s", u.State)
				}
				if u.Result.Ready {
					t.Error("Error update must not carry a ready result")
				}
			}
		case <-deadline:
			t.Fatal("Cycle error was not published")
		}
	}

	if s.State() != Evaluating {
		t.Errorf("Expected evaluating after a failed cycle, got %s", s.State())
	}
	if s.Latest().Ready {
		t.Error("Expected the stale ready result to be cleared")
	}
	if _, err := s.CapturePhoto(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady after a failed cycle, got %v", err)
	}
	if err := s.StartRecording(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady for recording after a failed cycle, got %v", err)
	}

	eng.setErr(nil)
	waitState(t, s, Ready)
}

func TestCloseDiscardsLateResult(t *testing.T) {
	eng := &lateEngine{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(eng, fastConfig(), nil)

	s.Start(context.Background())
	select {
	case <-eng.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("No cycle started")
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	waitFor(t, "close to begin", func() bool { return s.ctx.Err() != nil })
	close(eng.release)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return")
	}

	for u := range s.Updates() {
		if u.State == Ready || u.Result.Ready {
			t.Errorf("Late result was published: %+v", u)
		}
	}
	if s.State() != Destroyed {
		t.Errorf("Expected destroyed, got %s", s.State())
	}
	if s.Latest().Ready {
		t.Error("Late result was stored")
	}
	if _, err := s.CapturePhoto(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(newFakeEngine(false), fastConfig(), nil)

	s.Start(ctx)
	waitState(t, s, Evaluating)
	cancel()
	waitState(t, s, Destroyed)
}

func TestSingleFlight(t *testing.T) {
	eng := newFakeEngine(false)
	eng.delay = 20 * time.Millisecond
	cfg := fastConfig()
	cfg.TickInterval = time.Millisecond

	s := New(eng, cfg, nil)
	s.Start(context.Background())
	waitFor(t, "five cycles", func() bool { c, _ := eng.counts(); return c >= 5 })
	s.Close()

	if seen := atomic.LoadInt32(&eng.maxSeen); seen != 1 {
		t.Errorf("Cycles overlapped: %d in flight", seen)
	}
}

func TestStateString(t *testing.T) {
	if TimerBeforeRecord.String() != "timerBeforeRecord" {
		t.Errorf("Unexpected name %s", TimerBeforeRecord)
	}
	if State(42).String() != "State(42)" {
		t.Errorf("Unexpected name for unknown state: %s", State(42))
	}
	if !Captured.Terminal() || Ready.Terminal() {
		t.Error("Unexpected Terminal result")
	}
}
