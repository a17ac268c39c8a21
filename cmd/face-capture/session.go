package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	facecapture "github.com/menta2k/face-capture"
	"github.com/menta2k/face-capture/internal/utils"
	"github.com/menta2k/face-capture/pkg/capture"
	"github.com/menta2k/face-capture/pkg/frame"
	"github.com/menta2k/face-capture/pkg/session"
)

type sessionOptions struct {
	Input      string
	Mode       string
	StartDelay time.Duration
	Timeout    time.Duration
	Store      string
	Dir        string
}

var sessOpts sessionOptions

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run a capture session over a frame source and capture once the face is ready",
	Long: `Runs the capture state machine over an image, a directory of frames
(replayed in a loop) or an image URL. In photo mode the first ready frame is
captured; in video mode a countdown starts and a short clip is recorded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		flags := cmd.Flags()
		if flags.Changed("mode") {
			c.Session.Mode = sessOpts.Mode
		}
		if flags.Changed("start-delay") {
			c.Session.StartDelayMs = int(sessOpts.StartDelay / time.Millisecond)
		}
		if flags.Changed("store") {
			c.Store.Kind = sessOpts.Store
		}
		if flags.Changed("dir") {
			c.Store.Dir = sessOpts.Dir
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		fc, err := facecapture.New(&c, log)
		if err != nil {
			return err
		}
		defer fc.Close()

		src, err := frame.Open(sessOpts.Input, true)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if sessOpts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, sessOpts.Timeout)
			defer cancel()
		}

		s := fc.NewSession(src)
		defer s.Close()
		if err := s.Start(ctx); err != nil {
			return err
		}

		a, err := runSession(ctx, s, c.Session.Video())
		if err != nil {
			return err
		}
		return report(ctx, fc, a)
	},
}

func init() {
	f := sessionCmd.Flags()
	f.StringVarP(&sessOpts.Input, "input", "i", "", "image, directory of frames or image URL")
	f.StringVarP(&sessOpts.Mode, "mode", "m", "photo", "capture mode: photo|video")
	f.DurationVar(&sessOpts.StartDelay, "start-delay", 0, "delay before the first evaluation (default from config)")
	f.DurationVar(&sessOpts.Timeout, "timeout", 2*time.Minute, "give up when nothing was captured in this time (0 waits forever)")
	f.StringVar(&sessOpts.Store, "store", "", "artifact store: none|local|s3 (default from config)")
	f.StringVar(&sessOpts.Dir, "dir", "", "directory for the local store")
	sessionCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(sessionCmd)
}

// runSession follows the session updates, triggers the capture on the first
// ready frame and returns the artifact
func runSession(ctx context.Context, s *session.Session, video bool) (*capture.Artifact, error) {
	var (
		triggered bool
		last      = s.State()
		bar       *progress
	)

	refresh := time.NewTicker(100 * time.Millisecond)
	defer refresh.Stop()
	defer func() { bar.finish() }()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no capture: %w", ctx.Err())

		case <-refresh.C:
			bar.update()

		case a, ok := <-s.Captures():
			if !ok {
				return nil, errors.New("session ended without a capture")
			}
			return a, nil

		case u, ok := <-s.Updates():
			if !ok {
				// the artifact may still be buffered behind the closed updates
				if a, ok := <-s.Captures(); ok {
					return a, nil
				}
				return nil, errors.New("session ended without a capture")
			}
			if u.Err != nil {
				if u.State == session.Loading {
					log.WithError(u.Err).Error("session warmup failed")
					return nil, u.Err
				}
				log.WithError(u.Err).Warn("evaluation cycle failed")
			}

			if u.State != last {
				log.WithField("state", u.State).Info("session state changed")
				last = u.State

				switch u.State {
				case session.TimerBeforeRecord:
					bar.finish()
					bar = newProgress("get ready", u.Deadline)
				case session.Recording:
					bar.finish()
					bar = newProgress("recording", u.Deadline)
				case session.EndRecorded, session.Captured:
					bar.finish()
					bar = nil
				}
			}

			if u.State == session.Evaluating {
				log.WithField("errors", u.Result.Errors.String()).Debug("not ready")
			}

			if u.State != session.Ready || triggered {
				continue
			}
			var err error
			if video {
				err = s.StartRecording()
			} else {
				_, err = s.CapturePhoto()
			}
			switch {
			case err == nil:
				triggered = true
			case errors.Is(err, session.ErrNotReady):
				// readiness was lost between the update and the request
			default:
				return nil, err
			}
		}
	}
}

func report(ctx context.Context, fc *facecapture.FaceCapture, a *capture.Artifact) error {
	out := struct {
		*capture.Artifact
		Size     string `json:"size"`
		Location string `json:"location,omitempty"`
	}{Artifact: a, Size: utils.FormatFileSize(int64(len(a.Data)))}

	if fc.Config().Store.Kind != "none" {
		loc, err := fc.Save(ctx, a)
		if err != nil {
			return err
		}
		out.Location = loc
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// progress shows the time left until a deadline
type progress struct {
	bar      *progressbar.ProgressBar
	start    time.Time
	deadline time.Time
}

func newProgress(desc string, deadline time.Time) *progress {
	start := time.Now()
	total := deadline.Sub(start).Milliseconds()
	if total <= 0 {
		return nil
	}
	return &progress{
		bar: progressbar.NewOptions64(total,
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionClearOnFinish(),
		),
		start:    start,
		deadline: deadline,
	}
}

func (p *progress) update() {
	if p == nil {
		return
	}
	done := time.Since(p.start).Milliseconds()
	if total := p.deadline.Sub(p.start).Milliseconds(); done > total {
		done = total
	}
	p.bar.Set64(done)
}

func (p *progress) finish() {
	if p == nil {
		return
	}
	p.bar.Finish()
}
