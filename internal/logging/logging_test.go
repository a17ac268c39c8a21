package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", NoColors: true, Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}

	logger.WithFields(Fields{"state": "evaluating"}).Info("state changed")
	out := buf.String()
	if !strings.Contains(out, "state changed") || !strings.Contains(out, "evaluating") {
		t.Errorf("Unexpected log output %q", out)
	}
}

func TestNewDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("Debug output at info level: %q", buf.String())
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}

func TestNewWithFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "capture.log")
	logger, err := New(Options{File: file, NoColors: true, Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("written twice")
	if !strings.Contains(buf.String(), "written twice") {
		t.Error("Expected output on the primary writer")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	l := logrus.New()
	if OrDiscard(l) != l {
		t.Error("OrDiscard should keep a non-nil logger")
	}
}
