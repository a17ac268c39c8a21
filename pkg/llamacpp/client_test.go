package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/face-capture/pkg/client"
)

func newTestServer(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}

		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("Expected model test-model, got %s", req.Model)
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: reply}}},
		})
	}))
}

func TestLocateFace(t *testing.T) {
	srv := newTestServer(t, `{"found":true,"confidence":0.95,"box":{"x":0.3,"y":0.2,"w":0.4,"h":0.5}}`, http.StatusOK)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res, err := c.LocateFace(context.Background(), "test-model", "find the face", "aGVsbG8=")
	if err != nil {
		t.Fatalf("LocateFace failed: %v", err)
	}
	if !res.Found || res.Confidence != 0.95 {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestLocateFaceMalformed(t *testing.T) {
	srv := newTestServer(t, "There is a face in the middle.", http.StatusOK)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.LocateFace(context.Background(), "test-model", "find the face", "aGVsbG8=")
	if !errors.Is(err, client.ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
}

func TestLocateFaceServerError(t *testing.T) {
	srv := newTestServer(t, "", http.StatusInternalServerError)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.LocateFace(context.Background(), "test-model", "find the face", "aGVsbG8=")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("Expected a status error, got %v", err)
	}
}

func TestSimpleQuery(t *testing.T) {
	srv := newTestServer(t, "A person facing the camera.", http.StatusOK)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	text, err := c.SimpleQuery(context.Background(), "test-model", "describe", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "A person facing the camera." {
		t.Errorf("Unexpected reply %q", text)
	}
}

func TestNewClientDefaultURL(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("Expected default URL, got %s", c.baseURL)
	}
}
