package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "voxnote/pkg/logx"
)

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transcripts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"buy milk"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sekrit"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := c.Transcribe(context.Background(), []byte("audio-bytes"), "audio/ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "buy milk" {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotType != "audio/ogg" {
		t.Fatalf("content type = %q", gotType)
	}
	if string(gotBody) != "audio-bytes" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL}, logx.Nop())
	_, err := c.Transcribe(context.Background(), []byte("x"), "")
	if err == nil {
		t.Fatalf("expected an error for a 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("error should carry status and body excerpt: %v", err)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	c, _ := New(Config{BaseURL: "http://localhost:1"}, logx.Nop())
	if _, err := c.Transcribe(context.Background(), nil, ""); err == nil {
		t.Fatalf("expected an error for empty audio")
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, _ := New(Config{BaseURL: srv.URL, Timeout: 10 * time.Second}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.Transcribe(ctx, []byte("x"), ""); err == nil {
		t.Fatalf("expected an error once the context expires")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected an error for a missing base URL")
	}
}
