package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureModel_AlreadyPresent(t *testing.T) {
	var pulls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write(tagsJSON("llava:latest"))
		case "/api/pull":
			pulls.Add(1)
		}
	}))
	defer srv.Close()

	if err := EnsureModel(context.Background(), New(srv.URL), "llava", discardLogger()); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if pulls.Load() != 0 {
		t.Error("present model should not be pulled")
	}
}

func TestEnsureModel_PullsMissing(t *testing.T) {
	var pulled atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write(tagsJSON("moondream:latest"))
		case "/api/pull":
			var req pullRequest
			json.NewDecoder(r.Body).Decode(&req)
			pulled.Store(req.Name)
			io.WriteString(w, `{"status":"success"}`+"\n")
		}
	}))
	defer srv.Close()

	if err := EnsureModel(context.Background(), New(srv.URL), "llava", discardLogger()); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if got, _ := pulled.Load().(string); got != "llava" {
		t.Errorf("pulled %q, want llava", got)
	}
}

func TestEnsureModel_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := EnsureModel(context.Background(), New(srv.URL), "llava", discardLogger())
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("got %v, want ErrNotRunning", err)
	}
}
