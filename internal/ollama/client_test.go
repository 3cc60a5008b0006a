package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// tagsJSON builds a /api/tags response with the given model names.
func tagsJSON(names ...string) []byte {
	r := tagsResponse{}
	for _, n := range names {
		r.Models = append(r.Models, modelEntry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

// fastRetry keeps retry tests quick.
var fastRetry = WithRetry(3, time.Millisecond)

func TestIsRunning_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llava:latest"))
	}))
	defer srv.Close()

	if !New(srv.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestIsRunning_Down(t *testing.T) {
	// Point at a closed server to simulate connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	if New(srv.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llava:latest", "moondream:latest"))
	}))
	defer srv.Close()

	models, err := New(srv.URL + "/").ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"llava:latest", "moondream:latest"}
	if len(models) != len(want) {
		t.Fatalf("got %d models, want %d", len(models), len(want))
	}
	for i, w := range want {
		if models[i] != w {
			t.Errorf("models[%d] = %q, want %q", i, models[i], w)
		}
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llava:latest", "llava-phi3:latest"))
	}))
	defer srv.Close()
	c := New(srv.URL)

	tests := []struct {
		name string
		want bool
	}{
		{"llava", true},
		{"llava:latest", true},
		{"llava-phi3", true},
		{"moondream", false},
		{"llav", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.HasModel(context.Background(), tt.name)
			if err != nil {
				t.Fatalf("HasModel: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasModel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestChat_SendsImagesAndFormat(t *testing.T) {
	var got chatRequest
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		json.Unmarshal(body, &raw)
		json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: `{"labels":[]}`}})
	}))
	defer srv.Close()

	out, err := New(srv.URL).Chat(context.Background(), "llava", []Message{
		{Role: "user", Content: "what is this", Images: []string{"aGVsbG8="}},
	}, labelSchema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"labels":[]}` {
		t.Errorf("content: got %q", out)
	}
	if got.Model != "llava" || got.Stream {
		t.Errorf("request: model=%q stream=%v", got.Model, got.Stream)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 1 || got.Messages[0].Images[0] != "aGVsbG8=" {
		t.Errorf("images not forwarded: %+v", got.Messages)
	}
	if _, ok := raw["format"]; !ok {
		t.Error("format schema missing from request")
	}
}

func TestChat_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Message: Message{Content: "ok"}})
	}))
	defer srv.Close()

	out, err := New(srv.URL, fastRetry).Chat(context.Background(), "llava", nil, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "ok" {
		t.Errorf("content: got %q, want ok", out)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts: got %d, want 3", got)
	}
}

func TestChat_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, fastRetry).Chat(context.Background(), "llava", nil, nil)
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusInternalServerError {
		t.Fatalf("got %v, want StatusError 500", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("attempts: got %d, want 4 (1 + 3 retries)", got)
	}
}

func TestChat_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, fastRetry).Chat(context.Background(), "missing", nil, nil)
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusNotFound {
		t.Fatalf("got %v, want StatusError 404", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts: got %d, want 1", got)
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range []PullProgress{
			{Status: "pulling manifest"},
			{Status: "downloading", Total: 100, Completed: 50},
			{Status: "success"},
		} {
			b, _ := json.Marshal(p)
			fmt.Fprintf(w, "%s\n", b)
		}
	}))
	defer srv.Close()

	var statuses []string
	err := New(srv.URL).PullModel(context.Background(), "llava", func(p PullProgress) {
		statuses = append(statuses, p.Status)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(statuses) != 3 || statuses[2] != "success" {
		t.Errorf("statuses: got %v", statuses)
	}
}

func TestPullModel_StreamedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
	}))
	defer srv.Close()

	if err := New(srv.URL).PullModel(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error from streamed error line")
	}
}
