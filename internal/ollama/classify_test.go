package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ironsheep/lens-match/internal/imaging"
)

func TestParseLabels(t *testing.T) {
	content := `{"labels":[
		{"label":"keyboard","confidence":0.4},
		{"label":"  ","confidence":0.9},
		{"label":"Coffee Mug","confidence":1.7},
		{"label":"desk","confidence":-0.2},
		{"label":"monitor","confidence":0.6}
	]}`

	labels, err := parseLabels(content, 3)
	if err != nil {
		t.Fatalf("parseLabels: %v", err)
	}

	want := []struct {
		name string
		conf float64
	}{
		{"Coffee Mug", 1},
		{"monitor", 0.6},
		{"keyboard", 0.4},
	}
	if len(labels) != len(want) {
		t.Fatalf("got %d labels, want %d: %+v", len(labels), len(want), labels)
	}
	for i, w := range want {
		if labels[i].Name != w.name || labels[i].Confidence != w.conf {
			t.Errorf("labels[%d] = %+v, want %s/%.1f", i, labels[i], w.name, w.conf)
		}
	}
}

func TestParseLabels_Malformed(t *testing.T) {
	if _, err := parseLabels("the image shows a cat", 5); err == nil {
		t.Error("expected error for non-JSON content")
	}
}

func TestLabeler_Classify(t *testing.T) {
	var sent Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 1 {
			sent = req.Messages[0]
		}
		json.NewEncoder(w).Encode(chatResponse{Message: Message{
			Role:    "assistant",
			Content: `{"labels":[{"label":"cup","confidence":0.8},{"label":"table","confidence":0.3}]}`,
		}})
	}))
	defer srv.Close()

	img := image.NewRGBA(image.Rect(0, 0, 2000, 1000))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(10, 10, color.Black)

	labels, err := NewLabeler(New(srv.URL), "llava", 0).Classify(context.Background(), img)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(labels) != 2 || labels[0].Name != "cup" || labels[0].Confidence != 0.8 {
		t.Errorf("labels: got %+v", labels)
	}

	if len(sent.Images) != 1 {
		t.Fatalf("expected one image in request, got %d", len(sent.Images))
	}
	data, err := base64.StdEncoding.DecodeString(sent.Images[0])
	if err != nil {
		t.Fatalf("image not base64: %v", err)
	}
	decoded, err := imaging.DecodeBytes(data)
	if err != nil {
		t.Fatalf("image not decodable: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != labelImageSide || b.Dy() != labelImageSide/2 {
		t.Errorf("sent image size: got %dx%d, want %dx%d", b.Dx(), b.Dy(), labelImageSide, labelImageSide/2)
	}
}

func TestNewLabeler_DefaultTopK(t *testing.T) {
	if l := NewLabeler(New("http://localhost:11434"), "llava", 0); l.topK != 5 {
		t.Errorf("topK: got %d, want 5", l.topK)
	}
}
