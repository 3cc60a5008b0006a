package server

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/lens"
	"github.com/ironsheep/lens-match/internal/models"
	"github.com/ironsheep/lens-match/internal/store"
)

type stubText struct{ text string }

func (s stubText) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	return s.text, nil
}

// newTestServer returns a server whose text backend always reads text and
// whose embedding backend is the real histogram embedder.
func newTestServer(t *testing.T, text string) *Server {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rt := models.New(models.Loaders{
		Text: models.Loader[models.TextBackend]{
			Load:       func(ctx context.Context) (models.TextBackend, error) { return stubText{text}, nil },
			Concurrent: true,
		},
		Embedding: models.Loader[models.EmbeddingBackend]{
			Load: func(ctx context.Context) (models.EmbeddingBackend, error) {
				return imaging.NewHistogramEmbedder(), nil
			},
			Concurrent: true,
		},
	})
	t.Cleanup(func() { rt.Close() })

	logger := slog.New(slog.DiscardHandler)
	svc := lens.New(st, lens.NewEngine(rt, 0, logger), rt, lens.Options{Logger: logger})
	return New(svc, "test", logger)
}

// writeTestPNG writes a solid image to a temp file and returns its path.
func writeTestPNG(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	path := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// serve runs the server over the given request lines and returns every
// response in order.
func serve(t *testing.T, s *Server, lines ...string) []MCPResponse {
	t.Helper()
	var out strings.Builder
	if err := s.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var resps []MCPResponse
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r MCPResponse
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad response line %q: %v", sc.Text(), err)
		}
		resps = append(resps, r)
	}
	return resps
}

// toolCall builds a tools/call request line.
func toolCall(id int, name string, args interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]interface{}{"name": name, "arguments": args},
	})
	return string(b)
}

// toolText extracts the JSON text payload from a tools/call result.
func toolText(t *testing.T, r MCPResponse) string {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("unexpected error: %+v", r.Error)
	}
	result, ok := r.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is %T", r.Result)
	}
	content := result["content"].([]interface{})
	return content[0].(map[string]interface{})["text"].(string)
}

func TestServe_ProtocolMethods(t *testing.T) {
	s := newTestServer(t, "")
	resps := serve(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
	)

	if len(resps) != 4 {
		t.Fatalf("got %d responses, want 4 (notifications get none)", len(resps))
	}

	info := resps[0].Result.(map[string]interface{})["serverInfo"].(map[string]interface{})
	if info["name"] != "lens-match" || info["version"] != "test" {
		t.Errorf("serverInfo: %v", info)
	}
	if resps[1].ID != float64(2) || resps[1].Error != nil {
		t.Errorf("ping: %+v", resps[1])
	}

	tools := resps[2].Result.(map[string]interface{})["tools"].([]interface{})
	if len(tools) != len(GetToolDefinitions()) {
		t.Errorf("tools/list returned %d tools", len(tools))
	}

	if resps[3].Error == nil || resps[3].Error.Code != -32601 {
		t.Errorf("unknown method: %+v", resps[3])
	}
}

func TestServe_ParseError(t *testing.T) {
	resps := serve(t, newTestServer(t, ""), `{not json`, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if len(resps) != 2 {
		t.Fatalf("got %d responses", len(resps))
	}
	if resps[0].Error == nil || resps[0].Error.Code != -32700 {
		t.Errorf("parse error: %+v", resps[0])
	}
	if resps[1].Error != nil {
		t.Errorf("server did not recover after bad line: %+v", resps[1])
	}
}

func TestToolsCall_InvalidParams(t *testing.T) {
	resps := serve(t, newTestServer(t, ""), `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"nope"}`)
	if resps[0].Error == nil || resps[0].Error.Code != -32602 {
		t.Errorf("got %+v, want -32602", resps[0])
	}
}

func TestToolsCall_UnknownTool(t *testing.T) {
	resps := serve(t, newTestServer(t, ""), toolCall(1, "image_crop", map[string]interface{}{}))
	if resps[0].Error == nil || resps[0].Error.Code != -32000 {
		t.Fatalf("got %+v, want -32000", resps[0])
	}
	if !strings.Contains(resps[0].Error.Data.(string), "unknown tool") {
		t.Errorf("data: %v", resps[0].Error.Data)
	}
}

func TestToolDefinitions_Valid(t *testing.T) {
	seen := make(map[string]bool)
	for _, tool := range GetToolDefinitions() {
		if tool.Name == "" || tool.Description == "" {
			t.Errorf("incomplete tool: %+v", tool)
		}
		if seen[tool.Name] {
			t.Errorf("duplicate tool %s", tool.Name)
		}
		seen[tool.Name] = true
		if tool.InputSchema["type"] != "object" {
			t.Errorf("%s: schema type %v", tool.Name, tool.InputSchema["type"])
		}
	}
	for _, name := range []string{"recognize_image", "list_rules", "add_rule", "delete_rule", "embed_image", "recognition_history", "runtime_status"} {
		if !seen[name] {
			t.Errorf("missing tool %s", name)
		}
	}
}
