package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ironsheep/lens-match/internal/lens"
	"github.com/ironsheep/lens-match/internal/rules"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall executes a tool and wraps its result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", "tool", params.Name, "error", err)
		return errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Recognition
	case "recognize_image":
		return s.handleRecognizeImage(ctx, args)
	case "embed_image":
		return s.handleEmbedImage(ctx, args)

	// Rule management
	case "list_rules":
		return s.handleListRules()
	case "add_rule":
		return s.handleAddRule(ctx, args)
	case "delete_rule":
		return s.handleDeleteRule(args)
	case "reorder_rules":
		return s.handleReorderRules(args)

	// Diagnostics
	case "recognition_history":
		return s.handleRecognitionHistory(args)
	case "runtime_status":
		return s.svc.RuntimeStatus(), nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Recognition ===

type pathArgs struct {
	Path string `json:"path"`
}

func (a pathArgs) validate() error {
	if a.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

func (s *Server) handleRecognizeImage(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return s.svc.RecognizeFile(ctx, a.Path)
}

type embedResult struct {
	Dimensions int       `json:"dimensions"`
	Embedding  []float32 `json:"embedding"`
}

func (s *Server) handleEmbedImage(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	vec, err := s.svc.EmbedReference(ctx, f)
	if err != nil {
		return nil, err
	}
	return embedResult{Dimensions: len(vec), Embedding: vec}, nil
}

// === Rule management ===

// ruleView is a rule as shown to MCP clients; the reference embedding is
// summarised by its length.
type ruleView struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Kind                rules.Kind       `json:"kind"`
	Target              string           `json:"target,omitempty"`
	SimilarityThreshold float64          `json:"similarity_threshold,omitempty"`
	ReferenceDimensions int              `json:"reference_dimensions,omitempty"`
	Feedback            []rules.Feedback `json:"feedback"`
	CreatedAt           time.Time        `json:"created_at"`
}

func viewOf(r rules.Rule) ruleView {
	v := ruleView{
		ID:                  r.ID,
		Name:                r.Name,
		Kind:                r.Kind,
		Target:              r.Target,
		ReferenceDimensions: len(r.ReferenceEmbedding),
		Feedback:            r.Feedback,
		CreatedAt:           r.CreatedAt,
	}
	if r.Kind == rules.KindEmbeddingSimilarity {
		v.SimilarityThreshold = r.Threshold()
	}
	return v
}

func (s *Server) handleListRules() (interface{}, error) {
	rs, err := s.svc.Rules()
	if err != nil {
		return nil, err
	}
	views := make([]ruleView, len(rs))
	for i, r := range rs {
		views[i] = viewOf(r)
	}
	return map[string]interface{}{"count": len(views), "rules": views}, nil
}

type addRuleArgs struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Kind                string           `json:"kind"`
	Target              string           `json:"target"`
	SimilarityThreshold float64          `json:"similarity_threshold"`
	ReferencePath       string           `json:"reference_path"`
	Feedback            []rules.Feedback `json:"feedback"`
}

func (s *Server) handleAddRule(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a addRuleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	d := lens.Draft{
		ID:                  a.ID,
		Name:                a.Name,
		Kind:                a.Kind,
		Target:              a.Target,
		SimilarityThreshold: a.SimilarityThreshold,
		Feedback:            a.Feedback,
	}
	if a.ReferencePath != "" {
		f, err := os.Open(a.ReferencePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open reference image: %w", err)
		}
		defer f.Close()
		d.Reference = f
	}

	r, err := s.svc.AddRule(ctx, d)
	if err != nil {
		return nil, err
	}
	return viewOf(r), nil
}

type idArgs struct {
	ID string `json:"id"`
}

func (s *Server) handleDeleteRule(args json.RawMessage) (interface{}, error) {
	var a idArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if err := s.svc.DeleteRule(a.ID); err != nil {
		return nil, fmt.Errorf("rule %s: %w", a.ID, err)
	}
	return map[string]interface{}{"deleted": a.ID}, nil
}

type reorderArgs struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReorderRules(args json.RawMessage) (interface{}, error) {
	var a reorderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.IDs) == 0 {
		return nil, fmt.Errorf("ids is required")
	}
	if err := s.svc.ReorderRules(a.IDs); err != nil {
		return nil, err
	}
	return s.handleListRules()
}

// === Diagnostics ===

type historyArgs struct {
	Limit int `json:"limit"`
}

func (s *Server) handleRecognitionHistory(args json.RawMessage) (interface{}, error) {
	var a historyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.svc.History(a.Limit)
}
