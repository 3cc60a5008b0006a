package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"path"},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Recognition
		{
			Name:        "recognize_image",
			Description: "Match an image against the stored recognition rules. Returns the first matching rule in evaluation order and its feedback, or matched=false.",
			InputSchema: pathSchema("Absolute path to the image file"),
		},
		{
			Name:        "embed_image",
			Description: "Compute the appearance embedding of an image, as stored on similarity rules.",
			InputSchema: pathSchema("Absolute path to the image file"),
		},

		// Rule management
		{
			Name:        "list_rules",
			Description: "List all recognition rules in evaluation order.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "add_rule",
			Description: "Create a recognition rule. It is appended to the end of the evaluation order. Similarity rules take a reference image whose embedding is computed now.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Optional rule id. An existing id is updated in place. Generated when omitted.",
					},
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Display name",
					},
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"text_contains", "label_contains", "embedding_similarity"},
						"description": "What the rule tests: recognised text, classifier labels, or visual similarity",
					},
					"target": map[string]interface{}{
						"type":        "string",
						"description": "Substring to look for (case-insensitive). Required for text_contains and label_contains.",
					},
					"similarity_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Minimum cosine similarity in (0,1]. Default 0.85",
						"default":     0.85,
					},
					"reference_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the reference image for embedding_similarity rules",
					},
					"feedback": map[string]interface{}{
						"type":        "array",
						"description": "Items shown when the rule matches",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"type": map[string]interface{}{
									"type": "string",
									"enum": []string{"text", "image", "video", "audio"},
								},
								"content": map[string]interface{}{
									"type":        "string",
									"description": "Text, or a media URL",
								},
							},
							"required": []string{"type", "content"},
						},
					},
				},
				"required": []string{"kind"},
			},
		},
		{
			Name:        "delete_rule",
			Description: "Delete a recognition rule by id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Rule id",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "reorder_rules",
			Description: "Move the given rules to the front of the evaluation order, in the order listed. The first matching rule wins, so order sets precedence.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ids": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Rule ids, highest precedence first",
					},
				},
				"required": []string{"ids"},
			},
		},

		// Diagnostics
		{
			Name:        "recognition_history",
			Description: "Recent recognitions, newest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum entries to return. Default 20",
						"default":     20,
					},
				},
			},
		},
		{
			Name:        "runtime_status",
			Description: "Load state of the text, label and embedding backends.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
