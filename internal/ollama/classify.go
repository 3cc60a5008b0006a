package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/models"
)

const (
	// labelImageSide bounds the frame sent to the vision model.
	labelImageSide   = 768
	labelJPEGQuality = 85
)

var labelSchema = &Schema{
	Type: "object",
	Properties: map[string]SchemaProperty{
		"labels": {
			Type:        "array",
			Description: "objects and concepts visible in the image",
			Items: &Schema{
				Type: "object",
				Properties: map[string]SchemaProperty{
					"label":      {Type: "string", Description: "short lowercase noun phrase"},
					"confidence": {Type: "number", Description: "probability between 0 and 1"},
				},
				Required: []string{"label", "confidence"},
			},
		},
	},
	Required: []string{"labels"},
}

// Labeler classifies images with an Ollama vision model such as llava.
// It implements models.LabelBackend.
type Labeler struct {
	client *Client
	model  string
	topK   int
}

// NewLabeler returns a Labeler that keeps at most topK labels (default 5).
func NewLabeler(c *Client, model string, topK int) *Labeler {
	if topK <= 0 {
		topK = 5
	}
	return &Labeler{client: c, model: model, topK: topK}
}

type labelResponse struct {
	Labels []struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"labels"`
}

// Classify asks the model for the topK labels visible in img, ranked by
// confidence. Confidences are clamped to [0,1] and blank labels dropped.
func (l *Labeler) Classify(ctx context.Context, img image.Image) ([]models.Label, error) {
	data, err := imaging.EncodeJPEG(imaging.Fit(img, labelImageSide), labelJPEGQuality)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"List up to %d objects or concepts clearly visible in this image, most prominent first. "+
			"Use short common English nouns. Give each a confidence between 0 and 1.", l.topK)
	content, err := l.client.Chat(ctx, l.model, []Message{{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(data)},
	}}, labelSchema)
	if err != nil {
		return nil, err
	}

	return parseLabels(content, l.topK)
}

// parseLabels decodes a structured label response.
func parseLabels(content string, topK int) ([]models.Label, error) {
	var resp labelResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("decoding labels: %w", err)
	}

	labels := make([]models.Label, 0, len(resp.Labels))
	for _, r := range resp.Labels {
		name := strings.TrimSpace(r.Label)
		if name == "" {
			continue
		}
		conf := r.Confidence
		switch {
		case math.IsNaN(conf) || conf < 0:
			conf = 0
		case conf > 1:
			conf = 1
		}
		labels = append(labels, models.Label{Name: name, Confidence: conf})
	}

	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Confidence > labels[j].Confidence
	})
	if len(labels) > topK {
		labels = labels[:topK]
	}
	return labels, nil
}
