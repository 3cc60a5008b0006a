package detection

import (
	"context"
	"image"
	"sort"

	"github.com/ironsheep/lens-match/internal/imaging"
	"github.com/ironsheep/lens-match/internal/models"
)

// SceneOptions tunes SceneLabeler. Zero values select the defaults below.
type SceneOptions struct {
	// MaxSide bounds the working copy; larger frames are downscaled first.
	MaxSide int

	// MinTextConfidence is the minimum text-region score to emit "text".
	MinTextConfidence float64

	// MinRectangleArea is the minimum bounding-box area, as a fraction of the
	// working image, for a contour to count as a rectangle.
	MinRectangleArea float64

	// RectangleTolerance is the minimum rectangularity for "rectangle".
	RectangleTolerance float64

	// MaxColors limits the number of colour labels.
	MaxColors int

	// MinColorShare is the minimum covered fraction (0-1) for a colour label.
	MinColorShare float64
}

// DefaultSceneOptions returns the tuning used when fields are left zero.
func DefaultSceneOptions() SceneOptions {
	return SceneOptions{
		MaxSide:            512,
		MinTextConfidence:  0.4,
		MinRectangleArea:   0.02,
		RectangleTolerance: 0.8,
		MaxColors:          3,
		MinColorShare:      0.1,
	}
}

// SceneLabeler labels images from text, shape and colour cues.
// It implements models.LabelBackend and holds no mutable state.
type SceneLabeler struct {
	opts SceneOptions
}

// NewSceneLabeler returns a labeler, filling unset options with defaults.
func NewSceneLabeler(opts SceneOptions) *SceneLabeler {
	def := DefaultSceneOptions()
	if opts.MaxSide <= 0 {
		opts.MaxSide = def.MaxSide
	}
	if opts.MinTextConfidence <= 0 {
		opts.MinTextConfidence = def.MinTextConfidence
	}
	if opts.MinRectangleArea <= 0 {
		opts.MinRectangleArea = def.MinRectangleArea
	}
	if opts.RectangleTolerance <= 0 {
		opts.RectangleTolerance = def.RectangleTolerance
	}
	if opts.MaxColors <= 0 {
		opts.MaxColors = def.MaxColors
	}
	if opts.MinColorShare <= 0 {
		opts.MinColorShare = def.MinColorShare
	}
	return &SceneLabeler{opts: opts}
}

// Classify returns scene labels ranked by confidence, highest first.
func (s *SceneLabeler) Classify(ctx context.Context, img image.Image) ([]models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	work := imaging.Fit(img, s.opts.MaxSide)
	var labels []models.Label

	if regions := DetectTextRegions(work, s.opts.MinTextConfidence); len(regions) > 0 {
		labels = append(labels, models.Label{Name: "text", Confidence: regions[0].Confidence})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := work.Bounds()
	minArea := int(s.opts.MinRectangleArea * float64(b.Dx()*b.Dy()))
	if rects := DetectRectangles(work, minArea, s.opts.RectangleTolerance); len(rects) > 0 {
		best := rects[0].Confidence
		for _, r := range rects[1:] {
			best = max(best, r.Confidence)
		}
		labels = append(labels, models.Label{Name: "rectangle", Confidence: best})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, c := range imaging.DominantColors(work, s.opts.MaxColors) {
		share := c.Percentage / 100
		if share < s.opts.MinColorShare {
			continue
		}
		labels = append(labels, models.Label{Name: c.Name, Confidence: share})
	}

	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Confidence > labels[j].Confidence
	})
	return labels, nil
}
