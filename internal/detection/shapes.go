package detection

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/lens-match/internal/imaging"
)

// Rectangle is a detected rectangular contour.
type Rectangle struct {
	Bounds Bounds `json:"bounds"`
	Center Point  `json:"center"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Area   int    `json:"area"`

	// FillColor is the basic colour name sampled at the centre.
	FillColor string `json:"fill_color,omitempty"`

	// Confidence is the rectangularity score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`
}

// DetectRectangles finds closed rectangular contours, largest first.
//
// Parameters:
//   - img: The source image.
//   - minArea: Minimum bounding-box area in pixels.
//   - tolerance: Minimum rectangularity (0.0 to 1.0) to keep a contour.
//
// Rectangularity compares the number of contour pixels with the perimeter of
// the contour's bounding box:
//
//	rectangularity = 1 - |contourLen - 2(w+h)| / 2(w+h)
//
// A clean rectangle outline scores close to 1; blobs and open curves score low.
func DetectRectangles(img image.Image, minArea int, tolerance float64) []Rectangle {
	bounds := img.Bounds()
	contours := findContours(detectEdges(img))

	rectangles := make([]Rectangle, 0)
	for _, contour := range contours {
		if len(contour) < 4 {
			continue
		}

		minX, minY := math.MaxInt, math.MaxInt
		maxX, maxY := 0, 0
		for _, p := range contour {
			minX = min(minX, p.X)
			maxX = max(maxX, p.X)
			minY = min(minY, p.Y)
			maxY = max(maxY, p.Y)
		}

		rectWidth := maxX - minX
		rectHeight := maxY - minY
		area := rectWidth * rectHeight
		if area < minArea || rectWidth == 0 || rectHeight == 0 {
			continue
		}

		expectedPerimeter := 2 * (rectWidth + rectHeight)
		rectangularity := 1.0 - math.Abs(float64(len(contour)-expectedPerimeter))/float64(expectedPerimeter)
		if rectangularity < tolerance {
			continue
		}

		centerX := (minX + maxX) / 2
		centerY := (minY + maxY) / 2

		rectangles = append(rectangles, Rectangle{
			Bounds: Bounds{
				X1: minX + bounds.Min.X,
				Y1: minY + bounds.Min.Y,
				X2: maxX + bounds.Min.X,
				Y2: maxY + bounds.Min.Y,
			},
			Center:     Point{X: centerX + bounds.Min.X, Y: centerY + bounds.Min.Y},
			Width:      rectWidth,
			Height:     rectHeight,
			Area:       area,
			FillColor:  imaging.NameColor(img.At(centerX+bounds.Min.X, centerY+bounds.Min.Y)),
			Confidence: rectangularity,
		})
	}

	sort.SliceStable(rectangles, func(i, j int) bool {
		return rectangles[i].Area > rectangles[j].Area
	})
	return rectangles
}
