package detection

import (
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a solid color test image
func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createFilledRectangleImage draws a filled rectangle (inclusive corners) on white.
func createFilledRectangleImage(width, height, x1, y1, x2, y2 int, fill color.Color) *image.RGBA {
	img := createTestImage(width, height, color.White)
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

func TestDetectRectangles(t *testing.T) {
	img := createFilledRectangleImage(100, 100, 20, 20, 80, 80, color.RGBA{13, 51, 242, 255})

	rects := DetectRectangles(img, 100, 0.8)
	if len(rects) == 0 {
		t.Fatal("expected a rectangle")
	}

	r := rects[0]
	if r.Bounds.X1 < 18 || r.Bounds.X1 > 20 || r.Bounds.X2 < 79 || r.Bounds.X2 > 81 {
		t.Errorf("bounds: got %+v, want around (19..80)", r.Bounds)
	}
	if r.Confidence < 0.9 {
		t.Errorf("confidence: got %.3f, want >= 0.9", r.Confidence)
	}
	if r.FillColor != "blue" {
		t.Errorf("FillColor: got %q, want blue", r.FillColor)
	}
	if r.Area != r.Width*r.Height {
		t.Errorf("Area %d != %d x %d", r.Area, r.Width, r.Height)
	}
}

func TestDetectRectangles_MinArea(t *testing.T) {
	img := createFilledRectangleImage(100, 100, 40, 40, 50, 50, color.Black)

	if got := DetectRectangles(img, 50, 0.5); len(got) == 0 {
		t.Error("small rectangle should pass minArea=50")
	}
	if got := DetectRectangles(img, 500, 0.5); len(got) != 0 {
		t.Errorf("small rectangle should fail minArea=500, got %d", len(got))
	}
}

func TestDetectRectangles_EmptyImage(t *testing.T) {
	img := createTestImage(100, 100, color.White)

	if got := DetectRectangles(img, 100, 0.5); len(got) != 0 {
		t.Errorf("Expected 0 rectangles in empty image, got %d", len(got))
	}
}

func TestDetectRectangles_SortedByArea(t *testing.T) {
	img := createTestImage(200, 200, color.White)
	for y := 10; y <= 40; y++ {
		for x := 10; x <= 40; x++ {
			img.Set(x, y, color.Black)
		}
	}
	for y := 80; y <= 180; y++ {
		for x := 80; x <= 180; x++ {
			img.Set(x, y, color.Black)
		}
	}

	rects := DetectRectangles(img, 100, 0.8)
	if len(rects) != 2 {
		t.Fatalf("got %d rectangles, want 2", len(rects))
	}
	if rects[0].Area < rects[1].Area {
		t.Error("rectangles should be sorted by area, largest first")
	}
}

func TestDetectEdges(t *testing.T) {
	// Create image with a vertical edge
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			if x < 25 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}

	edges := detectEdges(img)
	for y := 1; y < 49; y++ {
		if !edges[y][24] {
			t.Fatalf("row %d: edge missing at x=24", y)
		}
		if edges[y][10] || edges[y][30] {
			t.Fatalf("row %d: unexpected edge away from the boundary", y)
		}
	}
	if edges[0][24] || edges[49][24] {
		t.Error("border rows must not be edges")
	}
}

func TestDetectEdges_UniformImage(t *testing.T) {
	edges := detectEdges(createTestImage(50, 50, color.RGBA{128, 128, 128, 255}))
	for y := range edges {
		for x := range edges[y] {
			if edges[y][x] {
				t.Fatalf("uniform image has edge at (%d,%d)", x, y)
			}
		}
	}
}

func TestFindContours(t *testing.T) {
	edges := make([][]bool, 30)
	for y := range edges {
		edges[y] = make([]bool, 30)
	}
	// One 12-pixel line and one 3-pixel speck.
	for x := 5; x < 17; x++ {
		edges[10][x] = true
	}
	for x := 20; x < 23; x++ {
		edges[25][x] = true
	}

	contours := findContours(edges)
	if len(contours) != 1 {
		t.Fatalf("got %d contours, want 1 (speck filtered)", len(contours))
	}
	if len(contours[0]) != 12 {
		t.Errorf("contour length: got %d, want 12", len(contours[0]))
	}
}

func TestFloodFill_Diagonal(t *testing.T) {
	edges := make([][]bool, 5)
	visited := make([][]bool, 5)
	for y := range edges {
		edges[y] = make([]bool, 5)
		visited[y] = make([]bool, 5)
		edges[y][y] = true
	}

	if got := floodFill(edges, visited, 0, 0); len(got) != 5 {
		t.Errorf("diagonal component: got %d pixels, want 5", len(got))
	}
}
