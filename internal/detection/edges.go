package detection

import (
	"image"

	"github.com/ironsheep/lens-match/internal/imaging"
)

// edgeThreshold is the minimum luminance step (0-1 scale) that counts as an edge.
const edgeThreshold = 30.0 / 255.0

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// detectEdges marks pixels whose right or lower neighbour differs in
// luminance by more than edgeThreshold. The one-pixel image border is never
// an edge.
func detectEdges(img image.Image) [][]bool {
	gray := imaging.Luminance(img)
	height := len(gray)
	edges := make([][]bool, height)

	for y := 0; y < height; y++ {
		width := len(gray[y])
		edges[y] = make([]bool, width)
		if y == 0 || y == height-1 {
			continue
		}
		for x := 1; x < width-1; x++ {
			c := gray[y][x]
			dx := c - gray[y][x+1]
			dy := c - gray[y+1][x]
			if dx > edgeThreshold || -dx > edgeThreshold || dy > edgeThreshold || -dy > edgeThreshold {
				edges[y][x] = true
			}
		}
	}
	return edges
}

// findContours groups 8-connected edge pixels. Groups smaller than 10 pixels
// are discarded as noise.
func findContours(edges [][]bool) [][]Point {
	height := len(edges)
	visited := make([][]bool, height)
	for y := range edges {
		visited[y] = make([]bool, len(edges[y]))
	}

	contours := make([][]Point, 0)
	for y := range edges {
		for x := range edges[y] {
			if edges[y][x] && !visited[y][x] {
				contour := floodFill(edges, visited, x, y)
				if len(contour) >= 10 {
					contours = append(contours, contour)
				}
			}
		}
	}
	return contours
}

// floodFill collects the 8-connected edge component containing (startX, startY).
// It uses an explicit stack so large components cannot overflow the goroutine stack.
func floodFill(edges, visited [][]bool, startX, startY int) []Point {
	height := len(edges)
	var contour []Point
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.Y < 0 || p.Y >= height || p.X < 0 || p.X >= len(edges[p.Y]) {
			continue
		}
		if visited[p.Y][p.X] || !edges[p.Y][p.X] {
			continue
		}

		visited[p.Y][p.X] = true
		contour = append(contour, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return contour
}
