package detection

import (
	"image"
	"math"
	"sort"
)

// TextRegion is an area whose edge structure looks like printed text.
type TextRegion struct {
	Bounds     Bounds  `json:"bounds"`
	Confidence float64 `json:"confidence"`
	Area       int     `json:"area"`
}

// textWindows are the probe sizes, roughly one short caption line each.
var textWindows = []struct{ w, h int }{
	{80, 25},
	{100, 30},
	{150, 40},
	{200, 50},
}

const (
	minTextDensity  = 0.05
	peakTextDensity = 0.2
	maxTextDensity  = 0.4
)

// DetectTextRegions finds areas likely to contain text without running OCR.
//
// Each probe window is scored from its edge density d and the share h of
// edge runs that are horizontal:
//
//	confidence = h × (1 - |d - 0.2| / 0.2)    for 0.05 <= d <= 0.4
//
// Window sums come from summed-area tables, so every probe costs O(1).
// Overlapping candidates are merged until no two results overlap; results
// are sorted by confidence, highest first.
func DetectTextRegions(img image.Image, minConfidence float64) []TextRegion {
	bounds := img.Bounds()
	tables := newEdgeTables(detectEdges(img))

	var candidates []TextRegion
	for _, win := range textWindows {
		if win.w > tables.width || win.h > tables.height {
			continue
		}
		for y := 0; y+win.h <= tables.height; y += win.h / 2 {
			for x := 0; x+win.w <= tables.width; x += win.w / 2 {
				area := win.w * win.h
				density := float64(tables.edges.sum(x, y, win.w, win.h)) / float64(area)
				if density < minTextDensity || density > maxTextDensity {
					continue
				}
				conf := tables.horizontalShare(x, y, win.w, win.h) * (1 - math.Abs(density-peakTextDensity)/peakTextDensity)
				if conf < minConfidence {
					continue
				}
				candidates = append(candidates, TextRegion{
					Bounds: Bounds{
						X1: bounds.Min.X + x,
						Y1: bounds.Min.Y + y,
						X2: bounds.Min.X + x + win.w,
						Y2: bounds.Min.Y + y + win.h,
					},
					Confidence: math.Round(conf*1000) / 1000,
					Area:       area,
				})
			}
		}
	}

	regions := coalesce(candidates)
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Confidence > regions[j].Confidence
	})
	return regions
}

// integral is a summed-area table with a zero guard row and column.
type integral struct {
	stride int
	cells  []int
}

func newIntegral(width, height int, at func(x, y int) bool) integral {
	t := integral{stride: width + 1, cells: make([]int, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		row := 0
		for x := 0; x < width; x++ {
			if at(x, y) {
				row++
			}
			t.cells[(y+1)*t.stride+x+1] = t.cells[y*t.stride+x+1] + row
		}
	}
	return t
}

// sum counts set cells in the w×h window at (x, y).
func (t integral) sum(x, y, w, h int) int {
	s := t.stride
	return t.cells[(y+h)*s+x+w] - t.cells[y*s+x+w] - t.cells[(y+h)*s+x] + t.cells[y*s+x]
}

// edgeTables holds the edge map plus tables of horizontal and vertical run
// starts, letting a window's run counts be read without rescanning it.
type edgeTables struct {
	width, height int
	edges         integral
	hStarts       integral
	vStarts       integral
}

func newEdgeTables(edges [][]bool) *edgeTables {
	height := len(edges)
	width := 0
	if height > 0 {
		width = len(edges[0])
	}
	return &edgeTables{
		width:  width,
		height: height,
		edges:  newIntegral(width, height, func(x, y int) bool { return edges[y][x] }),
		hStarts: newIntegral(width, height, func(x, y int) bool {
			return edges[y][x] && (x == 0 || !edges[y][x-1])
		}),
		vStarts: newIntegral(width, height, func(x, y int) bool {
			return edges[y][x] && (y == 0 || !edges[y-1][x])
		}),
	}
}

// horizontalShare is the fraction of edge runs inside the window that run
// horizontally. Runs entering the window from outside are counted once at
// the window border.
func (t *edgeTables) horizontalShare(x, y, w, h int) float64 {
	horizontal := t.hStarts.sum(x, y, w, h)
	vertical := t.vStarts.sum(x, y, w, h)
	if x > 0 {
		// Edge pixels on the left border whose run began outside the window.
		horizontal += t.edges.sum(x, y, 1, h) - t.hStarts.sum(x, y, 1, h)
	}
	if y > 0 {
		vertical += t.edges.sum(x, y, w, 1) - t.vStarts.sum(x, y, w, 1)
	}
	if horizontal+vertical == 0 {
		return 0
	}
	return float64(horizontal) / float64(horizontal+vertical)
}

// coalesce merges overlapping regions, keeping the higher confidence, and
// repeats until the result is overlap-free.
func coalesce(regions []TextRegion) []TextRegion {
	out := make([]TextRegion, 0, len(regions))
	for _, r := range regions {
		for {
			absorbed := false
			for i := 0; i < len(out); i++ {
				if !overlaps(r.Bounds, out[i].Bounds) {
					continue
				}
				r.Bounds = union(r.Bounds, out[i].Bounds)
				r.Confidence = math.Max(r.Confidence, out[i].Confidence)
				out = append(out[:i], out[i+1:]...)
				absorbed = true
				break
			}
			if !absorbed {
				break
			}
		}
		r.Area = (r.Bounds.X2 - r.Bounds.X1) * (r.Bounds.Y2 - r.Bounds.Y1)
		out = append(out, r)
	}
	return out
}

func overlaps(a, b Bounds) bool {
	return a.X1 < b.X2 && a.X2 > b.X1 && a.Y1 < b.Y2 && a.Y2 > b.Y1
}

func union(a, b Bounds) Bounds {
	return Bounds{
		X1: min(a.X1, b.X1),
		Y1: min(a.Y1, b.Y1),
		X2: max(a.X2, b.X2),
		Y2: max(a.Y2, b.Y2),
	}
}
