package imaging

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// ColorFrequency is a named colour and the share of the image it covers.
type ColorFrequency struct {
	Name       string  `json:"name"`       // Basic colour name, e.g. "red"
	Hex        string  `json:"hex"`        // Most common quantized shade "#RRGGBB"
	Percentage float64 `json:"percentage"` // Share of visible pixels (0-100)
}

// namedColor is a reference shade for one basic colour term.
type namedColor struct {
	name string
	c    colorful.Color
}

// chromaticPalette holds the hue-bearing colour terms. Achromatic pixels are
// named by lightness in NameColor before this palette is consulted.
var chromaticPalette = []namedColor{
	{"red", colorful.Color{R: 0.85, G: 0.10, B: 0.10}},
	{"orange", colorful.Color{R: 1.00, G: 0.55, B: 0.00}},
	{"yellow", colorful.Color{R: 0.98, G: 0.85, B: 0.10}},
	{"green", colorful.Color{R: 0.10, G: 0.65, B: 0.20}},
	{"blue", colorful.Color{R: 0.05, G: 0.20, B: 0.95}},
	{"purple", colorful.Color{R: 0.50, G: 0.15, B: 0.70}},
	{"pink", colorful.Color{R: 1.00, G: 0.45, B: 0.70}},
	{"brown", colorful.Color{R: 0.50, G: 0.30, B: 0.12}},
}

const (
	// achromaticChroma is the HCL chroma below which a colour has no usable hue.
	achromaticChroma = 0.08
	blackLightness   = 0.25
	whiteLightness   = 0.85
)

// NameColor returns the basic colour term closest to c in CIE-Lab space.
//
// The result is one of black, white, gray, red, orange, yellow, green, blue,
// purple, pink or brown.
func NameColor(c color.Color) string {
	cf, _ := colorful.MakeColor(c)
	_, chroma, l := cf.Hcl()
	if chroma < achromaticChroma {
		switch {
		case l < blackLightness:
			return "black"
		case l > whiteLightness:
			return "white"
		default:
			return "gray"
		}
	}

	best := chromaticPalette[0]
	bestDist := cf.DistanceLab(best.c)
	for _, p := range chromaticPalette[1:] {
		if d := cf.DistanceLab(p.c); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best.name
}

// DominantColors returns up to count basic colours covering the most pixels,
// sorted by coverage (descending, ties by name).
//
// # Color Quantization
//
// Pixels are first quantized by dividing each component by 16 and rounding
// down, then every quantized shade is named with NameColor and shares are summed
// per name. Hex reports the most common shade under each name.
//
// # Performance
//
// The image is downsampled to at most 64 pixels on its longer side first, so
// cost is independent of the input resolution.
func DominantColors(img image.Image, count int) []ColorFrequency {
	if count <= 0 || img.Bounds().Empty() {
		return nil
	}
	small := imaging.Fit(img, embedSide, embedSide, imaging.Box)

	shadeCounts := make(map[color.NRGBA]int)
	totalPixels := 0
	bounds := small.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := small.NRGBAAt(x, y)
			if px.A < 128 {
				continue
			}
			shade := color.NRGBA{R: px.R / 16 * 16, G: px.G / 16 * 16, B: px.B / 16 * 16, A: 255}
			shadeCounts[shade]++
			totalPixels++
		}
	}
	if totalPixels == 0 {
		return nil
	}

	type tally struct {
		pixels    int
		topShade  color.NRGBA
		topPixels int
	}
	byName := make(map[string]*tally)
	for shade, n := range shadeCounts {
		name := NameColor(shade)
		t, ok := byName[name]
		if !ok {
			t = &tally{}
			byName[name] = t
		}
		t.pixels += n
		if n > t.topPixels || (n == t.topPixels && shadeLess(shade, t.topShade)) {
			t.topShade, t.topPixels = shade, n
		}
	}

	colors := make([]ColorFrequency, 0, len(byName))
	for name, t := range byName {
		colors = append(colors, ColorFrequency{
			Name:       name,
			Hex:        fmt.Sprintf("#%02X%02X%02X", t.topShade.R, t.topShade.G, t.topShade.B),
			Percentage: float64(t.pixels) / float64(totalPixels) * 100,
		})
	}

	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Name < colors[j].Name
	})

	if len(colors) > count {
		colors = colors[:count]
	}
	return colors
}

func shadeLess(a, b color.NRGBA) bool {
	if a.R != b.R {
		return a.R < b.R
	}
	if a.G != b.G {
		return a.G < b.G
	}
	return a.B < b.B
}
