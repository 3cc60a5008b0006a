// Package imaging provides the image plumbing shared by the recognition
// backends: decoding, size normalisation, OCR preprocessing, gradient fields,
// colour naming, and a model-free histogram embedding.
//
// All operations work with standard Go image.Image values and use a coordinate
// system where (0,0) is the top-left corner, X increases rightward, and Y
// increases downward.
//
// # Decoding
//
// Decode and Load accept PNG, JPEG and GIF input. EXIF orientation is applied
// so photos taken with a rotated phone are analysed upright. Any failure to
// decode wraps ErrDecode; recognition treats that as the one fatal input error.
//
// # Thread Safety
//
// Every function is stateless and may be called concurrently. HistogramEmbedder
// holds no mutable state and is safe to share between goroutines.
//
// # Embeddings
//
// HistogramEmbedder produces a fixed 88-dimensional, L2-normalised vector:
//
//   - 64 bins: 4×4×4 CIE-Lab colour histogram
//   - 16 bins: 4×4 grid of mean lightness (coarse layout)
//   - 8 bins: gradient orientation histogram weighted by magnitude (texture)
//
// The embedding is deterministic: an image embedded at rule-authoring time and
// embedded again at recognition time yields cosine similarity 1.
//
// # Performance Considerations
//
// Large camera frames should be passed through Fit before analysis. The
// embedder and colour naming downsample internally to a 64×64 working copy.
package imaging
