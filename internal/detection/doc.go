// Package detection provides model-free scene labelling for the label modality.
//
// SceneLabeler turns classic image-analysis cues into the same ranked
// (label, confidence) pairs a vision model would produce, so label rules keep
// working on hosts with no model server. It is deliberately coarse: it knows
// about printed text, rectangular objects such as screens, signs and boxes,
// and the basic colour terms of the scene.
//
// # Algorithm Overview
//
// Every detector follows a similar pipeline:
//
//  1. Edge Detection: Convert to luminance and mark pixels whose forward
//     difference exceeds a fixed threshold
//  2. Feature Extraction: Sliding-window edge density for text, contour
//     tracing for rectangles
//  3. Filtering: Remove duplicates and shapes below size/confidence thresholds
//
// # Labels
//
//   - "text": at least one text-like region; confidence is the best region score
//   - "rectangle": at least one closed rectangular contour; confidence is its
//     rectangularity
//   - colour names ("red", "white", ...): one per dominant colour covering at
//     least MinColorShare of the image; confidence is the covered fraction
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Limitations
//
// These heuristics work best on clean, high-contrast images. Heavily textured
// photographs can produce spurious "text" regions.
package detection
