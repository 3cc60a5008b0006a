// Package ocr provides Optical Character Recognition (OCR) functionality using Tesseract.
//
// This package wraps the Tesseract OCR engine (via gosseract/v2) behind a
// Recognizer that reads text from in-memory images. A Recognizer owns one
// long-lived Tesseract handle; loading language data is the slow part, so the
// handle is created once and reused for every frame.
//
// # Prerequisites
//
// Tesseract must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr libtesseract-dev
//   - macOS: brew install tesseract
//
// Language data files are required for each language:
//   - Ubuntu/Debian: apt-get install tesseract-ocr-eng (for English)
//   - Other languages: tesseract-ocr-<lang> packages
//
// Set Options.TessdataPrefix when the data lives outside the default search path.
//
// # Supported Languages
//
// The default language is English ("eng"). Several languages can be combined,
// e.g. []string{"eng", "deu"}; see the Tesseract documentation for codes.
//
// # Thread Safety
//
// A Tesseract handle is not safe for concurrent use. Recognizer serialises
// calls with a mutex, so one Recognizer may be shared but runs one recognition
// at a time. Run several Recognizers for parallel OCR.
//
// # Error Handling
//
// New fails when Tesseract or its language data is unavailable; the probe runs
// a recognition on a blank page so missing data is reported at load time rather
// than on the first real image. After Close, RecognizeText returns ErrClosed.
package ocr
