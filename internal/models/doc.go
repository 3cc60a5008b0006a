// Package models owns the lifecycle of the inference backends used for
// recognition: a text recogniser, an image classifier and an embedding
// extractor.
//
// Backends are expensive to initialise (model downloads, Tesseract start-up)
// and cheap to reuse, so the Runtime initialises each modality lazily on first
// use and keeps it for the rest of the process.
//
// # Initialisation
//
// EnsureReady is idempotent:
//   - A ready modality returns immediately.
//   - While an initialisation is in flight, further callers wait for it instead
//     of starting their own.
//   - A failed initialisation is not remembered; the next call starts over.
//
// A caller whose context ends stops waiting, but the shared initialisation keeps
// running for the remaining callers.
//
// # Concurrency
//
// Ready backends are shared by every recognition call. A Loader that is not
// marked Concurrent has its backend wrapped so calls into it are serialised per
// modality.
//
// # Example
//
//	rt := models.New(models.Loaders{
//	    Text: models.Loader[models.TextBackend]{Load: loadTesseract},
//	})
//	defer rt.Close()
//	if err := rt.EnsureReady(ctx, models.ModalityText); err != nil {
//	    log.Printf("text modality unavailable: %v", err)
//	}
package models
