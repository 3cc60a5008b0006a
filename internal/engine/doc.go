// Package engine decides which recognition rule, if any, an image satisfies.
//
// Analysis runs in three steps:
//
//  1. Demand: scan the rules once and note which modalities they need. An
//     embedding is needed only when some similarity rule has a reference.
//  2. Classify: run each needed extractor exactly once, concurrently.
//     Unneeded extractors are never invoked.
//  3. Evaluate: walk the rules in input order and return the first one whose
//     test passes. Rule order is the only tie-break.
//
// Extraction failures surface as empty results, so a failed modality simply
// makes its rules fail to match. The only hard error is an undecodable image,
// reported by AnalyzeReader as imaging.ErrDecode.
//
// The Engine holds no per-call state and is safe for concurrent use.
//
// # Example
//
//	eng := engine.New(engine.Extractors{
//	    Text:      extract.NewText(rt, logger),
//	    Labels:    extract.NewLabels(rt, logger),
//	    Embedding: extract.NewEmbedding(rt, logger),
//	}, engine.WithLogger(logger))
//
//	id, ok := eng.Analyze(ctx, img, ruleList)
package engine
