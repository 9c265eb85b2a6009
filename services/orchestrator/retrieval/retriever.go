// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval supplies regulatory passages to the verification
// endpoints.
//
// The decision core never searches for evidence itself. When a caller does
// not send passages, the HTTP layer asks a Retriever (normally Weaviate) and
// hands the results to the core unchanged.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"golang.org/x/sync/errgroup"
)

// Defaults applied when a request leaves the search parameters unset.
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.35

	// maxParallelSearches bounds fan-out for batch verification.
	maxParallelSearches = 4
)

// Retriever finds passages relevant to a query.
//
// # Description
//
// Implementations return at most topK passages whose Score is at least
// minScore, best first. Score must be comparable with the verification
// relevance threshold (0 to 1, higher is more similar).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, minScore float64) ([]verification.Passage, error)
}

// SearchAll runs one search per query with bounded concurrency.
//
// # Description
//
// results[i] holds the passages for queries[i]. The first failing search
// cancels the others and its error is returned.
//
// # Inputs
//
//   - ctx: Cancellation for all searches.
//   - r: Retriever. Must not be nil.
//   - queries: One query per subject.
//   - topK, minScore: Passed to every search.
//
// # Outputs
//
//   - [][]verification.Passage: Results aligned with queries.
//   - error: First search error, wrapped with the query index.
func SearchAll(ctx context.Context, r Retriever, queries []string, topK int, minScore float64) ([][]verification.Passage, error) {
	results := make([][]verification.Passage, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSearches)

	for i, q := range queries {
		g.Go(func() error {
			passages, err := r.Search(gCtx, q, topK, minScore)
			if err != nil {
				return fmt.Errorf("search %d: %w", i, err)
			}
			results[i] = passages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// =============================================================================
// Static Retriever
// =============================================================================

// StaticRetriever serves a fixed passage set regardless of the query.
// Used when no vector store is configured and in tests.
type StaticRetriever struct {
	Passages []verification.Passage
}

// Search returns the stored passages with Score >= minScore, best first,
// truncated to topK.
func (s StaticRetriever) Search(ctx context.Context, _ string, topK int, minScore float64) ([]verification.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]verification.Passage, 0, len(s.Passages))
	for _, p := range s.Passages {
		if p.Score >= minScore {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

var _ Retriever = StaticRetriever{}
