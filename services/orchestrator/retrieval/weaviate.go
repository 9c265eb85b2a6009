// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/AleutianAI/AleutianCSV/services/compliance/verification"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.csv.retrieval")

// DefaultClass is the Weaviate class holding regulatory passages.
const DefaultClass = "RegulatoryPassage"

// ErrEmptyQuery is returned when Search is called with a blank query.
var ErrEmptyQuery = errors.New("retrieval: empty query")

// =============================================================================
// Schema
// =============================================================================

// PassageSchema returns the class definition for regulatory passages.
//
// # Description
//
// content is vectorized by the server's text2vec module so nearText can be
// used. source, locator and version are stored as filterable metadata and
// echoed back into verification references.
func PassageSchema(class string) *models.Class {
	skip := map[string]any{"text2vec-transformers": map[string]any{"skip": true}}
	return &models.Class{
		Class:       class,
		Description: "Regulatory guidance passages used as verification evidence.",
		Vectorizer:  "text2vec-transformers",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}, Description: "Passage text"},
			{Name: "source", DataType: []string{"text"}, Description: "Document label, e.g. 21 CFR Part 11", ModuleConfig: skip},
			{Name: "locator", DataType: []string{"text"}, Description: "Page or section locator", ModuleConfig: skip},
			{Name: "version", DataType: []string{"text"}, Description: "Regulatory document version", ModuleConfig: skip},
		},
	}
}

// EnsureSchema creates the passage class when it does not exist.
func EnsureSchema(ctx context.Context, client *weaviate.Client, class string, logger *slog.Logger) error {
	if _, err := client.Schema().ClassGetter().WithClassName(class).Do(ctx); err == nil {
		logger.Info("retrieval.schema.exists", "class", class)
		return nil
	}
	logger.Info("retrieval.schema.creating", "class", class)
	if err := client.Schema().ClassCreator().WithClass(PassageSchema(class)).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", class, err)
	}
	return nil
}

// =============================================================================
// Weaviate Retriever
// =============================================================================

// WeaviateRetriever searches regulatory passages with nearText.
//
// # Description
//
// Score is Weaviate's certainty, which is normalized to [0, 1] for cosine
// distance and comparable with the relevance threshold.
//
// # Thread Safety
//
// Safe for concurrent use; the Weaviate client is goroutine-safe.
type WeaviateRetriever struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger
}

// NewWeaviateRetriever creates a retriever over class ("" for DefaultClass).
func NewWeaviateRetriever(client *weaviate.Client, class string, logger *slog.Logger) *WeaviateRetriever {
	if class == "" {
		class = DefaultClass
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateRetriever{client: client, class: class, logger: logger}
}

// Dial connects to the Weaviate instance at rawURL, creates class when
// missing and returns a retriever over it.
//
// # Inputs
//
//   - ctx: Bounds the schema round trip.
//   - rawURL: Scheme and host, e.g. "http://weaviate:8080".
//   - class: "" for DefaultClass.
//   - logger: May be nil.
func Dial(ctx context.Context, rawURL, class string, logger *slog.Logger) (*WeaviateRetriever, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL %q", rawURL)
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme})
	if err != nil {
		return nil, fmt.Errorf("create Weaviate client: %w", err)
	}
	r := NewWeaviateRetriever(client, class, logger)
	if err := EnsureSchema(ctx, client, r.class, r.logger); err != nil {
		return nil, err
	}
	return r, nil
}

// Search runs a nearText query.
//
// # Inputs
//
//   - ctx: Cancellation and tracing context.
//   - query: Free text, typically the requirement statement plus rationale.
//   - topK: Result limit; <= 0 uses DefaultTopK.
//   - minScore: Minimum certainty; < 0 uses DefaultMinScore.
//
// # Outputs
//
//   - []verification.Passage: Best first.
//   - error: ErrEmptyQuery, transport errors, or GraphQL errors.
func (w *WeaviateRetriever) Search(ctx context.Context, query string, topK int, minScore float64) ([]verification.Passage, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore < 0 {
		minScore = DefaultMinScore
	}
	span.SetAttributes(
		attribute.String("retrieval.class", w.class),
		attribute.Int("retrieval.top_k", topK),
		attribute.Float64("retrieval.min_score", minScore),
	)

	nearText := w.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query}).
		WithCertainty(float32(minScore))

	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(passageFields()...).
		WithNearText(nearText).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate search failed")
		w.logger.Error("retrieval.search.failed", "class", w.class, "error", err)
		return nil, fmt.Errorf("weaviate search: %w", err)
	}

	passages, err := parsePassages(resp, w.class)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate response invalid")
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(passages)))
	w.logger.Debug("retrieval.search.completed", "class", w.class, "results", len(passages))
	return passages, nil
}

var _ Retriever = (*WeaviateRetriever)(nil)

func passageFields() []graphql.Field {
	return []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "locator"},
		{Name: "version"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
}

// passageResult is one object of the Get response.
type passageResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Locator    string `json:"locator"`
	Version    string `json:"version"`
	Additional struct {
		Certainty *float64 `json:"certainty"`
	} `json:"_additional"`
}

// parsePassages converts a GraphQL Get response for class into passages.
func parsePassages(resp *models.GraphQLResponse, class string) ([]verification.Passage, error) {
	if resp == nil {
		return nil, errors.New("weaviate: nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("weaviate graphql: %s", strings.Join(msgs, "; "))
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql data: %w", err)
	}
	var parsed struct {
		Get map[string][]passageResult `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal graphql data: %w", err)
	}

	results := parsed.Get[class]
	out := make([]verification.Passage, 0, len(results))
	for _, r := range results {
		p := verification.Passage{
			Text:    r.Content,
			Source:  r.Source,
			Locator: r.Locator,
			Version: r.Version,
		}
		if r.Additional.Certainty != nil {
			p.Score = *r.Additional.Certainty
		}
		out = append(out, p)
	}
	return out, nil
}
