/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/blevesearch/bleve"
)

// indexedChunk is the document bleve indexes: one row per ingested chunk,
// keyed by its content-addressed chunk key so re-ingestion overwrites rather
// than duplicates.
type indexedChunk struct {
	DataSource string `json:"data_source"`
	Text       string `json:"text"`
}

// NodeIndex is the full-text search index backing the `search` block kind.
// Grounded on bleve's embedded-index idiom: open-or-create a single index
// file, index documents by a stable ID, and run match queries against it.
type NodeIndex struct {
	index bleve.Index
}

// OpenNodeIndex opens an existing index at path, or creates one with a
// default text mapping if none exists yet.
func OpenNodeIndex(path string) (*NodeIndex, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &NodeIndex{index: idx}, nil
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, fmt.Errorf("open node index at %s: %w", path, err)
	}

	mapping := bleve.NewIndexMapping()
	idx, err = bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("create node index at %s: %w", path, err)
	}
	return &NodeIndex{index: idx}, nil
}

// Index upserts chunks into the search index, keyed the same content-address
// way the vector store is so re-ingesting identical text is a no-op.
func (n *NodeIndex) Index(chunks []Chunk) error {
	batch := n.index.NewBatch()
	for _, c := range chunks {
		key, _ := chunkKey(c.DataSource, c.Text)
		if err := batch.Index(key, indexedChunk{DataSource: c.DataSource, Text: c.Text}); err != nil {
			return fmt.Errorf("index chunk for %q: %w", c.DataSource, err)
		}
	}
	return n.index.Batch(batch)
}

// searchHitNode mirrors the {document_id, score, chunk} shape SPEC_FULL.md
// specifies for `search` block results.
type searchHitNode struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Chunk      string  `json:"chunk"`
}

// Search runs a full-text match query scoped to dataSource (when non-empty)
// and returns the topK ranked hits, JSON encoded.
func (n *NodeIndex) Search(_ context.Context, dataSource, query string, topK int) ([]byte, error) {
	if topK <= 0 {
		topK = 10
	}

	matchQuery := bleve.NewMatchQuery(query)
	var q = bleve.Query(matchQuery)
	if dataSource != "" {
		dsQuery := bleve.NewTermQuery(dataSource)
		dsQuery.SetField("data_source")
		q = bleve.NewConjunctionQuery(matchQuery, dsQuery)
	}

	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	req.Fields = []string{"data_source", "text"}

	result, err := n.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	hits := make([]searchHitNode, 0, len(result.Hits))
	for _, h := range result.Hits {
		chunk, _ := h.Fields["text"].(string)
		hits = append(hits, searchHitNode{DocumentID: h.ID, Score: h.Score, Chunk: chunk})
	}

	raw, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("marshal search hits: %w", err)
	}
	return raw, nil
}

// Close releases the index's file handles.
func (n *NodeIndex) Close() error {
	return n.index.Close()
}
