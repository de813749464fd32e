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
	"fmt"
	"sync"

	"github.com/marcus-qen/appcore/internal/provider"
)

// Service is the concrete knowledge subsystem collaborator: it satisfies
// blocks.Knowledge (Search, QueryTable), fronting a node search index for
// `search` and a set of structured tables for `datasource_query`. Document
// ingestion populates both the node index and the vector store; `search`
// itself only needs the node index, per SPEC_FULL.md's node-search-index
// routing for that block kind.
//
// ingestor and tables are both registered after construction (documents
// ingested and structured tables attached as operators request them, via
// internal/httpapi's knowledge routes), so both are guarded by mu.
type Service struct {
	nodes *NodeIndex

	mu       sync.RWMutex
	ingestor *Ingestor
	tables   map[string]*TableStore
}

// NewService wires an already-open node index and a set of named table
// stores (one per registered data source) into a Knowledge collaborator.
func NewService(nodes *NodeIndex, tables map[string]*TableStore) *Service {
	if tables == nil {
		tables = map[string]*TableStore{}
	}
	return &Service{nodes: nodes, tables: tables}
}

// SetIngestor attaches the document-ingestion pipeline, once the provider
// backing it (and, if configured, the vector store) are ready. A Service
// with no ingestor still answers Search/QueryTable; only Ingest requires one.
func (s *Service) SetIngestor(ing *Ingestor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingestor = ing
}

// RegisterTable attaches a structured-table data source under name, making
// it reachable by `datasource_query` blocks that reference it.
func (s *Service) RegisterTable(name string, store *TableStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = store
}

// Ingest chunks, embeds, and indexes text under dataSource, making it
// reachable by subsequent Search calls against the same data source.
func (s *Service) Ingest(ctx context.Context, dataSource, text string) error {
	s.mu.RLock()
	ing := s.ingestor
	s.mu.RUnlock()
	if ing == nil {
		return fmt.Errorf("no document ingestion pipeline configured")
	}
	return ing.Ingest(ctx, dataSource, text)
}

// Search implements blocks.Knowledge.
func (s *Service) Search(ctx context.Context, project int64, dataSource, query string, topK int) ([]byte, error) {
	if s.nodes == nil {
		return nil, fmt.Errorf("no node search index configured")
	}
	return s.nodes.Search(ctx, dataSource, query, topK)
}

// QueryTable implements blocks.Knowledge, routing to the TableStore
// registered for the named table group.
func (s *Service) QueryTable(ctx context.Context, project int64, table, query string, args []interface{}) ([]byte, error) {
	s.mu.RLock()
	store, ok := s.tables[table]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown structured table %q", table)
	}
	return store.Query(ctx, table, query, args)
}

// Ingestor chunks and embeds documents, writing them into both the vector
// store and the node search index so a document becomes searchable by
// either similarity or full text.
type Ingestor struct {
	tokenizer    provider.Tokenizer
	decoder      provider.Decoder
	embedder     provider.Embedder
	maxChunkSize int
	vectors      *VectorStore
	nodes        *NodeIndex
}

// NewIngestor builds an ingestion pipeline against one E1 provider's
// tokenizer/decoder/embedder, matching the splitter's requirement that
// chunk boundaries come from the same provider the embeddings do.
func NewIngestor(tok provider.Tokenizer, dec provider.Decoder, emb provider.Embedder, maxChunkSize int, vectors *VectorStore, nodes *NodeIndex) *Ingestor {
	if maxChunkSize <= 0 {
		maxChunkSize = 512
	}
	return &Ingestor{
		tokenizer: tok, decoder: dec, embedder: emb,
		maxChunkSize: maxChunkSize, vectors: vectors, nodes: nodes,
	}
}

// Ingest splits text into chunks, embeds each, and upserts the result into
// both the vector store and the node index.
func (ing *Ingestor) Ingest(ctx context.Context, dataSource, text string) error {
	texts, err := SplitText(ctx, ing.tokenizer, ing.decoder, text, ing.maxChunkSize)
	if err != nil {
		return fmt.Errorf("split document for %q: %w", dataSource, err)
	}
	if len(texts) == 0 {
		return nil
	}

	resp, err := ing.embedder.Embed(ctx, &provider.EmbedRequest{Texts: texts})
	if err != nil {
		return fmt.Errorf("embed %d chunks for %q: %w", len(texts), dataSource, err)
	}
	if len(resp.Vectors) != len(texts) {
		return fmt.Errorf("embed %q: expected %d vectors, got %d", dataSource, len(texts), len(resp.Vectors))
	}

	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{DataSource: dataSource, Text: t, Embedding: resp.Vectors[i]}
	}

	if ing.vectors != nil {
		if err := ing.vectors.Upsert(ctx, chunks); err != nil {
			return fmt.Errorf("upsert vectors for %q: %w", dataSource, err)
		}
	}
	if ing.nodes != nil {
		if err := ing.nodes.Index(chunks); err != nil {
			return fmt.Errorf("index chunks for %q: %w", dataSource, err)
		}
	}
	return nil
}
