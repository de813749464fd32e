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

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/marcus-qen/appcore/internal/block"
)

const (
	fieldChunkKey  = "chunk_key" // blake3(data_source ++ chunk_hash), the upsert key
	fieldDataSrc   = "data_source"
	fieldChunkHash = "chunk_hash"
	fieldText      = "text"
	fieldEmbedding = "embedding"
)

// Chunk is one ingested, embedded span of a document.
type Chunk struct {
	DataSource string
	Text       string
	Embedding  []float32
}

// chunkKey is the upsert identity SPEC_FULL.md specifies for vector rows:
// (data_source, chunk_hash), content-addressed the same way block
// executions are.
func chunkKey(dataSource, text string) (key string, hash string) {
	h := block.Hash([]byte(text))
	hex := fmt.Sprintf("%x", h)
	return fmt.Sprintf("%x", block.Hash([]byte(dataSource+"\x00"+hex))), hex
}

// VectorStore indexes embedded document chunks in Milvus and answers
// nearest-neighbor queries by embedding vector. The `search` block kind
// does not use it: Service.Search queries the NodeIndex only.
type VectorStore struct {
	client     client.Client
	collection string
	dim        int
	metric     entity.MetricType
}

// NewVectorStore connects to Milvus and ensures the chunk collection exists,
// creating it (with an IVF_FLAT L2 index loaded into memory) if this is a fresh
// deployment.
func NewVectorStore(ctx context.Context, addr, collection string, dim int) (*VectorStore, error) {
	c, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus at %s: %w", addr, err)
	}

	vs := &VectorStore{client: c, collection: collection, dim: dim, metric: entity.L2}
	if err := vs.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return vs, nil
}

func (vs *VectorStore) ensureCollection(ctx context.Context) error {
	has, err := vs.client.HasCollection(ctx, vs.collection)
	if err != nil {
		return fmt.Errorf("check collection %q: %w", vs.collection, err)
	}
	if has {
		return vs.client.LoadCollection(ctx, vs.collection, false)
	}

	schema := entity.NewSchema().WithName(vs.collection).WithDescription("appcore knowledge chunks").
		WithField(entity.NewField().WithName(fieldChunkKey).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(64)).
		WithField(entity.NewField().WithName(fieldDataSrc).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
		WithField(entity.NewField().WithName(fieldChunkHash).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
		WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(vs.dim)))

	if err := vs.client.CreateCollection(ctx, schema, 2); err != nil {
		return fmt.Errorf("create collection %q: %w", vs.collection, err)
	}
	idx, err := entity.NewIndexIvfFlat(vs.metric, 128)
	if err != nil {
		return fmt.Errorf("build index params: %w", err)
	}
	if err := vs.client.CreateIndex(ctx, vs.collection, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("create index on %q: %w", vs.collection, err)
	}
	return vs.client.LoadCollection(ctx, vs.collection, false)
}

// Upsert writes chunks keyed by (data_source, chunk_hash); re-ingesting
// identical text for the same data source overwrites the prior row rather
// than duplicating it.
func (vs *VectorStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	keys := make([]string, len(chunks))
	sources := make([]string, len(chunks))
	hashes := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		key, hash := chunkKey(c.DataSource, c.Text)
		keys[i] = key
		sources[i] = c.DataSource
		hashes[i] = hash
		texts[i] = c.Text
		vectors[i] = c.Embedding
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(fieldChunkKey, keys),
		entity.NewColumnVarChar(fieldDataSrc, sources),
		entity.NewColumnVarChar(fieldChunkHash, hashes),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnFloatVector(fieldEmbedding, vs.dim, vectors),
	}
	if _, err := vs.client.Upsert(ctx, vs.collection, "", columns...); err != nil {
		return fmt.Errorf("upsert %d chunks into %q: %w", len(chunks), vs.collection, err)
	}
	return nil
}

// searchHit is the JSON shape of one VectorStore.Search result. It differs
// from the `search` block's {document_id, score, chunk} hits (searchHitNode).
type searchHit struct {
	DataSource string  `json:"data_source"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// Search returns the topK chunks for dataSource nearest to queryEmbedding,
// JSON encoded. The caller embeds the query; Search does no embedding
// itself.
func (vs *VectorStore) Search(ctx context.Context, dataSource string, queryEmbedding []float32, topK int) ([]byte, error) {
	if topK <= 0 {
		topK = 10
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("build search params: %w", err)
	}

	expr := ""
	if dataSource != "" {
		expr = fmt.Sprintf("%s == \"%s\"", fieldDataSrc, dataSource)
	}

	results, err := vs.client.Search(ctx, vs.collection, nil, expr,
		[]string{fieldDataSrc, fieldText}, []entity.Vector{entity.FloatVector(queryEmbedding)},
		fieldEmbedding, vs.metric, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", vs.collection, err)
	}

	var hits []searchHit
	for _, r := range results {
		dsCol := r.Fields.GetColumn(fieldDataSrc)
		textCol := r.Fields.GetColumn(fieldText)
		for i := 0; i < r.ResultCount; i++ {
			ds, _ := dsCol.GetAsString(i)
			text, _ := textCol.GetAsString(i)
			var score float32
			if i < len(r.Scores) {
				score = r.Scores[i]
			}
			hits = append(hits, searchHit{DataSource: ds, Text: text, Score: score})
		}
	}

	raw, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("marshal search hits: %w", err)
	}
	return raw, nil
}

// Close releases the underlying gRPC connection.
func (vs *VectorStore) Close() error {
	return vs.client.Close()
}
