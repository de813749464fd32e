/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package knowledge implements the knowledge subsystem (E2): document
// ingestion and chunking, embedding and vector storage for the `search`
// block kind, and structured-table querying for `datasource_query`.
package knowledge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/marcus-qen/appcore/internal/provider"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// SplitText token-bounds text into chunks of at most maxChunkSize tokens,
// using provider-native tokenize/decode so chunk boundaries land on the same
// tokenization the embedding call will use. Whitespace runs are first
// collapsed to a single space and the text trimmed, matching the chunking
// behavior documents are ingested with.
//
// A token that fails to decode on its own (rare with some tokenizers at
// chunk boundaries) is carried into the next chunk rather than dropped,
// mirroring the decode-with-remainder retry this is grounded on.
func SplitText(ctx context.Context, tok provider.Tokenizer, dec provider.Decoder, text string, maxChunkSize int) ([]string, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be > 0")
	}
	clean := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if clean == "" {
		return nil, nil
	}

	pieces, err := tok.Tokenize(ctx, []string{clean})
	if err != nil {
		return nil, fmt.Errorf("tokenize document: %w", err)
	}
	tokens := make([]int, len(pieces[0]))
	for i, p := range pieces[0] {
		tokens[i] = p.ID
	}

	var chunks []string
	var pending []int
	for len(tokens) > 0 {
		take := maxChunkSize
		if take > len(tokens) {
			take = len(tokens)
		}
		batch := append(pending, tokens[:take]...)
		tokens = tokens[take:]
		pending = nil

		decoded, remainder, err := decodeWithRemainder(ctx, dec, batch)
		if err != nil {
			return nil, fmt.Errorf("decode chunk: %w", err)
		}
		if decoded != "" {
			chunks = append(chunks, decoded)
		}
		pending = remainder
	}
	if len(pending) > 0 {
		decoded, _, err := decodeWithRemainder(ctx, dec, pending)
		if err != nil {
			return nil, fmt.Errorf("decode trailing chunk: %w", err)
		}
		if decoded != "" {
			chunks = append(chunks, decoded)
		}
	}
	return chunks, nil
}

// decodeWithRemainder tries to decode the full token batch, backing off one
// token at a time from the end until decode succeeds, carrying the
// undecoded tail forward as the remainder.
func decodeWithRemainder(ctx context.Context, dec provider.Decoder, batch []int) (string, []int, error) {
	end := len(batch)
	var lastErr error
	for end > 0 {
		text, err := dec.Decode(ctx, batch[:end])
		if err == nil {
			return text, batch[end:], nil
		}
		lastErr = err
		end--
	}
	return "", nil, lastErr
}
