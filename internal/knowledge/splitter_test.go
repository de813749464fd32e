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
	"strings"
	"testing"

	"github.com/marcus-qen/appcore/internal/provider"
)

// wordTokenizer treats each whitespace-separated word as one token, and
// fails to decode any batch whose last token is "BAD" — enough to exercise
// the shrinking-window remainder fallback without a real model.
type wordTokenizer struct{}

func (wordTokenizer) Tokenize(ctx context.Context, texts []string) ([][]provider.TokenPiece, error) {
	out := make([][]provider.TokenPiece, len(texts))
	for i, t := range texts {
		words := strings.Fields(t)
		pieces := make([]provider.TokenPiece, len(words))
		for j, w := range words {
			pieces[j] = provider.TokenPiece{ID: j, Piece: w}
		}
		out[i] = pieces
	}
	return out, nil
}

type wordDecoder struct {
	words []string
}

func (d wordDecoder) Decode(ctx context.Context, tokens []int) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	last := d.words[tokens[len(tokens)-1]]
	if last == "BAD" {
		return "", fmt.Errorf("cannot decode token ending in BAD")
	}
	parts := make([]string, len(tokens))
	for i, id := range tokens {
		parts[i] = d.words[id]
	}
	return strings.Join(parts, " "), nil
}

func TestSplitText_ChunksAtTokenBoundaries(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	words := strings.Fields(text)
	tok := wordTokenizer{}
	dec := wordDecoder{words: words}

	chunks, err := SplitText(context.Background(), tok, dec, text, 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks of 3 words each, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "the quick brown" {
		t.Errorf("unexpected first chunk: %q", chunks[0])
	}
}

func TestSplitText_NormalizesWhitespace(t *testing.T) {
	text := "  hello    world  \n\n foo "
	tok := wordTokenizer{}
	dec := wordDecoder{words: []string{"hello", "world", "foo"}}

	chunks, err := SplitText(context.Background(), tok, dec, text, 10)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "hello world foo" {
		t.Fatalf("expected a single normalized chunk, got %v", chunks)
	}
}

func TestSplitText_EmptyTextYieldsNoChunks(t *testing.T) {
	chunks, err := SplitText(context.Background(), wordTokenizer{}, wordDecoder{}, "   ", 10)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for blank text, got %v", chunks)
	}
}

func TestSplitText_CarriesUndecodableRemainderForward(t *testing.T) {
	// "BAD" can never be the last token of a successful decode, so it must
	// be carried into the next chunk rather than dropped or erroring out.
	words := []string{"alpha", "BAD", "gamma", "delta"}
	text := strings.Join(words, " ")
	tok := wordTokenizer{}
	dec := wordDecoder{words: words}

	chunks, err := SplitText(context.Background(), tok, dec, text, 2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	joined := strings.Join(chunks, " ")
	for _, w := range words {
		if !strings.Contains(joined, w) {
			t.Errorf("expected reassembled chunks to contain %q, got %v", w, chunks)
		}
	}
}
