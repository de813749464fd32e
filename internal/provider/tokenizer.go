/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package provider

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// ByteTokenizer is a byte-level Tokenizer/Decoder: each token is a single
// byte (0-255), so Tokenize never fails and token counts are a precise,
// provider-independent proxy for request size.
//
// No BPE/tiktoken-equivalent library exists anywhere in this project's
// dependency stack, and shipping one purely to approximate a count the
// knowledge subsystem only uses to bound chunk size would be an
// unjustified dependency. Byte-level tokenization is the honest minimal
// implementation: it has no vocabulary to keep in sync with any provider's
// actual tokenizer, and its decode failures at multi-byte UTF-8 boundaries
// are exactly the case SplitText's decodeWithRemainder backoff exists for.
type ByteTokenizer struct{}

func (ByteTokenizer) Tokenize(_ context.Context, texts []string) ([][]TokenPiece, error) {
	out := make([][]TokenPiece, len(texts))
	for i, text := range texts {
		pieces := make([]TokenPiece, len(text))
		for j := 0; j < len(text); j++ {
			pieces[j] = TokenPiece{ID: int(text[j])}
		}
		out[i] = pieces
	}
	return out, nil
}

func (ByteTokenizer) Decode(_ context.Context, ids []int) (string, error) {
	b := make([]byte, len(ids))
	for i, id := range ids {
		if id < 0 || id > 255 {
			return "", fmt.Errorf("byte decoder: token %d out of range", id)
		}
		b[i] = byte(id)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("byte decoder: incomplete UTF-8 sequence")
	}
	return string(b), nil
}
