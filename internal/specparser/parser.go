/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package specparser parses textual app specifications into an ordered block
// list and computes per-block and whole-app content hashes.
//
// A spec is a sequence of block headers of the form:
//
//	kind NAME {
//	  key = value
//	  ...
//	}
//
// Block bodies are free-form key/value pairs; values may be JSON literals,
// bare strings, or ${BLOCK.key} / ${secrets.NAME} references resolved later
// by the executor. The parser does not interpret values — it only validates
// structure and computes hashes.
package specparser

import (
	"fmt"
	"strings"

	"github.com/marcus-qen/appcore/internal/block"
)

// Parsed is the output of Parse: the ordered, hash-annotated block list and
// the resulting app hash.
type Parsed struct {
	Blocks  []block.Block
	AppHash []byte
}

// Parse parses raw spec text into an ordered block list with computed
// hashes, failing with a wrapped block.ErrInvalidSpec on any structural
// problem: a malformed header, an unknown kind, mismatched map/reduce,
// nested maps, a duplicate (kind, name), or more than one input block.
//
// Validation happens incrementally as each block is appended — matching
// original_source/core/src/app.rs, which rejects the offending block
// immediately rather than deferring to a second pass.
func Parse(specText string) (*Parsed, error) {
	rawBlocks, err := tokenize(specText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", block.ErrInvalidSpec, err)
	}

	seen := map[block.BlockKey]bool{}
	var openMap string
	hasOpenMap := false
	hasInput := false

	blocks := make([]block.Block, 0, len(rawBlocks))
	var prevHash []byte

	for _, rb := range rawBlocks {
		kind := block.Kind(rb.kind)
		if !block.ValidKinds[kind] {
			return nil, fmt.Errorf("%w: unknown block kind %q", block.ErrInvalidSpec, rb.kind)
		}

		key := block.BlockKey{Kind: kind, Name: rb.name}
		if seen[key] {
			return nil, fmt.Errorf("%w: repeated block (%s, %s)", block.ErrInvalidSpec, kind, rb.name)
		}

		switch kind {
		case block.KindInput:
			if hasInput {
				return nil, fmt.Errorf("%w: more than one input block", block.ErrInvalidSpec)
			}
			hasInput = true

		case block.KindMap:
			if hasOpenMap {
				return nil, fmt.Errorf("%w: nested maps are not supported (map %q opened while map %q is open)", block.ErrInvalidSpec, rb.name, openMap)
			}
			openMap = rb.name
			hasOpenMap = true

		case block.KindReduce:
			if !hasOpenMap {
				return nil, fmt.Errorf("%w: reduce %q has no preceding map", block.ErrInvalidSpec, rb.name)
			}
			if rb.name != openMap {
				return nil, fmt.Errorf("%w: reduce %q does not match the current map %q", block.ErrInvalidSpec, rb.name, openMap)
			}
			hasOpenMap = false
			openMap = ""
		}

		seen[key] = true

		innerHash, err := block.InnerHashOf(rb.config)
		if err != nil {
			return nil, fmt.Errorf("%w: hash block %s %s: %v", block.ErrInvalidSpec, kind, rb.name, err)
		}

		cumulative := block.ChainHash(prevHash, rb.name, innerHash)
		prevHash = cumulative

		configJSON, err := block.CanonicalJSON(rb.config)
		if err != nil {
			return nil, fmt.Errorf("%w: encode block %s %s: %v", block.ErrInvalidSpec, kind, rb.name, err)
		}

		blocks = append(blocks, block.Block{
			Kind:       kind,
			Name:       rb.name,
			Config:     configJSON,
			InnerHash:  innerHash,
			Cumulative: cumulative,
		})
	}

	if hasOpenMap {
		return nil, fmt.Errorf("%w: map %q has no matching reduce", block.ErrInvalidSpec, openMap)
	}

	return &Parsed{Blocks: blocks, AppHash: prevHash}, nil
}

// rawBlock is an intermediate, pre-hash representation produced by tokenize.
type rawBlock struct {
	kind   string
	name   string
	config map[string]interface{}
}

// tokenize splits spec text into header/body pairs. The grammar is
// deliberately small: `kind name {` opens a block, `key = value` lines (one
// per line) populate its config, and a bare `}` closes it. Strings may be
// quoted; unquoted values are parsed as JSON-ish scalars falling back to raw
// strings.
func tokenize(specText string) ([]rawBlock, error) {
	lines := strings.Split(specText, "\n")
	var blocks []rawBlock
	var current *rawBlock

	for lineNo, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		if current == nil {
			if !strings.HasSuffix(line, "{") {
				return nil, fmt.Errorf("line %d: expected block header ending in '{', got %q", lineNo+1, line)
			}
			header := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			fields := strings.Fields(header)
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: malformed block header %q (want \"kind name {\")", lineNo+1, line)
			}
			current = &rawBlock{kind: fields[0], name: fields[1], config: map[string]interface{}{}}
			continue
		}

		if line == "}" {
			blocks = append(blocks, *current)
			current = nil
			continue
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, fmt.Errorf("line %d: malformed config line %q (want \"key = value\")", lineNo+1, line)
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		current.config[key] = parseScalar(val)
	}

	if current != nil {
		return nil, fmt.Errorf("unterminated block %q", current.name)
	}

	return blocks, nil
}

// parseScalar interprets a config value as JSON where possible, falling back
// to a de-quoted string.
func parseScalar(v string) interface{} {
	if parsed, ok := tryJSON(v); ok {
		return parsed
	}
	return strings.Trim(v, `"`)
}
