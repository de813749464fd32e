/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package block

import (
	"bytes"
	"encoding/json"
	"sort"

	"lukechampine.com/blake3"
)

// CanonicalJSON re-marshals v with object keys sorted, so two JSON values
// that differ only in key order or insignificant whitespace hash identically.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Hash returns the blake3-256 digest of data.
func Hash(data []byte) []byte {
	h := blake3.Sum256(data)
	return h[:]
}

// ChainHash computes cumulative_i = blake3(cumulative_{i-1} ∥ name_i ∥ inner_hash_i),
// the per-block cumulative hash described in the spec's hashing algorithm.
// prev may be nil for the first block (cumulative_{-1} = empty).
func ChainHash(prev []byte, name string, innerHash []byte) []byte {
	hasher := blake3.New(32, nil)
	hasher.Write(prev)
	hasher.Write([]byte(name))
	hasher.Write(innerHash)
	return hasher.Sum(nil)
}

// InnerHashOf hashes the canonical JSON of a block kind's literal
// configuration — used by every block kind's InnerHash() implementation.
func InnerHashOf(v interface{}) ([]byte, error) {
	canon, err := CanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	return Hash(canon), nil
}

// ExecutionHash is the dedup key for a stored BlockExecution row:
// blake3(canonical_json(BlockExecution)).
func ExecutionHash(exec BlockExecution) ([]byte, error) {
	canon, err := CanonicalJSON(exec)
	if err != nil {
		return nil, err
	}
	return Hash(canon), nil
}
