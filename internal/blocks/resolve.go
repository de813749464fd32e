/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package blocks

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/marcus-qen/appcore/internal/block"
)

// referencePattern matches ${BLOCK.key} and ${secrets.NAME}.
var referencePattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\.([A-Za-z0-9_.]+)\}`)

// ResolveString substitutes every ${BLOCK.key} / ${secrets.NAME} reference in
// s, reading prior block outputs from env and credentials from
// env.Credentials. It fails with block.ErrMissingReference,
// block.ErrNotAnObject, or block.ErrNotAString per spec §4.2.
func ResolveString(s string, env block.Env) (string, error) {
	var resolveErr error
	result := referencePattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		sub := referencePattern.FindStringSubmatch(match)
		namespace, path := sub[1], sub[2]

		if namespace == "secrets" {
			val, ok := env.Credentials[path]
			if !ok {
				resolveErr = fmt.Errorf("%w: secrets.%s", block.ErrMissingReference, path)
				return match
			}
			return val
		}

		raw, ok := env.Get(namespace)
		if !ok {
			resolveErr = fmt.Errorf("%w: %s", block.ErrMissingReference, namespace)
			return match
		}

		leaf, err := resolvePath(raw, path)
		if err != nil {
			resolveErr = err
			return match
		}
		return leaf
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

// resolvePath walks a dotted path into a JSON value, requiring every
// intermediate node to be an object and the final leaf to be a string.
func resolvePath(raw json.RawMessage, path string) (string, error) {
	var current interface{}
	if err := json.Unmarshal(raw, &current); err != nil {
		return "", fmt.Errorf("%w: %v", block.ErrNotAnObject, err)
	}

	segments := strings.Split(path, ".")
	for i, seg := range segments {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("%w: cannot index %q into non-object", block.ErrNotAnObject, seg)
		}
		next, ok := obj[seg]
		if !ok {
			return "", fmt.Errorf("%w: key %q not found", block.ErrMissingReference, seg)
		}
		if i == len(segments)-1 {
			str, ok := next.(string)
			if !ok {
				return "", fmt.Errorf("%w: %q is not a string", block.ErrNotAString, seg)
			}
			return str, nil
		}
		current = next
	}
	return "", fmt.Errorf("%w: empty path", block.ErrNotAString)
}

// ResolveValue walks an arbitrary decoded JSON value (map/slice/scalar),
// resolving ${...} references inside every string leaf.
func ResolveValue(v interface{}, env block.Env) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return ResolveString(val, env)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			resolved, err := ResolveValue(elem, env)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			resolved, err := ResolveValue(elem, env)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return val, nil
	}
}

// configField decodes one named field from a block's canonical JSON config.
func configField(raw json.RawMessage, field string) (interface{}, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}
