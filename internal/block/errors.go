/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package block

import "errors"

// Error taxonomy shared across the core. These are sentinels matched with
// errors.Is; wrap them with fmt.Errorf("...: %w", ErrX) for context.
var (
	// ErrInvalidSpec is a parse, structural, or hashing failure in the spec
	// parser. Surfaced directly to the caller; never retried.
	ErrInvalidSpec = errors.New("invalid specification")

	// ErrMissingReference is a ${BLOCK.key} resolution failure: the named
	// block has not been executed in the current env.
	ErrMissingReference = errors.New("missing block reference")

	// ErrNotAnObject is a resolution failure: the referenced block's output
	// is not a JSON object.
	ErrNotAnObject = errors.New("referenced value is not an object")

	// ErrNotAString is a resolution failure: the referenced leaf is not a
	// string.
	ErrNotAString = errors.New("referenced value is not a string")

	// ErrProviderRetryable is a transient adapter failure; handled via retry
	// policy, becoming a block execution error only once attempts are
	// exhausted.
	ErrProviderRetryable = errors.New("provider call failed (retryable)")

	// ErrProviderFatal is a semantic or credential failure; becomes a block
	// execution error immediately.
	ErrProviderFatal = errors.New("provider call failed (fatal)")

	// ErrCacheUnavailable is treated as a cache miss for reads; for writes it
	// is logged and ignored — never a run failure.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrStoreUnavailable is fatal to the run: run status cannot be asserted
	// without the store.
	ErrStoreUnavailable = errors.New("run store unavailable")

	// ErrCancelled marks a run or block as errored due to cancellation.
	ErrCancelled = errors.New("run cancelled")
)
