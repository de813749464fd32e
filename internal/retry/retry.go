/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package retry centralizes the exponential backoff policy used for llm and
// chat block dispatch. Classification of which errors are retryable lives
// with the caller (the provider adapter reports it on provider.Error); this
// package only owns the delay curve.
package retry

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMultiplier     = 2.0
)

// Policy is the resolved, validated retry configuration for one block.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// Default returns the platform-wide fallback policy: 3 attempts, 500ms
// initial backoff doubling each attempt, no cap.
func Default() Policy {
	return Policy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		Multiplier:     defaultMultiplier,
	}
}

// Override describes the subset of a block's per-run configuration that can
// adjust the default retry policy. Zero values mean "inherit the default".
type Override struct {
	MaxAttempts    int
	InitialBackoff string
	Multiplier     float64
	MaxBackoff     string
}

// Resolve layers an override over the default policy, validating each
// field as it's applied.
func Resolve(o *Override) (Policy, error) {
	base := Default()
	if o == nil {
		return base, nil
	}

	if o.MaxAttempts < 0 {
		return Policy{}, fmt.Errorf("max_attempts must be >= 1")
	}
	if o.MaxAttempts > 0 {
		base.MaxAttempts = o.MaxAttempts
	}

	if strings.TrimSpace(o.InitialBackoff) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(o.InitialBackoff))
		if err != nil || d <= 0 {
			return Policy{}, fmt.Errorf("initial_backoff must be a positive duration")
		}
		base.InitialBackoff = d
	}

	if o.Multiplier < 0 {
		return Policy{}, fmt.Errorf("multiplier must be >= 1")
	}
	if o.Multiplier > 0 {
		if o.Multiplier < 1 {
			return Policy{}, fmt.Errorf("multiplier must be >= 1")
		}
		base.Multiplier = o.Multiplier
	}

	if strings.TrimSpace(o.MaxBackoff) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(o.MaxBackoff))
		if err != nil || d <= 0 {
			return Policy{}, fmt.Errorf("max_backoff must be a positive duration")
		}
		base.MaxBackoff = d
	}

	return base, nil
}

// MaxAttempts implements blocks.RetryPolicy.
func (p Policy) MaxAttempts() int { return p.numAttempts() }

func (p Policy) numAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// Backoff implements blocks.RetryPolicy: the delay, in milliseconds, before
// retrying after the given 1-indexed failed attempt.
func (p Policy) Backoff(attempt int) int64 {
	if attempt < 1 {
		attempt = 1
	}
	exponent := float64(attempt - 1)
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = defaultMultiplier
	}
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	delay := time.Duration(float64(initial) * math.Pow(multiplier, exponent))
	if delay <= 0 {
		delay = initial
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay.Milliseconds()
}

// BackoffFor builds a cenkalti/backoff/v4 ExponentialBackOff matching p, for
// callers that want a full backoff.BackOff rather than a single delay
// lookup.
func (p Policy) BackoffFor() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialBackoff
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = defaultInitialBackoff
	}
	eb.Multiplier = p.Multiplier
	if eb.Multiplier <= 0 {
		eb.Multiplier = defaultMultiplier
	}
	if p.MaxBackoff > 0 {
		eb.MaxInterval = p.MaxBackoff
	}
	return backoff.WithMaxRetries(eb, uint64(p.numAttempts()))
}
