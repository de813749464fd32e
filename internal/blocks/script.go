/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus-qen/appcore/internal/block"
)

// execCode evaluates a code block's script against env and returns its
// result. No sandboxing library in the reference corpus targets embedding a
// general-purpose scripting language in a Go binary for this kind of
// per-block, per-worker evaluation; DESIGN.md records this as a deliberate
// stdlib-only component (kinds_pure.go entry). The script language is intentionally small: a
// single `return <expr>;` statement over block-state member access
// (env.state.NAME, optionally dotted further), numeric literals, string
// literals, and the operators + - * /. This covers the pipeline's arithmetic
// and passthrough use cases without embedding a VM.
func execCode(_ context.Context, b block.Block, env block.Env, _ *Deps) ([]byte, error) {
	raw, ok := configField(b.Config, "code")
	if !ok {
		return nil, fmt.Errorf("code block %q missing \"code\"", b.Name)
	}
	source, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("code block %q \"code\" must be a string", b.Name)
	}

	expr, err := extractReturnExpr(source)
	if err != nil {
		return nil, fmt.Errorf("code block %q: %w", b.Name, err)
	}

	result, err := evalExpr(expr, env)
	if err != nil {
		return nil, fmt.Errorf("code block %q: %w", b.Name, err)
	}
	return json.Marshal(result)
}

func extractReturnExpr(source string) (string, error) {
	trimmed := strings.TrimSpace(source)
	if !strings.HasPrefix(trimmed, "return ") {
		return "", fmt.Errorf("expected a single \"return <expr>;\" statement")
	}
	trimmed = strings.TrimPrefix(trimmed, "return ")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), ";")
	return strings.TrimSpace(trimmed), nil
}

// evalExpr evaluates a left-to-right chain of +, -, *, / over primaries.
// There is no operator precedence beyond left-to-right chaining — scripts
// needing precedence should parenthesize, which primary() handles.
func evalExpr(expr string, env block.Env) (interface{}, error) {
	tokens, err := tokenizeExpr(expr)
	if err != nil {
		return nil, err
	}
	p := &exprParser{tokens: tokens, env: env}
	val, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected trailing tokens in expression %q", expr)
	}
	return val, nil
}

type exprParser struct {
	tokens []string
	pos    int
	env    block.Env
}

func (p *exprParser) parseChain() (interface{}, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.tokens) {
		op := p.tokens[p.pos]
		if op != "+" && op != "-" && op != "*" && op != "/" {
			break
		}
		p.pos++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left, err = applyOp(op, left, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *exprParser) parsePrimary() (interface{}, error) {
	if p.pos >= len(p.tokens) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	tok := p.tokens[p.pos]
	p.pos++

	if tok == "(" {
		val, err := p.parseChain()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos] != ")" {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.pos++
		return val, nil
	}

	if strings.HasPrefix(tok, "env.state.") {
		path := strings.TrimPrefix(tok, "env.state.")
		segments := strings.Split(path, ".")
		raw, ok := p.env.Get(segments[0])
		if !ok {
			return nil, fmt.Errorf("%w: %s", block.ErrMissingReference, segments[0])
		}
		var current interface{}
		if err := json.Unmarshal(raw, &current); err != nil {
			return nil, err
		}
		for _, seg := range segments[1:] {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: cannot index %q", block.ErrNotAnObject, seg)
			}
			current = obj[seg]
		}
		return current, nil
	}

	if tok == "env.input.value" {
		if p.env.Input == nil {
			return nil, fmt.Errorf("env.input.value referenced without a bound input row")
		}
		var v interface{}
		if err := json.Unmarshal(p.env.Input.Value, &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	if n, err := strconv.ParseFloat(tok, 64); err == nil {
		return n, nil
	}

	if strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) {
		return strings.Trim(tok, `"`), nil
	}

	return nil, fmt.Errorf("unrecognized expression token %q", tok)
}

func applyOp(op string, left, right interface{}) (interface{}, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if op == "+" {
		if !lok || !rok {
			return fmt.Sprintf("%v%v", left, right), nil
		}
		return lf + rf, nil
	}
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q requires numeric operands", op)
	}
	switch op {
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// tokenizeExpr splits an expression into operators, parens, identifiers, and
// quoted strings.
func tokenizeExpr(expr string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '(' || c == ')':
			tokens = append(tokens, string(c))
			i++
		case c == '"':
			j := i + 1
			for j < len(expr) && expr[j] != '"' {
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, expr[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(expr) && !strings.ContainsRune(" \t+-*/()", rune(expr[j])) {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("unexpected character %q", string(c))
			}
			tokens = append(tokens, expr[i:j])
			i = j
		}
	}
	return tokens, nil
}
