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
	"testing"

	"github.com/marcus-qen/appcore/internal/block"
)

type fakeKnowledge struct {
	searchCalled     bool
	gotQuery         string
	queryTableCalled bool
	gotArgs          []interface{}
}

func (k *fakeKnowledge) Search(_ context.Context, _ int64, _ string, query string, _ int) ([]byte, error) {
	k.searchCalled = true
	k.gotQuery = query
	return json.Marshal([]string{"result"})
}

func (k *fakeKnowledge) QueryTable(_ context.Context, _ int64, _ string, query string, args []interface{}) ([]byte, error) {
	k.queryTableCalled = true
	k.gotQuery = query
	k.gotArgs = args
	return json.Marshal([]string{"row"})
}

func TestExecSearch_ResolvesQueryAndDelegates(t *testing.T) {
	kn := &fakeKnowledge{}
	deps := &Deps{Knowledge: kn}
	env := block.NewRootEnv(1, nil, nil, nil).With("TOPIC", json.RawMessage(`{"name":"onboarding"}`))
	cfg := json.RawMessage(`{"data_source":"docs","query":"how to ${TOPIC.name}","top_k":3}`)

	_, err := execSearch(context.Background(), block.Block{Kind: block.KindSearch, Name: "S", Config: cfg}, env, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !kn.searchCalled {
		t.Fatal("expected Search to be called")
	}
	if kn.gotQuery != "how to onboarding" {
		t.Errorf("expected resolved query %q, got %q", "how to onboarding", kn.gotQuery)
	}
}

func TestExecSearch_NoKnowledgeConfigured(t *testing.T) {
	env := block.NewRootEnv(1, nil, nil, nil)
	cfg := json.RawMessage(`{"data_source":"docs","query":"x"}`)
	_, err := execSearch(context.Background(), block.Block{Kind: block.KindSearch, Name: "S", Config: cfg}, env, &Deps{})
	if err == nil {
		t.Fatal("expected an error with no knowledge subsystem configured")
	}
}

func TestExecDatasourceQuery_Delegates(t *testing.T) {
	kn := &fakeKnowledge{}
	deps := &Deps{Knowledge: kn}
	env := block.NewRootEnv(1, nil, nil, nil)
	cfg := json.RawMessage(`{"table":"orders","query":"select * from orders where id = ?","args":[42]}`)

	_, err := execDatasourceQuery(context.Background(), block.Block{Kind: block.KindDatasourceQuery, Name: "Q", Config: cfg}, env, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !kn.queryTableCalled {
		t.Fatal("expected QueryTable to be called")
	}
	if len(kn.gotArgs) != 1 || kn.gotArgs[0].(float64) != 42 {
		t.Errorf("unexpected args: %+v", kn.gotArgs)
	}
}
