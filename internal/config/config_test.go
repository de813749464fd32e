/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != Default().ListenAddr {
		t.Errorf("listen addr = %q, want default %q", cfg.ListenAddr, Default().ListenAddr)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := (Config{ListenAddr: ":9999", DataDir: "/var/data"}).Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen addr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.DataDir != "/var/data" {
		t.Errorf("data dir = %q, want /var/data", cfg.DataDir)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := (Config{ListenAddr: ":9999"}).Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	t.Setenv("APPCORE_LISTEN_ADDR", ":7000")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("listen addr = %q, want env override :7000", cfg.ListenAddr)
	}
}

func TestLoadFromEnv_SkipsFileLayer(t *testing.T) {
	t.Setenv("APPCORE_MAX_CONCURRENT_RUNS", "42")
	cfg := LoadFromEnv()
	if cfg.MaxConcurrentRuns != 42 {
		t.Errorf("max concurrent runs = %d, want 42", cfg.MaxConcurrentRuns)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	orig := Default()
	orig.RunStoreDSN = "postgres://u:p@host/db"
	if err := orig.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.RunStoreDSN != orig.RunStoreDSN {
		t.Errorf("run store dsn = %q, want %q", loaded.RunStoreDSN, orig.RunStoreDSN)
	}
}
