package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.MaxMatches != 100 || cfg.MaxConnsPerIP != 5 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ClientDir == "" {
		t.Error("client dir not resolved")
	}
}

func TestLoadConfigEnvFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	os.WriteFile(env, []byte("SPACESHOOTER_TEST_UNUSED=1\nDEFAULT_MATCH=Public\nMAX_MATCHES=7\n"), 0o644)
	t.Cleanup(func() {
		os.Unsetenv("SPACESHOOTER_TEST_UNUSED")
		os.Unsetenv("DEFAULT_MATCH")
		os.Unsetenv("MAX_MATCHES")
	})

	cfg, err := LoadConfig([]string{"-max-matches", "3", "-client", dir}, env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultMatch != "Public" {
		t.Errorf("default match = %q", cfg.DefaultMatch)
	}
	if cfg.MaxMatches != 3 {
		t.Errorf("flag should override env: %d", cfg.MaxMatches)
	}
	if cfg.ClientDir != dir {
		t.Errorf("client dir = %q", cfg.ClientDir)
	}
}

func TestLoadConfigBadFlag(t *testing.T) {
	if _, err := LoadConfig([]string{"-nope"}, filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for unknown flag")
	}
}
