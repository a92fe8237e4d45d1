package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfigBody = `
ListenPort = 8000
StoragePath = "./storage"
Registries = ["0b6f1f1e-8c2a-4e2a-9a3a-1234567890ab"]
Upstreams = ["http://store-a.internal", "http://store-b.internal"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfigBody)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Global.ShardCount != 1024 {
		t.Fatalf("expected default shard count 1024, got %d", cfg.Global.ShardCount)
	}
	if cfg.Global.ConvergeInterval.DurationValue().Seconds() != 1 {
		t.Fatalf("expected default converge interval 1s, got %v", cfg.Global.ConvergeInterval.DurationValue())
	}
	if len(cfg.Registries) != 1 || len(cfg.Upstreams) != 2 {
		t.Fatalf("unexpected registries/upstreams: %+v", cfg)
	}
}

func TestLoadRejectsNonPowerOfTwoShardCount(t *testing.T) {
	path := writeConfig(t, validConfigBody+"\nShardCount = 100\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for non-power-of-two shard count")
	}
}

func TestLoadRejectsBadRegistryUUID(t *testing.T) {
	path := writeConfig(t, `
StoragePath = "./storage"
Registries = ["not-a-uuid"]
Upstreams = ["http://store-a.internal"]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for malformed registry UUID")
	}
}

func TestLoadRejectsMissingUpstreams(t *testing.T) {
	path := writeConfig(t, `
StoragePath = "./storage"
Registries = ["0b6f1f1e-8c2a-4e2a-9a3a-1234567890ab"]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing upstreams")
	}
}

func TestLoadAcceptsDurationAsBareSeconds(t *testing.T) {
	path := writeConfig(t, validConfigBody+"\nConvergeInterval = 5\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Global.ConvergeInterval.DurationValue().Seconds() != 5 {
		t.Fatalf("expected 5s, got %v", cfg.Global.ConvergeInterval.DurationValue())
	}
}
