package config

import (
	"testing"
	"time"
)

func TestParse_AppliesDefaultsForUnsetFields(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := Default()
	if cfg.WriterThreads != def.WriterThreads || cfg.BatchMax != def.BatchMax || cfg.ListenAddress != def.ListenAddress {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, def)
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
writer_threads: 8
batch_max: 256
slave_delay_seconds: 30
block_sync: "true"
listen_address: ":9090"
data_directory: /var/lib/oplogd
log_level: DEBUG
leaf_plugin: /opt/plugins/leaf.so
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.WriterThreads != 8 {
		t.Fatalf("WriterThreads = %d, want 8", cfg.WriterThreads)
	}
	if cfg.BatchMax != 256 {
		t.Fatalf("BatchMax = %d, want 256", cfg.BatchMax)
	}
	if cfg.SlaveDelay != 30*time.Second {
		t.Fatalf("SlaveDelay = %v, want 30s", cfg.SlaveDelay)
	}
	if !cfg.BlockSync {
		t.Fatal("BlockSync = false, want true")
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("ListenAddress = %q, want :9090", cfg.ListenAddress)
	}
	if cfg.DataDirectory != "/var/lib/oplogd" {
		t.Fatalf("DataDirectory = %q", cfg.DataDirectory)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want lowercased debug", cfg.LogLevel)
	}
	if cfg.LeafPlugin != "/opt/plugins/leaf.so" {
		t.Fatalf("LeafPlugin = %q", cfg.LeafPlugin)
	}
}

func TestParse_InvalidBlockSyncLeavesSyncUnblocked(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`block_sync: "not-a-bool"`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.BlockSync {
		t.Fatal("expected BlockSync to stay false after an invalid value")
	}
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	t.Parallel()
	if _, err := Parse([]byte("not: valid: yaml: [")); err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}
