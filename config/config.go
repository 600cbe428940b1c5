// Package config loads the engine's YAML configuration: an unexported aux
// struct carries the YAML shape, validated and converted into the typed
// Config used everywhere else.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/chronodb/oplogd/utils/log"
)

// Config is the process-wide configuration for oplogd.
type Config struct {
	WriterThreads           int
	PrefetchThreads         int
	BatchMax                int
	SlaveDelay              time.Duration
	MaintenanceMode         int
	BlockSync               bool
	ForceInitialSyncFailure int

	ListenAddress string
	DataDirectory string
	LogLevel      string

	// LeafPlugin is the path to a Go plugin exporting sourceplugin.Source. If
	// empty, the process falls back to a non-durable in-memory document
	// store, useful for development but never for production (the plugin is
	// how the real storage engine's per-document mutation primitive is
	// supplied).
	LeafPlugin string
}

// Default returns the engine's baseline configuration.
func Default() Config {
	return Config{
		WriterThreads:   4,
		PrefetchThreads: 4,
		BatchMax:        128,
		ListenAddress:   ":8081",
		DataDirectory:   "data",
		LogLevel:        "info",
	}
}

// Parse decodes YAML config data into a Config, applying defaults for any
// field left unset.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var aux struct {
		WriterThreads           int    `yaml:"writer_threads"`
		PrefetchThreads         int    `yaml:"prefetch_threads"`
		BatchMax                int    `yaml:"batch_max"`
		SlaveDelaySeconds       int    `yaml:"slave_delay_seconds"`
		MaintenanceMode         int    `yaml:"maintenance_mode"`
		BlockSync               string `yaml:"block_sync"`
		ForceInitialSyncFailure int    `yaml:"force_initial_sync_failure"`
		ListenAddress           string `yaml:"listen_address"`
		DataDirectory           string `yaml:"data_directory"`
		LogLevel                string `yaml:"log_level"`
		LeafPlugin              string `yaml:"leaf_plugin"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return Config{}, fmt.Errorf("config: parsing yaml: %w", err)
	}

	if aux.WriterThreads > 0 {
		cfg.WriterThreads = aux.WriterThreads
	}
	if aux.PrefetchThreads > 0 {
		cfg.PrefetchThreads = aux.PrefetchThreads
	}
	if aux.BatchMax > 0 {
		cfg.BatchMax = aux.BatchMax
	}
	if aux.SlaveDelaySeconds > 0 {
		cfg.SlaveDelay = time.Duration(aux.SlaveDelaySeconds) * time.Second
	}
	cfg.MaintenanceMode = aux.MaintenanceMode
	cfg.ForceInitialSyncFailure = aux.ForceInitialSyncFailure

	if aux.BlockSync != "" {
		blockSync, err := strconv.ParseBool(aux.BlockSync)
		if err != nil {
			log.Error("config: invalid value %q for block_sync, leaving sync unblocked", aux.BlockSync)
		} else {
			cfg.BlockSync = blockSync
		}
	}

	if aux.ListenAddress != "" {
		cfg.ListenAddress = aux.ListenAddress
	}
	if aux.DataDirectory != "" {
		cfg.DataDirectory = aux.DataDirectory
	}
	cfg.LeafPlugin = aux.LeafPlugin

	if aux.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(aux.LogLevel)
		switch cfg.LogLevel {
		case "fatal":
			log.SetLevel(log.FATAL)
		case "error":
			log.SetLevel(log.ERROR)
		case "warning":
			log.SetLevel(log.WARNING)
		case "debug":
			log.SetLevel(log.DEBUG)
		case "info":
			fallthrough
		default:
			log.SetLevel(log.INFO)
		}
	}

	return cfg, nil
}
