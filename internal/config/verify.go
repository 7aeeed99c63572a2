package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	var errs []error
	errs = append(errs, verifyStorage(&cfg.Storage)...)
	errs = append(errs, verifySecurity(cfg)...)
	errs = append(errs, verifyLog(&cfg.Log)...)
	if cfg.Watch.MinInterval < 0 {
		errs = append(errs, errors.New("watch.min_interval must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) []error {
	var errs []error

	switch cfg.Backend {
	case "memory":
	case "log", "badger", "bolt":
		if cfg.DataDir == "" {
			errs = append(errs, fmt.Errorf("storage.data_dir is required for the %s backend", cfg.Backend))
		} else if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			errs = append(errs, fmt.Errorf("cannot create data directory: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, log, badger, bolt", cfg.Backend))
	}

	if cfg.Cache.Enabled && cfg.Cache.Size < 1 {
		errs = append(errs, errors.New("storage.cache.size must be at least 1"))
	}

	if cfg.Backend == "log" {
		switch cfg.Log.SyncMode {
		case "sync", "batch":
		default:
			errs = append(errs, fmt.Errorf("storage.log.sync_mode %q is not one of sync, batch", cfg.Log.SyncMode))
		}
		if cfg.Log.SnapshotKeep < 1 {
			errs = append(errs, errors.New("storage.log.snapshot_keep must be at least 1"))
		}
	}

	if cfg.Backend == "badger" {
		if r := cfg.Badger.GCDiscardRatio; r <= 0 || r >= 1 {
			errs = append(errs, errors.New("storage.badger.gc_discard_ratio must be in (0, 1)"))
		}
	}

	return errs
}

func verifySecurity(cfg *Config) []error {
	sec := &cfg.Security
	if sec.EncryptionKey == "" && sec.Passphrase == "" {
		return nil
	}

	var errs []error
	if sec.EncryptionKey != "" && sec.Passphrase != "" {
		errs = append(errs, errors.New("security.encryption_key and security.passphrase are mutually exclusive"))
	}
	if sec.Passphrase != "" && sec.Salt == "" {
		errs = append(errs, errors.New("security.salt is required with security.passphrase"))
	}
	if cfg.Storage.Backend != "log" {
		errs = append(errs, fmt.Errorf("value encryption is not supported by the %s backend", cfg.Storage.Backend))
	}
	switch sec.Algorithm {
	case "", "xchacha20-poly1305", "aes-gcm":
	default:
		errs = append(errs, fmt.Errorf("security.algorithm %q is not one of xchacha20-poly1305, aes-gcm", sec.Algorithm))
	}
	return errs
}

func verifyLog(cfg *LogSection) []error {
	var errs []error
	switch strings.ToLower(cfg.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "", "text", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", cfg.Format))
	}
	return errs
}
