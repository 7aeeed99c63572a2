package command

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/settree/internal/config"
	"github.com/yndnr/settree/internal/storage"
	"github.com/yndnr/settree/internal/telemetry/logger"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = backend
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestOpenStore_Backends(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{"memory", "log", "badger", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			reg := metric.NewRegistry()

			store, err := OpenStore(ctx, cfg, logger.Discard(), reg)
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			defer store.Close()

			if err := store.Save(ctx, "a/b", []byte("v")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if n, err := store.Len(ctx, "a/b"); err != nil || n != 1 {
				t.Errorf("Len = %d, %v; want 1", n, err)
			}

			families, err := reg.Prometheus().Gather()
			if err != nil {
				t.Fatalf("Gather: %v", err)
			}
			found := false
			for _, f := range families {
				if f.GetName() == "settree_store_keys" {
					found = true
				}
			}
			if !found {
				t.Error("store collector not registered")
			}
		})
	}
}

func TestOpenStore_Cache(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Storage.Cache.Enabled = true
	cfg.Storage.Cache.Size = 16

	store, err := OpenStore(context.Background(), cfg, logger.Discard(), metric.NewRegistry())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*storage.CachedStore); !ok {
		t.Errorf("store = %T, want *storage.CachedStore", store)
	}
}

func TestOpenStore_Sealed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "log")
	cfg.Security.EncryptionKey = "hex:" + strings.Repeat("5a", 32)

	store, err := OpenStore(ctx, cfg, logger.Discard(), metric.NewRegistry())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := store.Save(ctx, "wifi/psk", []byte("plaintext-secret")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err = filepath.Walk(cfg.Storage.DataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.Contains(data, []byte("plaintext-secret")) {
			t.Errorf("%s contains the plaintext value", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	store, err = OpenStore(ctx, cfg, logger.Discard(), metric.NewRegistry())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if n, err := store.Len(ctx, "wifi/psk"); err != nil || n != len("plaintext-secret") {
		t.Errorf("Len after reopen = %d, %v", n, err)
	}
}

func TestNewSealer(t *testing.T) {
	tests := []struct {
		name    string
		sec     config.SecuritySection
		wantNil bool
		wantErr bool
	}{
		{
			name:    "disabled",
			sec:     config.SecuritySection{Algorithm: config.DefaultAlgorithm},
			wantNil: true,
		},
		{
			name: "key",
			sec: config.SecuritySection{
				EncryptionKey: strings.Repeat("01", 32),
				Algorithm:     config.DefaultAlgorithm,
			},
		},
		{
			name: "passphrase",
			sec: config.SecuritySection{
				Passphrase: "correct horse battery",
				Salt:       strings.Repeat("ab", 16),
				Algorithm:  "aes-gcm",
			},
		},
		{
			name:    "bad key",
			sec:     config.SecuritySection{EncryptionKey: "hex:zz", Algorithm: config.DefaultAlgorithm},
			wantErr: true,
		},
		{
			name:    "bad salt",
			sec:     config.SecuritySection{Passphrase: "correct horse battery", Salt: "xyz", Algorithm: config.DefaultAlgorithm},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newSealer(&tt.sec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (s == nil) != tt.wantNil {
				t.Errorf("sealer = %v, wantNil %v", s, tt.wantNil)
			}
		})
	}
}

func TestCompactCommand(t *testing.T) {
	for _, backend := range []string{"log", "bolt", "badger"} {
		t.Run(backend, func(t *testing.T) {
			base := storeArgs(t, backend)
			mustRun(t, with(base, "save", "a", "1")...)
			mustRun(t, with(base, "save", "a", "2")...)
			mustRun(t, with(base, "save", "b", "3")...)
			mustRun(t, with(base, "delete", "b")...)

			out := decodeResult(t, mustRun(t, with(base, "--output", "json", "compact")...))
			if out["backend"] != backend {
				t.Errorf("backend = %q, want %q", out["backend"], backend)
			}
			if out["keys"] != "1" {
				t.Errorf("keys = %q, want 1", out["keys"])
			}

			if got := mustRun(t, with(base, "get", "a")...); got != "2\n" {
				t.Errorf("get after compact = %q, want 2", got)
			}
		})
	}

	if _, err := runApp(t, "--backend", "memory", "compact"); err == nil {
		t.Error("memory backend should not support compaction")
	}
}
