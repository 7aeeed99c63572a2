package command

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/yndnr/settree/internal/config"
)

func TestApp(t *testing.T) {
	app := App()
	if app == nil {
		t.Fatal("App() returned nil")
	}

	if app.Name != "settree" {
		t.Errorf("Name = %q, want %q", app.Name, "settree")
	}
	if app.Usage == "" {
		t.Error("Usage should not be empty")
	}

	commandNames := make(map[string]bool)
	for _, cmd := range app.Commands {
		commandNames[cmd.Name] = true
	}

	requiredCommands := []string{
		"save", "get", "len", "delete", "list", "export",
		"import", "compact", "watch", "shell", "version", "config",
	}
	for _, name := range requiredCommands {
		if !commandNames[name] {
			t.Errorf("missing required command: %s", name)
		}
	}
}

func TestApp_GlobalFlags(t *testing.T) {
	app := App()

	flagNames := make(map[string]bool)
	for _, flag := range app.Flags {
		flagNames[flag.Names()[0]] = true
	}

	for _, fk := range flagKeys {
		if !flagNames[fk.flag] {
			t.Errorf("flag %q overrides %q but is not defined", fk.flag, fk.key)
		}
	}
	for _, name := range []string{"config", "output"} {
		if !flagNames[name] {
			t.Errorf("missing required flag: %s", name)
		}
	}
}

func showConfig(t *testing.T, args ...string) config.Config {
	t.Helper()
	out := mustRun(t, append(args, "--output", "json", "config", "show")...)

	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode config: %v\n%s", err, out)
	}
	return cfg
}

func TestLoadConfig_Priority(t *testing.T) {
	dataDir := t.TempDir()
	path := writeFile(t, "settree.yaml", `
storage:
  backend: bolt
  data_dir: `+dataDir+`
log:
  level: warn
load:
  strict: true
`)

	t.Run("file", func(t *testing.T) {
		cfg := showConfig(t, "--config", path)
		if cfg.Storage.Backend != "bolt" {
			t.Errorf("Backend = %q, want bolt", cfg.Storage.Backend)
		}
		if !cfg.Load.Strict {
			t.Error("Load.Strict = false, want true from file")
		}
		if cfg.Storage.Log.SyncMode != config.DefaultSyncMode {
			t.Errorf("SyncMode = %q, want default %q", cfg.Storage.Log.SyncMode, config.DefaultSyncMode)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("SETTREE_STORAGE__BACKEND", "badger")
		cfg := showConfig(t, "--config", path)
		if cfg.Storage.Backend != "badger" {
			t.Errorf("Backend = %q, want badger", cfg.Storage.Backend)
		}
	})

	t.Run("flag overrides env", func(t *testing.T) {
		t.Setenv("SETTREE_STORAGE__BACKEND", "badger")
		cfg := showConfig(t, "--config", path, "--backend", "memory", "--log-level", "error")
		if cfg.Storage.Backend != "memory" {
			t.Errorf("Backend = %q, want memory", cfg.Storage.Backend)
		}
		if cfg.Log.Level != "error" {
			t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
		}
		if cfg.Storage.DataDir != dataDir {
			t.Errorf("DataDir = %q, want %q from file", cfg.Storage.DataDir, dataDir)
		}
	})
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	key := "hex:" + strings.Repeat("ab", 32)
	path := writeFile(t, "settree.yaml", `
storage:
  backend: log
  data_dir: `+t.TempDir()+`
security:
  encryption_key: `+key+`
`)

	cfg := showConfig(t, "--config", path)
	if cfg.Security.EncryptionKey == key {
		t.Fatal("encryption key printed in clear")
	}
	if !strings.Contains(cfg.Security.EncryptionKey, "****") {
		t.Errorf("EncryptionKey = %q, want masked", cfg.Security.EncryptionKey)
	}
}

func TestConfigValidate(t *testing.T) {
	out := mustRun(t, "--backend", "memory", "config", "validate")
	if !strings.Contains(out, "valid") {
		t.Errorf("output = %q", out)
	}

	if _, err := runApp(t, "--backend", "cassandra", "config", "validate"); err == nil {
		t.Error("unknown backend should fail validation")
	}
}

func TestWithEnv_InvalidOutput(t *testing.T) {
	_, err := runApp(t, "--backend", "memory", "--output", "xml", "len", "a")
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Errorf("err = %v, want unknown output format", err)
	}
}

func TestRequireArgs(t *testing.T) {
	_, err := runApp(t, "--backend", "memory", "save", "only-name")
	if err == nil || !strings.Contains(err.Error(), "expected 2 argument") {
		t.Errorf("err = %v, want argument count error", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.HasPrefix(out, "settree ") {
		t.Errorf("output = %q, want settree prefix", out)
	}

	out = mustRun(t, "--output", "json", "version")
	var info map[string]any
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode version: %v\n%s", err, out)
	}
	if info["version"] == "" || info["go_version"] == "" {
		t.Errorf("info = %v, want version and go_version", info)
	}
}
