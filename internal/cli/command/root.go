package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/cli/output"
	"github.com/yndnr/settree/internal/config"
	"github.com/yndnr/settree/internal/infra/buildinfo"
	"github.com/yndnr/settree/internal/infra/confloader"
	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/storage"
	"github.com/yndnr/settree/internal/telemetry/logger"
	"github.com/yndnr/settree/internal/telemetry/metric"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:        "settree",
		Usage:       "Hierarchical settings store",
		Version:     buildinfo.String(),
		HideVersion: true,
		Flags:       globalFlags(),
		Commands: []*cli.Command{
			SaveCommand(),
			GetCommand(),
			LenCommand(),
			DeleteCommand(),
			ListCommand(),
			ExportCommand(),
			ImportCommand(),
			CompactCommand(),
			WatchCommand(),
			ShellCommand(),
			VersionCommand(),
			ConfigCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML or JSON)",
			EnvVars: []string{"SETTREE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "Storage backend: memory, log, badger, bolt",
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Data directory of the store",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Abort load passes at the first failing entry",
		},
		&cli.BoolFlag{
			Name:  "cache",
			Usage: "Put an LRU read cache in front of the store",
		},
	}
}

// flagKeys maps global flags to the configuration keys they override.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"backend", "storage.backend"},
	{"data-dir", "storage.data_dir"},
	{"log-level", "log.level"},
	{"log-format", "log.format"},
	{"strict", "load.strict"},
	{"cache", "storage.cache.enabled"},
}

// loadConfig builds the configuration from defaults, the config file,
// SETTREE_ environment variables and the flags set on the command line,
// in increasing priority.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	loader := confloader.NewLoader(confloader.WithConfigFile(c.String("config")))
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	overrides := make(map[string]any)
	for _, fk := range flagKeys {
		if c.IsSet(fk.flag) {
			overrides[fk.key] = c.Value(fk.flag)
		}
	}
	if err := loader.Override(overrides, cfg); err != nil {
		return nil, fmt.Errorf("apply flags: %w", err)
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg. Logs go to the error
// writer of the app so they never mix with command output.
func newLogger(c *cli.Context, cfg *config.Config) (*slog.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    c.App.ErrWriter,
		Sensitive: cfg.Log.Sensitive,
	})
}

// env is what a command runs against.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.Registry
	store   storage.Store
	loader  *settings.Loader
	out     io.Writer
	format  output.Format
}

// print writes data to the command output in the selected format.
func (e *env) print(data any) error {
	return output.NewFormatter(e.format).Format(e.out, data)
}

// newLoader returns a loader over the env's store dispatching to reg.
func (e *env) newLoader(reg *settings.Registry) *settings.Loader {
	return settings.NewLoader(reg, e.store,
		settings.WithLogger(e.logger),
		settings.WithMetrics(e.metrics.Settings),
		settings.WithStrict(e.cfg.Load.Strict))
}

// envKey is the App.Metadata key holding a shared env.
const envKey = "env"

type actionFunc func(ctx context.Context, c *cli.Context, e *env) error

// withEnv wraps fn with configuration loading, logger setup and the
// lifetime of the store. Each run gets its own op id.
func withEnv(fn actionFunc) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		// Commands run from the shell share the shell's env.
		if e, ok := c.App.Metadata[envKey].(*env); ok {
			return fn(c.Context, c, e)
		}

		format, err := output.ParseFormat(c.String("output"))
		if err != nil {
			return err
		}

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		log, err := newLogger(c, cfg)
		if err != nil {
			return err
		}

		ctx := logger.WithLogger(c.Context, log)
		ctx = logger.WithOpID(ctx, ulid.Make().String())
		log = logger.L(ctx)

		reg := metric.NewRegistry()
		store, err := OpenStore(ctx, cfg, log, reg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := store.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close store: %w", cerr)
			}
		}()

		e := &env{
			cfg:     cfg,
			logger:  log,
			metrics: reg,
			store:   store,
			out:     c.App.Writer,
			format:  format,
		}
		e.loader = e.newLoader(settings.NewRegistry())

		log.Debug("command started",
			"command", c.Command.Name,
			"backend", cfg.Storage.Backend)
		return fn(ctx, c, e)
	}
}

// requireArgs fails unless exactly n positional arguments were given.
func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d\nusage: %s %s",
			c.Command.Name, n, c.NArg(), c.Command.HelpName, c.Command.ArgsUsage)
	}
	return nil
}
