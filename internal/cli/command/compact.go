package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/storage"
)

// CompactCommand returns the compact command.
func CompactCommand() *cli.Command {
	return &cli.Command{
		Name:   "compact",
		Usage:  "Reclaim space held by overwritten and deleted settings",
		Action: withEnv(runCompact),
	}
}

func runCompact(ctx context.Context, _ *cli.Context, e *env) error {
	compacter, ok := e.store.(storage.Compacter)
	if !ok {
		return fmt.Errorf("the %s backend does not support compaction", e.cfg.Storage.Backend)
	}

	start := time.Now()
	if err := compacter.Compact(ctx); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	e.logger.Info("store compacted",
		"backend", e.cfg.Storage.Backend,
		"elapsed", time.Since(start))

	result := map[string]string{
		"backend": e.cfg.Storage.Backend,
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}
	if r, ok := e.store.(storage.StatsReporter); ok {
		stats := r.Stats()
		result["keys"] = fmt.Sprint(stats.Keys)
		result["bytes"] = fmt.Sprint(stats.Bytes)
	}
	return e.print(result)
}
