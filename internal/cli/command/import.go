package command

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/infra/confloader"
	"github.com/yndnr/settree/internal/telemetry/logger"
)

var (
	prefixFlag = &cli.StringFlag{
		Name:    "prefix",
		Aliases: []string{"p"},
		Usage:   "Subtree the file is imported under",
	}
	pruneFlag = &cli.BoolFlag{
		Name:  "prune",
		Usage: "Delete stored settings below the prefix that are missing from the file",
	}
)

// ImportCommand returns the import command.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Store every leaf of a YAML or JSON file as a setting",
		ArgsUsage: "FILE",
		Flags:     []cli.Flag{prefixFlag, pruneFlag},
		Action:    withEnv(runImport),
	}
}

func runImport(ctx context.Context, c *cli.Context, e *env) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}

	res, err := e.importSeed(ctx, c.Args().First(), c.String("prefix"), c.Bool("prune"))
	if err != nil {
		return err
	}
	return e.print(res.Map())
}

// importResult counts what an import did.
type importResult struct {
	Saved     int
	Unchanged int
	Deleted   int
}

// Map returns the counters keyed by name.
func (r importResult) Map() map[string]string {
	return map[string]string{
		"saved":     strconv.Itoa(r.Saved),
		"unchanged": strconv.Itoa(r.Unchanged),
		"deleted":   strconv.Itoa(r.Deleted),
	}
}

// importSeed stores the leaves of the seed file at path below prefix.
//
// Values equal to the stored ones are not written again. A null leaf
// deletes its setting. With prune, stored settings below prefix that the
// file does not name are deleted too.
func (e *env) importSeed(ctx context.Context, path, prefix string, prune bool) (importResult, error) {
	var res importResult

	entries, err := confloader.Flatten(path, prefix)
	if err != nil {
		return res, err
	}

	subtree := strings.Trim(prefix, confloader.NameDelimiter)
	existing, err := readSubtree(ctx, e, subtree)
	if err != nil {
		return res, err
	}
	stored := make(map[string][]byte, len(existing))
	for _, v := range existing {
		stored[fullName(subtree, v.name)] = v.value
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		seen[entry.Name] = struct{}{}
		old, ok := stored[entry.Name]

		switch {
		case len(entry.Value) == 0:
			if !ok {
				continue
			}
			if err := e.store.Delete(ctx, entry.Name); err != nil {
				return res, err
			}
			res.Deleted++
			e.logger.Debug("setting deleted", "name", entry.Name)

		case ok && bytes.Equal(old, entry.Value):
			res.Unchanged++

		default:
			if err := e.store.Save(ctx, entry.Name, entry.Value); err != nil {
				return res, err
			}
			res.Saved++
			e.logger.Debug("setting saved", "name", entry.Name, logger.Value(entry.Name, entry.Value))
		}
	}

	if prune {
		for _, v := range existing {
			name := fullName(subtree, v.name)
			if _, ok := seen[name]; ok {
				continue
			}
			if err := e.store.Delete(ctx, name); err != nil {
				return res, err
			}
			res.Deleted++
			e.logger.Debug("setting pruned", "name", name)
		}
	}

	e.logger.Info("seed imported",
		"file", path,
		"prefix", subtree,
		"saved", res.Saved,
		"unchanged", res.Unchanged,
		"deleted", res.Deleted)
	return res, nil
}
