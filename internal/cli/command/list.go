package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/cli/output"
	"github.com/yndnr/settree/internal/infra/confloader"
	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/logger"
)

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List the settings stored at or below a subtree",
		ArgsUsage: "[SUBTREE]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Show complete values, including sensitive ones",
			},
			&cli.BoolFlag{
				Name:  "no-headers",
				Usage: "Omit the table header",
			},
		},
		Action: withEnv(runList),
	}
}

// storedValue is one setting read by a direct load.
type storedValue struct {
	name  string
	value []byte
}

// readSubtree returns the settings stored at or below subtree, sorted by
// name. Names are relative to subtree.
func readSubtree(ctx context.Context, e *env, subtree string) ([]storedValue, error) {
	var values []storedValue
	err := e.loader.LoadSubtreeDirect(ctx, subtree, func(key string, length int, read settings.ReadFunc, _ any) error {
		buf := make([]byte, length)
		n, err := read(buf)
		if err != nil {
			return err
		}
		values = append(values, storedValue{name: key, value: buf[:n]})
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	sort.Slice(values, func(i, j int) bool { return values[i].name < values[j].name })
	return values, nil
}

// fullName joins a subtree and a name relative to it.
func fullName(subtree, rel string) string {
	switch {
	case subtree == "":
		return rel
	case rel == "":
		return subtree
	default:
		return subtree + confloader.NameDelimiter + rel
	}
}

func subtreeArg(c *cli.Context) (string, error) {
	if c.NArg() > 1 {
		return "", fmt.Errorf("%s: expected at most one subtree, got %d", c.Command.Name, c.NArg())
	}
	return strings.Trim(c.Args().First(), confloader.NameDelimiter), nil
}

func runList(ctx context.Context, c *cli.Context, e *env) error {
	subtree, err := subtreeArg(c)
	if err != nil {
		return err
	}

	values, err := readSubtree(ctx, e, subtree)
	if err != nil {
		return err
	}

	table := &output.Table{Headers: []string{"NAME", "LEN", "VALUE"}}
	for _, v := range values {
		name := fullName(subtree, v.name)
		shown := string(v.value)
		if !c.Bool("full") {
			shown = logger.Value(name, v.value).Value.String()
		}
		table.AddRow(name, strconv.Itoa(len(v.value)), shown)
	}

	if e.format == output.FormatTable {
		return table.Render(e.out, c.Bool("no-headers"))
	}
	return e.print(table)
}

// ExportCommand returns the export command.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Print a subtree as a nested YAML or JSON document",
		ArgsUsage: "[SUBTREE]",
		Action:    withEnv(runExport),
	}
}

func runExport(ctx context.Context, c *cli.Context, e *env) error {
	subtree, err := subtreeArg(c)
	if err != nil {
		return err
	}

	values, err := readSubtree(ctx, e, subtree)
	if err != nil {
		return err
	}

	flat := make(map[string]string, len(values))
	for _, v := range values {
		name := v.name
		if name == "" {
			name = "="
		}
		flat[name] = string(v.value)
	}

	// Table output has no nested form; export defaults to YAML.
	format := e.format
	if format == output.FormatTable {
		format = output.FormatYAML
	}
	return output.NewFormatter(format).Format(e.out, confloader.Nest(flat))
}
