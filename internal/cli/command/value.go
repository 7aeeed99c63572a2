package command

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/cli/output"
	"github.com/yndnr/settree/internal/settings"
	"github.com/yndnr/settree/internal/telemetry/logger"
)

var hexFlag = &cli.BoolFlag{
	Name:  "hex",
	Usage: "Value is hex encoded",
}

// SaveCommand returns the save command.
func SaveCommand() *cli.Command {
	return &cli.Command{
		Name:      "save",
		Aliases:   []string{"set"},
		Usage:     "Store a value under a setting name",
		ArgsUsage: "NAME VALUE",
		Flags:     []cli.Flag{hexFlag},
		Action:    withEnv(runSave),
	}
}

func runSave(ctx context.Context, c *cli.Context, e *env) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	name := c.Args().Get(0)

	value := []byte(c.Args().Get(1))
	if c.Bool("hex") {
		decoded, err := hex.DecodeString(c.Args().Get(1))
		if err != nil {
			return fmt.Errorf("decode value: %w", err)
		}
		value = decoded
	}

	if err := e.store.Save(ctx, name, value); err != nil {
		return err
	}
	e.logger.Info("setting saved", "name", name, logger.Value(name, value))
	return nil
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the value stored under a setting name",
		ArgsUsage: "NAME",
		Flags:     []cli.Flag{hexFlag},
		Action:    withEnv(runGet),
	}
}

func runGet(ctx context.Context, c *cli.Context, e *env) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	name := c.Args().Get(0)

	n, err := e.store.Len(ctx, name)
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	n, err = e.loader.LoadOne(ctx, name, buf)
	if err != nil {
		return err
	}

	value := string(buf[:n])
	if c.Bool("hex") {
		value = hex.EncodeToString(buf[:n])
	}

	if e.format == output.FormatTable {
		_, err := fmt.Fprintln(e.out, value)
		return err
	}
	return e.print(map[string]string{"name": name, "value": value})
}

// LenCommand returns the len command.
func LenCommand() *cli.Command {
	return &cli.Command{
		Name:      "len",
		Usage:     "Print the length of the value stored under a setting name (0 when absent)",
		ArgsUsage: "NAME",
		Action:    withEnv(runLen),
	}
}

func runLen(ctx context.Context, c *cli.Context, e *env) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	name := c.Args().Get(0)

	n, err := e.store.Len(ctx, name)
	if errors.Is(err, settings.ErrNotFound) {
		n, err = 0, nil
	}
	if err != nil {
		return err
	}

	if e.format == output.FormatTable {
		_, err := fmt.Fprintln(e.out, n)
		return err
	}
	return e.print(map[string]string{"name": name, "len": strconv.Itoa(n)})
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a setting",
		ArgsUsage: "NAME",
		Action:    withEnv(runDelete),
	}
}

func runDelete(ctx context.Context, c *cli.Context, e *env) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	name := c.Args().Get(0)

	if err := e.store.Delete(ctx, name); err != nil {
		return err
	}
	e.logger.Info("setting deleted", "name", name)
	return nil
}
