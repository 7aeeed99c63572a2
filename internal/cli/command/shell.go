package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/cli/repl"
	"github.com/yndnr/settree/internal/telemetry/logger"
)

// ShellCommand returns the shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively against one open store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "history",
				Usage: "History file; empty keeps history in memory",
				Value: repl.DefaultHistoryFile(),
			},
		},
		Action: withEnv(runShell),
	}
}

// shellApp returns the app that runs shell lines against e. Commands
// that do not return on their own are left out.
func shellApp(c *cli.Context, e *env) *cli.App {
	app := App()
	app.Writer = e.out
	app.ErrWriter = c.App.ErrWriter
	app.Reader = c.App.Reader
	app.Metadata = map[string]any{envKey: e}
	// Errors are printed by the shell; never exit the process.
	app.ExitErrHandler = func(*cli.Context, error) {}

	cmds := app.Commands[:0]
	for _, cmd := range app.Commands {
		if cmd.Name == "shell" || cmd.Name == "watch" {
			continue
		}
		cmds = append(cmds, cmd)
	}
	app.Commands = cmds
	return app
}

func runShell(ctx context.Context, c *cli.Context, e *env) error {
	app := shellApp(c, e)

	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}

	r := repl.New(func(ctx context.Context, args []string) error {
		return app.RunContext(ctx, append([]string{"settree"}, args...))
	}, names,
		repl.WithIO(c.App.Reader, e.out),
		repl.WithHistory(repl.NewHistory(c.String("history"),
			repl.WithSensitive(logger.IsSensitiveName))))

	e.logger.Debug("shell started", "backend", e.cfg.Storage.Backend)
	return r.Run(ctx)
}
