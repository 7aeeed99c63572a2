package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/cli/output"
	"github.com/yndnr/settree/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("output"))
			if err != nil {
				return err
			}

			if format == output.FormatTable {
				_, err := fmt.Fprintf(c.App.Writer, "%s %s\n", c.App.Name, buildinfo.String())
				return err
			}

			return output.NewFormatter(format).Format(c.App.Writer, buildinfo.Get())
		},
	}
}
