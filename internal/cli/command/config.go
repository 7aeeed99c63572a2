package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/settree/internal/cli/output"
	"github.com/yndnr/settree/internal/config"
)

// ConfigCommand returns the config command group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets masked",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Check the configuration and exit",
				Action: configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, config.Sanitize(cfg))
}

func configValidate(c *cli.Context) error {
	if _, err := loadConfig(c); err != nil {
		return err
	}
	_, err := c.App.Writer.Write([]byte("configuration is valid\n"))
	return err
}
