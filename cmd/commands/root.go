package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/paula/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "paula",
		Usage: "A methodical AI agent with plans, checklists and memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewGatewayCommand(),
			NewAskCommand(),
			NewTodosCommand(),
			NewMemoryCommand(),
			NewStatusCommand(),
			NewMCPServeCommand(),
		},
	}
}
