// Package cli implements the persist command-line interface: converting
// archives between tree formats, dumping their element trees, and building
// and caching build graphs.
package cli

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const appName = "persist"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config Config

	configPath string
}

func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: defaultConfig(),
	}
}

func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// slogger returns the CLI's logger as a log/slog logger for the library.
func (c *CLI) slogger() *slog.Logger {
	return slog.New(c.Logger)
}

// RootCommand creates the root cobra command with all subcommands
// registered. The config file is loaded before any subcommand runs.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "persist converts, inspects and caches object-graph archives",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.Config = cfg
			if cfg.LogLevel != "" {
				level, err := log.ParseLevel(cfg.LogLevel)
				if err != nil {
					return err
				}
				c.SetLogLevel(level)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ./"+defaultConfigName+" if present)")

	root.AddCommand(c.convertCommand())
	root.AddCommand(c.dumpCommand())
	root.AddCommand(c.graphCommand())
	return root
}
