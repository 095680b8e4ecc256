// Package cli wires the cobra command tree for the exeflow binary.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/StatsAiGuy/exeflow/internal/app/config"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/di"
)

// NewRoot builds the root command
func NewRoot(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "exeflow",
		Short:   "Unattended multi-phase build workflow orchestrator",
		Version: version,
		RunE:    func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	newContainer := func() (*di.Container, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return di.NewContainer(cfg)
	}

	cmd.AddCommand(newInitCmd(&configPath))
	cmd.AddCommand(newRunCmd(newContainer))
	cmd.AddCommand(newProjectCmd(newContainer))
	cmd.AddCommand(newCheckpointCmd(newContainer))
	cmd.AddCommand(newEventsCmd(newContainer))
	return cmd
}

// containerFactory defers container construction until a command runs,
// so --config is parsed first and help never touches the database.
type containerFactory func() (*di.Container, error)
