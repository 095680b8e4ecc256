package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/StatsAiGuy/exeflow/internal/app/config"
	sqliterepo "github.com/StatsAiGuy/exeflow/internal/infrastructure/persistence/sqlite"
)

const defaultConfigYAML = `# exeflow configuration
agent:
  type: claude-code
  binary: claude
  model: ""
  decision_timeout: 2m
  task_timeout: 15m
  max_turns: 30

detector:
  window: 6
  churn_threshold: 3

runner:
  max_concurrent_loops: 4

metrics:
  addr: ""

log:
  level: info
`

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = p
			}

			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
					return fmt.Errorf("create config directory: %w", err)
				}
				if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o600); err != nil {
					return fmt.Errorf("write config file: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "config already exists at %s\n", path)
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return fmt.Errorf("create database directory: %w", err)
			}
			db, err := sqliterepo.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s\n", cfg.Database.Path)
			return nil
		},
	}
}
