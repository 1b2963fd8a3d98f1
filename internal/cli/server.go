package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sitewarden/sitewarden/internal/config"
	"github.com/sitewarden/sitewarden/internal/server"
	"github.com/spf13/cobra"
)

func newServerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the sitewarden server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadServerConfig(configPath)
			if err != nil {
				return err
			}

			s, err := server.New(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "sitewarden server listening on %s\n", s.Addr())
			return s.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to server config YAML (default: ./config.yml, ./config.yaml, or /etc/sitewarden/config.yaml)")
	return cmd
}

func loadServerConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, candidate := range []string{"./config.yml", "./config.yaml", "/etc/sitewarden/config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return config.Load(candidate)
		}
	}
	return nil, fmt.Errorf("no config file found; pass --config")
}
