package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sitewarden",
		Short:         "sitewarden: threat report orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("sitewarden {{.Version}}\n")

	cmd.PersistentFlags().String("server", getenvDefault("SITEWARDEN_SERVER", "http://127.0.0.1:8080"), "sitewarden server base URL")
	cmd.PersistentFlags().String("token", getenvDefault("SITEWARDEN_TOKEN", ""), "Access token (sent as Bearer)")

	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newReportsCmd())

	return cmd
}

type clientConfig struct {
	serverAddr string
	token      string
}

func getClientConfig(cmd *cobra.Command) *clientConfig {
	serverAddr, _ := cmd.Root().PersistentFlags().GetString("server")
	token, _ := cmd.Root().PersistentFlags().GetString("token")
	if serverAddr == "" {
		serverAddr = "http://127.0.0.1:8080"
	}
	return &clientConfig{serverAddr: serverAddr, token: token}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
