package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/pushcast/internal/build"
	"github.com/shaharia-lab/pushcast/internal/config"
)

// NewRootCmd returns the pushcast root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:     "pushcast",
		Short:   "Web push notification fan-out server",
		Long:    "pushcast stores browser push subscriptions and fans notifications out to them.",
		Version: build.String(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv(envFile)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewVAPIDCmd())
	root.AddCommand(NewVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
