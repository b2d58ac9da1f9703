package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/pushcast/internal/push"
)

// NewVAPIDCmd returns the "vapid" subcommand that prints a fresh VAPID key pair.
func NewVAPIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid",
		Short: "Generate a VAPID key pair",
		Long: `Generate a new VAPID key pair for signing push requests. Add the output to
your environment or .env file before running "pushcast serve".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := push.GenerateVAPIDKeys()
			if err != nil {
				return fmt.Errorf("generating VAPID keys: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "PUBLIC_VAPID_KEY=%s\n", pub)
			fmt.Fprintf(out, "PRIVATE_VAPID_KEY=%s\n", priv)
			return nil
		},
	}
}
