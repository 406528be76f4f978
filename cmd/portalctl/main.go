// Command portalctl is the operator CLI: schema migrations, seeding, and
// SSO token tooling for local development.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keystone/internal/platform/config"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "portalctl",
		Short:        "Operate a keystone portal",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newSecretCmd(),
		newMintCmd(),
		newDecodeCmd(),
	)
	return root
}
