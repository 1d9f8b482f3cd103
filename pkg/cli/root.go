// Package cli implements the idamsim command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "idamsim",
	Short: "idamsim is an OAuth2/OIDC identity provider simulator",
	Long: `idamsim simulates an identity and access management provider for local
development and functional testing. It serves the pin, authorization-code,
and resource-owner grants, OIDC userinfo and discovery, a user directory,
and test-support endpoints for seeding accounts.

All state is held in memory and is lost on restart.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
