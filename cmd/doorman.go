package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/doorman/cmd/server"
)

var doormanCmd = &cobra.Command{
	Use:   "doorman",
	Short: "Doorman is a single-admin authentication service",
	Long: `Doorman guards a service behind a single administrator account.
It handles one-time credential setup, password login, bearer token
issuance and the authorization decision for every incoming request.`,
}

func Execute() {
	if err := doormanCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	doormanCmd.AddCommand(server.ServerCmd)
}
