// bibctl is the staff command-line client for the library HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "bibctl",
		Short:         "Command-line client for the library management API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", envOr("BIBCTL_ADDR", "http://127.0.0.1:8080"), "base URL of the API server")

	client := &apiClient{addr: &addr}

	root.AddCommand(
		newLoginCmd(client),
		newLogoutCmd(client),
		newPersonCmd(client),
		newItemCmd(client),
		newLoanCmd(client),
		newFineCmd(client),
		newPolicyCmd(client),
		newMenuCmd(client),
	)
	return root
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
