package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fvault",
	Short: "FormVault key and submission tooling",
	Long: `fvault is the companion tool for FormVault's end-to-end encrypted forms.
It runs entirely on the client side: keys are generated, submissions are
encrypted, and exports are decrypted on your machine, never on the server.

Available Commands:
  keygen     Generate a recipient key pair
  encrypt    Encrypt a submission for one or more recipients
  decrypt    Decrypt an exported submission with your private key
  inspect    List the recipient key handles of an encrypted submission
`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
