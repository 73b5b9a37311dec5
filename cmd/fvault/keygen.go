package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/formvault/formvault/internal/pgp"
)

var (
	keygenName         string
	keygenEmail        string
	keygenValidityDays int
	keygenOut          string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a recipient key pair",
	Long: `Generate a fresh recipient key pair and write <out>.pub.asc and
<out>.key.asc. Register the public half with the server; the private half
never leaves your machine. Keys must carry an expiry, so validity-days has
to be positive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keygenName == "" || keygenEmail == "" {
			return fmt.Errorf("--name and --email are required")
		}
		if keygenValidityDays <= 0 {
			return fmt.Errorf("--validity-days must be positive")
		}
		secret, err := pgp.GenerateCert(keygenName, keygenEmail, time.Duration(keygenValidityDays)*24*time.Hour)
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		pubArmor, err := secret.Public().Armor()
		if err != nil {
			return fmt.Errorf("encode public key: %w", err)
		}
		privArmor, err := secret.Armor()
		if err != nil {
			return fmt.Errorf("encode private key: %w", err)
		}
		pubPath := keygenOut + ".pub.asc"
		privPath := keygenOut + ".key.asc"
		if err := os.WriteFile(pubPath, []byte(pubArmor+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", pubPath, err)
		}
		if err := os.WriteFile(privPath, []byte(privArmor+"\n"), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", privPath, err)
		}
		fmt.Printf("fingerprint: %X\n", secret.Fingerprint())
		fmt.Printf("public key:  %s\n", pubPath)
		fmt.Printf("private key: %s\n", privPath)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenName, "name", "", "key owner name")
	keygenCmd.Flags().StringVar(&keygenEmail, "email", "", "key owner email")
	keygenCmd.Flags().IntVar(&keygenValidityDays, "validity-days", 365, "key validity in days")
	keygenCmd.Flags().StringVar(&keygenOut, "out", "fvault", "output file prefix")
	rootCmd.AddCommand(keygenCmd)
}
