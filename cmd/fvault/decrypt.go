package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/formvault/formvault/internal/pgp"
)

var (
	decryptKeys []string
	decryptIn   string
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt an exported submission with your private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(decryptKeys) == 0 {
			return fmt.Errorf("at least one --key is required")
		}
		privs := make([]string, 0, len(decryptKeys))
		for _, path := range decryptKeys {
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read private key %s: %w", path, err)
			}
			privs = append(privs, string(b))
		}
		resolver, err := pgp.NewKeyResolver(privs, pgp.RecipientCertPolicy())
		if err != nil {
			return fmt.Errorf("load private keys: %w", err)
		}
		var raw []byte
		if decryptIn == "" || decryptIn == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(decryptIn)
		}
		if err != nil {
			return fmt.Errorf("read ciphertext: %w", err)
		}
		msg, err := pgp.FromText(string(raw))
		if err != nil {
			return fmt.Errorf("parse ciphertext: %w", err)
		}
		sub, err := resolver.Decrypt(msg.Bytes())
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sub)
	},
}

func init() {
	decryptCmd.Flags().StringArrayVar(&decryptKeys, "key", nil, "private key file (repeatable)")
	decryptCmd.Flags().StringVar(&decryptIn, "in", "", "ciphertext file (default stdin)")
	rootCmd.AddCommand(decryptCmd)
}
