package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/formvault/formvault/internal/pgp"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <ciphertext.asc>",
	Short: "List the recipient key handles of an encrypted submission",
	Long: `Read an encrypted submission and print the key handle of every
recipient slot. Handles identify which registered keys can open the
submission without touching any private key material.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read ciphertext: %w", err)
		}
		msg, err := pgp.FromText(string(raw))
		if err != nil {
			return fmt.Errorf("parse ciphertext: %w", err)
		}
		handles := msg.RecipientKeyHandles()
		fmt.Printf("recipient slots: %d\n", len(handles))
		for _, h := range handles {
			if h == 0 {
				fmt.Println("  (anonymous recipient)")
				continue
			}
			fmt.Printf("  %016X\n", h)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
