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
	encryptIn  string
	encryptOut string
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [recipient-cert.asc ...]",
	Short: "Encrypt a submission for one or more recipients",
	Long: `Read a JSON submission from --in (or stdin) and encrypt it to every
recipient certificate given as an argument. Any one matching private key can
open the result. The armored ciphertext goes to --out (or stdout).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if encryptIn == "" || encryptIn == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(encryptIn)
		}
		if err != nil {
			return fmt.Errorf("read submission: %w", err)
		}
		var sub pgp.Submission
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("parse submission: %w", err)
		}
		certs := make([]string, 0, len(args))
		for _, path := range args {
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read recipient cert %s: %w", path, err)
			}
			certs = append(certs, string(b))
		}
		armored, err := pgp.EncryptSubmissionArmored(&sub, certs, pgp.RecipientCertPolicy())
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		if encryptOut == "" || encryptOut == "-" {
			fmt.Println(armored)
			return nil
		}
		if err := os.WriteFile(encryptOut, []byte(armored+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", encryptOut, err)
		}
		return nil
	},
}

func init() {
	encryptCmd.Flags().StringVar(&encryptIn, "in", "", "submission JSON file (default stdin)")
	encryptCmd.Flags().StringVar(&encryptOut, "out", "", "ciphertext output file (default stdout)")
	rootCmd.AddCommand(encryptCmd)
}
