package services

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func generateSelfToken() (string, error) {
	rb := make([]byte, 24)
	if _, err := rand.Read(rb); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(rb), nil
}
