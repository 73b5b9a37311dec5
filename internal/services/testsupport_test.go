package services

import (
	"sync"
	"testing"
	"time"

	"github.com/formvault/formvault/internal/pgp"
)

// Generated once per test binary; key generation dominates test time
// otherwise.
var (
	tkOnce    sync.Once
	tkErr     error
	tkAlice   *pgp.SecretCert
	tkBob     *pgp.SecretCert
	tkEternal *pgp.SecretCert
)

func testCerts(t *testing.T) {
	t.Helper()
	tkOnce.Do(func() {
		gen := func(name, email string, validity time.Duration) *pgp.SecretCert {
			if tkErr != nil {
				return nil
			}
			c, err := pgp.GenerateCert(name, email, validity)
			if err != nil {
				tkErr = err
			}
			return c
		}
		tkAlice = gen("Alice", "alice@example.org", 365*24*time.Hour)
		tkBob = gen("Bob", "bob@example.org", 365*24*time.Hour)
		tkEternal = gen("Eternal", "eternal@example.org", 0)
	})
	if tkErr != nil {
		t.Fatalf("generate test certs: %v", tkErr)
	}
}

func publicArmorOf(t *testing.T, c *pgp.SecretCert) string {
	t.Helper()
	text, err := c.Public().Armor()
	if err != nil {
		t.Fatalf("armor public cert: %v", err)
	}
	return text
}

func secretArmorOf(t *testing.T, c *pgp.SecretCert) string {
	t.Helper()
	text, err := c.Armor()
	if err != nil {
		t.Fatalf("armor secret cert: %v", err)
	}
	return text
}
