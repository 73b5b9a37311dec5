package pgp

import (
	"sync"
	"testing"
	"time"
)

// Key generation is the slow part of this suite, so the fixture certs are
// built once and shared across tests. Tests must not mutate them.
var (
	fixtureOnce sync.Once
	fixtureErr  error
	certAlice   *SecretCert // regular recipient
	certBob     *SecretCert // second recipient
	certCarol   *SecretCert // never a recipient; the "wrong viewer"
	certEternal *SecretCert // no expiry; violates product policy
)

func fixtures(t *testing.T) {
	t.Helper()
	fixtureOnce.Do(func() {
		gen := func(name, email string, validity time.Duration) *SecretCert {
			if fixtureErr != nil {
				return nil
			}
			c, err := GenerateCert(name, email, validity)
			if err != nil {
				fixtureErr = err
			}
			return c
		}
		certAlice = gen("Alice", "alice@example.org", 365*24*time.Hour)
		certBob = gen("Bob", "bob@example.org", 365*24*time.Hour)
		certCarol = gen("Carol", "carol@example.org", 365*24*time.Hour)
		certEternal = gen("Eve R. Lasting", "eternal@example.org", 0)
	})
	if fixtureErr != nil {
		t.Fatalf("generate fixture keys: %v", fixtureErr)
	}
}

func publicArmor(t *testing.T, c *SecretCert) string {
	t.Helper()
	text, err := c.Public().Armor()
	if err != nil {
		t.Fatalf("armor public cert: %v", err)
	}
	return text
}

func secretArmor(t *testing.T, c *SecretCert) string {
	t.Helper()
	text, err := c.Armor()
	if err != nil {
		t.Fatalf("armor secret cert: %v", err)
	}
	return text
}

func sampleSubmission() *Submission {
	scale := 4
	return &Submission{
		FormID:          "F1",
		GroupsCompleted: []string{"G1"},
		Answers: []Answer{
			{QuestionID: "Q1", Data: AnswerData{Type: AnswerChoice, Options: []string{"red"}}},
			{QuestionID: "Q2", Data: AnswerData{Type: AnswerText, Text: "free text"}},
			{QuestionID: "Q3", Data: AnswerData{Type: AnswerScale, Scale: &scale}},
			{QuestionID: "Q4", Data: AnswerData{Type: AnswerAddress, Address: "1 Main St", Geo: &GeoPoint{Lat: 51.5, Lng: -0.1}}},
			{QuestionID: "Q5", Data: AnswerData{Type: AnswerDateTime, DateTime: "2026-02-03T10:00:00Z"}},
		},
	}
}
