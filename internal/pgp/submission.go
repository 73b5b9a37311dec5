package pgp

import (
	"encoding/json"
	"fmt"
)

// AnswerType tags the variant carried by an AnswerData value.
type AnswerType string

const (
	AnswerText      AnswerType = "text"
	AnswerChoice    AnswerType = "choice"
	AnswerScale     AnswerType = "scale"
	AnswerAddress   AnswerType = "address"
	AnswerPhone     AnswerType = "phone"
	AnswerFile      AnswerType = "file"
	AnswerSignature AnswerType = "signature"
	AnswerMatrix    AnswerType = "matrix"
	AnswerDateTime  AnswerType = "date_time"
	AnswerHidden    AnswerType = "hidden"
)

// GeoPoint is a WGS84 coordinate attached to an address answer.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AnswerData is a tagged union over the answer payload shapes a question can
// produce. Only the fields matching Type are populated.
type AnswerData struct {
	Type      AnswerType        `json:"type"`
	Text      string            `json:"text,omitempty"`
	Options   []string          `json:"options,omitempty"` // choice: one entry for single, several for multi
	Scale     *int              `json:"scale,omitempty"`
	Address   string            `json:"address,omitempty"`
	Geo       *GeoPoint         `json:"geo,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	FileID    string            `json:"file_id,omitempty"`
	Signature string            `json:"signature,omitempty"`
	Matrix    map[string]string `json:"matrix,omitempty"` // row id -> chosen option
	DateTime  string            `json:"date_time,omitempty"` // RFC 3339
	Hidden    string            `json:"hidden,omitempty"`
}

// Answer pairs a question with its payload.
type Answer struct {
	QuestionID string     `json:"question_id"`
	Data       AnswerData `json:"data"`
}

// Submission is an in-progress form response in the clear. It exists only
// client-side; the server ever sees it encrypted.
type Submission struct {
	FormID          string   `json:"form_id"`
	GroupsCompleted []string `json:"groups_completed,omitempty"`
	Answers         []Answer `json:"questions"`
}

// encodeSubmission produces the canonical byte form that gets encrypted.
// Struct field order is fixed, so the encoding is stable for a given value.
func encodeSubmission(s *Submission) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serialize submission: %w", err)
	}
	return b, nil
}

func decodeSubmission(b []byte) (*Submission, error) {
	var s Submission
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("deserialize submission: %w", err)
	}
	return &s, nil
}
