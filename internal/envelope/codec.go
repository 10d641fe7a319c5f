// Package envelope builds and verifies the signed, expiring guarantor-request
// payloads carried inside QR images.
package envelope

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/domain"
)

// DefaultValidityWindow is how long an envelope stays scannable.
const DefaultValidityWindow = 7 * 24 * time.Hour

// Codec creates and verifies envelopes with a shared HMAC secret. It holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

func NewCodec(secret string, window time.Duration) *Codec {
	if window <= 0 {
		window = DefaultValidityWindow
	}
	return &Codec{
		secret: []byte(secret),
		window: window,
		now:    time.Now,
	}
}

// LoanDetails is the applicant-supplied loan context an envelope is built
// from. Timestamps, qrId and signature are stamped by Create.
type LoanDetails struct {
	LoanID           string
	ApplicantID      string
	ApplicantName    string
	ApplicantPhone   string
	LoanAmount       float64
	LoanCurrency     string
	LoanTenureMonths int
	InterestRate     float64
	MonthlyRepayment float64
	TotalRepayment   float64
	Purpose          string
}

// Create stamps creation/expiry times, generates a fresh qrId and signs the
// canonical encoding of every field. The returned envelope is complete and
// must not be mutated afterwards.
func (c *Codec) Create(details LoanDetails) (coopvest.Envelope, error) {
	now := c.now().UTC().Truncate(time.Second)
	currency := details.LoanCurrency
	if currency == "" {
		currency = "NGN"
	}

	env := coopvest.Envelope{
		EnvelopeVersion:  coopvest.EnvelopeVersion,
		QRID:             newQRID(now),
		LoanID:           details.LoanID,
		ApplicantID:      details.ApplicantID,
		ApplicantName:    details.ApplicantName,
		ApplicantPhone:   details.ApplicantPhone,
		LoanAmount:       details.LoanAmount,
		LoanCurrency:     currency,
		LoanTenureMonths: details.LoanTenureMonths,
		InterestRate:     details.InterestRate,
		MonthlyRepayment: details.MonthlyRepayment,
		TotalRepayment:   details.TotalRepayment,
		Purpose:          details.Purpose,
		CreatedAt:        now,
		ExpiresAt:        now.Add(c.window),
	}

	sig, err := c.sign(env)
	if err != nil {
		return coopvest.Envelope{}, err
	}
	env.Signature = sig
	return env, nil
}

// Verify parses raw, checks the schema, version, signature and expiry, and
// returns the typed envelope. Failures come back as *domain.VerificationError
// values so callers can answer with a precise reason.
func (c *Codec) Verify(raw []byte) (coopvest.Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var env coopvest.Envelope
	if err := dec.Decode(&env); err != nil {
		return coopvest.Envelope{}, &domain.VerificationError{
			Kind:   domain.KindMalformedEnvelope,
			Reason: err.Error(),
		}
	}
	if missing := firstMissingField(env); missing != "" {
		return coopvest.Envelope{}, &domain.VerificationError{
			Kind:   domain.KindMalformedEnvelope,
			Reason: "missing required field: " + missing,
		}
	}

	if env.EnvelopeVersion != coopvest.EnvelopeVersion {
		return coopvest.Envelope{}, &domain.VerificationError{
			Kind:   domain.KindUnsupportedVersion,
			Reason: fmt.Sprintf("version %q is not supported", env.EnvelopeVersion),
		}
	}

	// Signature is checked before expiry so a forged envelope is always
	// reported as tampered, even when it is also stale.
	expected, err := c.computeSignature(raw)
	if err != nil {
		return coopvest.Envelope{}, &domain.VerificationError{
			Kind:   domain.KindMalformedEnvelope,
			Reason: err.Error(),
		}
	}
	supplied, err := hex.DecodeString(env.Signature)
	if err != nil || !hmac.Equal(supplied, expected) {
		return coopvest.Envelope{}, &domain.VerificationError{
			Kind: domain.KindTamperedSignature,
		}
	}

	if c.now().After(env.ExpiresAt) {
		return coopvest.Envelope{}, &domain.VerificationError{
			Kind:   domain.KindExpiredEnvelope,
			Reason: "expired at " + env.ExpiresAt.Format(time.RFC3339),
		}
	}

	return env, nil
}

// Stats reports the codec configuration for the stats endpoint.
type Stats struct {
	Version      string `json:"version"`
	ValidityDays int    `json:"validityDays"`
	Algorithm    string `json:"algorithm"`
}

func (c *Codec) Stats() Stats {
	return Stats{
		Version:      coopvest.EnvelopeVersion,
		ValidityDays: int(c.window / (24 * time.Hour)),
		Algorithm:    "HMAC-SHA256",
	}
}

// sign canonicalizes the envelope without its signature field and returns the
// hex HMAC.
func (c *Codec) sign(env coopvest.Envelope) (string, error) {
	env.Signature = ""
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	sum, err := c.computeSignature(raw)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// computeSignature recomputes the HMAC over the canonical encoding of raw
// with the signature field stripped, whatever order the fields arrived in.
func (c *Codec) computeSignature(raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "signature")

	unsigned, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	canonical, err := Canonicalize(unsigned)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

func firstMissingField(env coopvest.Envelope) string {
	switch {
	case env.EnvelopeVersion == "":
		return "envelopeVersion"
	case env.QRID == "":
		return "qrId"
	case env.LoanID == "":
		return "loanId"
	case env.ApplicantID == "":
		return "applicantId"
	case env.ApplicantName == "":
		return "applicantName"
	case env.LoanAmount <= 0:
		return "loanAmount"
	case env.LoanTenureMonths <= 0:
		return "loanTenureMonths"
	case env.CreatedAt.IsZero():
		return "createdAt"
	case env.ExpiresAt.IsZero():
		return "expiresAt"
	case env.Signature == "":
		return "signature"
	}
	return ""
}

func newQRID(now time.Time) string {
	return fmt.Sprintf("QR_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
