package coopvest

import (
	"math"
	"time"
)

// EnvelopeVersion is the schema version stamped into every guarantor-request
// envelope. Verification rejects any other value.
const EnvelopeVersion = "1.0"

// Envelope is the signed, expiring guarantor-request payload. Its JSON
// encoding is what gets rendered into the QR image, so a guarantor holds the
// entire loan context without a server round-trip. The signature is an
// HMAC-SHA256 over a canonical encoding of every other field; changing any
// value invalidates it.
type Envelope struct {
	EnvelopeVersion  string    `json:"envelopeVersion"`
	QRID             string    `json:"qrId"`
	LoanID           string    `json:"loanId"`
	ApplicantID      string    `json:"applicantId"`
	ApplicantName    string    `json:"applicantName"`
	ApplicantPhone   string    `json:"applicantPhone"`
	LoanAmount       float64   `json:"loanAmount"`
	LoanCurrency     string    `json:"loanCurrency"`
	LoanTenureMonths int       `json:"loanTenureMonths"`
	InterestRate     float64   `json:"interestRate"`
	MonthlyRepayment float64   `json:"monthlyRepayment"`
	TotalRepayment   float64   `json:"totalRepayment"`
	Purpose          string    `json:"purpose"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Signature        string    `json:"signature,omitempty"`
}

// ScanAction is what a guarantor did with a scanned envelope.
type ScanAction string

const (
	ScanActionViewed   ScanAction = "viewed"
	ScanActionApproved ScanAction = "approved"
	ScanActionDeclined ScanAction = "declined"
)

func (a ScanAction) Valid() bool {
	switch a {
	case ScanActionViewed, ScanActionApproved, ScanActionDeclined:
		return true
	}
	return false
}

// Progress is the derived guarantor-progress view broadcast to subscribers.
type Progress struct {
	Found      int `json:"found"`
	Required   int `json:"required"`
	Percentage int `json:"percentage"`
	Remaining  int `json:"remaining"`
}

// DeriveProgress computes the broadcast view from the raw counters.
func DeriveProgress(found, required int) Progress {
	if required <= 0 {
		return Progress{Found: found}
	}
	return Progress{
		Found:      found,
		Required:   required,
		Percentage: int(math.Round(float64(found) / float64(required) * 100)),
		Remaining:  required - found,
	}
}

// Guarantor is one guarantor's latest state as shown in progress updates.
type Guarantor struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// GuarantorAction describes a single guarantor interaction, delivered as a
// discrete event distinct from the aggregate progress snapshot.
type GuarantorAction struct {
	ScanID        string     `json:"scanId"`
	Action        ScanAction `json:"action"`
	GuarantorName string     `json:"guarantorName,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}
