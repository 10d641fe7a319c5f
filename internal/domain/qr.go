package domain

import (
	"time"

	"github.com/coopvest/coopvest"
)

// QRStatus is the lifecycle state of a guarantor QR record. Records are never
// deleted; invalidation flips the status and keeps the row for audit.
type QRStatus string

const (
	QRStatusActive      QRStatus = "active"
	QRStatusExpired     QRStatus = "expired"
	QRStatusInvalidated QRStatus = "invalidated"
)

// QRRecord is the persisted counterpart of one issued envelope, owned by the
// loan it was generated for.
type QRRecord struct {
	QRID               string    `json:"qrId"`
	LoanID             string    `json:"loanId"`
	ApplicantID        string    `json:"applicantId"`
	ApplicantName      string    `json:"applicantName"`
	ApplicantPhone     string    `json:"applicantPhone"`
	LoanAmount         float64   `json:"loanAmount"`
	LoanCurrency       string    `json:"loanCurrency"`
	LoanTenureMonths   int       `json:"loanTenureMonths"`
	InterestRate       float64   `json:"interestRate"`
	MonthlyRepayment   float64   `json:"monthlyRepayment"`
	TotalRepayment     float64   `json:"totalRepayment"`
	Purpose            string    `json:"purpose"`
	Envelope           string    `json:"-"`
	Signature          string    `json:"-"`
	Status             QRStatus  `json:"status"`
	ScanCount          int       `json:"scanCount"`
	GuarantorsFound    int       `json:"guarantorsFound"`
	GuarantorsRequired int       `json:"guarantorsRequired"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

func (r QRRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func (r QRRecord) Progress() coopvest.Progress {
	return coopvest.DeriveProgress(r.GuarantorsFound, r.GuarantorsRequired)
}

// ScanEvent is one append-only record of a guarantor interaction with an
// envelope. Events reference the envelope by qrId, never embed it.
type ScanEvent struct {
	ScanID      string              `json:"scanId"`
	QRID        string              `json:"qrId"`
	ScannerID   string              `json:"scannerId"`
	ScannerName string              `json:"scannerName,omitempty"`
	Action      coopvest.ScanAction `json:"action"`
	DeviceID    string              `json:"deviceId,omitempty"`
	IPAddress   string              `json:"ipAddress,omitempty"`
	ScannedAt   time.Time           `json:"scannedAt"`
}

// LoanProgress is the raw progress state a snapshot is built from, answered
// by the persistence side on subscribe.
type LoanProgress struct {
	Found      int
	Required   int
	Guarantors []coopvest.Guarantor
}
