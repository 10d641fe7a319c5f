package models

import (
	"time"
)

type LoanQR struct {
	QRID               string    `json:"qrId" gorm:"primaryKey;type:text;column:qr_id"`
	LoanID             string    `json:"loanId" gorm:"type:text;index"`
	ApplicantID        string    `json:"applicantId" gorm:"type:text;index"`
	ApplicantName      string    `json:"applicantName" gorm:"type:text"`
	ApplicantPhone     string    `json:"applicantPhone" gorm:"type:text"`
	LoanAmount         float64   `json:"loanAmount"`
	LoanCurrency       string    `json:"loanCurrency" gorm:"type:text"`
	LoanTenureMonths   int       `json:"loanTenureMonths"`
	InterestRate       float64   `json:"interestRate"`
	MonthlyRepayment   float64   `json:"monthlyRepayment"`
	TotalRepayment     float64   `json:"totalRepayment"`
	Purpose            string    `json:"purpose" gorm:"type:text"`
	Envelope           string    `json:"-" gorm:"type:text"`
	Signature          string    `json:"-" gorm:"type:text"`
	Status             string    `json:"status" gorm:"type:text;not null;default:'active';index"`
	ScanCount          int       `json:"scanCount" gorm:"not null;default:0"`
	GuarantorsFound    int       `json:"guarantorsFound" gorm:"not null;default:0"`
	GuarantorsRequired int       `json:"guarantorsRequired" gorm:"not null;default:3"`
	CreatedAt          time.Time `json:"createdAt" gorm:"type:timestamp with time zone;not null"`
	ExpiresAt          time.Time `json:"expiresAt" gorm:"type:timestamp with time zone;not null;index"`
}

type ScanEvent struct {
	ScanID      string    `json:"scanId" gorm:"primaryKey;type:text"`
	QRID        string    `json:"qrId" gorm:"type:text;index;column:qr_id"`
	LoanQR      LoanQR    `json:"-" gorm:"foreignKey:QRID;references:QRID;constraint:OnDelete:CASCADE;"`
	ScannerID   string    `json:"scannerId" gorm:"type:text;index"`
	ScannerName string    `json:"scannerName" gorm:"type:text"`
	Action      string    `json:"action" gorm:"type:text;not null"`
	DeviceID    string    `json:"deviceId" gorm:"type:text"`
	IPAddress   string    `json:"ipAddress" gorm:"type:text"`
	ScannedAt   time.Time `json:"scannedAt" gorm:"type:timestamp with time zone;not null;index"`
}
