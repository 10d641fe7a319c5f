package usecase

import (
	"context"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/domain"
)

// LoanQRRepository persists qr records and their append-only scan events.
type LoanQRRepository interface {
	Create(ctx context.Context, record domain.QRRecord) error
	Get(ctx context.Context, qrID string) (domain.QRRecord, error)
	LatestByLoan(ctx context.Context, loanID string) (domain.QRRecord, error)
	ListByApplicant(ctx context.Context, applicantID string, status domain.QRStatus) ([]domain.QRRecord, error)
	// AppendScan stores the event and bumps the record's scan counter.
	AppendScan(ctx context.Context, scan domain.ScanEvent) error
	Scans(ctx context.Context, qrID string) ([]domain.ScanEvent, error)
	// CountApprovedScanners counts distinct scanners with an approved event.
	CountApprovedScanners(ctx context.Context, qrID string) (int, error)
	SetGuarantorsFound(ctx context.Context, qrID string, found int) error
	SetStatus(ctx context.Context, qrID string, status domain.QRStatus) error
}

// ProgressBroadcaster pushes loan events toward subscribed clients. In
// production this is the redis signal service; tests and single-node
// deployments use the realtime LocalSink.
type ProgressBroadcaster interface {
	BroadcastProgress(ctx context.Context, loanID string, found, required int, guarantors []coopvest.Guarantor) error
	NotifyGuarantorAction(ctx context.Context, loanID string, action coopvest.GuarantorAction) error
}

// ImageRenderer turns an envelope payload into a QR image.
type ImageRenderer interface {
	DataURL(payload []byte, size int) (string, error)
}
