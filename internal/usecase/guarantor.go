package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/domain"
	"github.com/coopvest/coopvest/internal/envelope"
)

var tracer = otel.Tracer("guarantor")

// replayWindow absorbs duplicate submissions of the same scan (double taps,
// client retries) without recording them twice.
const replayWindow = 5 * time.Minute

// GuarantorUsecase orchestrates the guarantor QR workflow: envelope
// generation, scan validation, progress derivation and event fan-out.
type GuarantorUsecase struct {
	codec    *envelope.Codec
	repo     LoanQRRepository
	events   ProgressBroadcaster
	renderer ImageRenderer
	replay   *gocache.Cache
	required int
}

func NewGuarantorUsecase(
	codec *envelope.Codec,
	repo LoanQRRepository,
	events ProgressBroadcaster,
	renderer ImageRenderer,
	guarantorsRequired int,
) *GuarantorUsecase {
	if guarantorsRequired <= 0 {
		guarantorsRequired = 3
	}
	return &GuarantorUsecase{
		codec:    codec,
		repo:     repo,
		events:   events,
		renderer: renderer,
		replay:   gocache.New(replayWindow, 2*replayWindow),
		required: guarantorsRequired,
	}
}

// GenerateQRResult carries everything the generate endpoint returns.
type GenerateQRResult struct {
	Envelope coopvest.Envelope
	Payload  string // JSON string encoded into the image
	QRCode   string // base64 PNG data URL
	Record   domain.QRRecord
}

// GenerateQR creates a signed envelope for the applicant's loan, renders the
// QR image and persists the record.
func (u *GuarantorUsecase) GenerateQR(ctx context.Context, details envelope.LoanDetails, size int) (GenerateQRResult, error) {
	ctx, span := tracer.Start(ctx, "Guarantor.Usecase.GenerateQR")
	defer span.End()

	env, err := u.codec.Create(details)
	if err != nil {
		span.RecordError(err)
		return GenerateQRResult{}, errors.Wrap(err, "creating envelope")
	}

	payload, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return GenerateQRResult{}, errors.Wrap(err, "encoding envelope")
	}

	dataURL, err := u.renderer.DataURL(payload, size)
	if err != nil {
		span.RecordError(err)
		return GenerateQRResult{}, errors.Wrap(err, "rendering qr image")
	}

	record := domain.QRRecord{
		QRID:               env.QRID,
		LoanID:             env.LoanID,
		ApplicantID:        env.ApplicantID,
		ApplicantName:      env.ApplicantName,
		ApplicantPhone:     env.ApplicantPhone,
		LoanAmount:         env.LoanAmount,
		LoanCurrency:       env.LoanCurrency,
		LoanTenureMonths:   env.LoanTenureMonths,
		InterestRate:       env.InterestRate,
		MonthlyRepayment:   env.MonthlyRepayment,
		TotalRepayment:     env.TotalRepayment,
		Purpose:            env.Purpose,
		Envelope:           string(payload),
		Signature:          env.Signature,
		Status:             domain.QRStatusActive,
		GuarantorsRequired: u.required,
		CreatedAt:          env.CreatedAt,
		ExpiresAt:          env.ExpiresAt,
	}
	if err := u.repo.Create(ctx, record); err != nil {
		span.RecordError(err)
		return GenerateQRResult{}, errors.Wrap(err, "persisting qr record")
	}

	return GenerateQRResult{
		Envelope: env,
		Payload:  string(payload),
		QRCode:   dataURL,
		Record:   record,
	}, nil
}

// ScanInput is one guarantor's submission of a scanned envelope.
type ScanInput struct {
	Raw         []byte
	ScannerID   string
	ScannerName string
	Action      coopvest.ScanAction
	DeviceID    string
	IPAddress   string
}

// ScanResult is what the scan endpoint answers with.
type ScanResult struct {
	Envelope  coopvest.Envelope
	Record    domain.QRRecord
	Scan      domain.ScanEvent
	Progress  coopvest.Progress
	Duplicate bool
}

// ValidateScan verifies the scanned payload, records the event and, for
// approvals, recomputes the distinct-scanner guarantor count. Verification
// failures surface as typed *domain.VerificationError values; no progress is
// recorded for them.
func (u *GuarantorUsecase) ValidateScan(ctx context.Context, in ScanInput) (ScanResult, error) {
	ctx, span := tracer.Start(ctx, "Guarantor.Usecase.ValidateScan")
	defer span.End()

	env, err := u.codec.Verify(in.Raw)
	if err != nil {
		span.RecordError(err)
		return ScanResult{}, err
	}

	record, err := u.repo.Get(ctx, env.QRID)
	if err != nil {
		span.RecordError(err)
		return ScanResult{}, err
	}
	if record.Status == domain.QRStatusInvalidated {
		return ScanResult{}, domain.ErrEnvelopeInvalidated
	}

	action := in.Action
	if action == "" {
		action = coopvest.ScanActionViewed
	}

	if _, seen := u.replay.Get(scanKey(env.QRID, in.ScannerID, in.DeviceID)); seen {
		return ScanResult{
			Envelope:  env,
			Record:    record,
			Progress:  record.Progress(),
			Duplicate: true,
		}, nil
	}
	u.replay.SetDefault(scanKey(env.QRID, in.ScannerID, in.DeviceID), struct{}{})

	scan := domain.ScanEvent{
		ScanID:      newScanID(),
		QRID:        env.QRID,
		ScannerID:   in.ScannerID,
		ScannerName: in.ScannerName,
		Action:      action,
		DeviceID:    in.DeviceID,
		IPAddress:   in.IPAddress,
		ScannedAt:   time.Now().UTC(),
	}
	if err := u.repo.AppendScan(ctx, scan); err != nil {
		span.RecordError(err)
		return ScanResult{}, errors.Wrap(err, "recording scan")
	}
	record.ScanCount++

	found := record.GuarantorsFound
	if action == coopvest.ScanActionApproved {
		found, err = u.repo.CountApprovedScanners(ctx, env.QRID)
		if err != nil {
			span.RecordError(err)
			return ScanResult{}, errors.Wrap(err, "counting guarantors")
		}
		// The aggregate never exceeds what the loan asked for.
		if found > record.GuarantorsRequired {
			found = record.GuarantorsRequired
		}
		if err := u.repo.SetGuarantorsFound(ctx, env.QRID, found); err != nil {
			span.RecordError(err)
			return ScanResult{}, errors.Wrap(err, "updating guarantor count")
		}
		record.GuarantorsFound = found
	}

	u.broadcast(ctx, env.LoanID, record, scan)

	return ScanResult{
		Envelope: env,
		Record:   record,
		Scan:     scan,
		Progress: coopvest.DeriveProgress(found, record.GuarantorsRequired),
	}, nil
}

// broadcast is fire-and-forget: a failed publish is logged, never escalated
// into the scan response.
func (u *GuarantorUsecase) broadcast(ctx context.Context, loanID string, record domain.QRRecord, scan domain.ScanEvent) {
	if u.events == nil {
		return
	}

	guarantors, err := u.guarantorList(ctx, record.QRID)
	if err != nil {
		slog.WarnContext(
			ctx, "could not build guarantor list",
			slog.String("qrId", record.QRID),
			slog.String("error", err.Error()),
			slog.String("module", "guarantor"),
		)
	}

	if err := u.events.BroadcastProgress(ctx, loanID, record.GuarantorsFound, record.GuarantorsRequired, guarantors); err != nil {
		slog.ErrorContext(
			ctx, "progress broadcast failed",
			slog.String("loanId", loanID),
			slog.String("error", err.Error()),
			slog.String("module", "guarantor"),
		)
	}

	notify := coopvest.GuarantorAction{
		ScanID:        scan.ScanID,
		Action:        scan.Action,
		GuarantorName: scan.ScannerName,
		Timestamp:     scan.ScannedAt,
	}
	if err := u.events.NotifyGuarantorAction(ctx, loanID, notify); err != nil {
		slog.ErrorContext(
			ctx, "guarantor action notify failed",
			slog.String("loanId", loanID),
			slog.String("error", err.Error()),
			slog.String("module", "guarantor"),
		)
	}
}

// GetProgress answers the snapshot sent on subscribe; it implements the
// realtime hub's ProgressSource.
func (u *GuarantorUsecase) GetProgress(ctx context.Context, loanID string) (domain.LoanProgress, error) {
	record, err := u.repo.LatestByLoan(ctx, loanID)
	if err != nil {
		return domain.LoanProgress{}, err
	}
	guarantors, err := u.guarantorList(ctx, record.QRID)
	if err != nil {
		return domain.LoanProgress{}, err
	}
	return domain.LoanProgress{
		Found:      record.GuarantorsFound,
		Required:   record.GuarantorsRequired,
		Guarantors: guarantors,
	}, nil
}

// guarantorList reduces the scan trail to each scanner's latest action.
func (u *GuarantorUsecase) guarantorList(ctx context.Context, qrID string) ([]coopvest.Guarantor, error) {
	scans, err := u.repo.Scans(ctx, qrID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]coopvest.Guarantor)
	order := make([]string, 0, len(scans))
	for _, scan := range scans {
		if _, ok := latest[scan.ScannerID]; !ok {
			order = append(order, scan.ScannerID)
		}
		latest[scan.ScannerID] = coopvest.Guarantor{
			Name:      scan.ScannerName,
			Status:    string(scan.Action),
			Timestamp: scan.ScannedAt,
		}
	}

	out := make([]coopvest.Guarantor, 0, len(order))
	for _, scannerID := range order {
		out = append(out, latest[scannerID])
	}
	return out, nil
}

// List returns the applicant's qr records, optionally filtered by status.
func (u *GuarantorUsecase) List(ctx context.Context, applicantID string, status domain.QRStatus) ([]domain.QRRecord, error) {
	return u.repo.ListByApplicant(ctx, applicantID, status)
}

// Get returns one record with its scan trail, applicant-only.
func (u *GuarantorUsecase) Get(ctx context.Context, qrID, applicantID string) (domain.QRRecord, []domain.ScanEvent, error) {
	record, err := u.repo.Get(ctx, qrID)
	if err != nil {
		return domain.QRRecord{}, nil, err
	}
	if record.ApplicantID != applicantID {
		return domain.QRRecord{}, nil, domain.ErrNotOwner
	}
	scans, err := u.repo.Scans(ctx, qrID)
	if err != nil {
		return domain.QRRecord{}, nil, err
	}
	return record, scans, nil
}

// Invalidate flips the record to invalidated. The row stays for audit.
func (u *GuarantorUsecase) Invalidate(ctx context.Context, qrID, applicantID string) error {
	record, err := u.repo.Get(ctx, qrID)
	if err != nil {
		return err
	}
	if record.ApplicantID != applicantID {
		return domain.ErrNotOwner
	}
	return u.repo.SetStatus(ctx, qrID, domain.QRStatusInvalidated)
}

// Stats reports workflow configuration for the stats endpoint.
type Stats struct {
	Codec              envelope.Stats `json:"codec"`
	GuarantorsRequired int            `json:"guarantorsRequired"`
}

func (u *GuarantorUsecase) Stats() Stats {
	return Stats{
		Codec:              u.codec.Stats(),
		GuarantorsRequired: u.required,
	}
}

// scanKey fingerprints a submission for the replay window.
func scanKey(qrID, scannerID, deviceID string) string {
	h := xxh3.HashString(qrID + "\x00" + scannerID + "\x00" + deviceID)
	return strconv.FormatUint(h, 16)
}

func newScanID() string {
	return uuid.NewString()
}
