package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/domain"
	"github.com/coopvest/coopvest/internal/envelope"
)

type memRepo struct {
	records map[string]domain.QRRecord
	scans   map[string][]domain.ScanEvent
}

func newMemRepo() *memRepo {
	return &memRepo{
		records: make(map[string]domain.QRRecord),
		scans:   make(map[string][]domain.ScanEvent),
	}
}

func (m *memRepo) Create(ctx context.Context, record domain.QRRecord) error {
	m.records[record.QRID] = record
	return nil
}

func (m *memRepo) Get(ctx context.Context, qrID string) (domain.QRRecord, error) {
	record, ok := m.records[qrID]
	if !ok {
		return domain.QRRecord{}, domain.NotFoundError{Resource: "qr record"}
	}
	return record, nil
}

func (m *memRepo) LatestByLoan(ctx context.Context, loanID string) (domain.QRRecord, error) {
	var latest domain.QRRecord
	found := false
	for _, record := range m.records {
		if record.LoanID != loanID || record.Status != domain.QRStatusActive {
			continue
		}
		if !found || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
			found = true
		}
	}
	if !found {
		return domain.QRRecord{}, domain.NotFoundError{Resource: "qr record"}
	}
	return latest, nil
}

func (m *memRepo) ListByApplicant(ctx context.Context, applicantID string, status domain.QRStatus) ([]domain.QRRecord, error) {
	var out []domain.QRRecord
	for _, record := range m.records {
		if record.ApplicantID != applicantID {
			continue
		}
		if status != "" && record.Status != status {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (m *memRepo) AppendScan(ctx context.Context, scan domain.ScanEvent) error {
	m.scans[scan.QRID] = append(m.scans[scan.QRID], scan)
	record := m.records[scan.QRID]
	record.ScanCount++
	m.records[scan.QRID] = record
	return nil
}

func (m *memRepo) Scans(ctx context.Context, qrID string) ([]domain.ScanEvent, error) {
	return m.scans[qrID], nil
}

func (m *memRepo) CountApprovedScanners(ctx context.Context, qrID string) (int, error) {
	seen := make(map[string]struct{})
	for _, scan := range m.scans[qrID] {
		if scan.Action == coopvest.ScanActionApproved {
			seen[scan.ScannerID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (m *memRepo) SetGuarantorsFound(ctx context.Context, qrID string, found int) error {
	record := m.records[qrID]
	record.GuarantorsFound = found
	m.records[qrID] = record
	return nil
}

func (m *memRepo) SetStatus(ctx context.Context, qrID string, status domain.QRStatus) error {
	record := m.records[qrID]
	record.Status = status
	m.records[qrID] = record
	return nil
}

type recordingBroadcaster struct {
	progress []coopvest.Progress
	actions  []coopvest.GuarantorAction
}

func (b *recordingBroadcaster) BroadcastProgress(ctx context.Context, loanID string, found, required int, guarantors []coopvest.Guarantor) error {
	b.progress = append(b.progress, coopvest.DeriveProgress(found, required))
	return nil
}

func (b *recordingBroadcaster) NotifyGuarantorAction(ctx context.Context, loanID string, action coopvest.GuarantorAction) error {
	b.actions = append(b.actions, action)
	return nil
}

type stubRenderer struct{}

func (stubRenderer) DataURL(payload []byte, size int) (string, error) {
	return "data:image/png;base64,stub", nil
}

var testDetails = envelope.LoanDetails{
	LoanID:           "loan-42",
	ApplicantID:      "applicant-1",
	ApplicantName:    "Adaeze Obi",
	ApplicantPhone:   "+2348012345678",
	LoanAmount:       450000,
	LoanTenureMonths: 12,
	InterestRate:     12.5,
	Purpose:          "Expanding my tailoring shop with two new machines",
}

func newFixture(window time.Duration) (*GuarantorUsecase, *memRepo, *recordingBroadcaster, *envelope.Codec) {
	codec := envelope.NewCodec("test-secret", window)
	repo := newMemRepo()
	events := &recordingBroadcaster{}
	uc := NewGuarantorUsecase(codec, repo, events, stubRenderer{}, 3)
	return uc, repo, events, codec
}

func generate(t *testing.T, uc *GuarantorUsecase) GenerateQRResult {
	t.Helper()
	result, err := uc.GenerateQR(context.Background(), testDetails, 0)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	return result
}

func TestGenerateQRPersistsRecord(t *testing.T) {
	uc, repo, _, codec := newFixture(0)

	result := generate(t, uc)

	record, ok := repo.records[result.Envelope.QRID]
	if !ok {
		t.Fatal("expected record to be persisted")
	}
	if record.Status != domain.QRStatusActive {
		t.Fatalf("expected active status, got %s", record.Status)
	}
	if record.GuarantorsRequired != 3 {
		t.Fatalf("expected 3 guarantors required, got %d", record.GuarantorsRequired)
	}
	if result.QRCode != "data:image/png;base64,stub" {
		t.Fatalf("unexpected qr code %q", result.QRCode)
	}

	// The rendered payload must verify against the same codec.
	if _, err := codec.Verify([]byte(result.Payload)); err != nil {
		t.Fatalf("generated payload failed verification: %v", err)
	}
}

func TestValidateScanApprovalAdvancesProgress(t *testing.T) {
	uc, repo, events, _ := newFixture(0)
	result := generate(t, uc)

	scan, err := uc.ValidateScan(context.Background(), ScanInput{
		Raw:         []byte(result.Payload),
		ScannerID:   "guarantor-1",
		ScannerName: "Bola",
		Action:      coopvest.ScanActionApproved,
		DeviceID:    "device-1",
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	want := coopvest.Progress{Found: 1, Required: 3, Percentage: 33, Remaining: 2}
	if scan.Progress != want {
		t.Fatalf("progress = %+v, want %+v", scan.Progress, want)
	}
	if repo.records[result.Envelope.QRID].GuarantorsFound != 1 {
		t.Fatal("expected persisted guarantor count to advance")
	}
	if len(events.progress) != 1 || events.progress[0] != want {
		t.Fatalf("expected 1 progress broadcast of %+v, got %v", want, events.progress)
	}
	if len(events.actions) != 1 || events.actions[0].Action != coopvest.ScanActionApproved {
		t.Fatalf("expected approval action broadcast, got %v", events.actions)
	}
	if events.actions[0].GuarantorName != "Bola" {
		t.Fatalf("unexpected guarantor name %q", events.actions[0].GuarantorName)
	}
}

func TestValidateScanDefaultsToViewed(t *testing.T) {
	uc, repo, _, _ := newFixture(0)
	result := generate(t, uc)

	scan, err := uc.ValidateScan(context.Background(), ScanInput{
		Raw:       []byte(result.Payload),
		ScannerID: "guarantor-1",
		DeviceID:  "device-1",
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if scan.Scan.Action != coopvest.ScanActionViewed {
		t.Fatalf("expected viewed, got %s", scan.Scan.Action)
	}
	if repo.records[result.Envelope.QRID].GuarantorsFound != 0 {
		t.Fatal("a view must not advance the guarantor count")
	}
}

func TestValidateScanExpiredEnvelope(t *testing.T) {
	uc, repo, events, _ := newFixture(time.Nanosecond)
	result := generate(t, uc)

	_, err := uc.ValidateScan(context.Background(), ScanInput{
		Raw:       []byte(result.Payload),
		ScannerID: "guarantor-1",
	})
	if !errors.Is(err, domain.ErrExpiredEnvelope) {
		t.Fatalf("expected expiry error, got %v", err)
	}
	if len(repo.scans[result.Envelope.QRID]) != 0 {
		t.Fatal("no scan must be recorded for an expired envelope")
	}
	if len(events.progress) != 0 || len(events.actions) != 0 {
		t.Fatal("no broadcast must happen for an expired envelope")
	}
}

func TestValidateScanTamperedEnvelope(t *testing.T) {
	uc, repo, _, _ := newFixture(0)
	result := generate(t, uc)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(result.Payload), &fields); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	fields["loanAmount"] = json.RawMessage(`9000000`)
	mutated, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	_, err = uc.ValidateScan(context.Background(), ScanInput{
		Raw:       mutated,
		ScannerID: "guarantor-1",
	})
	if !errors.Is(err, domain.ErrTamperedSignature) {
		t.Fatalf("expected tamper error, got %v", err)
	}
	if len(repo.scans[result.Envelope.QRID]) != 0 {
		t.Fatal("no scan must be recorded for a tampered envelope")
	}
}

func TestValidateScanUnknownRecord(t *testing.T) {
	uc, _, _, codec := newFixture(0)

	env, err := codec.Create(testDetails)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	raw, _ := json.Marshal(env)

	_, err = uc.ValidateScan(context.Background(), ScanInput{Raw: raw, ScannerID: "g1"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateScanReplayIsDuplicate(t *testing.T) {
	uc, repo, events, _ := newFixture(0)
	result := generate(t, uc)

	in := ScanInput{
		Raw:       []byte(result.Payload),
		ScannerID: "guarantor-1",
		Action:    coopvest.ScanActionApproved,
		DeviceID:  "device-1",
	}

	first, err := uc.ValidateScan(context.Background(), in)
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first scan must not be a duplicate")
	}

	second, err := uc.ValidateScan(context.Background(), in)
	if err != nil {
		t.Fatalf("replayed scan failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("replay must be flagged as duplicate")
	}
	if len(repo.scans[result.Envelope.QRID]) != 1 {
		t.Fatalf("expected 1 recorded scan, got %d", len(repo.scans[result.Envelope.QRID]))
	}
	if len(events.progress) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(events.progress))
	}
}

func TestValidateScanCountsDistinctScanners(t *testing.T) {
	uc, repo, _, _ := newFixture(0)
	result := generate(t, uc)
	ctx := context.Background()

	// The same guarantor approving from two devices still counts once.
	for _, device := range []string{"device-1", "device-2"} {
		_, err := uc.ValidateScan(ctx, ScanInput{
			Raw:       []byte(result.Payload),
			ScannerID: "guarantor-1",
			Action:    coopvest.ScanActionApproved,
			DeviceID:  device,
		})
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
	}
	if got := repo.records[result.Envelope.QRID].GuarantorsFound; got != 1 {
		t.Fatalf("expected 1 distinct guarantor, got %d", got)
	}

	scan, err := uc.ValidateScan(ctx, ScanInput{
		Raw:       []byte(result.Payload),
		ScannerID: "guarantor-2",
		Action:    coopvest.ScanActionApproved,
		DeviceID:  "device-3",
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if scan.Progress.Found != 2 {
		t.Fatalf("expected 2 guarantors found, got %d", scan.Progress.Found)
	}
}

func TestValidateScanInvalidatedEnvelope(t *testing.T) {
	uc, _, _, _ := newFixture(0)
	result := generate(t, uc)
	ctx := context.Background()

	if err := uc.Invalidate(ctx, result.Envelope.QRID, "applicant-1"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	_, err := uc.ValidateScan(ctx, ScanInput{
		Raw:       []byte(result.Payload),
		ScannerID: "guarantor-1",
	})
	if !errors.Is(err, domain.ErrEnvelopeInvalidated) {
		t.Fatalf("expected invalidated error, got %v", err)
	}
}

func TestInvalidateRequiresOwnership(t *testing.T) {
	uc, _, _, _ := newFixture(0)
	result := generate(t, uc)

	err := uc.Invalidate(context.Background(), result.Envelope.QRID, "someone-else")
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
}

func TestGetRequiresOwnership(t *testing.T) {
	uc, _, _, _ := newFixture(0)
	result := generate(t, uc)

	_, _, err := uc.Get(context.Background(), result.Envelope.QRID, "someone-else")
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
}

func TestGetProgressReducesScanTrail(t *testing.T) {
	uc, _, _, _ := newFixture(0)
	result := generate(t, uc)
	ctx := context.Background()

	// guarantor-1 views then approves; their latest action wins.
	for _, in := range []ScanInput{
		{Raw: []byte(result.Payload), ScannerID: "guarantor-1", ScannerName: "Bola", Action: coopvest.ScanActionViewed, DeviceID: "d1"},
		{Raw: []byte(result.Payload), ScannerID: "guarantor-1", ScannerName: "Bola", Action: coopvest.ScanActionApproved, DeviceID: "d2"},
		{Raw: []byte(result.Payload), ScannerID: "guarantor-2", ScannerName: "Chidi", Action: coopvest.ScanActionDeclined, DeviceID: "d3"},
	} {
		if _, err := uc.ValidateScan(ctx, in); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
	}

	progress, err := uc.GetProgress(ctx, "loan-42")
	if err != nil {
		t.Fatalf("get progress failed: %v", err)
	}
	if progress.Found != 1 || progress.Required != 3 {
		t.Fatalf("unexpected counters %d/%d", progress.Found, progress.Required)
	}
	if len(progress.Guarantors) != 2 {
		t.Fatalf("expected 2 guarantors, got %d", len(progress.Guarantors))
	}
	if progress.Guarantors[0].Name != "Bola" || progress.Guarantors[0].Status != "approved" {
		t.Fatalf("unexpected first guarantor %+v", progress.Guarantors[0])
	}
	if progress.Guarantors[1].Name != "Chidi" || progress.Guarantors[1].Status != "declined" {
		t.Fatalf("unexpected second guarantor %+v", progress.Guarantors[1])
	}
}

func TestStats(t *testing.T) {
	uc, _, _, _ := newFixture(0)
	stats := uc.Stats()
	if stats.GuarantorsRequired != 3 {
		t.Fatalf("expected 3 required, got %d", stats.GuarantorsRequired)
	}
	if stats.Codec.Algorithm != "HMAC-SHA256" {
		t.Fatalf("unexpected algorithm %q", stats.Codec.Algorithm)
	}
}
