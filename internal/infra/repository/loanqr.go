package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/domain"
	"github.com/coopvest/coopvest/internal/infra/database/models"
)

// LoanQRRepository is the gorm-backed store for qr records and scan events.
type LoanQRRepository struct {
	db *gorm.DB
}

func NewLoanQRRepository(db *gorm.DB) *LoanQRRepository {
	return &LoanQRRepository{db: db}
}

func (r *LoanQRRepository) Create(ctx context.Context, record domain.QRRecord) error {
	model := fromDomain(record)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *LoanQRRepository) Get(ctx context.Context, qrID string) (domain.QRRecord, error) {
	var model models.LoanQR
	err := r.db.WithContext(ctx).
		Where("qr_id = ?", qrID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.QRRecord{}, domain.NotFoundError{Resource: "qr record"}
		}
		return domain.QRRecord{}, err
	}
	return toDomain(model), nil
}

func (r *LoanQRRepository) LatestByLoan(ctx context.Context, loanID string) (domain.QRRecord, error) {
	var model models.LoanQR
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND status = ?", loanID, string(domain.QRStatusActive)).
		Order("created_at DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.QRRecord{}, domain.NotFoundError{Resource: "qr record"}
		}
		return domain.QRRecord{}, err
	}
	return toDomain(model), nil
}

func (r *LoanQRRepository) ListByApplicant(ctx context.Context, applicantID string, status domain.QRStatus) ([]domain.QRRecord, error) {
	query := r.db.WithContext(ctx).Where("applicant_id = ?", applicantID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var rows []models.LoanQR
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]domain.QRRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toDomain(row))
	}
	return records, nil
}

// AppendScan stores the event and bumps the record's scan counter in one
// transaction.
func (r *LoanQRRepository) AppendScan(ctx context.Context, scan domain.ScanEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := models.ScanEvent{
			ScanID:      scan.ScanID,
			QRID:        scan.QRID,
			ScannerID:   scan.ScannerID,
			ScannerName: scan.ScannerName,
			Action:      string(scan.Action),
			DeviceID:    scan.DeviceID,
			IPAddress:   scan.IPAddress,
			ScannedAt:   scan.ScannedAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&models.LoanQR{}).
			Where("qr_id = ?", scan.QRID).
			UpdateColumn("scan_count", gorm.Expr("scan_count + 1")).Error
	})
}

func (r *LoanQRRepository) Scans(ctx context.Context, qrID string) ([]domain.ScanEvent, error) {
	var rows []models.ScanEvent
	err := r.db.WithContext(ctx).
		Where("qr_id = ?", qrID).
		Order("scanned_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	scans := make([]domain.ScanEvent, 0, len(rows))
	for _, row := range rows {
		scans = append(scans, domain.ScanEvent{
			ScanID:      row.ScanID,
			QRID:        row.QRID,
			ScannerID:   row.ScannerID,
			ScannerName: row.ScannerName,
			Action:      coopvest.ScanAction(row.Action),
			DeviceID:    row.DeviceID,
			IPAddress:   row.IPAddress,
			ScannedAt:   row.ScannedAt,
		})
	}
	return scans, nil
}

func (r *LoanQRRepository) CountApprovedScanners(ctx context.Context, qrID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ScanEvent{}).
		Where("qr_id = ? AND action = ?", qrID, string(coopvest.ScanActionApproved)).
		Distinct("scanner_id").
		Count(&count).Error
	return int(count), err
}

func (r *LoanQRRepository) SetGuarantorsFound(ctx context.Context, qrID string, found int) error {
	return r.db.WithContext(ctx).
		Model(&models.LoanQR{}).
		Where("qr_id = ?", qrID).
		UpdateColumn("guarantors_found", found).Error
}

func (r *LoanQRRepository) SetStatus(ctx context.Context, qrID string, status domain.QRStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.LoanQR{}).
		Where("qr_id = ?", qrID).
		UpdateColumn("status", string(status)).Error
}

func fromDomain(record domain.QRRecord) models.LoanQR {
	return models.LoanQR{
		QRID:               record.QRID,
		LoanID:             record.LoanID,
		ApplicantID:        record.ApplicantID,
		ApplicantName:      record.ApplicantName,
		ApplicantPhone:     record.ApplicantPhone,
		LoanAmount:         record.LoanAmount,
		LoanCurrency:       record.LoanCurrency,
		LoanTenureMonths:   record.LoanTenureMonths,
		InterestRate:       record.InterestRate,
		MonthlyRepayment:   record.MonthlyRepayment,
		TotalRepayment:     record.TotalRepayment,
		Purpose:            record.Purpose,
		Envelope:           record.Envelope,
		Signature:          record.Signature,
		Status:             string(record.Status),
		ScanCount:          record.ScanCount,
		GuarantorsFound:    record.GuarantorsFound,
		GuarantorsRequired: record.GuarantorsRequired,
		CreatedAt:          record.CreatedAt,
		ExpiresAt:          record.ExpiresAt,
	}
}

func toDomain(model models.LoanQR) domain.QRRecord {
	return domain.QRRecord{
		QRID:               model.QRID,
		LoanID:             model.LoanID,
		ApplicantID:        model.ApplicantID,
		ApplicantName:      model.ApplicantName,
		ApplicantPhone:     model.ApplicantPhone,
		LoanAmount:         model.LoanAmount,
		LoanCurrency:       model.LoanCurrency,
		LoanTenureMonths:   model.LoanTenureMonths,
		InterestRate:       model.InterestRate,
		MonthlyRepayment:   model.MonthlyRepayment,
		TotalRepayment:     model.TotalRepayment,
		Purpose:            model.Purpose,
		Envelope:           model.Envelope,
		Signature:          model.Signature,
		Status:             domain.QRStatus(model.Status),
		ScanCount:          model.ScanCount,
		GuarantorsFound:    model.GuarantorsFound,
		GuarantorsRequired: model.GuarantorsRequired,
		CreatedAt:          model.CreatedAt,
		ExpiresAt:          model.ExpiresAt,
	}
}
