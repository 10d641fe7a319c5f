package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/domain"
	"github.com/coopvest/coopvest/internal/envelope"
	"github.com/coopvest/coopvest/internal/present/rest/presenter"
	"github.com/coopvest/coopvest/internal/realtime"
	"github.com/coopvest/coopvest/internal/usecase"
)

// Validation bounds for loan details.
const (
	minLoanAmount = 1_000
	maxLoanAmount = 50_000_000
	maxTenure     = 60
	minPurposeLen = 10
	maxPurposeLen = 500
)

type Handler struct {
	config    domain.Config
	guarantor *usecase.GuarantorUsecase
	hub       *realtime.Hub
}

func NewHandler(
	config domain.Config,
	guarantor *usecase.GuarantorUsecase,
	hub *realtime.Hub,
) *Handler {
	return &Handler{
		config:    config,
		guarantor: guarantor,
		hub:       hub,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	api := e.Group("/api/v1", auth)
	api.POST("/loans/:loanId/qr", h.handleGenerateQR)
	api.POST("/loans/qr/scan", h.handleScan)
	api.GET("/loans/qr", h.handleListQR)
	api.GET("/loans/qr/stats", h.handleQRStats)
	api.GET("/loans/qr/:qrId", h.handleGetQR)
	api.DELETE("/loans/qr/:qrId", h.handleInvalidateQR)
	e.GET("/ws", h.handleRealtime)
	e.GET("/ws/stats", h.handleWSStats)
}

func requesterID(c echo.Context) string {
	id, _ := c.Request().Context().Value(domain.RequesterIDCtxKey).(string)
	return id
}

type generateQRRequest struct {
	ApplicantName    string  `json:"applicantName"`
	ApplicantPhone   string  `json:"applicantPhone"`
	LoanAmount       float64 `json:"loanAmount"`
	LoanCurrency     string  `json:"loanCurrency"`
	LoanTenureMonths int     `json:"loanTenureMonths"`
	InterestRate     float64 `json:"interestRate"`
	MonthlyRepayment float64 `json:"monthlyRepayment"`
	TotalRepayment   float64 `json:"totalRepayment"`
	Purpose          string  `json:"purpose"`
	Size             int     `json:"size"`
}

func (r generateQRRequest) validate() error {
	if len(r.ApplicantName) < 2 || len(r.ApplicantName) > 100 {
		return fmt.Errorf("applicant name must be 2-100 characters")
	}
	if r.ApplicantPhone == "" {
		return fmt.Errorf("applicant phone is required")
	}
	if r.LoanAmount < minLoanAmount || r.LoanAmount > maxLoanAmount {
		return fmt.Errorf("loan amount must be between %d and %d", minLoanAmount, maxLoanAmount)
	}
	if r.LoanTenureMonths < 1 || r.LoanTenureMonths > maxTenure {
		return fmt.Errorf("tenure must be between 1 and %d months", maxTenure)
	}
	if r.InterestRate < 0 || r.InterestRate > 100 {
		return fmt.Errorf("interest rate must be between 0 and 100")
	}
	if r.MonthlyRepayment < 0 || r.TotalRepayment < 0 {
		return fmt.Errorf("repayment amounts must not be negative")
	}
	if len(r.Purpose) < minPurposeLen || len(r.Purpose) > maxPurposeLen {
		return fmt.Errorf("purpose must be %d-%d characters", minPurposeLen, maxPurposeLen)
	}
	return nil
}

func (h *Handler) handleGenerateQR(c echo.Context) error {
	ctx := c.Request().Context()

	userID := requesterID(c)
	if userID == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	loanID := c.Param("loanId")
	if loanID == "" {
		return presenter.BadRequestMessage(c, "loan ID required")
	}

	var req generateQRRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if err := req.validate(); err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.guarantor.GenerateQR(ctx, envelope.LoanDetails{
		LoanID:           loanID,
		ApplicantID:      userID,
		ApplicantName:    req.ApplicantName,
		ApplicantPhone:   req.ApplicantPhone,
		LoanAmount:       req.LoanAmount,
		LoanCurrency:     req.LoanCurrency,
		LoanTenureMonths: req.LoanTenureMonths,
		InterestRate:     req.InterestRate,
		MonthlyRepayment: req.MonthlyRepayment,
		TotalRepayment:   req.TotalRepayment,
		Purpose:          req.Purpose,
	}, req.Size)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	return presenter.Created(c, echo.Map{
		"qr": echo.Map{
			"id":        result.Envelope.QRID,
			"loanId":    loanID,
			"expiresAt": result.Envelope.ExpiresAt,
			"qrCode":    result.QRCode,
			"data":      result.Envelope,
		},
		"progress": result.Record.Progress(),
	})
}

type scanRequest struct {
	Payload     json.RawMessage `json:"payload"`
	Action      string          `json:"action"`
	ScannerName string          `json:"scannerName"`
	DeviceID    string          `json:"deviceId"`
}

func (h *Handler) handleScan(c echo.Context) error {
	ctx := c.Request().Context()

	userID := requesterID(c)
	if userID == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if len(req.Payload) == 0 {
		return presenter.BadRequestMessage(c, "scanned payload required")
	}
	action := coopvest.ScanAction(req.Action)
	if req.Action != "" && !action.Valid() {
		return presenter.BadRequestMessage(c, "action must be one of viewed, approved, declined")
	}

	result, err := h.guarantor.ValidateScan(ctx, usecase.ScanInput{
		Raw:         req.Payload,
		ScannerID:   userID,
		ScannerName: req.ScannerName,
		Action:      action,
		DeviceID:    req.DeviceID,
		IPAddress:   c.RealIP(),
	})
	if err != nil {
		return h.presentScanError(c, err)
	}

	return presenter.OK(c, echo.Map{
		"scan": echo.Map{
			"scanId":    result.Scan.ScanID,
			"qrId":      result.Envelope.QRID,
			"loanId":    result.Envelope.LoanID,
			"action":    result.Scan.Action,
			"duplicate": result.Duplicate,
		},
		"loan": echo.Map{
			"applicantName":    result.Envelope.ApplicantName,
			"loanAmount":       result.Envelope.LoanAmount,
			"loanCurrency":     result.Envelope.LoanCurrency,
			"loanTenureMonths": result.Envelope.LoanTenureMonths,
			"purpose":          result.Envelope.Purpose,
		},
		"progress": result.Progress,
	})
}

// presentScanError maps each verification failure to its own user-facing
// reason. Expired and tampered must never collapse into one generic answer:
// the first means "ask for a fresh QR", the second is a security incident.
func (h *Handler) presentScanError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrExpiredEnvelope):
		return presenter.Gone(c, "this QR code has expired - ask the applicant to generate a fresh one")
	case errors.Is(err, domain.ErrTamperedSignature):
		return presenter.BadRequestMessage(c, "QR code signature is invalid - the code may have been tampered with")
	case errors.Is(err, domain.ErrUnsupportedVersion):
		return presenter.BadRequestMessage(c, "this QR code version is not supported")
	case errors.Is(err, domain.ErrMalformedEnvelope):
		return presenter.BadRequestMessage(c, "this is not a valid guarantor QR code")
	case errors.Is(err, domain.ErrEnvelopeInvalidated):
		return presenter.Gone(c, "this QR code has been invalidated by the applicant")
	case errors.Is(err, domain.ErrNotFound):
		return presenter.NotFound(c, "qr record not found")
	default:
		return presenter.InternalError(c, err)
	}
}

func (h *Handler) handleListQR(c echo.Context) error {
	ctx := c.Request().Context()

	userID := requesterID(c)
	if userID == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	var status domain.QRStatus
	switch s := c.QueryParam("status"); s {
	case "", "all":
	case string(domain.QRStatusActive), string(domain.QRStatusExpired), string(domain.QRStatusInvalidated):
		status = domain.QRStatus(s)
	default:
		return presenter.BadRequestMessage(c, "invalid status parameter")
	}

	records, err := h.guarantor.List(ctx, userID, status)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	now := time.Now()
	items := make([]echo.Map, 0, len(records))
	for _, record := range records {
		items = append(items, echo.Map{
			"record":    record,
			"progress":  record.Progress(),
			"isExpired": record.IsExpired(now),
		})
	}
	return presenter.OK(c, echo.Map{"qrCodes": items, "total": len(items)})
}

func (h *Handler) handleGetQR(c echo.Context) error {
	ctx := c.Request().Context()

	userID := requesterID(c)
	if userID == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	record, scans, err := h.guarantor.Get(ctx, c.Param("qrId"), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "qr record not found")
		}
		if errors.Is(err, domain.ErrNotOwner) {
			return presenter.Forbidden(c, "you do not own this QR code")
		}
		return presenter.InternalError(c, err)
	}

	return presenter.OK(c, echo.Map{
		"record":    record,
		"progress":  record.Progress(),
		"isExpired": record.IsExpired(time.Now()),
		"scans":     scans,
	})
}

func (h *Handler) handleInvalidateQR(c echo.Context) error {
	ctx := c.Request().Context()

	userID := requesterID(c)
	if userID == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	err := h.guarantor.Invalidate(ctx, c.Param("qrId"), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "qr record not found")
		}
		if errors.Is(err, domain.ErrNotOwner) {
			return presenter.Forbidden(c, "you do not own this QR code")
		}
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "invalidated"})
}

func (h *Handler) handleQRStats(c echo.Context) error {
	return presenter.OK(c, echo.Map{"stats": h.guarantor.Stats()})
}

func (h *Handler) handleWSStats(c echo.Context) error {
	return presenter.OK(c, echo.Map{"websocket": h.hub.Stats()})
}

func (h *Handler) handleRealtime(c echo.Context) error {
	return h.hub.Serve(c.Response(), c.Request())
}
