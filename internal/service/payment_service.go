package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment, registrations []models.PaymentRegistration) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	ListRegistrations(ctx context.Context, paymentID string) ([]models.PaymentRegistration, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentListRow, int, error)
	Approve(ctx context.Context, paymentID string, expectedRegistrationIDs []string, approvedBy string) (*models.Payment, error)
	Reject(ctx context.Context, paymentID, reason string) (*models.Payment, error)
	Delete(ctx context.Context, paymentID string) error
	Cancel(ctx context.Context, paymentID string) (*models.Payment, error)
}

type settlementNotifier interface {
	PaymentSettled(payment *models.Payment)
	PaymentRejected(payment *models.Payment)
}

type settlementMetrics interface {
	RecordSettlement(outcome string)
	ObserveDBQuery(label string, duration time.Duration)
}

// OpenPaymentRequest describes the payload for opening a ledger entry.
type OpenPaymentRequest struct {
	Amount        float64             `json:"amount" validate:"required,gt=0"`
	Method        string              `json:"method" validate:"required,oneof=cash card transfer"`
	PaymentType   models.PaymentType  `json:"payment_type" validate:"required,oneof=CLASS MEMBERSHIP MEMBERSHIP_UPGRADE MEMBERSHIP_AND_CLASS"`
	Registrations []RegistrationInput `json:"registrations" validate:"required,min=1,dive"`
}

// RegistrationInput names one dependent entity the payment covers.
type RegistrationInput struct {
	ID   string                  `json:"id" validate:"required"`
	Kind models.RegistrationKind `json:"kind" validate:"required,oneof=ENROLLMENT MEMBERSHIP"`
}

// ApprovePaymentRequest carries the registration snapshot staff approved.
type ApprovePaymentRequest struct {
	RegistrationIDs []string `json:"registration_ids" validate:"required,min=1"`
}

// RejectPaymentRequest carries the mandatory rejection reason.
type RejectPaymentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// UpdatePaymentStatusRequest names the target status for the
// administrative override.
type UpdatePaymentStatusRequest struct {
	Status models.PaymentStatus `json:"status" validate:"required,oneof=CANCELLED"`
}

// PaymentService is the ledger and the approval coordinator: it opens
// pending payments and drives every status transition together with the
// dependent entities the payment unlocks.
type PaymentService struct {
	repo      paymentRepository
	members   memberReader
	notifier  settlementNotifier
	metrics   settlementMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(repo paymentRepository, members memberReader, notifier settlementNotifier, metrics settlementMetrics, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{repo: repo, members: members, notifier: notifier, metrics: metrics, validator: validate, logger: logger}
}

// Open creates a pending payment covering the given registrations.
func (s *PaymentService) Open(ctx context.Context, memberID string, req OpenPaymentRequest) (*models.PaymentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	seen := make(map[string]struct{}, len(req.Registrations))
	for _, reg := range req.Registrations {
		if _, dup := seen[reg.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate registration id in payload")
		}
		seen[reg.ID] = struct{}{}
	}

	member, err := s.members.FindByID(ctx, memberID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}

	payment := &models.Payment{
		MemberID:    memberID,
		Amount:      req.Amount,
		Method:      req.Method,
		PaymentType: req.PaymentType,
	}
	registrations := make([]models.PaymentRegistration, len(req.Registrations))
	for i, reg := range req.Registrations {
		registrations[i] = models.PaymentRegistration{RegistrationID: reg.ID, Kind: reg.Kind}
	}

	if err := s.repo.Create(ctx, payment, registrations); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open payment")
	}
	s.logger.Info("payment opened",
		zap.String("payment_id", payment.ID),
		zap.String("member_id", memberID),
		zap.Float64("amount", payment.Amount),
		zap.Int("registrations", len(registrations)),
	)

	return &models.PaymentDetail{Payment: *payment, MemberName: member.FullName, Registrations: registrations}, nil
}

// List returns payments for staff with pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentListRow, *models.Pagination, error) {
	start := time.Now()
	payments, total, err := s.repo.List(ctx, filter)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("payments_list", time.Since(start))
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return payments, pagination, nil
}

// Get returns a payment with its registration set.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentDetail, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	regs, err := s.repo.ListRegistrations(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment registrations")
	}
	detail := &models.PaymentDetail{Payment: *payment, Registrations: regs}
	if member, err := s.members.FindByID(ctx, payment.MemberID); err == nil {
		detail.MemberName = member.FullName
	}
	return detail, nil
}

// Approve settles a pending payment. The caller supplies the registration
// ids it displayed to the approving staff member; a mismatch against the
// stored set aborts with a stale-approval error so staff never settle a
// snapshot they did not see.
func (s *PaymentService) Approve(ctx context.Context, staffID, paymentID string, req ApprovePaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}

	start := time.Now()
	payment, err := s.repo.Approve(ctx, paymentID, req.RegistrationIDs, staffID)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("payments_approve", time.Since(start))
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			if appErr.Code == appErrors.ErrInconsistentDependents.Code {
				s.logger.Error("payment dependents inconsistent", zap.String("payment_id", paymentID), zap.Error(err))
			}
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve payment")
	}
	s.logger.Info("payment approved", zap.String("payment_id", paymentID), zap.String("approved_by", staffID))
	if s.metrics != nil {
		s.metrics.RecordSettlement("approved")
	}
	if s.notifier != nil {
		s.notifier.PaymentSettled(payment)
	}
	return payment, nil
}

// Reject reverts a pending payment, cancelling its dependents and
// releasing the class seats they held.
func (s *PaymentService) Reject(ctx context.Context, staffID, paymentID string, req RejectPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection requires a reason")
	}

	payment, err := s.repo.Reject(ctx, paymentID, req.Reason)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject payment")
	}
	s.logger.Info("payment rejected",
		zap.String("payment_id", paymentID),
		zap.String("rejected_by", staffID),
		zap.String("reason", req.Reason),
	)
	if s.metrics != nil {
		s.metrics.RecordSettlement("rejected")
	}
	if s.notifier != nil {
		s.notifier.PaymentRejected(payment)
	}
	return payment, nil
}

// Delete permanently removes a rejected payment.
func (s *PaymentService) Delete(ctx context.Context, paymentID string) error {
	if err := s.repo.Delete(ctx, paymentID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}
	s.logger.Info("payment deleted", zap.String("payment_id", paymentID))
	return nil
}

// UpdateStatus performs the administrative completed→cancelled override.
// Dependents are left as they are: the correction adjusts the books, it
// does not claw back a seat or membership already granted.
func (s *PaymentService) UpdateStatus(ctx context.Context, paymentID string, req UpdatePaymentStatusRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	payment, err := s.repo.Cancel(ctx, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel payment")
	}
	s.logger.Warn("completed payment cancelled without touching dependents", zap.String("payment_id", paymentID))
	return payment, nil
}
