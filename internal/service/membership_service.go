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

type membershipRepository interface {
	Create(ctx context.Context, membership *models.Membership) error
	FindByID(ctx context.Context, id string) (*models.Membership, error)
	ListByMember(ctx context.Context, memberID string) ([]models.Membership, error)
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// OpenMembershipRequest describes a membership purchase.
type OpenMembershipRequest struct {
	PlanType models.MembershipPlan `json:"plan_type" validate:"required,oneof=MONTHLY QUARTERLY ANNUAL"`
}

// MembershipService creates memberships awaiting payment and serves
// membership reads. Activation and cancellation happen exclusively through
// payment settlement.
type MembershipService struct {
	repo      membershipRepository
	members   memberReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMembershipService constructs MembershipService.
func NewMembershipService(repo membershipRepository, members memberReader, validate *validator.Validate, logger *zap.Logger) *MembershipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{repo: repo, members: members, validator: validate, logger: logger}
}

// Open creates a membership in the pending-payment state.
func (s *MembershipService) Open(ctx context.Context, memberID string, req OpenMembershipRequest) (*models.Membership, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid membership payload")
	}
	member, err := s.members.FindByID(ctx, memberID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	if !member.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "member inactive")
	}

	membership := &models.Membership{
		MemberID: memberID,
		PlanType: req.PlanType,
		Status:   models.MembershipStatusPendingPayment,
	}
	if err := s.repo.Create(ctx, membership); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create membership")
	}
	s.logger.Info("membership opened",
		zap.String("membership_id", membership.ID),
		zap.String("member_id", memberID),
		zap.String("plan", string(req.PlanType)),
	)
	return membership, nil
}

// Get returns a membership by id.
func (s *MembershipService) Get(ctx context.Context, id string) (*models.Membership, error) {
	membership, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	return membership, nil
}

// ListByMember returns a member's memberships.
func (s *MembershipService) ListByMember(ctx context.Context, memberID string) ([]models.Membership, error) {
	memberships, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list memberships")
	}
	return memberships, nil
}

// ExpireLapsed marks overdue active memberships as expired and reports how
// many were touched. Triggered by the admin maintenance endpoint.
func (s *MembershipService) ExpireLapsed(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireLapsed(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire memberships")
	}
	if expired > 0 {
		s.logger.Info("memberships expired", zap.Int64("count", expired))
	}
	return expired, nil
}
