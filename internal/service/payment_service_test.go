package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gymflow-api/internal/models"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
)

type mockPaymentRepo struct {
	payments      map[string]models.Payment
	registrations map[string][]models.PaymentRegistration
	createErr     error
	approveErr    error
	rejectErr     error
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment, regs []models.PaymentRegistration) error {
	if m.createErr != nil {
		return m.createErr
	}
	if payment.ID == "" {
		payment.ID = "pay-new"
	}
	payment.Status = models.PaymentStatusPending
	if m.payments == nil {
		m.payments = make(map[string]models.Payment)
		m.registrations = make(map[string][]models.PaymentRegistration)
	}
	m.payments[payment.ID] = *payment
	m.registrations[payment.ID] = regs
	return nil
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	if p, ok := m.payments[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) ListRegistrations(ctx context.Context, paymentID string) ([]models.PaymentRegistration, error) {
	return m.registrations[paymentID], nil
}

func (m *mockPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentListRow, int, error) {
	var rows []models.PaymentListRow
	for _, p := range m.payments {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		rows = append(rows, models.PaymentListRow{Payment: p})
	}
	return rows, len(rows), nil
}

func (m *mockPaymentRepo) Approve(ctx context.Context, paymentID string, expected []string, approvedBy string) (*models.Payment, error) {
	if m.approveErr != nil {
		return nil, m.approveErr
	}
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if p.Status != models.PaymentStatusPending {
		return nil, appErrors.ErrTerminalState
	}
	p.Status = models.PaymentStatusCompleted
	p.ApprovedBy = &approvedBy
	m.payments[paymentID] = p
	return &p, nil
}

func (m *mockPaymentRepo) Reject(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	if m.rejectErr != nil {
		return nil, m.rejectErr
	}
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	p.Status = models.PaymentStatusRejected
	p.RejectionReason = &reason
	m.payments[paymentID] = p
	return &p, nil
}

func (m *mockPaymentRepo) Delete(ctx context.Context, paymentID string) error {
	p, ok := m.payments[paymentID]
	if !ok {
		return sql.ErrNoRows
	}
	if p.Status != models.PaymentStatusRejected {
		return appErrors.ErrInvalidDeleteState
	}
	delete(m.payments, paymentID)
	return nil
}

func (m *mockPaymentRepo) Cancel(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if p.Status != models.PaymentStatusCompleted {
		return nil, appErrors.ErrTerminalState
	}
	p.Status = models.PaymentStatusCancelled
	m.payments[paymentID] = p
	return &p, nil
}

type mockNotifier struct {
	settled  []string
	rejected []string
}

func (m *mockNotifier) PaymentSettled(payment *models.Payment) {
	m.settled = append(m.settled, payment.ID)
}

func (m *mockNotifier) PaymentRejected(payment *models.Payment) {
	m.rejected = append(m.rejected, payment.ID)
}

type mockSettlementMetrics struct {
	outcomes []string
	queries  []string
}

func (m *mockSettlementMetrics) RecordSettlement(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockSettlementMetrics) ObserveDBQuery(label string, duration time.Duration) {
	m.queries = append(m.queries, label)
}

func validOpenRequest() OpenPaymentRequest {
	return OpenPaymentRequest{
		Amount:      250000,
		Method:      "cash",
		PaymentType: models.PaymentTypeClass,
		Registrations: []RegistrationInput{
			{ID: "enr-1", Kind: models.RegistrationKindEnrollment},
		},
	}
}

func newPaymentService(repo *mockPaymentRepo, notifier *mockNotifier, metrics *mockSettlementMetrics) *PaymentService {
	members := &mockMemberReader{members: map[string]models.Member{"member-1": activeMember("member-1")}}
	var n settlementNotifier
	if notifier != nil {
		n = notifier
	}
	var m settlementMetrics
	if metrics != nil {
		m = metrics
	}
	return NewPaymentService(repo, members, n, m, nil, nil)
}

func TestPaymentServiceOpen(t *testing.T) {
	repo := &mockPaymentRepo{}
	svc := newPaymentService(repo, nil, nil)

	detail, err := svc.Open(context.Background(), "member-1", validOpenRequest())
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, detail.Status)
	require.Len(t, detail.Registrations, 1)
	require.Equal(t, "Member member-1", detail.MemberName)
}

func TestPaymentServiceOpenDuplicateRegistrationInPayload(t *testing.T) {
	svc := newPaymentService(&mockPaymentRepo{}, nil, nil)

	req := validOpenRequest()
	req.Registrations = append(req.Registrations, RegistrationInput{ID: "enr-1", Kind: models.RegistrationKindEnrollment})
	_, err := svc.Open(context.Background(), "member-1", req)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPaymentServiceOpenInvalidMethod(t *testing.T) {
	svc := newPaymentService(&mockPaymentRepo{}, nil, nil)

	req := validOpenRequest()
	req.Method = "check"
	_, err := svc.Open(context.Background(), "member-1", req)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPaymentServiceOpenRegistrationAlreadyCovered(t *testing.T) {
	repo := &mockPaymentRepo{createErr: appErrors.ErrDuplicateReservation}
	svc := newPaymentService(repo, nil, nil)

	_, err := svc.Open(context.Background(), "member-1", validOpenRequest())
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrDuplicateReservation.Code, appErr.Code)
}

func TestPaymentServiceApprove(t *testing.T) {
	repo := &mockPaymentRepo{
		payments: map[string]models.Payment{
			"pay-1": {ID: "pay-1", MemberID: "member-1", Status: models.PaymentStatusPending},
		},
		registrations: map[string][]models.PaymentRegistration{},
	}
	notifier := &mockNotifier{}
	metrics := &mockSettlementMetrics{}
	svc := newPaymentService(repo, notifier, metrics)

	payment, err := svc.Approve(context.Background(), "staff-1", "pay-1", ApprovePaymentRequest{RegistrationIDs: []string{"enr-1"}})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.Equal(t, []string{"pay-1"}, notifier.settled)
	require.Equal(t, []string{"approved"}, metrics.outcomes)
	require.Equal(t, []string{"payments_approve"}, metrics.queries)
}

func TestPaymentServiceListObservesQueryTiming(t *testing.T) {
	repo := &mockPaymentRepo{
		payments: map[string]models.Payment{
			"pay-1": {ID: "pay-1", MemberID: "member-1", Status: models.PaymentStatusPending},
		},
	}
	metrics := &mockSettlementMetrics{}
	svc := newPaymentService(repo, &mockNotifier{}, metrics)

	rows, pagination, err := svc.List(context.Background(), models.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, pagination.TotalCount)
	require.Equal(t, []string{"payments_list"}, metrics.queries)
}

func TestPaymentServiceApproveStaleSnapshot(t *testing.T) {
	repo := &mockPaymentRepo{approveErr: appErrors.ErrStaleApproval}
	notifier := &mockNotifier{}
	svc := newPaymentService(repo, notifier, nil)

	_, err := svc.Approve(context.Background(), "staff-1", "pay-1", ApprovePaymentRequest{RegistrationIDs: []string{"enr-1"}})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrStaleApproval.Code, appErr.Code)
	require.Empty(t, notifier.settled)
}

func TestPaymentServiceApproveTerminalPayment(t *testing.T) {
	repo := &mockPaymentRepo{
		payments: map[string]models.Payment{
			"pay-1": {ID: "pay-1", Status: models.PaymentStatusRejected},
		},
	}
	svc := newPaymentService(repo, nil, nil)

	_, err := svc.Approve(context.Background(), "staff-1", "pay-1", ApprovePaymentRequest{RegistrationIDs: []string{"enr-1"}})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrTerminalState.Code, appErr.Code)
}

func TestPaymentServiceRejectRequiresReason(t *testing.T) {
	svc := newPaymentService(&mockPaymentRepo{}, nil, nil)

	_, err := svc.Reject(context.Background(), "staff-1", "pay-1", RejectPaymentRequest{})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPaymentServiceReject(t *testing.T) {
	repo := &mockPaymentRepo{
		payments: map[string]models.Payment{
			"pay-1": {ID: "pay-1", Status: models.PaymentStatusPending},
		},
	}
	notifier := &mockNotifier{}
	metrics := &mockSettlementMetrics{}
	svc := newPaymentService(repo, notifier, metrics)

	payment, err := svc.Reject(context.Background(), "staff-1", "pay-1", RejectPaymentRequest{Reason: "transfer never arrived"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusRejected, payment.Status)
	require.Equal(t, []string{"pay-1"}, notifier.rejected)
	require.Equal(t, []string{"rejected"}, metrics.outcomes)
}

func TestPaymentServiceDeleteNonRejected(t *testing.T) {
	repo := &mockPaymentRepo{
		payments: map[string]models.Payment{
			"pay-1": {ID: "pay-1", Status: models.PaymentStatusCompleted},
		},
	}
	svc := newPaymentService(repo, nil, nil)

	err := svc.Delete(context.Background(), "pay-1")
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInvalidDeleteState.Code, appErr.Code)
}

func TestPaymentServiceUpdateStatusLeavesDependents(t *testing.T) {
	repo := &mockPaymentRepo{
		payments: map[string]models.Payment{
			"pay-1": {ID: "pay-1", Status: models.PaymentStatusCompleted},
		},
	}
	svc := newPaymentService(repo, nil, nil)

	payment, err := svc.UpdateStatus(context.Background(), "pay-1", UpdatePaymentStatusRequest{Status: models.PaymentStatusCancelled})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusCancelled, payment.Status)
}

func TestPaymentServiceUpdateStatusRejectsOtherTargets(t *testing.T) {
	svc := newPaymentService(&mockPaymentRepo{}, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "pay-1", UpdatePaymentStatusRequest{Status: models.PaymentStatusCompleted})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
