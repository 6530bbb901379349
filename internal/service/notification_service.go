package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gymflow-api/internal/models"
	"github.com/noah-isme/gymflow-api/pkg/jobs"
)

const (
	notificationPaymentSettled  = "payment.settled"
	notificationPaymentRejected = "payment.rejected"
)

// NotificationPayload carries the settlement facts a sender needs.
type NotificationPayload struct {
	PaymentID       string               `json:"payment_id"`
	MemberID        string               `json:"member_id"`
	Status          models.PaymentStatus `json:"status"`
	Amount          float64              `json:"amount"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	OccurredAt      time.Time            `json:"occurred_at"`
}

// Sender delivers a settlement notification to the member. Implementations
// own the delivery channel (email, push, SMS).
type Sender interface {
	Send(ctx context.Context, kind string, payload NotificationPayload) error
}

// LogSender is the default Sender. It records the notification instead of
// delivering it, which keeps local and test environments quiet.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the notification at info level.
func (s *LogSender) Send(_ context.Context, kind string, payload NotificationPayload) error {
	s.logger.Sugar().Infow("notification dispatched",
		"kind", kind,
		"payment_id", payload.PaymentID,
		"member_id", payload.MemberID,
		"status", payload.Status,
	)
	return nil
}

type notificationDispatcher interface {
	Enqueue(job jobs.Job) error
}

// NotificationService fans settlement events out to a Sender through the
// background queue so payment transactions never wait on delivery.
type NotificationService struct {
	queue   notificationDispatcher
	enabled bool
	logger  *zap.Logger
}

// NewNotificationService constructs the notification service.
func NewNotificationService(queue notificationDispatcher, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, enabled: enabled, logger: logger}
}

// PaymentSettled enqueues a settlement notification for an approved payment.
func (s *NotificationService) PaymentSettled(payment *models.Payment) {
	s.dispatch(notificationPaymentSettled, payment)
}

// PaymentRejected enqueues a settlement notification for a rejected payment.
func (s *NotificationService) PaymentRejected(payment *models.Payment) {
	s.dispatch(notificationPaymentRejected, payment)
}

func (s *NotificationService) dispatch(kind string, payment *models.Payment) {
	if !s.enabled || s.queue == nil || payment == nil {
		return
	}
	payload := NotificationPayload{
		PaymentID:  payment.ID,
		MemberID:   payment.MemberID,
		Status:     payment.Status,
		Amount:     payment.Amount,
		OccurredAt: time.Now().UTC(),
	}
	if payment.RejectionReason != nil {
		payload.RejectionReason = *payment.RejectionReason
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s", kind, payment.ID),
		Type:    kind,
		Payload: payload,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Sugar().Warnw("failed to enqueue notification", "kind", kind, "payment_id", payment.ID, "error", err)
	}
}

// NotificationWorker consumes queued notification jobs.
type NotificationWorker struct {
	sender Sender
	logger *zap.Logger
}

// NewNotificationWorker constructs the queue handler side.
func NewNotificationWorker(sender Sender, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{sender: sender, logger: logger}
}

// Handle delivers a single queued notification.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(NotificationPayload)
	if !ok {
		w.logger.Sugar().Errorw("dropping notification with unexpected payload", "job_id", job.ID, "type", job.Type)
		return nil
	}
	if err := w.sender.Send(ctx, job.Type, payload); err != nil {
		return fmt.Errorf("send notification %s: %w", job.ID, err)
	}
	return nil
}
