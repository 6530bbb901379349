package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gymflow-api/internal/models"
	"github.com/noah-isme/gymflow-api/pkg/jobs"
)

type queueStub struct {
	jobs []jobs.Job
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type senderStub struct {
	kinds    []string
	payloads []NotificationPayload
}

func (s *senderStub) Send(ctx context.Context, kind string, payload NotificationPayload) error {
	s.kinds = append(s.kinds, kind)
	s.payloads = append(s.payloads, payload)
	return nil
}

func TestNotificationServiceEnqueuesSettlement(t *testing.T) {
	queue := &queueStub{}
	svc := NewNotificationService(queue, true, nil)

	svc.PaymentSettled(&models.Payment{ID: "pay-1", MemberID: "member-1", Status: models.PaymentStatusCompleted, Amount: 250000})
	require.Len(t, queue.jobs, 1)
	require.Equal(t, "payment.settled", queue.jobs[0].Type)

	payload, ok := queue.jobs[0].Payload.(NotificationPayload)
	require.True(t, ok)
	require.Equal(t, "pay-1", payload.PaymentID)
	require.Equal(t, "member-1", payload.MemberID)
}

func TestNotificationServiceDisabled(t *testing.T) {
	queue := &queueStub{}
	svc := NewNotificationService(queue, false, nil)

	svc.PaymentSettled(&models.Payment{ID: "pay-1"})
	svc.PaymentRejected(&models.Payment{ID: "pay-1"})
	require.Empty(t, queue.jobs)
}

func TestNotificationServiceCarriesRejectionReason(t *testing.T) {
	queue := &queueStub{}
	svc := NewNotificationService(queue, true, nil)

	reason := "transfer never arrived"
	svc.PaymentRejected(&models.Payment{ID: "pay-1", Status: models.PaymentStatusRejected, RejectionReason: &reason})
	require.Len(t, queue.jobs, 1)

	payload := queue.jobs[0].Payload.(NotificationPayload)
	require.Equal(t, reason, payload.RejectionReason)
}

func TestNotificationWorkerDelivers(t *testing.T) {
	sender := &senderStub{}
	worker := NewNotificationWorker(sender, nil)

	err := worker.Handle(context.Background(), jobs.Job{
		ID:      "payment.settled:pay-1",
		Type:    "payment.settled",
		Payload: NotificationPayload{PaymentID: "pay-1", MemberID: "member-1"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"payment.settled"}, sender.kinds)
}

func TestNotificationWorkerDropsMalformedPayload(t *testing.T) {
	sender := &senderStub{}
	worker := NewNotificationWorker(sender, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "bad", Type: "payment.settled", Payload: "oops"})
	require.NoError(t, err)
	require.Empty(t, sender.kinds)
}
