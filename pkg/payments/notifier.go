package payments

import (
	"context"
	"fmt"

	"github.com/platinummonkey/chartpay/pkg/observability"
)

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger *observability.Logger
}

func (n LogNotifier) Notify(ctx context.Context, note Notification) {
	n.Logger.WithFields(map[string]interface{}{
		"kind":       note.Kind,
		"request_id": note.RequestID,
		"reference":  note.Reference,
	}).Info(note.Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

func notificationFor(kind NotificationKind, r PaymentRequest) Notification {
	n := Notification{
		Kind:      kind,
		RequestID: r.ID,
		Reference: r.Reference,
		Plan:      r.Plan,
	}
	switch kind {
	case NotifyApproved:
		n.Message = fmt.Sprintf("Your payment %s was approved. Your %s plan is now active.", r.Reference, r.Plan)
	case NotifyRejected:
		n.Message = fmt.Sprintf("Your payment %s was rejected.", r.Reference)
		if r.AdminNote != "" {
			n.Message += " " + r.AdminNote
		}
	case NotifyExpired:
		n.Message = fmt.Sprintf("Payment request %s expired before the transfer was confirmed.", r.Reference)
	case NotifyCancelled:
		n.Message = fmt.Sprintf("Payment request %s was cancelled.", r.Reference)
	}
	return n
}
