package webhooks

import (
	"fmt"

	"github.com/platinummonkey/chartpay/pkg/billing"
)

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack attachment
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// FormatSlackMessage renders an event for an ops channel. Claimed requests
// read as a call to review.
func FormatSlackMessage(event billing.Event) SlackMessage {
	msg := SlackMessage{Text: eventTitle(event)}
	r := event.Request
	if r == nil {
		return msg
	}

	fields := []SlackField{
		{Title: "Reference", Value: r.Reference, Short: true},
		{Title: "Plan", Value: r.Plan, Short: true},
		{Title: "Amount", Value: r.FormattedAmount(), Short: true},
		{Title: "Request", Value: r.ID, Short: true},
		{Title: "By", Value: event.Actor, Short: true},
	}
	if r.AdminNote != "" {
		fields = append(fields, SlackField{Title: "Note", Value: r.AdminNote})
	}
	msg.Attachments = []SlackAttachment{{
		Color:  eventColor(event.Type),
		Title:  string(event.Type),
		Fields: fields,
	}}
	return msg
}

func eventTitle(event billing.Event) string {
	ref := ""
	if event.Request != nil {
		ref = event.Request.Reference
	}
	switch event.Type {
	case billing.EventRequestCreated:
		return fmt.Sprintf("Payment request %s opened", ref)
	case billing.EventRequestClaimed:
		return fmt.Sprintf("Transfer %s claimed as paid and waiting for review", ref)
	case billing.EventRequestCancelled:
		return fmt.Sprintf("Payment request %s cancelled", ref)
	case billing.EventRequestApproved:
		return fmt.Sprintf("Payment %s approved", ref)
	case billing.EventRequestRejected:
		return fmt.Sprintf("Payment %s rejected", ref)
	case billing.EventRequestsExpired:
		return fmt.Sprintf("%d pending payment request(s) expired", event.Count)
	default:
		return string(event.Type)
	}
}

func eventColor(t billing.EventType) string {
	switch t {
	case billing.EventRequestApproved:
		return "good"
	case billing.EventRequestRejected:
		return "danger"
	case billing.EventRequestClaimed:
		return "warning"
	default:
		return "#439FE0"
	}
}
