// Package webhooks delivers payment request events to HTTP endpoints.
//
// # Overview
//
// A Dispatcher is a billing.Publisher. Each published event is posted to
// every endpoint subscribed to its type, in the background, with
// exponential backoff on network errors, 5xx, 408 and 429. Other 4xx
// answers are final. Every attempt is recorded in an in-memory
// DeliveryLogStore.
//
// # Payloads
//
// FormatJSON endpoints receive the billing.Event as JSON with these headers:
//
//	X-Chartpay-Event:      payment_request.claimed
//	X-Chartpay-Event-ID:   <event id>
//	X-Chartpay-Delivery:   <delivery id>
//	X-Chartpay-Signature:  sha256=<hex hmac of the body>   (when a secret is set)
//
// Receivers check the signature with VerifySignature. FormatSlack endpoints
// receive a Slack incoming-webhook message instead, which suits an ops
// channel watching for claimed transfers.
//
// # Usage Example
//
//	d, err := webhooks.NewDispatcher(webhooks.Config{
//		Endpoints: []webhooks.Endpoint{
//			{URL: "https://ops.example.com/hooks/chartpay", Secret: secret},
//			{URL: slackURL, Format: webhooks.FormatSlack, Events: []billing.EventType{billing.EventRequestClaimed}},
//		},
//	}, logger, metrics)
//	if err != nil {
//		return err
//	}
//	svc = billing.WithEvents(svc, d, nil, logger)
//	defer d.Close(ctx)
package webhooks
