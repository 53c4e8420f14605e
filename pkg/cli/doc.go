// Package cli provides the chartpay command-line interface.
//
// # Overview
//
// Each command opens one session against the backend, does its work and
// releases the local cache. The active payment request survives between
// invocations in the configured store (CHARTPAY_STORAGE_TYPE=sqlite keeps it
// on disk).
//
// # Commands
//
//	chartpay login -email trader@example.com   # prints export CHARTPAY_TOKEN=...
//	chartpay plans
//	chartpay quota
//	chartpay analyze
//	chartpay upgrade [-plan premium]           # bank details, reference and countdown
//	chartpay claim [-id ID]                    # "I have paid"
//	chartpay cancel [-id ID]
//	chartpay status
//	chartpay refresh                           # poll for the review decision
//	chartpay ack [-id ID]                      # dismiss a rejected or expired request
//	chartpay logout
package cli
