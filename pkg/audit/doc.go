// Package audit keeps an append-only trail of payment request changes.
//
// # Overview
//
// FileLogger is a billing.Publisher that writes each event as one JSON line
// to <dir>/audit.log. Once the file reaches MaxSize it is renamed to
// audit-<timestamp>.log and a new one is started; only the newest MaxFiles
// rotations are kept.
//
// # Usage Example
//
//	trail, err := audit.NewFileLogger(audit.FileLoggerConfig{Dir: "/var/lib/chartpay/audit"}, logger)
//	if err != nil {
//		return err
//	}
//	defer trail.Close()
//	svc = billing.WithEvents(svc, trail, nil, logger)
//
// Read back the latest decisions for one request:
//
//	events, err := trail.Recent(ctx, audit.Query{RequestID: id, Limit: 20})
package audit
