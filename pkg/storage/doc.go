// Package storage provides pluggable caches for the user's active payment request.
//
// # Overview
//
// The payments Manager keeps the one request it is tracking in a payments.Store.
// This package supplies implementations beyond the in-process default:
//
//   - memory: process lifetime only (payments.MemoryStore)
//   - redis: shared between devices and processes, entries expire after Config.TTL
//   - sqlite: a local database file that survives restarts
//
// # Usage Example
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = "redis"
//	cfg.RedisURL = "redis://localhost:6379/0"
//
//	store, err := storage.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// Entries are JSON encoded payments.PaymentRequest values keyed by user id.
// A miss is reported as (nil, nil).
package storage
