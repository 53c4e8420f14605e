// Package backend is the HTTP client for the chartpay payments backend.
//
// # Overview
//
// Client implements the collaborator interfaces the client-side components
// depend on:
//
//	payments.Backend        create, claim, status, cancel, active request
//	plans.Fetcher           GET /v1/plans
//	account.ProfileFetcher  GET /v1/me
//	quota.Consumer          POST /v1/analyses
//
// Every call carries a bearer token and an X-Request-ID, and is traced through
// an otelhttp transport. Non-2xx responses are decoded from the structured
// error envelope into *apperrors.Error; a response without a code falls back
// to a code derived from the HTTP status. Transport failures become
// NETWORK_ERROR and a 401 becomes UNAUTHORIZED.
package backend
