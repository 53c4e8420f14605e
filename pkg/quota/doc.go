// Package quota decides whether a billable chart analysis may proceed.
//
// # Overview
//
// Gate.Check compares the backend's usage counters against the limits of the
// user's plan. The check is advisory: two sessions for the same user can both
// see room for one more analysis, and the backend settles the race when the
// analysis is consumed. A rejection from the backend is turned back into a
// Decision with Gate.FromError so callers render both cases the same way.
//
// A negative limit is unlimited. The daily limit is evaluated first.
package quota
