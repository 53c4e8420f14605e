// Package expiry computes the time left on a payment request.
package expiry

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Remaining is the countdown shown while a transfer is pending.
type Remaining struct {
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	Expired bool  `json:"expired"`
}

// Of returns the remaining time until expiresAt as seen at now. Once now is at
// or past expiresAt the result is expired with zero minutes and seconds.
func Of(expiresAt, now time.Time) Remaining {
	if !now.Before(expiresAt) {
		return Remaining{Expired: true}
	}
	d := expiresAt.Sub(now)
	return Remaining{
		Minutes: int64(d / time.Minute),
		Seconds: int64((d % time.Minute) / time.Second),
	}
}

// Since is Of evaluated against clock.
func Since(clock clockwork.Clock, expiresAt time.Time) Remaining {
	return Of(expiresAt, clock.Now())
}

// Duration converts the countdown back into a duration.
func (r Remaining) Duration() time.Duration {
	return time.Duration(r.Minutes)*time.Minute + time.Duration(r.Seconds)*time.Second
}

// String renders mm:ss.
func (r Remaining) String() string {
	return fmt.Sprintf("%02d:%02d", r.Minutes, r.Seconds)
}
