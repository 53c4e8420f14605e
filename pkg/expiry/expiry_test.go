package expiry

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		now       time.Time
		want      Remaining
	}{
		{
			name:      "thirty minutes left",
			expiresAt: base.Add(30 * time.Minute),
			now:       base,
			want:      Remaining{Minutes: 30, Seconds: 0},
		},
		{
			name:      "ninety five seconds left",
			expiresAt: base.Add(95 * time.Second),
			now:       base,
			want:      Remaining{Minutes: 1, Seconds: 35},
		},
		{
			name:      "sub-second rounds down",
			expiresAt: base.Add(1500 * time.Millisecond),
			now:       base,
			want:      Remaining{Minutes: 0, Seconds: 1},
		},
		{
			name:      "exactly at expiry",
			expiresAt: base,
			now:       base,
			want:      Remaining{Expired: true},
		},
		{
			name:      "past expiry clamps to zero",
			expiresAt: base,
			now:       base.Add(10 * time.Minute),
			want:      Remaining{Expired: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.expiresAt, tt.now))
		})
	}
}

func TestSince_FakeClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	expiresAt := clock.Now().Add(2 * time.Minute)

	r := Since(clock, expiresAt)
	assert.Equal(t, "02:00", r.String())
	assert.Equal(t, 2*time.Minute, r.Duration())

	clock.Advance(119 * time.Second)
	assert.Equal(t, "00:01", Since(clock, expiresAt).String())

	clock.Advance(time.Second)
	assert.True(t, Since(clock, expiresAt).Expired)
}
