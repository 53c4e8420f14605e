package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		code   string
		want   string
	}{
		{"naira premium price", 500000, "NGN", "₦5,000.00"},
		{"lowercase code", 500000, "ngn", "₦5,000.00"},
		{"zero", 0, "NGN", "₦0.00"},
		{"kobo only", 5, "NGN", "₦0.05"},
		{"millions", 123456789, "USD", "$1,234,567.89"},
		{"negative", -150, "EUR", "-€1.50"},
		{"code without symbol", 1000, "JPY", "JPY 10.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.amount, tt.code))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("NGN"))
	assert.False(t, Valid("XXQ1"))
}
