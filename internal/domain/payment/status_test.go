package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{raw: "PAID", want: KindSuccess},
		{raw: "SUCCESS", want: KindSuccess},
		{raw: "ACTIVE", want: KindSuccess},
		{raw: "COMPLETED", want: KindSuccess},
		{raw: "paid", want: KindSuccess},
		{raw: "PAYMENT_SUCCESS", want: KindSuccess},
		{raw: "sandbox_success", want: KindSuccess},
		{raw: "PARTIALLY_PAID", want: KindSuccess},
		{raw: "CREATED", want: KindPending},
		{raw: "pending", want: KindPending},
		{raw: "PROCESSING", want: KindPending},
		{raw: "FAILED", want: KindFailed},
		{raw: "EXPIRED", want: KindFailed},
		{raw: "user_dropped", want: KindFailed},
		{raw: "", want: KindUnknown},
		{raw: "ON_HOLD", want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s := ClassifyStatus(tt.raw)
			assert.Equal(t, tt.want, s.Kind)
			assert.Equal(t, tt.raw, s.Raw)
			assert.Equal(t, tt.want == KindSuccess, s.IsSuccess())
		})
	}
}
