package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusClasses(t *testing.T) {
	for _, s := range OpenStatuses {
		assert.True(t, s.IsOpen(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, StatusPaid.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, Status("refunded").Valid())
}

func TestParseMethod(t *testing.T) {
	m, ok := ParseMethod("paylink")
	assert.True(t, ok)
	assert.True(t, m.IsGateway())

	m, ok = ParseMethod("bank_transfer")
	assert.True(t, ok)
	assert.False(t, m.IsGateway())

	_, ok = ParseMethod("cash")
	assert.False(t, ok)
}

func TestBeforeSave(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		inv  Invoice
		want error
	}{
		{"unpaid", Invoice{Amount: decimal.NewFromInt(10), Status: StatusUnpaid}, nil},
		{"paid", Invoice{Amount: decimal.NewFromInt(10), Status: StatusPaid, PaidAt: &now}, nil},
		{"zero amount", Invoice{Amount: decimal.Zero, Status: StatusUnpaid}, ErrNonPositiveAmount},
		{"paid without timestamp", Invoice{Amount: decimal.NewFromInt(10), Status: StatusPaid}, ErrPaidAtMismatch},
		{"timestamp while open", Invoice{Amount: decimal.NewFromInt(10), Status: StatusProofUploaded, PaidAt: &now}, ErrPaidAtMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.inv.BeforeSave(nil), tc.want)
		})
	}
}

func TestHasTracked(t *testing.T) {
	var inv Invoice
	inv.Track(TrackingEntry{Kind: EventPaymentSucceeded, Provider: "stripe", Reference: "evt_1"})
	inv.Track(TrackingEntry{Kind: EventOther, Provider: "stripe"})

	assert.True(t, inv.HasTracked(EventPaymentSucceeded, "stripe", "evt_1"))
	assert.False(t, inv.HasTracked(EventPaymentSucceeded, "paylink", "evt_1"))
	assert.False(t, inv.HasTracked(EventPaymentFailed, "stripe", "evt_1"))
	assert.False(t, inv.HasTracked(EventOther, "stripe", ""))
}

func TestLatestCheckout(t *testing.T) {
	var inv Invoice
	assert.Empty(t, inv.LatestCheckout("stripe"))

	inv.Track(TrackingEntry{Kind: EventCheckoutStarted, Provider: "stripe", Reference: "cs_A"})
	inv.Track(TrackingEntry{Kind: EventCheckoutStarted, Provider: "paylink", Reference: "co_1"})
	inv.Track(TrackingEntry{Kind: EventCheckoutStarted, Provider: "stripe", Reference: "cs_B"})
	inv.Track(TrackingEntry{Kind: EventCheckoutExpired, Provider: "stripe", Reference: "evt_9"})

	assert.Equal(t, "cs_B", inv.LatestCheckout("stripe"))
	assert.Equal(t, "co_1", inv.LatestCheckout("paylink"))
}
