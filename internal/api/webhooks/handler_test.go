package webhooks_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"course-payments/internal/api/webhooks"
	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/enrollments"
	"course-payments/internal/domain/notifications"
	"course-payments/internal/domain/users"
	"course-payments/internal/infra/paylink"
	"course-payments/internal/ledger"
	"course-payments/internal/payments"
	"course-payments/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const secret = "whsec_test"

type fakeProcessor struct {
	events []*payments.Event
	out    *payments.Outcome
	err    error
}

func (f *fakeProcessor) HandleGatewayEvent(_ context.Context, ev *payments.Event) (*payments.Outcome, error) {
	f.events = append(f.events, ev)
	return f.out, f.err
}

type fakeDedup struct {
	claimed  map[string]bool
	released []string
	err      error
}

func (f *fakeDedup) Claim(_ context.Context, provider, id string) (bool, error) {
	if f.err != nil {
		return true, f.err
	}
	key := provider + ":" + id
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeDedup) Release(_ context.Context, provider, id string) error {
	delete(f.claimed, provider+":"+id)
	f.released = append(f.released, id)
	return nil
}

type discard struct{}

func (discard) Dispatch(context.Context, []notifications.Notice) {}

func router(t *testing.T, proc webhooks.EventProcessor, dedup webhooks.Deduper) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := webhooks.New([]payments.Verifier{paylink.NewVerifier(secret)}, proc, dedup, zaptest.NewLogger(t))
	r := gin.New()
	r.POST("/webhooks/:provider", h.Receive)
	return r
}

func deliver(r http.Handler, provider, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(paylink.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signed(body string) string { return "sha256=" + paylink.Sign([]byte(body), secret) }

func TestReceiveRejects(t *testing.T) {
	proc := &fakeProcessor{}
	r := router(t, proc, nil)
	body := `{"id":"evt_1","type":"payment.succeeded","order_id":"7"}`

	cases := []struct {
		name     string
		provider string
		body     string
		sig      string
		want     int
	}{
		{"unknown provider", "stripe", body, signed(body), http.StatusNotFound},
		{"unsigned", "paylink", body, "", http.StatusUnauthorized},
		{"wrong signature", "paylink", body, signed(body + " "), http.StatusUnauthorized},
		{"malformed json", "paylink", "{nope", signed("{nope"), http.StatusBadRequest},
		{"oversized", "paylink", strings.Repeat("a", 70000), signed(strings.Repeat("a", 70000)), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := deliver(r, tc.provider, tc.body, tc.sig)
			assert.Equal(t, tc.want, w.Code)
		})
	}
	assert.Empty(t, proc.events)
}

func TestReceiveStatuses(t *testing.T) {
	body := `{"id":"evt_1","type":"payment.succeeded","order_id":"7"}`

	proc := &fakeProcessor{}
	w := deliver(router(t, proc, nil), "paylink", body, signed(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	require.Len(t, proc.events, 1)
	assert.EqualValues(t, 7, proc.events[0].InvoiceID)

	proc = &fakeProcessor{err: errors.New("db down")}
	w = deliver(router(t, proc, nil), "paylink", body, signed(body))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	proc = &fakeProcessor{out: &payments.Outcome{Applied: true, Invoice: &billing.Invoice{Number: "INV-1"}, To: billing.StatusPaid}}
	w = deliver(router(t, proc, nil), "paylink", body, signed(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received"`)
}

func TestReceiveDedup(t *testing.T) {
	body := `{"id":"evt_9","type":"payment.succeeded","order_id":"7"}`
	dedup := &fakeDedup{claimed: map[string]bool{}}

	proc := &fakeProcessor{err: errors.New("db down")}
	r := router(t, proc, dedup)
	assert.Equal(t, http.StatusInternalServerError, deliver(r, "paylink", body, signed(body)).Code)
	assert.Equal(t, []string{"evt_9"}, dedup.released)

	proc.err = nil
	assert.Equal(t, http.StatusOK, deliver(r, "paylink", body, signed(body)).Code)
	w := deliver(r, "paylink", body, signed(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	assert.Len(t, proc.events, 2)

	// an unavailable dedup store does not block processing
	dedup.err = errors.New("redis down")
	assert.Equal(t, http.StatusOK, deliver(r, "paylink", body, signed(body)).Code)
	assert.Len(t, proc.events, 3)
}

func TestReceiveGrantsEnrollment(t *testing.T) {
	db := testutil.NewDB(t)
	store := ledger.New(db)
	buyer := testutil.SeedUser(t, db, "buyer@example.com", users.RoleUser)
	course := testutil.SeedCourse(t, db, "Go Basics")
	product := testutil.SeedProduct(t, db, "Go Basics", &course.ID, "49.00")
	inv := testutil.SeedInvoice(t, db, buyer, product, billing.MethodPaylink, billing.StatusUnpaid)

	logger := zaptest.NewLogger(t)
	proc := payments.NewProcessor(store, payments.NewMachine(logger), discard{}, logger)
	r := router(t, proc, nil)

	body := fmt.Sprintf(`{"id":"evt_42","payment_id":"pay_42","type":"payment.succeeded","order_id":%d}`, inv.ID)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paylink", bytes.NewBufferString(body))
		req.Header.Set(paylink.SignatureHeader, signed(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	got, err := store.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, got.Status)
	assert.NotNil(t, got.PaidAt)

	var n int64
	require.NoError(t, db.Model(&enrollments.Enrollment{}).Where("user_id = ?", buyer.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
