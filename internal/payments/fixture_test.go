package payments_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"course-payments/internal/domain/billing"
	"course-payments/internal/domain/enrollments"
	"course-payments/internal/domain/notifications"
	"course-payments/internal/ledger"
	"course-payments/internal/payments"
	"course-payments/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recorder struct {
	mu      sync.Mutex
	notices []notifications.Notice
}

func (r *recorder) Dispatch(_ context.Context, notices []notifications.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notices...)
}

func (r *recorder) count(audience notifications.Audience, typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Audience == audience && x.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type memFiles struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemFiles() *memFiles { return &memFiles{data: map[string][]byte{}} }

func (m *memFiles) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memFiles) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memFiles) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type fakeGateway struct {
	method   billing.Method
	err      error
	mu       sync.Mutex
	requests []payments.CheckoutRequest
}

func (g *fakeGateway) Method() billing.Method { return g.method }

func (g *fakeGateway) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payments.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example.com/cs_test_1"}, nil
}

type fixture struct {
	db       *gorm.DB
	store    *ledger.Store
	machine  *payments.Machine
	notifier *recorder
	files    *memFiles
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	return &fixture{
		db:       db,
		store:    ledger.New(db),
		machine:  payments.NewMachine(zaptest.NewLogger(t)),
		notifier: &recorder{},
		files:    newMemFiles(),
	}
}

func (f *fixture) processor(t *testing.T) *payments.Processor {
	return payments.NewProcessor(f.store, f.machine, f.notifier, zaptest.NewLogger(t))
}

func (f *fixture) proofs(t *testing.T) *payments.ProofService {
	return payments.NewProofService(f.store, f.machine, f.files, f.notifier, 1024, zaptest.NewLogger(t))
}

func (f *fixture) invoice(t *testing.T, id uint) *billing.Invoice {
	t.Helper()
	inv, err := f.store.GetInvoice(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func (f *fixture) enrollments(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&enrollments.Enrollment{}).Count(&n).Error)
	return n
}

func (f *fixture) pendingProofs(t *testing.T, invoiceID uint) []billing.PaymentProof {
	t.Helper()
	var out []billing.PaymentProof
	require.NoError(t, f.db.Where("invoice_id = ? AND status = ?", invoiceID, billing.ProofPending).Find(&out).Error)
	return out
}

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
)
