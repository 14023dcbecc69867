package escrow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/escrow-payments/internal/domain/outbox"
	"github.com/escrow-payments/internal/domain/payee"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/platform/vat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGateway mocks the payment processor
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateAuthorization(ctx context.Context, req gateway.AuthorizationRequest) (*gateway.Authorization, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Authorization), args.Error(1)
}

func (m *MockGateway) GetAuthorization(ctx context.Context, authorizationID string) (*gateway.Authorization, error) {
	args := m.Called(ctx, authorizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Authorization), args.Error(1)
}

func (m *MockGateway) CaptureAuthorization(ctx context.Context, authorizationID, idempotencyKey string) (*gateway.Capture, error) {
	args := m.Called(ctx, authorizationID, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Capture), args.Error(1)
}

func (m *MockGateway) CancelAuthorization(ctx context.Context, authorizationID, idempotencyKey string) error {
	args := m.Called(ctx, authorizationID, idempotencyKey)
	return args.Error(0)
}

func (m *MockGateway) GetChargeSettlement(ctx context.Context, chargeID string) (*gateway.ChargeSettlement, error) {
	args := m.Called(ctx, chargeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChargeSettlement), args.Error(1)
}

func (m *MockGateway) CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Transfer), args.Error(1)
}

func (m *MockGateway) CreateTransferReversal(ctx context.Context, req gateway.TransferReversalRequest) (*gateway.TransferReversal, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TransferReversal), args.Error(1)
}

func (m *MockGateway) CreateRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Refund), args.Error(1)
}

// memoryPayments is a ledger store with the same compare-and-set semantics as the Mongo repository
type memoryPayments struct {
	mu        sync.Mutex
	records   map[uuid.UUID]payment.Record
	saves     int
	conflicts int // Number of upcoming saves that report a concurrent writer
}

func newMemoryPayments() *memoryPayments {
	return &memoryPayments{records: make(map[uuid.UUID]payment.Record)}
}

func cloneRecord(r payment.Record) *payment.Record {
	c := r
	c.RefundEntries = append([]payment.RefundEntry(nil), r.RefundEntries...)
	c.Annotations = append([]payment.Annotation(nil), r.Annotations...)
	return &c
}

func (m *memoryPayments) GetByBookingID(_ context.Context, bookingID uuid.UUID) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[bookingID]
	if !ok {
		return nil, payment.ErrRecordNotFound{Key: bookingID.String()}
	}
	return cloneRecord(r), nil
}

func (m *memoryPayments) find(key string, match func(r payment.Record) bool) (*payment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if match(r) {
			return cloneRecord(r), nil
		}
	}
	return nil, payment.ErrRecordNotFound{Key: key}
}

func (m *memoryPayments) FindByAuthorizationID(_ context.Context, id string) (*payment.Record, error) {
	return m.find(id, func(r payment.Record) bool { return r.AuthorizationID == id })
}

func (m *memoryPayments) FindByChargeID(_ context.Context, id string) (*payment.Record, error) {
	return m.find(id, func(r payment.Record) bool { return r.ChargeID == id })
}

func (m *memoryPayments) FindByTransferID(_ context.Context, id string) (*payment.Record, error) {
	return m.find(id, func(r payment.Record) bool { return r.TransferID == id })
}

func (m *memoryPayments) Save(_ context.Context, r *payment.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflicts > 0 {
		m.conflicts--
		return payment.ErrConcurrentModification{BookingID: r.BookingID}
	}

	stored, ok := m.records[r.BookingID]
	if (ok && stored.Version != r.Version) || (!ok && r.Version != 0) {
		return payment.ErrConcurrentModification{BookingID: r.BookingID}
	}

	r.Version++
	m.records[r.BookingID] = *cloneRecord(*r)
	m.saves++
	return nil
}

// put stores r as-is, bypassing the version check
func (m *memoryPayments) put(r *payment.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Version++
	m.records[r.BookingID] = *cloneRecord(*r)
}

func (m *memoryPayments) get(t *testing.T, bookingID uuid.UUID) *payment.Record {
	t.Helper()
	r, err := m.GetByBookingID(context.Background(), bookingID)
	require.NoError(t, err)
	return r
}

func (m *memoryPayments) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type projection struct {
	summary payment.Summary
	status  booking.Status
}

type fakeBookings struct {
	mu          sync.Mutex
	bookings    map[uuid.UUID]*booking.Booking
	projections []projection
	err         error
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{bookings: make(map[uuid.UUID]*booking.Booking)}
}

func (f *fakeBookings) GetByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound{BookingID: id}
	}
	return b, nil
}

func (f *fakeBookings) UpdatePaymentProjection(_ context.Context, id uuid.UUID, summary payment.Summary, status booking.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	b, ok := f.bookings[id]
	if !ok {
		return booking.ErrBookingNotFound{BookingID: id}
	}
	if b.PaymentSummary != nil && b.PaymentSummary.Version >= summary.Version {
		return nil
	}
	b.PaymentSummary = &summary
	if status != "" {
		b.Status = status
	}
	f.projections = append(f.projections, projection{summary: summary, status: status})
	return nil
}

func (f *fakeBookings) WithTx(_ pgx.Tx) booking.Repository {
	return f
}

type fakeOutbox struct {
	mu       sync.Mutex
	messages []*outbox.Message
}

func (f *fakeOutbox) Create(_ context.Context, message *outbox.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeOutbox) GetPending(_ context.Context, _ int) ([]*outbox.Message, error) {
	return nil, nil
}

func (f *fakeOutbox) UpdateStatus(_ context.Context, id int64, _ shared.OutboxStatus) error {
	return outbox.ErrMessageNotFound{ID: id}
}

func (f *fakeOutbox) IncrementAttempts(_ context.Context, id int64) error {
	return outbox.ErrMessageNotFound{ID: id}
}

func (f *fakeOutbox) Delete(_ context.Context, id int64) error {
	return outbox.ErrMessageNotFound{ID: id}
}

func (f *fakeOutbox) GetByEventID(_ context.Context, _ uuid.UUID) (*outbox.Message, error) {
	return nil, nil
}

func (f *fakeOutbox) WithTx(_ pgx.Tx) outbox.Repository {
	return f
}

func (f *fakeOutbox) eventTypes() []shared.PaymentEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]shared.PaymentEventType, 0, len(f.messages))
	for _, m := range f.messages {
		types = append(types, m.EventType)
	}
	return types
}

type fakePayees struct {
	mu     sync.Mutex
	payees map[uuid.UUID]*payee.Payee
	err    error
}

func newFakePayees() *fakePayees {
	return &fakePayees{payees: make(map[uuid.UUID]*payee.Payee)}
}

func (f *fakePayees) find(key string, match func(p *payee.Payee) bool) (*payee.Payee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.payees {
		if match(p) {
			return p, nil
		}
	}
	return nil, payee.ErrPayeeNotFound{Key: key}
}

func (f *fakePayees) GetByID(_ context.Context, id uuid.UUID) (*payee.Payee, error) {
	return f.find(id.String(), func(p *payee.Payee) bool { return p.ID == id })
}

func (f *fakePayees) GetByUserID(_ context.Context, userID uuid.UUID) (*payee.Payee, error) {
	return f.find(userID.String(), func(p *payee.Payee) bool { return p.UserID == userID })
}

func (f *fakePayees) GetByStripeAccountID(_ context.Context, accountID string) (*payee.Payee, error) {
	return f.find(accountID, func(p *payee.Payee) bool { return p.StripeAccountID == accountID })
}

func (f *fakePayees) UpdateCapabilities(ctx context.Context, accountID string, caps payee.Capabilities) error {
	p, err := f.GetByStripeAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p.OnboardingCompleted = caps.OnboardingCompleted
	p.ChargesEnabled = caps.ChargesEnabled
	p.PayoutsEnabled = caps.PayoutsEnabled
	p.AccountStatus = caps.AccountStatus
	return nil
}

func (f *fakePayees) WithTx(_ pgx.Tx) payee.Repository {
	return f
}

type fakeTx struct {
	calls int
	err   error
}

func (f *fakeTx) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// flatVAT taxes every supply at one rate
type flatVAT struct {
	percent int64
}

func (f flatVAT) Calculate(req vat.Request) vat.Result {
	tax := req.Amount * f.percent / 100
	return vat.Result{
		VATAmount: tax,
		VATRate:   decimal.NewFromInt(f.percent),
		Total:     req.Amount + tax,
	}
}

var errProcessor = errors.New("processor unavailable")

// harness wires the coordinators to in-memory collaborators
type harness struct {
	logger   *slog.Logger
	payments *memoryPayments
	bookings *fakeBookings
	payees   *fakePayees
	outbox   *fakeOutbox
	tx       *fakeTx
	gateway  *MockGateway
	recorder *PaymentRecorder
	now      time.Time
}

func newHarness() *harness {
	h := &harness{
		logger:   slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		payments: newMemoryPayments(),
		bookings: newFakeBookings(),
		payees:   newFakePayees(),
		outbox:   &fakeOutbox{},
		tx:       &fakeTx{},
		gateway:  &MockGateway{},
		now:      time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	h.recorder = NewPaymentRecorder(h.logger, h.tx, h.payments, h.bookings, h.outbox)
	h.recorder.now = h.clock
	return h
}

func (h *harness) clock() time.Time {
	return h.now
}

func (h *harness) resolver() *PayeeResolver {
	return NewPayeeResolver(h.payees)
}

func (h *harness) intentService(pricing PricingConfig) *IntentServiceImpl {
	s := NewIntentService(h.logger, h.bookings, h.payments, h.resolver(), h.gateway, flatVAT{percent: 20}, h.recorder, pricing).(*IntentServiceImpl)
	s.now = h.clock
	return s
}

func (h *harness) captureService() *CaptureServiceImpl {
	s := NewCaptureService(h.logger, h.payments, h.gateway, h.recorder).(*CaptureServiceImpl)
	s.now = h.clock
	return s
}

func (h *harness) refundService() *RefundServiceImpl {
	s := NewRefundService(h.logger, h.bookings, h.payments, h.gateway, h.recorder).(*RefundServiceImpl)
	s.now = h.clock
	return s
}

func defaultPricing() PricingConfig {
	return PricingConfig{
		CommissionPercent: decimal.NewFromInt(15),
		MinAmount:         50,
		MaxAmount:         99999999,
		DefaultCurrency:   "EUR",
	}
}

// seedBooking stores a quoted booking whose professional has a ready payout account
func (h *harness) seedBooking(amount int64, currency string) (*booking.Booking, *payee.Payee) {
	p := &payee.Payee{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		Country:             "DE",
		StripeAccountID:     "acct_" + uuid.NewString()[:8],
		OnboardingCompleted: true,
		ChargesEnabled:      true,
		PayoutsEnabled:      true,
		AccountStatus:       payee.AccountStatusActive,
	}
	h.payees.payees[p.ID] = p

	b := &booking.Booking{
		ID:              uuid.New(),
		CustomerID:      uuid.New(),
		CustomerCountry: "DE",
		CustomerType:    booking.CustomerTypeIndividual,
		Status:          booking.StatusQuoted,
		Quote: &booking.Quote{
			ID:             uuid.New(),
			ProfessionalID: p.UserID,
			Amount:         amount,
			Currency:       currency,
			Status:         booking.QuoteStatusAccepted,
		},
	}
	h.bookings.bookings[b.ID] = b
	return b, p
}

// seedRecord stores a pending record with total as the charged amount and a 15% commission
func (h *harness) seedRecord(b *booking.Booking, p *payee.Payee, total int64, currency string) *payment.Record {
	split := payment.SplitTotal(total, decimal.NewFromInt(15))
	r := payment.NewRecord(b.ID, b.CustomerID, p.ID, p.StripeAccountID, payment.Pricing{
		Currency:           currency,
		Amount:             total,
		TotalWithVAT:       total,
		VATRate:            "0",
		PlatformCommission: split.PlatformCommission,
		ProfessionalPayout: split.ProfessionalPayout,
	}, payment.Authorization{ID: "pi_" + b.ID.String()[:8], ClientSecret: "secret_" + b.ID.String()[:8]}, h.now)
	h.payments.put(r)
	return r
}

func (h *harness) seedAuthorized(b *booking.Booking, p *payee.Payee, total int64, currency string) *payment.Record {
	r := h.seedRecord(b, p, total, currency)
	if err := r.Authorize("", h.now); err != nil {
		panic(err)
	}
	h.payments.put(r)
	return r
}

// seedCompleted stores a captured record whose payout reached the payee
func (h *harness) seedCompleted(b *booking.Booking, p *payee.Payee, total int64, currency string) *payment.Record {
	r := h.seedRecord(b, p, total, currency)
	if err := r.Authorize("ch_"+b.ID.String()[:8], h.now); err != nil {
		panic(err)
	}
	if err := r.MarkCaptured("", h.now); err != nil {
		panic(err)
	}
	if err := r.CompleteTransfer("tr_"+b.ID.String()[:8], "py_1", r.ProfessionalPayout, currency, h.now); err != nil {
		panic(err)
	}
	h.payments.put(r)
	return r
}
