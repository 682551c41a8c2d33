package service

import (
	"context"
	"sync"
	"time"

	"storefront/internal/document"
	"storefront/internal/inventory"
	"storefront/internal/label"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

// MockProductRepository is a mock implementation of ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	// Return a MockTx interface value, not a pointer
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error) {
	args := m.Called(ctx, tx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	args := m.Called(ctx, tx, items)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateInvoice(ctx context.Context, tx pgx.Tx, invoice *model.Invoice) error {
	args := m.Called(ctx, tx, invoice)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.Order), args.Get(1).([]model.OrderItem), args.Error(2)
}

func (m *MockOrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Order, []model.OrderItem, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.Order), args.Get(1).([]model.OrderItem), args.Error(2)
}

func (m *MockOrderRepository) GetInvoice(ctx context.Context, orderID uuid.UUID) (*model.Invoice, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, from, to, at)
	return args.Bool(0), args.Error(1)
}

// MockReturnRepository is a mock implementation of ReturnRepository.
type MockReturnRepository struct {
	mock.Mock
}

func (m *MockReturnRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReturnRepository) Create(ctx context.Context, tx pgx.Tx, ret *model.Return) error {
	args := m.Called(ctx, tx, ret)
	return args.Error(0)
}

func (m *MockReturnRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Return, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Return), args.Error(1)
}

func (m *MockReturnRepository) HasActiveForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReturnRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, t model.ReturnTransition) (bool, error) {
	args := m.Called(ctx, tx, t)
	return args.Bool(0), args.Error(1)
}

// MockCouponRepository is a mock implementation of CouponRepository.
type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Coupon), args.Error(1)
}

func (m *MockCouponRepository) CountRedemptions(ctx context.Context, code, email string) (int, error) {
	args := m.Called(ctx, code, email)
	return args.Int(0), args.Error(1)
}

func (m *MockCouponRepository) Upsert(ctx context.Context, coupons []model.Coupon) (int, error) {
	args := m.Called(ctx, coupons)
	return args.Int(0), args.Error(1)
}

func (m *MockCouponRepository) Redeem(ctx context.Context, tx pgx.Tx, code, email string, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, code, email, orderID)
	return args.Bool(0), args.Error(1)
}

// MockValidator is a mock implementation of coupon.Validator.
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, code string, total int64, email string) (model.CouponResult, error) {
	args := m.Called(ctx, code, total, email)
	return args.Get(0).(model.CouponResult), args.Error(1)
}

// MockGateway is a mock implementation of payment.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, id string) (*payment.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Refund), args.Error(1)
}

func (m *MockGateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Event), args.Error(1)
}

// MockConfirmationService is a mock implementation of ConfirmationService.
type MockConfirmationService struct {
	mock.Mock
}

func (m *MockConfirmationService) Confirm(ctx context.Context, sessionID, source string) (*model.OrderResponse, error) {
	args := m.Called(ctx, sessionID, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderResponse), args.Error(1)
}

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Stub implementations for other pgx.Tx methods
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

// fakeLedger keeps counters in memory and floors decrements at zero.
type fakeLedger struct {
	mu       sync.Mutex
	stock    map[inventory.Key]int
	restored map[inventory.Key]int
	err      error
}

func newFakeLedger(stock map[inventory.Key]int) *fakeLedger {
	return &fakeLedger{stock: stock, restored: map[inventory.Key]int{}}
}

func (l *fakeLedger) Decrement(_ context.Context, _ pgx.Tx, key inventory.Key, quantity int) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, 0, l.err
	}
	have := l.stock[key]
	if have >= quantity {
		l.stock[key] = have - quantity
		return have - quantity, 0, nil
	}
	l.stock[key] = 0
	return 0, quantity - have, nil
}

func (l *fakeLedger) Increment(_ context.Context, _ pgx.Tx, key inventory.Key, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.stock[key] += quantity
	l.restored[key] += quantity
	return nil
}

// recordingOutbox captures enqueued notifications.
type recordingOutbox struct {
	mu    sync.Mutex
	items []model.Notification
	err   error
}

func (o *recordingOutbox) Enqueue(_ context.Context, notifications []model.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.items = append(o.items, notifications...)
	return nil
}

func (o *recordingOutbox) kinds() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.items))
	for i, n := range o.items {
		out[i] = n.Kind
	}
	return out
}

func newTestNotifier(outbox *recordingOutbox) *Notifier {
	return NewNotifier(outbox, notify.NewComposer("https://tienda.test", "eur", []string{"admin@tienda.test"}), zerolog.Nop())
}

// stubLabels returns fixed bytes or an error.
type stubLabels struct {
	err   error
	calls int
}

func (s *stubLabels) Generate(data label.Data) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-" + data.Reference), nil
}

// memDocuments is an in-memory document store.
type memDocuments struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (d *memDocuments) Put(_ context.Context, key, _ string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.docs == nil {
		d.docs = map[string][]byte{}
	}
	d.docs[key] = data
	return nil
}

func (d *memDocuments) Get(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.docs[key]
	if !ok {
		return nil, document.ErrNotFound
	}
	return data, nil
}
