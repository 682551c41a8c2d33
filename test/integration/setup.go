package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/database"
	"storefront/internal/payment"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container with the schema migrated.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	// Create PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	if err := database.Migrate(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// SeedProduct inserts a product with optional per-size stock and returns its ID.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, name string, price int64, stock int, sizes map[string]int) int64 {
	t.Helper()

	ctx := context.Background()

	var id int64
	err := pool.QueryRow(ctx,
		"INSERT INTO products (name, slug, price, stock) VALUES ($1, $2, $3, $4) RETURNING id",
		name, fmt.Sprintf("%s-%d", name, time.Now().UnixNano()), price, stock,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed product %s: %v", name, err)
	}

	for size, s := range sizes {
		if _, err := pool.Exec(ctx,
			"INSERT INTO product_sizes (product_id, size, stock) VALUES ($1, $2, $3)", id, size, s,
		); err != nil {
			t.Fatalf("failed to seed size %s of %s: %v", size, name, err)
		}
	}
	return id
}

// SeedCoupon inserts a percentage coupon.
func SeedCoupon(t *testing.T, pool *pgxpool.Pool, code string, percent int64) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"INSERT INTO coupons (code, type, value, active) VALUES ($1, 'percentage', $2, true)", code, percent)
	if err != nil {
		t.Fatalf("failed to seed coupon %s: %v", code, err)
	}
}

// CleanupDB cleans all data from test tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	tables := []string{
		"notifications", "coupon_redemptions", "coupons", "return_items", "returns",
		"invoice_items", "invoices", "order_items", "orders", "product_sizes", "products",
	}
	for _, table := range tables {
		if _, err := pool.Exec(context.Background(), fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

// fakeGateway is an in-memory payment gateway. Sessions are paid as soon as they are created.
type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*payment.Session
	refunds  map[string]payment.RefundRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: make(map[string]*payment.Session),
		refunds:  make(map[string]payment.RefundRequest),
	}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := fmt.Sprintf("cs_test_%d", g.seq)

	total := req.Shipping - req.Discount
	for _, l := range req.Lines {
		total += l.UnitPrice * int64(l.Quantity)
	}

	sess := &payment.Session{
		ID:               id,
		URL:              "https://checkout.test/" + id,
		Paid:             true,
		PaymentReference: "pi_" + id,
		AmountTotal:      total,
		Metadata:         req.Metadata,
	}
	g.sessions[id] = sess
	return sess, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", id)
	}
	return sess, nil
}

func (g *fakeGateway) Refund(_ context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.refunds[req.IdempotencyKey]; ok {
		req = prev
	} else {
		g.refunds[req.IdempotencyKey] = req
	}
	return &payment.Refund{ID: "re_" + req.IdempotencyKey, Status: "succeeded", Amount: req.Amount}, nil
}

// ParseWebhook accepts the signature "valid" and treats the payload as a session id.
func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if signature != "valid" {
		return nil, payment.ErrInvalidSignature
	}
	return &payment.Event{ID: "evt_1", Type: payment.EventCheckoutCompleted, SessionID: string(payload)}, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}
