package service

import (
	"context"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"apparel-service/internal/models"
	"apparel-service/internal/payment"
	"apparel-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var orderColumnNames = []string{
	"id", "order_number", "customer_id", "subtotal", "tax", "shipping", "discount", "total",
	"payment_status", "production_status", "shipping_address", "billing_address", "customer_notes",
	"payment_intent_id", "tracking_number", "shipped_at", "created_at", "updated_at",
}

var testAddress = []byte(`{"line1":"1 Main St","city":"Austin","postal_code":"78701","country":"US"}`)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return store.NewStoreWithDB(sqlx.NewDb(mockDB, "postgres")), mock
}

// orderRow describes the stored order a mocked query returns
type orderRow struct {
	id               string
	number           string
	total            string
	paymentStatus    string
	productionStatus string
	intentID         interface{}
}

func orderRows(rows ...orderRow) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	result := sqlmock.NewRows(orderColumnNames)
	for _, r := range rows {
		result.AddRow(r.id, r.number, "7c1e0f5e-4b8a-4a4e-9c1a-0d6a2f6f1b11",
			r.total, "0", "0", "0", r.total,
			r.paymentStatus, r.productionStatus, testAddress, testAddress, nil,
			r.intentID, nil, nil, now, now)
	}
	return result
}

// timeArg matches a time argument by instant
type timeArg struct {
	want time.Time
}

func (a timeArg) Match(v driver.Value) bool {
	got, ok := v.(time.Time)
	return ok && got.Equal(a.want)
}

// mockGateway is a testify mock of the payment provider
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	args := m.Called(ctx, req)
	intent, _ := args.Get(0).(*payment.Intent)
	return intent, args.Error(1)
}

func (m *mockGateway) RetrieveIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	args := m.Called(ctx, intentID)
	intent, _ := args.Get(0).(*payment.Intent)
	return intent, args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	event, _ := args.Get(0).(*payment.WebhookEvent)
	return event, args.Error(1)
}

// recordingPublisher keeps every event it is asked to publish
type recordingPublisher struct {
	mu      sync.Mutex
	created []*models.OrderCreatedEvent
	changed []*models.OrderStatusChangedEvent
	err     error
}

func (p *recordingPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, event)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, event)
	return p.err
}

// memoryIdempotency mimics the Redis claim/complete protocol
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) ClaimIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.keys[key]; ok {
		if v == "pending" {
			return "", false, nil
		}
		return v, false, nil
	}
	m.keys[key] = "pending"
	return "", true, nil
}

func (m *memoryIdempotency) CompleteIdempotencyKey(ctx context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = orderID
	return nil
}

func (m *memoryIdempotency) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// memoryBlobs is an in-memory BlobStore
type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}}
}

func (b *memoryBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return "/uploads/" + key, nil
}

func (b *memoryBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}
