package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/payment"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newPaymentFixture(t *testing.T) (*PaymentService, sqlmock.Sqlmock, *mockGateway) {
	s, m := newMockStore(t)
	gateway := &mockGateway{}
	status := NewStatusService(s, nil, 5*time.Second)
	t.Cleanup(func() { gateway.AssertExpectations(t) })
	return NewPaymentService(s, gateway, status, "usd"), m, gateway
}

func expectFindOrder(m sqlmock.Sqlmock, orderID uuid.UUID, paymentStatus string) {
	m.ExpectQuery(`FROM orders WHERE id = \$1`).
		WithArgs(orderID).
		WillReturnRows(orderRows(orderRow{
			id: orderID.String(), number: "RB-1-ABCDE", total: "203.28",
			paymentStatus: paymentStatus, productionStatus: "pending", intentID: "pi_1",
		}))
}

func succeededIntent(orderID uuid.UUID) *payment.Intent {
	return &payment.Intent{
		ID:          "pi_1",
		Status:      payment.StatusSucceeded,
		AmountMinor: 20328,
		Currency:    "usd",
		Metadata:    map[string]string{payment.MetadataOrderID: orderID.String()},
	}
}

func TestCapturePayment_Succeeded(t *testing.T) {
	svc, m, gateway := newPaymentFixture(t)
	orderID := uuid.New()

	expectFindOrder(m, orderID, "pending")
	gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(succeededIntent(orderID), nil).Once()
	m.ExpectBegin()
	expectLock(m, orderID, "pending", "pending")
	m.ExpectQuery(`UPDATE orders SET`).
		WithArgs(orderID, models.PaymentStatusPaid, "pi_1", nil, nil, nil).
		WillReturnRows(orderRows(orderRow{
			id: orderID.String(), number: "RB-1-ABCDE", total: "203.28",
			paymentStatus: "paid", productionStatus: "pending", intentID: "pi_1",
		}))
	m.ExpectQuery(`INSERT INTO order_status_history`).
		WithArgs(orderID, nil, models.StatusTypePayment, models.PaymentStatusPaid, sqlmock.AnyArg()).
		WillReturnRows(historyRow())
	m.ExpectCommit()

	order, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestCapturePayment_RequiresActionWritesNothing(t *testing.T) {
	svc, m, gateway := newPaymentFixture(t)
	orderID := uuid.New()

	expectFindOrder(m, orderID, "pending")
	intent := succeededIntent(orderID)
	intent.Status = payment.StatusRequiresAction
	gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(intent, nil).Once()

	_, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

	require.Error(t, err)
	assert.Equal(t, apperr.KindPaymentNotCompleted, apperr.KindOf(err))
	assert.Equal(t, 400, apperr.HTTPStatus(apperr.KindOf(err)))
	assert.Equal(t, "Payment not completed", apperr.PublicMessage(err))
	assert.NoError(t, m.ExpectationsWereMet(), "no transaction may be opened")
}

func TestCapturePayment_Rejections(t *testing.T) {
	t.Run("missing intent id", func(t *testing.T) {
		svc, m, _ := newPaymentFixture(t)
		_, err := svc.CapturePayment(context.Background(), uuid.New(), " ")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("unknown order", func(t *testing.T) {
		svc, m, _ := newPaymentFixture(t)
		orderID := uuid.New()
		m.ExpectQuery(`FROM orders WHERE id = \$1`).WithArgs(orderID).WillReturnRows(sqlmock.NewRows(orderColumnNames))

		_, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("intent for another order", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		expectFindOrder(m, orderID, "pending")
		gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(succeededIntent(uuid.New()), nil).Once()

		_, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

		assert.Equal(t, apperr.KindPaymentNotCompleted, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("amount mismatch", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		expectFindOrder(m, orderID, "pending")
		intent := succeededIntent(orderID)
		intent.AmountMinor = 100
		gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(intent, nil).Once()

		_, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

		assert.Equal(t, apperr.KindPaymentNotCompleted, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("gateway error", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		expectFindOrder(m, orderID, "pending")
		gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(nil, errors.New("timeout")).Once()

		_, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})
}

func TestHandleWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	t.Run("invalid signature", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		gateway.On("ParseWebhook", payload, "bad").Return(nil, payment.ErrInvalidSignature).Once()

		err := svc.HandleWebhook(context.Background(), payload, "bad")

		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("already processed", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		gateway.On("ParseWebhook", payload, "sig").
			Return(&payment.WebhookEvent{ID: "evt_1", Type: payment.EventIntentSucceeded}, nil).Once()
		m.ExpectQuery(`SELECT EXISTS`).WithArgs("evt_1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("unknown event is acknowledged", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		gateway.On("ParseWebhook", payload, "sig").
			Return(&payment.WebhookEvent{ID: "evt_1", Type: "charge.refunded"}, nil).Once()
		m.ExpectQuery(`SELECT EXISTS`).WithArgs("evt_1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("payment failed marks order failed", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		gateway.On("ParseWebhook", payload, "sig").Return(&payment.WebhookEvent{
			ID:   "evt_1",
			Type: payment.EventIntentFailed,
			Intent: payment.Intent{
				ID:       "pi_1",
				Status:   payment.StatusRequiresPaymentMethod,
				Metadata: map[string]string{payment.MetadataOrderID: orderID.String()},
			},
		}, nil).Once()

		m.ExpectQuery(`SELECT EXISTS`).WithArgs("evt_1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		m.ExpectBegin()
		expectClaim(m, "evt_1", payment.EventIntentFailed, true)
		expectLock(m, orderID, "pending", "pending")
		m.ExpectQuery(`UPDATE orders SET`).
			WithArgs(orderID, models.PaymentStatusFailed, "pi_1", nil, nil, nil).
			WillReturnRows(orderRows(orderRow{
				id: orderID.String(), number: "RB-1-ABCDE", total: "60.00",
				paymentStatus: "failed", productionStatus: "pending", intentID: "pi_1",
			}))
		m.ExpectQuery(`INSERT INTO order_status_history`).WillReturnRows(historyRow())
		m.ExpectCommit()

		assert.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("failure after payment is acknowledged without change", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		gateway.On("ParseWebhook", payload, "sig").Return(&payment.WebhookEvent{
			ID:   "evt_1",
			Type: payment.EventIntentFailed,
			Intent: payment.Intent{
				ID:       "pi_1",
				Metadata: map[string]string{payment.MetadataOrderID: orderID.String()},
			},
		}, nil).Once()

		m.ExpectQuery(`SELECT EXISTS`).WithArgs("evt_1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		m.ExpectBegin()
		expectClaim(m, "evt_1", payment.EventIntentFailed, true)
		expectLock(m, orderID, "paid", "pending")
		m.ExpectRollback()
		m.ExpectExec(`INSERT INTO processed_events`).
			WithArgs("evt_1", payment.EventIntentFailed).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("succeeded event captures in one transaction", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		intent := succeededIntent(orderID)
		gateway.On("ParseWebhook", payload, "sig").Return(&payment.WebhookEvent{
			ID: "evt_2", Type: payment.EventIntentSucceeded, Intent: *intent,
		}, nil).Once()
		gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(intent, nil).Once()

		m.ExpectQuery(`SELECT EXISTS`).WithArgs("evt_2").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectFindOrder(m, orderID, "pending")
		m.ExpectBegin()
		expectClaim(m, "evt_2", payment.EventIntentSucceeded, true)
		expectLock(m, orderID, "pending", "pending")
		m.ExpectQuery(`UPDATE orders SET`).
			WithArgs(orderID, models.PaymentStatusPaid, "pi_1", nil, nil, nil).
			WillReturnRows(orderRows(orderRow{
				id: orderID.String(), number: "RB-1-ABCDE", total: "203.28",
				paymentStatus: "paid", productionStatus: "pending", intentID: "pi_1",
			}))
		m.ExpectQuery(`INSERT INTO order_status_history`).WillReturnRows(historyRow())
		m.ExpectCommit()

		assert.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("concurrent delivery skips the transition", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		intent := succeededIntent(orderID)
		gateway.On("ParseWebhook", payload, "sig").Return(&payment.WebhookEvent{
			ID: "evt_2", Type: payment.EventIntentSucceeded, Intent: *intent,
		}, nil).Once()
		gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(intent, nil).Once()

		m.ExpectQuery(`SELECT EXISTS`).WithArgs("evt_2").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		expectFindOrder(m, orderID, "pending")
		m.ExpectBegin()
		expectClaim(m, "evt_2", payment.EventIntentSucceeded, false)
		m.ExpectRollback()

		assert.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		assert.NoError(t, m.ExpectationsWereMet())
	})

	t.Run("failed claim is retried by the provider", func(t *testing.T) {
		svc, m, gateway := newPaymentFixture(t)
		orderID := uuid.New()
		gateway.On("ParseWebhook", payload, "sig").Return(&payment.WebhookEvent{
			ID:   "evt_3",
			Type: payment.EventIntentFailed,
			Intent: payment.Intent{
				ID:       "pi_1",
				Metadata: map[string]string{payment.MetadataOrderID: orderID.String()},
			},
		}, nil).Once()

		m.ExpectQuery(`SELECT EXISTS`).WithArgs("evt_3").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		m.ExpectBegin()
		m.ExpectQuery(`INSERT INTO processed_events`).
			WithArgs("evt_3", payment.EventIntentFailed).
			WillReturnError(errors.New("connection reset"))
		m.ExpectRollback()

		err := svc.HandleWebhook(context.Background(), payload, "sig")

		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
		assert.NoError(t, m.ExpectationsWereMet(), "nothing is written when the claim fails")
	})
}

func TestIntentMatchesOrder(t *testing.T) {
	order := &models.Order{ID: uuid.New(), Total: decimal.RequireFromString("203.28")}

	tests := []struct {
		name   string
		mutate func(*payment.Intent)
		want   bool
	}{
		{"matching intent", func(*payment.Intent) {}, true},
		{"currency case ignored", func(i *payment.Intent) { i.Currency = "USD" }, true},
		{"missing order metadata", func(i *payment.Intent) { i.Metadata = nil }, false},
		{"other order", func(i *payment.Intent) { i.Metadata[payment.MetadataOrderID] = uuid.NewString() }, false},
		{"other currency", func(i *payment.Intent) { i.Currency = "eur" }, false},
		{"other amount", func(i *payment.Intent) { i.AmountMinor = 20327 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := succeededIntent(order.ID)
			tt.mutate(intent)
			assert.Equal(t, tt.want, intentMatchesOrder(intent, order, "usd"))
		})
	}
}

func TestCapturePayment_IntentWithoutOrderMetadata(t *testing.T) {
	svc, m, gateway := newPaymentFixture(t)
	orderID := uuid.New()
	expectFindOrder(m, orderID, "pending")
	intent := succeededIntent(orderID)
	intent.Metadata = map[string]string{}
	gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(intent, nil).Once()

	_, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

	assert.Equal(t, apperr.KindPaymentNotCompleted, apperr.KindOf(err))
	assert.NoError(t, m.ExpectationsWereMet(), "no transaction may be opened")
}

func TestCapturePayment_CurrencyMismatch(t *testing.T) {
	svc, m, gateway := newPaymentFixture(t)
	orderID := uuid.New()
	expectFindOrder(m, orderID, "pending")
	intent := succeededIntent(orderID)
	intent.Currency = "jpy"
	gateway.On("RetrieveIntent", mock.Anything, "pi_1").Return(intent, nil).Once()

	_, err := svc.CapturePayment(context.Background(), orderID, "pi_1")

	assert.Equal(t, apperr.KindPaymentNotCompleted, apperr.KindOf(err))
	assert.NoError(t, m.ExpectationsWereMet())
}
