package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

func newMock(t *testing.T) (*repository.Repositories, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepositories(db, zap.NewNop()), mock
}

func TestInventoryReserve(t *testing.T) {
	repos, mock := newMock(t)
	ctx := context.Background()
	productID := uuid.New()

	mock.ExpectExec("UPDATE products SET stock = stock - ").
		WithArgs(sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repos.Inventory.Reserve(ctx, productID, 3))

	mock.ExpectExec("UPDATE products SET stock = stock - ").
		WithArgs(sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repos.Inventory.Reserve(ctx, productID, 3)

	var stockErr *apperrors.ErrInsufficientStock
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, productID, stockErr.ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryReserve_DriverErrorIsTransient(t *testing.T) {
	repos, mock := newMock(t)

	mock.ExpectExec("UPDATE products").WillReturnError(errors.New("connection reset"))
	err := repos.Inventory.Reserve(context.Background(), uuid.New(), 1)

	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransient))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackWhenReservationFails(t *testing.T) {
	repos, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Inventory.Reserve(ctx, uuid.New(), 1); err != nil {
			return err
		}
		return tx.Inventory.Reserve(ctx, uuid.New(), 1)
	})

	assert.True(t, apperrors.HasCode(err, apperrors.CodeInsufficientStock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_Commits(t *testing.T) {
	repos, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repos.WithTx(ctx, func(tx *repository.Repositories) error {
		// nested calls join the outer transaction
		return tx.WithTx(ctx, func(inner *repository.Repositories) error {
			return inner.Inventory.Release(ctx, uuid.New(), 2)
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var orderCols = []string{
	"id", "buyer_id", "shipping_address", "subtotal", "discount", "shipping_fee", "total",
	"voucher_id", "voucher_code", "payment_method", "payment_status", "payment_gateway_ref",
	"paid_at", "delivered_at", "created_at", "updated_at", "status",
}

func TestOrderGetByID_ProjectsStatus(t *testing.T) {
	repos, mock := newMock(t)
	orderID := uuid.New()
	buyerID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("FROM orders o LEFT JOIN LATERAL").
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			orderID.String(), buyerID.String(), []byte(`{"city":"Amman"}`),
			"40.00", "5.00", "0.00", "35.00",
			nil, "SAVE5", "CARD", "UNPAID", "pi_123",
			nil, nil, now, now, "PENDING",
		))

	order, err := repos.Order.GetByID(context.Background(), orderID)
	require.NoError(t, err)

	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "Amman", order.ShippingAddress["city"])
	assert.Equal(t, "35", order.Total.String())
	require.NotNil(t, order.PaymentGatewayRef)
	assert.Equal(t, "pi_123", *order.PaymentGatewayRef)
	assert.Nil(t, order.VoucherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGetByIDForUpdate_LocksRow(t *testing.T) {
	repos, mock := newMock(t)

	mock.ExpectQuery("SELECT id FROM orders WHERE id = \\$1 FOR UPDATE").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repos.Order.GetByIDForUpdate(context.Background(), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGetByIDForUpdate_ReadsStatusAfterLock(t *testing.T) {
	repos, mock := newMock(t)
	orderID := uuid.New()
	now := time.Now()

	// the projection must be its own statement, issued once the lock is held
	mock.ExpectQuery("SELECT id FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(orderID.String()))
	mock.ExpectQuery("FROM orders o LEFT JOIN LATERAL .* WHERE o.id = \\$1$").
		WithArgs(orderID.String()).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			orderID.String(), uuid.New().String(), []byte(`{}`),
			"20.00", "0.00", "5.00", "25.00",
			nil, nil, "COD", "UNPAID", nil,
			nil, nil, now, now, "CANCELLED",
		))

	order, err := repos.Order.GetByIDForUpdate(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.False(t, order.Status.IsCancellable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGetByIDForUpdate_LockErrorIsTransient(t *testing.T) {
	repos, mock := newMock(t)

	mock.ExpectQuery("FOR UPDATE").WillReturnError(errors.New("deadlock detected"))

	_, err := repos.Order.GetByIDForUpdate(context.Background(), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransient))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderMarkPaid(t *testing.T) {
	repos, mock := newMock(t)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectExec("WHERE id = \\$1 AND payment_status = 'UNPAID'").WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := repos.Order.MarkPaid(ctx, id, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)

	mock.ExpectExec("payment_status = 'UNPAID'").WillReturnResult(sqlmock.NewResult(0, 0))
	applied, err = repos.Order.MarkPaid(ctx, id, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRedeem_Exhausted(t *testing.T) {
	repos, mock := newMock(t)

	mock.ExpectQuery("UPDATE vouchers SET used_count = used_count \\+ 1").
		WillReturnRows(sqlmock.NewRows([]string{"code"}))

	err := repos.Voucher.Redeem(context.Background(), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeVoucherExhausted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashSaleReservePool_Exhausted(t *testing.T) {
	repos, mock := newMock(t)

	mock.ExpectQuery("UPDATE flash_sale_products").
		WillReturnRows(sqlmock.NewRows([]string{"product_id"}))

	err := repos.FlashSale.ReservePool(context.Background(), uuid.New(), 2)

	var stockErr *apperrors.ErrInsufficientStock
	require.ErrorAs(t, err, &stockErr)
	assert.True(t, stockErr.FlashSale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlashSaleGetActive_NoneIsNil(t *testing.T) {
	repos, mock := newMock(t)

	mock.ExpectQuery("FROM flash_sale_products fp").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	entry, err := repos.FlashSale.GetActiveForProduct(context.Background(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestProductGetByIDs(t *testing.T) {
	repos, mock := newMock(t)
	a, b := uuid.New(), uuid.New()
	now := time.Now()
	cols := []string{"id", "shop_id", "name", "image_url", "price", "discount_price", "stock", "sold_count",
		"is_active", "free_shipping", "created_at", "updated_at"}

	mock.ExpectQuery("FROM products WHERE id = ANY").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(a.String(), uuid.NewString(), "Mug", nil, "12.50", "10.00", 4, 0, true, false, now, now))

	products, err := repos.Product.GetByIDs(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)

	require.Contains(t, products, a)
	assert.NotContains(t, products, b)
	require.NotNil(t, products[a].DiscountPrice)
	assert.Equal(t, "10", products[a].DiscountPrice.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingAppend_ReturnsSeq(t *testing.T) {
	repos, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO tracking_events").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	event := &domain.TrackingEvent{OrderID: uuid.New(), Status: domain.OrderStatusProcessing}
	require.NoError(t, repos.Tracking.Append(context.Background(), event))

	assert.Equal(t, int64(7), event.Seq)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
