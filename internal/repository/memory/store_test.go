package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

func newProduct(s *Store, stock int) domain.Product {
	return s.AddProduct(domain.Product{
		ShopID:   uuid.New(),
		Name:     "Widget",
		Price:    decimal.NewFromInt(10),
		Stock:    stock,
		IsActive: true,
	})
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := New()
	p := newProduct(s, 5)
	repos := s.Repositories()
	ctx := context.Background()

	boom := errors.New("boom")
	err := repos.WithTx(ctx, func(tx *repository.Repositories) error {
		require.NoError(t, tx.Inventory.Reserve(ctx, p.ID, 2))
		require.NoError(t, tx.Order.Create(ctx, &domain.Order{BuyerID: uuid.New()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repos.Product.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, 0, got.SoldCount)

	orders, err := repos.Order.ListByStatus(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	s := New()
	p := newProduct(s, 5)
	repos := s.Repositories()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, failures := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repos.Inventory.Reserve(ctx, p.ID, 3)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeInsufficientStock))
				failures++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, failures)
	got, _ := repos.Product.GetByID(ctx, p.ID)
	assert.Equal(t, 2, got.Stock)
	assert.Equal(t, 3, got.SoldCount)
}

func TestRelease_ClampsSoldCount(t *testing.T) {
	s := New()
	p := newProduct(s, 1)
	repos := s.Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Inventory.Release(ctx, p.ID, 4))

	got, _ := repos.Product.GetByID(ctx, p.ID)
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, 0, got.SoldCount)

	// unknown products are tolerated
	assert.NoError(t, repos.Inventory.Release(ctx, uuid.New(), 1))
}

func TestVoucherRedeem_StopsAtLimit(t *testing.T) {
	s := New()
	limit := 1
	v := s.AddVoucher(domain.Voucher{Code: "ONCE", DiscountType: domain.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1), UsageLimit: &limit, IsActive: true})
	repos := s.Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Voucher.Redeem(ctx, v.ID))
	err := repos.Voucher.Redeem(ctx, v.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeVoucherExhausted))

	got, err := repos.Voucher.GetByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)
}

func TestFlashSalePool(t *testing.T) {
	s := New()
	p := newProduct(s, 100)
	now := time.Now()
	entries := s.AddFlashSale(domain.FlashSaleWindow{
		Name:      "noon",
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
		IsActive:  true,
	}, domain.FlashSaleProduct{ProductID: p.ID, SalePrice: decimal.NewFromInt(5), StockLimit: 3})
	repos := s.Repositories()
	ctx := context.Background()

	active, err := repos.FlashSale.GetActiveForProduct(ctx, p.ID, now)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, entries[0].ID, active.ID)

	none, err := repos.FlashSale.GetActiveForProduct(ctx, p.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, none, "window end is exclusive")

	require.NoError(t, repos.FlashSale.ReservePool(ctx, active.ID, 3))
	err = repos.FlashSale.ReservePool(ctx, active.ID, 1)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInsufficientStock))

	require.NoError(t, repos.FlashSale.ReleasePool(ctx, active.ID, 2))
	assert.NoError(t, repos.FlashSale.ReservePool(ctx, active.ID, 2))
}

func TestOrderStatus_ProjectedFromLatestEvent(t *testing.T) {
	s := New()
	repos := s.Repositories()
	ctx := context.Background()

	order := &domain.Order{BuyerID: uuid.New(), PaymentStatus: domain.PaymentStatusUnpaid}
	require.NoError(t, repos.Order.Create(ctx, order))
	require.NoError(t, repos.Tracking.Append(ctx, &domain.TrackingEvent{OrderID: order.ID, Status: domain.OrderStatusPending}))
	require.NoError(t, repos.Tracking.Append(ctx, &domain.TrackingEvent{OrderID: order.ID, Status: domain.OrderStatusProcessing}))

	got, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, got.Status)

	events, err := repos.Tracking.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Less(t, events[0].Seq, events[1].Seq)

	applied, err := repos.Order.MarkPaid(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repos.Order.MarkPaid(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestLoadFixture(t *testing.T) {
	productID := uuid.New()
	fixture := `{
		"products": [{"id": "` + productID.String() + `", "shop_id": "` + uuid.NewString() + `", "name": "Mug", "price": "12.50", "stock": 4}],
		"vouchers": [{"code": "SAVE5", "discount_type": "fixed", "discount_value": "5", "min_order_amount": "30"}],
		"flash_sales": [{"name": "noon", "start_time": "2020-01-01T00:00:00Z", "end_time": "2099-01-01T00:00:00Z",
			"products": [{"product_id": "` + productID.String() + `", "sale_price": "9.99", "stock_limit": 2}]}]
	}`
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	s := New()
	require.NoError(t, s.LoadFixture(path))

	repos := s.Repositories()
	ctx := context.Background()

	p, err := repos.Product.GetByID(ctx, productID)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.50")))

	v, err := repos.Voucher.GetByCode(ctx, "SAVE5")
	require.NoError(t, err)
	assert.Equal(t, domain.DiscountTypeFixed, v.DiscountType)

	fs, err := repos.FlashSale.GetActiveForProduct(ctx, productID, time.Now())
	require.NoError(t, err)
	require.NotNil(t, fs)
	assert.Equal(t, 2, fs.StockLimit)
}
