package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

func TestCheckout_CODTotals(t *testing.T) {
	h := newHarness(t)
	a := h.addProduct("12.50", 10)
	b := h.addProduct("7.25", 10)
	h.store.AddVoucher(domain.Voucher{
		Code:           "SAVE5",
		DiscountType:   domain.DiscountTypeFixed,
		DiscountValue:  dollars("5"),
		MinOrderAmount: dollars("30"),
		IsActive:       true,
	})

	req := h.request("COD", line(a, 2), line(b, 2))
	req.VoucherCode = "SAVE5"
	result := h.checkout(t, req)

	order := result.Order
	assert.True(t, dollars("39.50").Equal(order.Subtotal), "subtotal %s", order.Subtotal)
	assert.True(t, dollars("5").Equal(order.Discount))
	assert.True(t, dollars("5").Equal(order.ShippingFee))
	assert.True(t, dollars("39.50").Equal(order.Total), "total %s", order.Total)
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Empty(t, result.ClientSecret)
	assert.Len(t, result.Items, 2)

	stock, sold := h.stock(t, a.ID)
	assert.Equal(t, 8, stock)
	assert.Equal(t, 2, sold)

	v, err := h.repos.Voucher.GetByCode(context.Background(), "SAVE5")
	require.NoError(t, err)
	assert.Equal(t, 1, v.UsedCount)

	assert.Equal(t, []domain.OrderStatus{domain.OrderStatusProcessing}, h.statuses(t, order.ID))
	assert.Equal(t, []string{events.OrderPlaced}, h.publisher.EventTypes())
	h.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_CardCreatesIntent(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("60", 3)
	h.expectIntent("pi_card")

	result := h.checkout(t, h.request("CARD", line(p, 1)))

	assert.Equal(t, domain.OrderStatusPending, result.Order.Status)
	require.NotNil(t, result.Order.PaymentGatewayRef)
	assert.Equal(t, "pi_card", *result.Order.PaymentGatewayRef)
	assert.Equal(t, "pi_card_secret", result.ClientSecret)
	assert.True(t, result.Order.ShippingFee.IsZero())

	h.gateway.AssertCalled(t, "CreateIntent", mock.Anything, mock.MatchedBy(func(amount decimal.Decimal) bool {
		return amount.Equal(dollars("60"))
	}), "usd", mock.MatchedBy(func(meta map[string]string) bool {
		return meta["order_id"] == result.Order.ID.String()
	}))
}

func TestCheckout_MergesDuplicateLines(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("10", 5)

	result := h.checkout(t, h.request("COD", line(p, 2), line(p, 1)))

	require.Len(t, result.Items, 1)
	assert.Equal(t, 3, result.Items[0].Quantity)
	stock, _ := h.stock(t, p.ID)
	assert.Equal(t, 2, stock)
}

func TestCheckout_Validation(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("10", 5)
	inactive := h.store.AddProduct(domain.Product{ShopID: h.shopID, Name: "Gone", Price: dollars("1"), Stock: 5})
	ctx := context.Background()

	tests := []struct {
		name string
		req  CheckoutRequest
		code apperrors.Code
	}{
		{name: "empty cart", req: h.request("COD"), code: apperrors.CodeValidation},
		{name: "bad payment method", req: h.request("CASH", line(p, 1)), code: apperrors.CodeValidation},
		{name: "zero quantity", req: h.request("COD", line(p, 0)), code: apperrors.CodeValidation},
		{name: "unknown product", req: h.request("COD", CheckoutItem{ProductID: uuid.NewString(), Quantity: 1}), code: apperrors.CodeProductUnavailable},
		{name: "inactive product", req: h.request("COD", line(inactive, 1)), code: apperrors.CodeProductUnavailable},
		{name: "stock pre-check", req: h.request("COD", line(p, 6)), code: apperrors.CodeInsufficientStock},
		{name: "unknown voucher", req: CheckoutRequest{AddressID: h.address.ID.String(), Items: []CheckoutItem{line(p, 1)}, PaymentMethod: "COD", VoucherCode: "NOPE"}, code: apperrors.CodeVoucherInvalid},
		{name: "foreign address", req: CheckoutRequest{AddressID: uuid.NewString(), Items: []CheckoutItem{line(p, 1)}, PaymentMethod: "COD"}, code: apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Checkout.Checkout(ctx, h.buyer, tt.req)
			assert.Equal(t, tt.code, apperrors.CodeOf(err), "err: %v", err)
		})
	}

	stock, sold := h.stock(t, p.ID)
	assert.Equal(t, 5, stock)
	assert.Equal(t, 0, sold)
}

func TestCheckout_VoucherUsageLimit(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("40", 5)
	h.store.AddVoucher(domain.Voucher{
		Code:          "ONCE",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: dollars("1"),
		UsageLimit:    intPtr(1),
		IsActive:      true,
	})

	req := h.request("COD", line(p, 1))
	req.VoucherCode = "ONCE"
	h.checkout(t, req)

	_, err := h.svc.Checkout.Checkout(context.Background(), h.buyer, req)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeVoucherExhausted))

	stock, sold := h.stock(t, p.ID)
	assert.Equal(t, 4, stock)
	assert.Equal(t, 1, sold)
}

func TestCheckout_FailedPersistVoidsIntent(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("20", 1)
	flash := h.store.AddFlashSale(domain.FlashSaleWindow{
		StartTime: testNow.Add(-time.Minute),
		EndTime:   testNow.Add(time.Minute),
		IsActive:  true,
	}, domain.FlashSaleProduct{ProductID: p.ID, SalePrice: dollars("15"), StockLimit: 1})
	require.Len(t, flash, 1)

	// drain the pool between pricing and reservation
	require.NoError(t, h.repos.FlashSale.ReservePool(context.Background(), flash[0].ID, 1))
	h.expectIntent("pi_void")
	h.gateway.On("CancelIntent", mock.Anything, "pi_void").Return(nil).Once()
	h.svc.Checkout.pricing = &pricingResolver{repos: staleFlashRepos(h, flash[0]), cfg: h.svc.Pricing.cfg}

	_, err := h.svc.Checkout.Checkout(context.Background(), h.buyer, h.request("CARD", line(p, 1)))

	var stockErr *apperrors.ErrInsufficientStock
	require.True(t, errors.As(err, &stockErr), "err: %v", err)
	assert.True(t, stockErr.FlashSale)
	assert.Equal(t, p.ID, stockErr.ProductID)
	h.gateway.AssertCalled(t, "CancelIntent", mock.Anything, "pi_void")

	stock, _ := h.stock(t, p.ID)
	assert.Equal(t, 1, stock)
}

func TestCheckout_ConcurrentBuyersNeverOversell(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("10", 5)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		placed int
		short  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Checkout.Checkout(context.Background(), h.buyer, h.request("COD", line(p, 3)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case apperrors.HasCode(err, apperrors.CodeInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, placed)
	assert.Equal(t, 1, short)
	stock, sold := h.stock(t, p.ID)
	assert.Equal(t, 2, stock)
	assert.Equal(t, 3, sold)
}

func TestCheckout_FlashSaleConsumesPool(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("20", 10)
	flash := h.store.AddFlashSale(domain.FlashSaleWindow{
		StartTime: testNow.Add(-time.Minute),
		EndTime:   testNow.Add(time.Minute),
		IsActive:  true,
	}, domain.FlashSaleProduct{ProductID: p.ID, SalePrice: dollars("15"), StockLimit: 2})

	result := h.checkout(t, h.request("COD", line(p, 2)))
	require.Len(t, result.Items, 1)
	assert.Equal(t, domain.PriceSourceFlashSale, result.Items[0].PriceSource)
	require.NotNil(t, result.Items[0].FlashSaleProductID)
	assert.Equal(t, flash[0].ID, *result.Items[0].FlashSaleProductID)

	entry, err := h.repos.FlashSale.GetActiveForProduct(context.Background(), p.ID, testNow)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.SoldCount)

	// pool exhausted, the next order pays the base price
	second := h.checkout(t, h.request("COD", line(p, 1)))
	assert.Equal(t, domain.PriceSourceBase, second.Items[0].PriceSource)
}

// staleFlashSales reports a flash-sale entry as it was before its pool drained
type staleFlashSales struct {
	repository.FlashSaleRepository
	entry domain.FlashSaleProduct
}

func (s staleFlashSales) GetActiveForProduct(ctx context.Context, productID uuid.UUID, at time.Time) (*domain.FlashSaleProduct, error) {
	if productID != s.entry.ProductID {
		return s.FlashSaleRepository.GetActiveForProduct(ctx, productID, at)
	}
	entry := s.entry
	return &entry, nil
}

func staleFlashRepos(h *harness, entry domain.FlashSaleProduct) *repository.Repositories {
	repos := *h.repos
	repos.FlashSale = staleFlashSales{FlashSaleRepository: h.repos.FlashSale, entry: entry}
	return &repos
}
