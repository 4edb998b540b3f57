package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/events"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

func TestCancel_RestoresInventory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.addProduct("20", 10)
	flashed := h.addProduct("30", 10)
	flash := h.store.AddFlashSale(domain.FlashSaleWindow{
		StartTime: testNow.Add(-time.Hour),
		EndTime:   testNow.Add(time.Hour),
		IsActive:  true,
	}, domain.FlashSaleProduct{ProductID: flashed.ID, SalePrice: dollars("15"), StockLimit: 5})
	h.store.AddVoucher(domain.Voucher{
		Code:          "TAKE1",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: dollars("1"),
		IsActive:      true,
	})

	req := h.request("COD", line(p, 3), line(flashed, 2))
	req.VoucherCode = "TAKE1"
	order := h.checkout(t, req).Order

	cancelled, err := h.svc.Cancellation.Cancel(ctx, h.buyer, order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	stock, sold := h.stock(t, p.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 0, sold)
	stock, sold = h.stock(t, flashed.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 0, sold)

	entry, err := h.repos.FlashSale.GetActiveForProduct(ctx, flashed.ID, testNow)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, flash[0].ID, entry.ID)
	assert.Equal(t, 0, entry.SoldCount)

	// voucher usage stays consumed
	v, err := h.repos.Voucher.GetByCode(ctx, "TAKE1")
	require.NoError(t, err)
	assert.Equal(t, 1, v.UsedCount)

	history := h.statuses(t, order.ID)
	assert.Equal(t, []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusCancelled}, history)
	assert.Equal(t, []string{events.OrderPlaced, events.OrderCancelled}, h.publisher.EventTypes())
	h.gateway.AssertNotCalled(t, "CancelIntent", mock.Anything, mock.Anything)
}

func TestCancel_SecondCancelReleasesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.addProduct("20", 4)
	order := h.checkout(t, h.request("COD", line(p, 2))).Order

	_, err := h.svc.Cancellation.Cancel(ctx, h.buyer, order.ID, "")
	require.NoError(t, err)

	_, err = h.svc.Cancellation.Cancel(ctx, h.buyer, order.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOrderNotCancellable))

	stock, sold := h.stock(t, p.ID)
	assert.Equal(t, 4, stock)
	assert.Equal(t, 0, sold)
	assert.Len(t, h.statuses(t, order.ID), 2)
}

func TestCancel_ConcurrentCancelsReleaseOnce(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("20", 6)
	order := h.checkout(t, h.request("COD", line(p, 2))).Order

	const callers = 8
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.svc.Cancellation.Cancel(context.Background(), h.buyer, order.ID, "")
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodeOrderNotCancellable), "err: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	stock, sold := h.stock(t, p.ID)
	assert.Equal(t, 6, stock)
	assert.Equal(t, 0, sold)
	assert.Equal(t, []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusCancelled}, h.statuses(t, order.ID))
}

func TestCancel_RacingTrackingAppend(t *testing.T) {
	h := newHarness(t)
	p := h.addProduct("20", 6)
	order := h.checkout(t, h.request("COD", line(p, 2))).Order

	var cancelErr, confirmErr error
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, cancelErr = h.svc.Cancellation.Cancel(context.Background(), h.buyer, order.ID, "")
	}()
	go func() {
		defer wg.Done()
		<-start
		_, confirmErr = h.svc.Tracking.AppendEvent(context.Background(), h.seller, order.ID, TrackingUpdateRequest{Status: "CONFIRMED"})
	}()
	close(start)
	wg.Wait()

	history := h.statuses(t, order.ID)
	require.Len(t, history, 2)
	stock, _ := h.stock(t, p.ID)

	if cancelErr == nil {
		assert.True(t, apperrors.HasCode(confirmErr, apperrors.CodeOrderAlreadyFinalized), "confirm: %v", confirmErr)
		assert.Equal(t, domain.OrderStatusCancelled, history[1])
		assert.Equal(t, 6, stock)
		return
	}
	require.NoError(t, confirmErr)
	assert.True(t, apperrors.HasCode(cancelErr, apperrors.CodeOrderNotCancellable), "cancel: %v", cancelErr)
	assert.Equal(t, domain.OrderStatusConfirmed, history[1])
	assert.Equal(t, 4, stock)
}

func TestCancel_UnpaidCardVoidsIntent(t *testing.T) {
	h := newHarness(t)
	order := h.cardOrder(t, "pi_cancel")
	h.gateway.On("CancelIntent", mock.Anything, "pi_cancel").Return(assert.AnError).Once()

	// a gateway failure does not undo the cancellation
	cancelled, err := h.svc.Cancellation.Cancel(context.Background(), h.seller, order.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	h.gateway.AssertExpectations(t)
}

func TestCancel_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.addProduct("20", 10)

	t.Run("stranger", func(t *testing.T) {
		order := h.checkout(t, h.request("COD", line(p, 1))).Order
		otherShop := uuid.New()
		seller := Actor{ID: uuid.New(), Role: domain.RoleSeller, ShopID: &otherShop}
		_, err := h.svc.Cancellation.Cancel(ctx, seller, order.ID, "")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	})

	t.Run("delivered", func(t *testing.T) {
		order := h.checkout(t, h.request("COD", line(p, 1))).Order
		for _, status := range []string{"CONFIRMED", "SHIPPED", "DELIVERED"} {
			_, err := h.svc.Tracking.AppendEvent(ctx, h.seller, order.ID, TrackingUpdateRequest{Status: status})
			require.NoError(t, err)
		}
		_, err := h.svc.Cancellation.Cancel(ctx, h.admin, order.ID, "")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeOrderNotCancellable))
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := h.svc.Cancellation.Cancel(ctx, h.admin, uuid.New(), "")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	})

	stock, _ := h.stock(t, p.ID)
	assert.Equal(t, 8, stock)
}
