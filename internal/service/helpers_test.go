package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/gateway"
	"github.com/jafarshop/orderengine/internal/mocks"
	"github.com/jafarshop/orderengine/internal/repository"
	"github.com/jafarshop/orderengine/internal/repository/memory"
)

const testWebhookSecret = "whsec_test"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store     *memory.Store
	repos     *repository.Repositories
	gateway   *mocks.MockPaymentGateway
	publisher *mocks.MockPublisher
	svc       *Services

	buyer   Actor
	seller  Actor
	admin   Actor
	address domain.Address
	shopID  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.New()
	repos := store.Repositories()
	gw := &mocks.MockPaymentGateway{}
	pub := &mocks.MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	cfg := &config.Config{
		Gateway: config.GatewayConfig{Currency: "usd"},
		Pricing: config.PricingConfig{
			ShippingFee:           decimal.NewFromInt(5),
			FreeShippingThreshold: decimal.NewFromInt(50),
		},
	}
	svc := New(cfg, Dependencies{
		Repos:     repos,
		Gateway:   gw,
		Verifier:  gateway.NewWebhookVerifier(testWebhookSecret, 5*time.Minute),
		Publisher: pub,
		Logger:    zap.NewNop(),
	})
	now := func() time.Time { return testNow }
	svc.Checkout.now = now
	svc.Payment.now = now
	svc.Cancellation.now = now
	svc.Tracking.now = now

	buyerID := uuid.New()
	shopID := uuid.New()
	h := &harness{
		store:     store,
		repos:     repos,
		gateway:   gw,
		publisher: pub,
		svc:       svc,
		buyer:     Actor{ID: buyerID, Role: domain.RoleBuyer},
		seller:    Actor{ID: uuid.New(), Role: domain.RoleSeller, ShopID: &shopID},
		admin:     Actor{ID: uuid.New(), Role: domain.RoleAdmin},
		shopID:    shopID,
	}
	h.address = store.AddAddress(domain.Address{
		UserID:        buyerID,
		RecipientName: "Test Buyer",
		Phone:         "+15550100",
		Street:        "1 Main St",
		City:          "Springfield",
		PostalCode:    "12345",
		Country:       "US",
	})
	return h
}

func (h *harness) addProduct(price string, stock int) domain.Product {
	return h.store.AddProduct(domain.Product{
		ShopID:   h.shopID,
		Name:     "Product " + price,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	})
}

func (h *harness) request(method string, lines ...CheckoutItem) CheckoutRequest {
	return CheckoutRequest{
		AddressID:     h.address.ID.String(),
		Items:         lines,
		PaymentMethod: method,
	}
}

func line(p domain.Product, qty int) CheckoutItem {
	return CheckoutItem{ProductID: p.ID.String(), Quantity: qty}
}

// expectIntent stubs CreateIntent to return a fresh intent with the given id
func (h *harness) expectIntent(id string) {
	h.gateway.On("CreateIntent", mock.Anything, mock.Anything, "usd", mock.Anything).
		Return(&gateway.Intent{ID: id, Status: gateway.IntentStatusRequiresPayment, ClientSecret: id + "_secret"}, nil).
		Once()
}

func (h *harness) checkout(t *testing.T, req CheckoutRequest) *CheckoutResult {
	t.Helper()
	result, err := h.svc.Checkout.Checkout(context.Background(), h.buyer, req)
	require.NoError(t, err)
	return result
}

func (h *harness) stock(t *testing.T, id uuid.UUID) (int, int) {
	t.Helper()
	p, err := h.repos.Product.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock, p.SoldCount
}

func (h *harness) statuses(t *testing.T, orderID uuid.UUID) []domain.OrderStatus {
	t.Helper()
	events, err := h.repos.Tracking.ListByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	out := make([]domain.OrderStatus, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}

func dollars(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
