package service

import (
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/cache"
	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/repository"
)

// Services wires every order operation to one set of repositories
type Services struct {
	Pricing      *pricingResolver
	Checkout     *checkoutService
	Payment      *paymentService
	Cancellation *cancellationService
	Tracking     *trackingService
	Orders       *orderQueryService
}

// Dependencies are the collaborators shared by the services. Cache may be nil.
type Dependencies struct {
	Repos     *repository.Repositories
	Gateway   PaymentGateway
	Verifier  WebhookVerifier
	Cache     cache.Cache
	Publisher events.Publisher
	Logger    *zap.Logger
}

func New(cfg *config.Config, deps Dependencies) *Services {
	pricing := NewPricingResolver(deps.Repos, cfg.Pricing)
	return &Services{
		Pricing:      pricing,
		Checkout:     NewCheckoutService(deps.Repos, pricing, deps.Gateway, deps.Publisher, cfg.Gateway.Currency, deps.Logger),
		Payment:      NewPaymentService(deps.Repos, deps.Gateway, deps.Verifier, deps.Cache, deps.Publisher, deps.Logger),
		Cancellation: NewCancellationService(deps.Repos, deps.Gateway, deps.Publisher, deps.Logger),
		Tracking:     NewTrackingService(deps.Repos, deps.Publisher, deps.Logger),
		Orders:       NewOrderQueryService(deps.Repos, deps.Logger),
	}
}
