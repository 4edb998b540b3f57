package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/gateway"
	"github.com/jafarshop/orderengine/internal/metrics"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

// PaymentGateway is the subset of the gateway client the core depends on
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*gateway.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*gateway.Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// CheckoutResult is the placed order. ClientSecret is only set for CARD.
type CheckoutResult struct {
	Order        *domain.Order
	Items        []*domain.OrderLineItem
	ClientSecret string
}

type checkoutService struct {
	repos     *repository.Repositories
	pricing   *pricingResolver
	gateway   PaymentGateway
	publisher events.Publisher
	currency  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckoutService creates the checkout orchestrator
func NewCheckoutService(
	repos *repository.Repositories,
	pricing *pricingResolver,
	gw PaymentGateway,
	publisher events.Publisher,
	currency string,
	logger *zap.Logger,
) *checkoutService {
	return &checkoutService{
		repos:     repos,
		pricing:   pricing,
		gateway:   gw,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
		now:       time.Now,
	}
}

// pricedLine is a cart line with its price fixed for the rest of checkout
type pricedLine struct {
	product  *domain.Product
	quantity int
	quote    PriceQuote
}

// Checkout prices the cart, opens a payment intent for CARD orders and then
// persists the order, its line items, every stock reservation and the first
// tracking event in one transaction.
func (s *checkoutService) Checkout(ctx context.Context, buyer Actor, req CheckoutRequest) (*CheckoutResult, error) {
	result, err := s.checkout(ctx, buyer, req)
	metrics.RecordOrderOperation("checkout", err == nil)
	return result, err
}

func (s *checkoutService) checkout(ctx context.Context, buyer Actor, req CheckoutRequest) (*CheckoutResult, error) {
	if buyer.ID == uuid.Nil {
		return nil, &apperrors.ErrUnauthorized{Message: "buyer identity required"}
	}

	input, err := req.normalize()
	if err != nil {
		return nil, err
	}

	address, err := s.repos.Address.GetByID(ctx, input.AddressID)
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		return nil, &apperrors.ErrValidation{Field: "address_id", Message: "address not found"}
	}
	if err != nil {
		return nil, err
	}
	if address.UserID != buyer.ID {
		return nil, &apperrors.ErrValidation{Field: "address_id", Message: "address does not belong to buyer"}
	}

	now := s.now()
	lines, err := s.priceLines(ctx, input.Lines, now)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	allFreeShipping := true
	for _, line := range lines {
		subtotal = subtotal.Add(line.quote.UnitPrice.Mul(decimal.NewFromInt(int64(line.quantity))))
		allFreeShipping = allFreeShipping && line.product.FreeShipping
	}
	subtotal = subtotal.Round(2)

	var voucher *domain.Voucher
	discount := decimal.Zero
	if input.VoucherCode != "" {
		voucher, discount, err = s.pricing.ResolveVoucher(ctx, input.VoucherCode, subtotal, now)
		if err != nil {
			return nil, err
		}
	}

	shippingFee := s.pricing.ShippingFee(subtotal, allFreeShipping)
	total := domain.OrderTotal(subtotal, discount, shippingFee)

	order := &domain.Order{
		ID:              uuid.New(),
		BuyerID:         buyer.ID,
		ShippingAddress: address.Snapshot(),
		Subtotal:        subtotal,
		Discount:        discount,
		ShippingFee:     shippingFee,
		Total:           total,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if voucher != nil {
		order.VoucherID = &voucher.ID
		order.VoucherCode = &voucher.Code
	}

	firstEvent := &domain.TrackingEvent{
		Status:      domain.OrderStatusProcessing,
		Description: "Order placed, cash on delivery",
		ActorID:     actorRef(buyer),
	}

	var clientSecret string
	if input.PaymentMethod == domain.PaymentMethodCard {
		if !total.IsPositive() {
			return nil, &apperrors.ErrValidation{Field: "payment_method", Message: "card payment requires a positive total"}
		}
		intent, err := s.gateway.CreateIntent(ctx, total, s.currency, map[string]string{
			"order_id": order.ID.String(),
			"buyer_id": buyer.ID.String(),
		})
		if err != nil {
			s.logger.Error("Failed to create payment intent", zap.String("order_id", order.ID.String()), zap.Error(err))
			return nil, err
		}
		order.PaymentGatewayRef = &intent.ID
		clientSecret = intent.ClientSecret
		firstEvent.Status = domain.OrderStatusPending
		firstEvent.Description = "Order placed, awaiting payment"
	}

	items := make([]*domain.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		item := &domain.OrderLineItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ProductID:    line.product.ID,
			ShopID:       line.product.ShopID,
			ProductName:  line.product.Name,
			ProductImage: line.product.ImageURL,
			Quantity:     line.quantity,
			UnitPrice:    line.quote.UnitPrice,
			PriceSource:  line.quote.Source,
			CreatedAt:    now,
		}
		if line.quote.FlashSale != nil {
			id := line.quote.FlashSale.ID
			item.FlashSaleProductID = &id
		}
		items = append(items, item)
	}

	err = s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.Order.Create(ctx, order); err != nil {
			return err
		}
		if err := tx.OrderItem.CreateBatch(ctx, items); err != nil {
			return err
		}
		if err := reserveItems(ctx, tx, items); err != nil {
			return err
		}
		if voucher != nil {
			if err := tx.Voucher.Redeem(ctx, voucher.ID); err != nil {
				if apperrors.HasCode(err, apperrors.CodeVoucherExhausted) {
					return &apperrors.ErrVoucherExhausted{VoucherCode: voucher.Code}
				}
				return err
			}
		}
		firstEvent.OrderID = order.ID
		firstEvent.CreatedAt = now
		return tx.Tracking.Append(ctx, firstEvent)
	})
	if err != nil {
		var stockErr *apperrors.ErrInsufficientStock
		if apperrors.As(err, &stockErr) {
			metrics.RecordReservationFailure(stockErr.FlashSale)
		}
		s.logger.Warn("Checkout rolled back",
			zap.String("order_id", order.ID.String()),
			zap.String("buyer_id", buyer.ID.String()),
			zap.Error(err),
		)
		if order.PaymentGatewayRef != nil {
			s.voidIntent(ctx, *order.PaymentGatewayRef)
		}
		return nil, err
	}

	order.Status = firstEvent.Status

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("buyer_id", buyer.ID.String()),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("payment_method", string(order.PaymentMethod)),
	)
	publish(ctx, s.publisher, s.logger, events.OrderPlaced, order)

	return &CheckoutResult{Order: order, Items: items, ClientSecret: clientSecret}, nil
}

// priceLines loads and prices every line. The stock comparison here is a
// pre-check only; reservation inside the transaction is authoritative.
func (s *checkoutService) priceLines(ctx context.Context, lines []cartLine, at time.Time) ([]pricedLine, error) {
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	products, err := s.repos.Product.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	priced := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.IsActive {
			return nil, &apperrors.ErrProductUnavailable{ProductID: line.ProductID}
		}

		quote, err := s.pricing.ResolveUnitPrice(ctx, product, line.Quantity, at)
		if err != nil {
			return nil, err
		}
		if line.Quantity > product.Stock {
			return nil, &apperrors.ErrInsufficientStock{ProductID: product.ID, Requested: line.Quantity}
		}

		priced = append(priced, pricedLine{product: product, quantity: line.Quantity, quote: quote})
	}
	return priced, nil
}

// reserveItems decrements stock (and flash-sale pools) in product id order so
// concurrent checkouts over overlapping carts lock rows in the same order.
func reserveItems(ctx context.Context, tx *repository.Repositories, items []*domain.OrderLineItem) error {
	ordered := append([]*domain.OrderLineItem(nil), items...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ProductID.String() < ordered[j].ProductID.String()
	})

	for _, item := range ordered {
		if item.FlashSaleProductID != nil {
			if err := tx.FlashSale.ReservePool(ctx, *item.FlashSaleProductID, item.Quantity); err != nil {
				if apperrors.HasCode(err, apperrors.CodeInsufficientStock) {
					return &apperrors.ErrInsufficientStock{ProductID: item.ProductID, Requested: item.Quantity, FlashSale: true}
				}
				return err
			}
		}
		if err := tx.Inventory.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// voidIntent cancels the intent of a checkout that failed to persist
func (s *checkoutService) voidIntent(ctx context.Context, intentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		s.logger.Warn("Failed to cancel orphaned payment intent", zap.String("intent_id", intentID), zap.Error(err))
	}
}
