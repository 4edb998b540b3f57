package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// PriceQuote is the effective unit price of one product at checkout time
type PriceQuote struct {
	UnitPrice decimal.Decimal
	Source    domain.PriceSource
	FlashSale *domain.FlashSaleProduct
}

type pricingResolver struct {
	repos *repository.Repositories
	cfg   config.PricingConfig
}

// NewPricingResolver creates the pricing resolver
func NewPricingResolver(repos *repository.Repositories, cfg config.PricingConfig) *pricingResolver {
	return &pricingResolver{
		repos: repos,
		cfg:   cfg,
	}
}

// ResolveUnitPrice applies the precedence flash sale, then discount price,
// then base price. A flash sale only applies while its pool can still cover
// quantity; the two prices are never combined.
func (p *pricingResolver) ResolveUnitPrice(ctx context.Context, product *domain.Product, quantity int, at time.Time) (PriceQuote, error) {
	flash, err := p.repos.FlashSale.GetActiveForProduct(ctx, product.ID, at)
	if err != nil {
		return PriceQuote{}, err
	}
	if flash != nil && flash.HasCapacity(quantity) {
		return PriceQuote{UnitPrice: flash.SalePrice, Source: domain.PriceSourceFlashSale, FlashSale: flash}, nil
	}
	if product.DiscountPrice != nil {
		return PriceQuote{UnitPrice: *product.DiscountPrice, Source: domain.PriceSourceDiscount}, nil
	}
	return PriceQuote{UnitPrice: product.Price, Source: domain.PriceSourceBase}, nil
}

// ResolveVoucher loads a voucher by code and computes its discount on subtotal
func (p *pricingResolver) ResolveVoucher(ctx context.Context, code string, subtotal decimal.Decimal, at time.Time) (*domain.Voucher, decimal.Decimal, error) {
	voucher, err := p.repos.Voucher.GetByCode(ctx, code)
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		return nil, decimal.Zero, &apperrors.ErrVoucherInvalid{VoucherCode: code, Reason: "not found"}
	}
	if err != nil {
		return nil, decimal.Zero, err
	}

	discount, err := ApplyVoucher(voucher, subtotal, at)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return voucher, discount, nil
}

// ApplyVoucher validates a voucher against subtotal and returns the discount
func ApplyVoucher(v *domain.Voucher, subtotal decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if !v.IsActive {
		return decimal.Zero, &apperrors.ErrVoucherInvalid{VoucherCode: v.Code, Reason: "inactive"}
	}
	if v.ExpiresAt != nil && !at.Before(*v.ExpiresAt) {
		return decimal.Zero, &apperrors.ErrVoucherInvalid{VoucherCode: v.Code, Reason: "expired"}
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return decimal.Zero, &apperrors.ErrVoucherExhausted{VoucherCode: v.Code}
	}
	if subtotal.LessThan(v.MinOrderAmount) {
		return decimal.Zero, &apperrors.ErrVoucherMinimumNotMet{VoucherCode: v.Code, Minimum: v.MinOrderAmount, Subtotal: subtotal}
	}

	var discount decimal.Decimal
	switch v.DiscountType {
	case domain.DiscountTypePercentage:
		discount = subtotal.Mul(v.DiscountValue).Div(hundred).Round(2)
		if v.MaxDiscount != nil && discount.GreaterThan(*v.MaxDiscount) {
			discount = *v.MaxDiscount
		}
	case domain.DiscountTypeFixed:
		discount = v.DiscountValue
	default:
		return decimal.Zero, &apperrors.ErrVoucherInvalid{VoucherCode: v.Code, Reason: "unknown discount type"}
	}
	return discount, nil
}

// ShippingFee is waived once subtotal reaches the free-shipping threshold,
// or when every product in the order ships free.
func (p *pricingResolver) ShippingFee(subtotal decimal.Decimal, allFreeShipping bool) decimal.Decimal {
	if allFreeShipping || subtotal.GreaterThanOrEqual(p.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.cfg.ShippingFee
}
