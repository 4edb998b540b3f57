package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jafarshop/orderengine/internal/domain"
)

// AddProduct stores a product, assigning an ID if unset
func (s *Store) AddProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
	}
	cp := p
	s.state.products[p.ID] = &cp
	return p
}

// AddVoucher stores a voucher keyed by its code
func (s *Store) AddVoucher(v domain.Voucher) domain.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	cp := v
	s.state.vouchers[v.ID] = &cp
	s.state.voucherCodes[v.Code] = v.ID
	return v
}

// AddFlashSale stores a window and its product entries
func (s *Store) AddFlashSale(window domain.FlashSaleWindow, entries ...domain.FlashSaleProduct) []domain.FlashSaleProduct {
	s.mu.Lock()
	defer s.mu.Unlock()

	if window.ID == uuid.Nil {
		window.ID = uuid.New()
	}
	out := make([]domain.FlashSaleProduct, 0, len(entries))
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.FlashSaleID = window.ID
		e.Window = window
		cp := e
		s.state.flashSales[e.ID] = &cp
		out = append(out, e)
	}
	return out
}

// AddAddress stores a buyer address
func (s *Store) AddAddress(a domain.Address) domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := a
	s.state.addresses[a.ID] = &cp
	return a
}

// Fixture is the JSON seed format accepted by LoadFixture
type Fixture struct {
	Products []struct {
		ID            uuid.UUID        `json:"id"`
		ShopID        uuid.UUID        `json:"shop_id"`
		Name          string           `json:"name"`
		ImageURL      *string          `json:"image_url"`
		Price         decimal.Decimal  `json:"price"`
		DiscountPrice *decimal.Decimal `json:"discount_price"`
		Stock         int              `json:"stock"`
		IsActive      *bool            `json:"is_active"`
		FreeShipping  bool             `json:"free_shipping"`
	} `json:"products"`
	Vouchers []struct {
		ID             uuid.UUID        `json:"id"`
		Code           string           `json:"code"`
		DiscountType   string           `json:"discount_type"`
		DiscountValue  decimal.Decimal  `json:"discount_value"`
		MaxDiscount    *decimal.Decimal `json:"max_discount"`
		MinOrderAmount decimal.Decimal  `json:"min_order_amount"`
		UsageLimit     *int             `json:"usage_limit"`
		ExpiresAt      *time.Time       `json:"expires_at"`
	} `json:"vouchers"`
	FlashSales []struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
		Products  []struct {
			ProductID  uuid.UUID       `json:"product_id"`
			SalePrice  decimal.Decimal `json:"sale_price"`
			StockLimit int             `json:"stock_limit"`
		} `json:"products"`
	} `json:"flash_sales"`
	Addresses []struct {
		ID            uuid.UUID `json:"id"`
		UserID        uuid.UUID `json:"user_id"`
		RecipientName string    `json:"recipient_name"`
		Phone         string    `json:"phone"`
		Street        string    `json:"street"`
		City          string    `json:"city"`
		State         *string   `json:"state"`
		PostalCode    string    `json:"postal_code"`
		Country       string    `json:"country"`
	} `json:"addresses"`
}

// LoadFixture seeds the store from a JSON file
func (s *Store) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}

	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}

	for _, p := range f.Products {
		active := p.IsActive == nil || *p.IsActive
		s.AddProduct(domain.Product{
			ID:            p.ID,
			ShopID:        p.ShopID,
			Name:          p.Name,
			ImageURL:      p.ImageURL,
			Price:         p.Price,
			DiscountPrice: p.DiscountPrice,
			Stock:         p.Stock,
			IsActive:      active,
			FreeShipping:  p.FreeShipping,
		})
	}

	for _, v := range f.Vouchers {
		discountType := domain.DiscountType(strings.ToUpper(v.DiscountType))
		if discountType != domain.DiscountTypePercentage && discountType != domain.DiscountTypeFixed {
			return fmt.Errorf("voucher %s: unknown discount type %q", v.Code, v.DiscountType)
		}
		s.AddVoucher(domain.Voucher{
			ID:             v.ID,
			Code:           v.Code,
			DiscountType:   discountType,
			DiscountValue:  v.DiscountValue,
			MaxDiscount:    v.MaxDiscount,
			MinOrderAmount: v.MinOrderAmount,
			UsageLimit:     v.UsageLimit,
			ExpiresAt:      v.ExpiresAt,
			IsActive:       true,
		})
	}

	for _, fs := range f.FlashSales {
		entries := make([]domain.FlashSaleProduct, 0, len(fs.Products))
		for _, p := range fs.Products {
			entries = append(entries, domain.FlashSaleProduct{
				ProductID:  p.ProductID,
				SalePrice:  p.SalePrice,
				StockLimit: p.StockLimit,
			})
		}
		s.AddFlashSale(domain.FlashSaleWindow{
			ID:        fs.ID,
			Name:      fs.Name,
			StartTime: fs.StartTime,
			EndTime:   fs.EndTime,
			IsActive:  true,
		}, entries...)
	}

	for _, a := range f.Addresses {
		s.AddAddress(domain.Address{
			ID:            a.ID,
			UserID:        a.UserID,
			RecipientName: a.RecipientName,
			Phone:         a.Phone,
			Street:        a.Street,
			City:          a.City,
			State:         a.State,
			PostalCode:    a.PostalCode,
			Country:       a.Country,
		})
	}

	return nil
}
