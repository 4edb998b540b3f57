package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type productRepository struct{ v *view }

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var out *domain.Product
	err := r.v.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "product", ID: id.String()}
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	err := r.v.do(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				cp := *p
				out[id] = &cp
			}
		}
		return nil
	})
	return out, err
}

type inventoryRepository struct{ v *view }

func (r *inventoryRepository) Reserve(ctx context.Context, productID uuid.UUID, quantity int) error {
	return r.v.do(func(st *state) error {
		p, ok := st.products[productID]
		if !ok || p.Stock < quantity {
			return &apperrors.ErrInsufficientStock{ProductID: productID, Requested: quantity}
		}
		p.Stock -= quantity
		p.SoldCount += quantity
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (r *inventoryRepository) Release(ctx context.Context, productID uuid.UUID, quantity int) error {
	return r.v.do(func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return nil
		}
		p.Stock += quantity
		p.SoldCount -= quantity
		if p.SoldCount < 0 {
			p.SoldCount = 0
		}
		p.UpdatedAt = time.Now()
		return nil
	})
}

type flashSaleRepository struct{ v *view }

func (r *flashSaleRepository) GetActiveForProduct(ctx context.Context, productID uuid.UUID, at time.Time) (*domain.FlashSaleProduct, error) {
	var out *domain.FlashSaleProduct
	err := r.v.do(func(st *state) error {
		for _, f := range st.flashSales {
			if f.ProductID != productID || !f.Window.Contains(at) {
				continue
			}
			if out == nil || f.Window.StartTime.Before(out.Window.StartTime) {
				cp := *f
				out = &cp
			}
		}
		return nil
	})
	return out, err
}

func (r *flashSaleRepository) ReservePool(ctx context.Context, flashSaleProductID uuid.UUID, quantity int) error {
	return r.v.do(func(st *state) error {
		f, ok := st.flashSales[flashSaleProductID]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "flash sale product", ID: flashSaleProductID.String()}
		}
		if !f.HasCapacity(quantity) {
			return &apperrors.ErrInsufficientStock{ProductID: f.ProductID, Requested: quantity, FlashSale: true}
		}
		f.SoldCount += quantity
		return nil
	})
}

func (r *flashSaleRepository) ReleasePool(ctx context.Context, flashSaleProductID uuid.UUID, quantity int) error {
	return r.v.do(func(st *state) error {
		f, ok := st.flashSales[flashSaleProductID]
		if !ok {
			return nil
		}
		f.SoldCount -= quantity
		if f.SoldCount < 0 {
			f.SoldCount = 0
		}
		return nil
	})
}

type voucherRepository struct{ v *view }

func (r *voucherRepository) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	var out *domain.Voucher
	err := r.v.do(func(st *state) error {
		id, ok := st.voucherCodes[code]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "voucher", ID: code}
		}
		cp := *st.vouchers[id]
		out = &cp
		return nil
	})
	return out, err
}

func (r *voucherRepository) Redeem(ctx context.Context, voucherID uuid.UUID) error {
	return r.v.do(func(st *state) error {
		v, ok := st.vouchers[voucherID]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "voucher", ID: voucherID.String()}
		}
		if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
			return &apperrors.ErrVoucherExhausted{VoucherCode: v.Code}
		}
		v.UsedCount++
		return nil
	})
}

type orderRepository struct{ v *view }

// project returns a copy of o with Status taken from its latest tracking event
func (st *state) project(o *domain.Order) *domain.Order {
	cp := *o
	if events := st.tracking[o.ID]; len(events) > 0 {
		cp.Status = events[len(events)-1].Status
	}
	return &cp
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	return r.v.do(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return &apperrors.ErrConflict{Message: "order already exists: " + order.ID.String()}
		}
		cp := *order
		cp.Status = ""
		st.orders[order.ID] = &cp
		return nil
	})
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var out *domain.Order
	err := r.v.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "order", ID: id.String()}
		}
		out = st.project(o)
		return nil
	})
	return out, err
}

// GetByIDForUpdate is GetByID; inside a transaction the store lock is already held
func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepository) GetByGatewayRef(ctx context.Context, ref string) (*domain.Order, error) {
	var out *domain.Order
	err := r.v.do(func(st *state) error {
		for _, o := range st.orders {
			if o.PaymentGatewayRef != nil && *o.PaymentGatewayRef == ref {
				out = st.project(o)
				return nil
			}
		}
		return &apperrors.ErrNotFound{Resource: "order", ID: ref}
	})
	return out, err
}

func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	applied := false
	err := r.v.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "order", ID: id.String()}
		}
		if o.PaymentStatus == domain.PaymentStatusPaid {
			return nil
		}
		o.PaymentStatus = domain.PaymentStatusPaid
		o.PaidAt = &paidAt
		o.UpdatedAt = paidAt
		applied = true
		return nil
	})
	return applied, err
}

func (r *orderRepository) SetDeliveredAt(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	return r.v.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "order", ID: id.String()}
		}
		o.DeliveredAt = &deliveredAt
		o.UpdatedAt = deliveredAt
		return nil
	})
}

func (r *orderRepository) ListByBuyerID(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]*domain.Order, error) {
	return r.list(func(st *state, o *domain.Order) bool { return o.BuyerID == buyerID }, limit, offset)
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	return r.list(func(st *state, o *domain.Order) bool { return st.project(o).Status == status }, limit, offset)
}

func (r *orderRepository) list(match func(st *state, o *domain.Order) bool, limit, offset int) ([]*domain.Order, error) {
	var out []*domain.Order
	err := r.v.do(func(st *state) error {
		for _, o := range st.orders {
			if match(st, o) {
				out = append(out, st.project(o))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// newest first, matching the postgres ORDER BY created_at DESC
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []*domain.Order{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type orderItemRepository struct{ v *view }

func (r *orderItemRepository) CreateBatch(ctx context.Context, items []*domain.OrderLineItem) error {
	now := time.Now()
	return r.v.do(func(st *state) error {
		for _, item := range items {
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			cp := *item
			st.items[item.OrderID] = append(st.items[item.OrderID], &cp)
		}
		return nil
	})
}

func (r *orderItemRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderLineItem, error) {
	var out []*domain.OrderLineItem
	err := r.v.do(func(st *state) error {
		for _, item := range st.items[orderID] {
			cp := *item
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

type trackingRepository struct{ v *view }

func (r *trackingRepository) Append(ctx context.Context, event *domain.TrackingEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.v.do(func(st *state) error {
		if _, ok := st.orders[event.OrderID]; !ok {
			return &apperrors.ErrNotFound{Resource: "order", ID: event.OrderID.String()}
		}
		st.seq++
		event.Seq = st.seq
		cp := *event
		st.tracking[event.OrderID] = append(st.tracking[event.OrderID], &cp)
		return nil
	})
}

func (r *trackingRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.TrackingEvent, error) {
	var out []*domain.TrackingEvent
	err := r.v.do(func(st *state) error {
		for _, e := range st.tracking[orderID] {
			cp := *e
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

type addressRepository struct{ v *view }

func (r *addressRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	var out *domain.Address
	err := r.v.do(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "address", ID: id.String()}
		}
		cp := *a
		out = &cp
		return nil
	})
	return out, err
}

type staffRepository struct{ v *view }

func (r *staffRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.StaffAccount, error) {
	var candidates []domain.StaffAccount
	_ = r.v.do(func(st *state) error {
		for _, s := range st.staff {
			if s.IsActive {
				candidates = append(candidates, *s)
			}
		}
		return nil
	})

	// bcrypt runs outside the lock
	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].APIKeyHash), []byte(apiKey)) == nil {
			return &candidates[i], nil
		}
	}
	return nil, &apperrors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *staffRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StaffAccount, error) {
	var out *domain.StaffAccount
	err := r.v.do(func(st *state) error {
		s, ok := st.staff[id]
		if !ok {
			return &apperrors.ErrNotFound{Resource: "staff account", ID: id.String()}
		}
		cp := *s
		out = &cp
		return nil
	})
	return out, err
}

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffAccount) error {
	now := time.Now()
	if staff.ID == uuid.Nil {
		staff.ID = uuid.New()
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = now
	}
	if staff.UpdatedAt.IsZero() {
		staff.UpdatedAt = now
	}
	return r.v.do(func(st *state) error {
		cp := *staff
		st.staff[staff.ID] = &cp
		return nil
	})
}
