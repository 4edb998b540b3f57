// Package memory is an in-process implementation of the repository
// contracts. A single store-wide mutex makes every statement atomic and a
// transaction holds that mutex until it commits or rolls back, so the
// conditional updates behave as they do in Postgres. It backs
// STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/repository"
)

// Store owns all in-memory state
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	products     map[uuid.UUID]*domain.Product
	flashSales   map[uuid.UUID]*domain.FlashSaleProduct
	vouchers     map[uuid.UUID]*domain.Voucher
	voucherCodes map[string]uuid.UUID
	orders       map[uuid.UUID]*domain.Order
	items        map[uuid.UUID][]*domain.OrderLineItem
	tracking     map[uuid.UUID][]*domain.TrackingEvent
	addresses    map[uuid.UUID]*domain.Address
	staff        map[uuid.UUID]*domain.StaffAccount
	seq          int64
}

// New creates an empty store
func New() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		products:     make(map[uuid.UUID]*domain.Product),
		flashSales:   make(map[uuid.UUID]*domain.FlashSaleProduct),
		vouchers:     make(map[uuid.UUID]*domain.Voucher),
		voucherCodes: make(map[string]uuid.UUID),
		orders:       make(map[uuid.UUID]*domain.Order),
		items:        make(map[uuid.UUID][]*domain.OrderLineItem),
		tracking:     make(map[uuid.UUID][]*domain.TrackingEvent),
		addresses:    make(map[uuid.UUID]*domain.Address),
		staff:        make(map[uuid.UUID]*domain.StaffAccount),
	}
}

// clone copies every mutable record. Line items and tracking events are
// never mutated after insert, so only the slices are copied.
func (s *state) clone() *state {
	c := newState()
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, f := range s.flashSales {
		cp := *f
		c.flashSales[id] = &cp
	}
	for id, v := range s.vouchers {
		cp := *v
		c.vouchers[id] = &cp
	}
	for code, id := range s.voucherCodes {
		c.voucherCodes[code] = id
	}
	for id, o := range s.orders {
		cp := *o
		c.orders[id] = &cp
	}
	for id, items := range s.items {
		c.items[id] = append([]*domain.OrderLineItem(nil), items...)
	}
	for id, events := range s.tracking {
		c.tracking[id] = append([]*domain.TrackingEvent(nil), events...)
	}
	for id, a := range s.addresses {
		c.addresses[id] = a
	}
	for id, st := range s.staff {
		cp := *st
		c.staff[id] = &cp
	}
	c.seq = s.seq
	return c
}

// Repositories returns repositories that lock per statement
func (s *Store) Repositories() *repository.Repositories {
	return s.bind(false)
}

// WithTx holds the store lock for the whole callback and restores the
// pre-transaction snapshot if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx *repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(s.bind(true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) bind(inTx bool) *repository.Repositories {
	v := &view{store: s, inTx: inTx}
	repos := &repository.Repositories{
		Product:   &productRepository{v},
		Inventory: &inventoryRepository{v},
		FlashSale: &flashSaleRepository{v},
		Voucher:   &voucherRepository{v},
		Order:     &orderRepository{v},
		OrderItem: &orderItemRepository{v},
		Tracking:  &trackingRepository{v},
		Address:   &addressRepository{v},
		Staff:     &staffRepository{v},
	}
	if inTx {
		repos.Tx = nestedTx{repos: repos}
	} else {
		repos.Tx = s
	}
	return repos
}

// view runs statements against the store, taking the lock unless it is
// already held by an enclosing transaction.
type view struct {
	store *Store
	inTx  bool
}

func (v *view) do(fn func(st *state) error) error {
	if !v.inTx {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	return fn(v.store.state)
}

// nestedTx joins the enclosing transaction
type nestedTx struct {
	repos *repository.Repositories
}

func (n nestedTx) WithTx(_ context.Context, fn func(tx *repository.Repositories) error) error {
	return fn(n.repos)
}
