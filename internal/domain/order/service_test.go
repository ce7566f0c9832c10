package order

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/commerce-engine/internal/domain/address"
	"github.com/xenking/commerce-engine/internal/domain/coupon"
	"github.com/xenking/commerce-engine/internal/domain/product"
)

// --- In-memory store ---

// memStore keeps products, orders and coupon usage in maps. Do snapshots
// the mutable state and restores it when fn fails.
type memStore struct {
	products  map[string]product.Product
	addresses map[string]address.Address
	orders    map[string]*Order
	numbers   map[string]bool
	redeemed  map[string]int
	limits    map[string]int

	getErr    error
	insertErr []error
	commits   int
	rollbacks int
}

func newMemStore(products ...product.Product) *memStore {
	s := &memStore{
		products:  map[string]product.Product{},
		addresses: map[string]address.Address{"addr-1": {ID: "addr-1", UserID: "user-1"}},
		orders:    map[string]*Order{},
		numbers:   map[string]bool{},
		redeemed:  map[string]int{},
		limits:    map[string]int{},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) List(_ context.Context, _ bool) ([]product.Product, error) {
	return nil, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) FindOwnedByUser(_ context.Context, id, userID string) (*address.Address, error) {
	a, ok := s.addresses[id]
	if !ok || a.UserID != userID {
		return nil, address.ErrNotFound
	}
	return &a, nil
}

func (s *memStore) Get(_ context.Context, id string) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (s *memStore) Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	products := maps.Clone(s.products)
	orders := maps.Clone(s.orders)
	numbers := maps.Clone(s.numbers)
	redeemed := maps.Clone(s.redeemed)

	if err := fn(ctx, s); err != nil {
		s.products, s.orders, s.numbers, s.redeemed = products, orders, numbers, redeemed
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

func (s *memStore) DecrementStock(_ context.Context, id string, qty int) error {
	p, ok := s.products[id]
	if !ok || !p.TrackStock || p.Stock < qty {
		return ErrOutOfStock
	}
	p.Stock -= qty
	s.products[id] = p
	return nil
}

func (s *memStore) IncrementStock(_ context.Context, id string, qty int) error {
	p, ok := s.products[id]
	if !ok || !p.TrackStock {
		return nil
	}
	p.Stock += qty
	s.products[id] = p
	return nil
}

func (s *memStore) RedeemCoupon(_ context.Context, code string) error {
	if limit, ok := s.limits[code]; ok && s.redeemed[code] >= limit {
		return &coupon.InvalidError{Code: code, Reason: coupon.ReasonUsageLimit}
	}
	s.redeemed[code]++
	return nil
}

func (s *memStore) ReleaseCoupon(_ context.Context, code string) error {
	if s.redeemed[code] > 0 {
		s.redeemed[code]--
	}
	return nil
}

func (s *memStore) InsertOrder(_ context.Context, o *Order) error {
	if len(s.insertErr) > 0 {
		err := s.insertErr[0]
		s.insertErr = s.insertErr[1:]
		if err != nil {
			return err
		}
	}
	if s.numbers[o.Number] {
		return ErrDuplicateNumber
	}
	s.numbers[o.Number] = true
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *memStore) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	return s.Get(ctx, id)
}

func (s *memStore) UpdateStatus(_ context.Context, o *Order) error {
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}

type mockCoupons struct {
	result *coupon.Result
	err    error
	calls  []decimal.Decimal
}

func (m *mockCoupons) Validate(_ context.Context, _ string, total decimal.Decimal) (*coupon.Result, error) {
	m.calls = append(m.calls, total)
	return m.result, m.err
}

type mockNotifier struct {
	placed  []string
	changed []string
	err     error
}

func (m *mockNotifier) OrderPlaced(_ context.Context, o *Order) error {
	m.placed = append(m.placed, o.Number)
	return m.err
}

func (m *mockNotifier) StatusChanged(_ context.Context, o *Order, from Status) error {
	m.changed = append(m.changed, fmt.Sprintf("%s:%s->%s", o.Number, from, o.Status))
	return m.err
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func tracked(id, price string, stock int) product.Product {
	return product.Product{ID: id, Name: "Product " + id, Price: d(price), Active: true, TrackStock: true, Stock: stock}
}

type fixture struct {
	store    *memStore
	coupons  *mockCoupons
	notifier *mockNotifier
	svc      *Service
}

func newFixture(products ...product.Product) *fixture {
	f := &fixture{
		store:    newMemStore(products...),
		coupons:  &mockCoupons{},
		notifier: &mockNotifier{},
	}
	f.svc = NewService(Deps{
		Products:  f.store,
		Addresses: f.store,
		Coupons:   f.coupons,
		Orders:    f.store,
		UoW:       f.store,
		Notifier:  f.notifier,
		Shipping:  ShippingPolicy{FreeThreshold: d("299.00"), FlatFee: d("19.90")},
	})
	f.svc.now = func() time.Time { return fixedNow }
	var seq int
	f.svc.newNumber = func(time.Time) string {
		seq++
		return fmt.Sprintf("ORD-TEST-%d", seq)
	}
	return f
}

func (f *fixture) create(t *testing.T, items ...LineRequest) (*Order, error) {
	t.Helper()
	return f.svc.Create(context.Background(), CreateRequest{
		UserID:    "user-1",
		AddressID: "addr-1",
		Items:     items,
	})
}

func (f *fixture) stock(id string) int {
	return f.store.products[id].Stock
}

// --- Tests ---

func TestCreate_Totals(t *testing.T) {
	tests := []struct {
		name         string
		items        []LineRequest
		wantSubtotal string
		wantShipping string
	}{
		{
			name:         "below free shipping threshold",
			items:        []LineRequest{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
			wantSubtotal: "40.00",
			wantShipping: "19.90",
		},
		{
			name:         "exactly at threshold ships free",
			items:        []LineRequest{{ProductID: "p3", Quantity: 1}},
			wantSubtotal: "299.00",
			wantShipping: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tracked("p1", "10.00", 5), tracked("p2", "20.00", 5), tracked("p3", "299.00", 5))

			o, err := f.create(t, tt.items...)
			require.NoError(t, err)

			assert.Equal(t, StatusPending, o.Status)
			assert.True(t, d(tt.wantSubtotal).Equal(o.Subtotal), "subtotal %s", o.Subtotal)
			assert.True(t, d(tt.wantShipping).Equal(o.ShippingCost), "shipping %s", o.ShippingCost)
			assert.True(t, o.Subtotal.Add(o.ShippingCost).Equal(o.Total))
			assert.True(t, o.Discount.IsZero())

			sum := decimal.Zero
			for _, item := range o.Items {
				assert.True(t, item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Equal(item.TotalPrice))
				sum = sum.Add(item.TotalPrice)
			}
			assert.True(t, sum.Equal(o.Subtotal))
			assert.Equal(t, []string{o.Number}, f.notifier.placed)
		})
	}
}

func TestCreate_DecrementsStockAndSnapshotsPrice(t *testing.T) {
	f := newFixture(tracked("p1", "10.00", 5))

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 3, Variant: "blue"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock("p1"))

	// Later catalog price changes do not touch the stored order.
	p := f.store.products["p1"]
	p.Price = d("99.00")
	f.store.products["p1"] = p

	stored, err := f.svc.Get(context.Background(), o.ID, Actor{UserID: "user-1"})
	require.NoError(t, err)
	assert.True(t, d("10.00").Equal(stored.Items[0].UnitPrice))
	assert.Equal(t, "Product p1", stored.Items[0].ProductName)
	assert.Equal(t, "blue", stored.Items[0].Variant)
}

func TestCreate_UntrackedProductHasNoStockLimit(t *testing.T) {
	digital := product.Product{ID: "ebook", Name: "E-book", Price: d("5"), Active: true}
	f := newFixture(digital)

	_, err := f.create(t, LineRequest{ProductID: "ebook", Quantity: 1000})
	require.NoError(t, err)
	assert.Zero(t, f.stock("ebook"))
}

func TestCreate_ValidationErrors(t *testing.T) {
	inactive := tracked("off", "10", 5)
	inactive.Active = false

	tests := []struct {
		name   string
		req    CreateRequest
		assert func(t *testing.T, err error)
	}{
		{
			name: "empty items",
			req:  CreateRequest{UserID: "user-1", AddressID: "addr-1"},
			assert: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyItems)
			},
		},
		{
			name: "zero quantity",
			req:  CreateRequest{UserID: "user-1", AddressID: "addr-1", Items: []LineRequest{{ProductID: "p1"}}},
			assert: func(t *testing.T, err error) {
				var e *InvalidQuantityError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "p1", e.ProductID)
			},
		},
		{
			name: "address of another user",
			req:  CreateRequest{UserID: "user-2", AddressID: "addr-1", Items: []LineRequest{{ProductID: "p1", Quantity: 1}}},
			assert: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrAddressNotFound)
			},
		},
		{
			name: "unknown product",
			req:  CreateRequest{UserID: "user-1", AddressID: "addr-1", Items: []LineRequest{{ProductID: "missing", Quantity: 1}}},
			assert: func(t *testing.T, err error) {
				var e *ProductNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "missing", e.ProductID)
			},
		},
		{
			name: "inactive product",
			req:  CreateRequest{UserID: "user-1", AddressID: "addr-1", Items: []LineRequest{{ProductID: "off", Quantity: 1}}},
			assert: func(t *testing.T, err error) {
				var e *ProductUnavailableError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name: "duplicate lines exceed stock together",
			req: CreateRequest{UserID: "user-1", AddressID: "addr-1", Items: []LineRequest{
				{ProductID: "p1", Quantity: 3},
				{ProductID: "p1", Quantity: 3},
			}},
			assert: func(t *testing.T, err error) {
				var e *InsufficientStockError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, 6, e.Requested)
				assert.Equal(t, 5, e.Available)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tracked("p1", "10", 5), inactive)

			o, err := f.svc.Create(context.Background(), tt.req)
			assert.Nil(t, o)
			tt.assert(t, err)
			assert.Equal(t, 5, f.stock("p1"))
			assert.Empty(t, f.store.orders)
			assert.Zero(t, f.store.commits+f.store.rollbacks, "no unit of work is started")
		})
	}
}

func TestCreate_AllOrNothingWhenOneLineIsOutOfStock(t *testing.T) {
	var products []product.Product
	var items []LineRequest
	for i := 1; i <= 12; i++ {
		stock := 10
		if i == 7 {
			stock = 0
		}
		id := fmt.Sprintf("p%d", i)
		products = append(products, tracked(id, "10", stock))
		items = append(items, LineRequest{ProductID: id, Quantity: 1})
	}
	f := newFixture(products...)

	_, err := f.create(t, items...)

	var e *InsufficientStockError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "p7", e.ProductID)
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("p%d", i)
		assert.Equal(t, f.store.products[id].Stock, products[i-1].Stock, "stock of %s unchanged", id)
	}
	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.notifier.placed)
}

func TestCreate_StockRaceRollsBackEarlierLines(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5), tracked("p2", "10", 1))

	// Another checkout takes p2 between validation and the transaction.
	f.store.getErr = nil
	prods, err := f.store.GetByIDs(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	stale := make(map[string]product.Product)
	for _, p := range prods {
		stale[p.ID] = p
	}
	p2 := f.store.products["p2"]
	p2.Stock = 0
	f.store.products["p2"] = p2

	o := &Order{ID: "o1", Number: "N1", Items: []Item{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}}
	err = f.store.Do(context.Background(), func(ctx context.Context, tx Tx) error {
		return f.svc.reserve(ctx, tx, o, stale)
	})

	var e *InsufficientStockError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "p2", e.ProductID)
	assert.Equal(t, 5, f.stock("p1"))
	assert.Empty(t, f.store.orders)
	assert.Equal(t, 1, f.store.rollbacks)
}

func TestCreate_LastUnitSoldOnce(t *testing.T) {
	f := newFixture(tracked("p1", "10", 1))

	_, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	_, err = f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	var e *InsufficientStockError
	require.ErrorAs(t, err, &e)
	assert.Zero(t, f.stock("p1"))
	assert.Len(t, f.store.orders, 1)
}

func TestCreate_RetriesNumberCollision(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	f.store.insertErr = []error{ErrDuplicateNumber, ErrDuplicateNumber}

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "ORD-TEST-3", o.Number)
	assert.Equal(t, 4, f.stock("p1"))
	assert.Equal(t, 2, f.store.rollbacks)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	f.store.insertErr = []error{ErrDuplicateNumber, ErrDuplicateNumber, ErrDuplicateNumber}

	_, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	require.ErrorIs(t, err, ErrDuplicateNumber)
	assert.Equal(t, 5, f.stock("p1"))
	assert.Empty(t, f.store.orders)
}

func TestCreate_PersistenceFailureAbortsEverything(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	f.store.insertErr = []error{errors.New("connection reset")}

	_, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert order")
	assert.Equal(t, 5, f.stock("p1"))
}

func TestCreate_WithCoupon(t *testing.T) {
	f := newFixture(tracked("p1", "199.90", 5))
	f.coupons.result = &coupon.Result{Code: "DESCONTO10", Discount: d("19.99"), FinalTotal: d("179.91")}

	o, err := f.svc.Create(context.Background(), CreateRequest{
		UserID:     "user-1",
		AddressID:  "addr-1",
		Items:      []LineRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "desconto10",
	})
	require.NoError(t, err)

	require.Len(t, f.coupons.calls, 1)
	assert.True(t, d("199.90").Equal(f.coupons.calls[0]), "validated against subtotal")
	assert.Equal(t, "DESCONTO10", o.CouponCode)
	assert.True(t, d("19.99").Equal(o.Discount))
	assert.True(t, d("199.90").Add(d("19.90")).Sub(d("19.99")).Equal(o.Total))
	assert.Equal(t, 1, f.store.redeemed["DESCONTO10"])
}

func TestCreate_InvalidCouponWritesNothing(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	f.coupons.err = &coupon.InvalidError{Code: "OLD", Reason: coupon.ReasonExpired}

	_, err := f.svc.Create(context.Background(), CreateRequest{
		UserID:     "user-1",
		AddressID:  "addr-1",
		Items:      []LineRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "OLD",
	})
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Equal(t, 5, f.stock("p1"))
	assert.Empty(t, f.store.redeemed)
}

func TestCreate_CouponLimitReachedInTransactionRollsBack(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	f.coupons.result = &coupon.Result{Code: "ONCE", Discount: d("1")}
	f.store.limits["ONCE"] = 0

	_, err := f.svc.Create(context.Background(), CreateRequest{
		UserID:     "user-1",
		AddressID:  "addr-1",
		Items:      []LineRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "ONCE",
	})
	var e *coupon.InvalidError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, coupon.ReasonUsageLimit, e.Reason)
	assert.Equal(t, 5, f.stock("p1"))
	assert.Empty(t, f.store.orders)
}

func TestCreate_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	f.notifier.err = errors.New("smtp down")

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Len(t, f.store.orders, 1)
}

func TestCancel_RestoresStock(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5), tracked("p2", "20", 3))
	ctx := context.Background()

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 2}, LineRequest{ProductID: "p2", Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 3, f.stock("p1"))
	require.Equal(t, 0, f.stock("p2"))

	cancelled, err := f.svc.Cancel(ctx, o.ID, Actor{UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, f.stock("p1"))
	assert.Equal(t, 3, f.stock("p2"))
	assert.Equal(t, []string{o.Number + ":PENDING->CANCELLED"}, f.notifier.changed)
}

func TestCancel_ReleasesCoupon(t *testing.T) {
	f := newFixture(tracked("p1", "199.90", 5))
	f.coupons.result = &coupon.Result{Code: "DESCONTO10", Discount: d("19.99"), FinalTotal: d("179.91")}
	ctx := context.Background()

	o, err := f.svc.Create(ctx, CreateRequest{
		UserID:     "user-1",
		AddressID:  "addr-1",
		Items:      []LineRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "DESCONTO10",
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.redeemed["DESCONTO10"])

	_, err = f.svc.Cancel(ctx, o.ID, Actor{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.redeemed["DESCONTO10"])
	assert.Equal(t, 5, f.stock("p1"))

	_, err = f.svc.Cancel(ctx, o.ID, Actor{UserID: "user-1"})
	require.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, 0, f.store.redeemed["DESCONTO10"], "released exactly once")
}

func TestCancel_Rejections(t *testing.T) {
	for _, status := range []Status{StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(tracked("p1", "10", 5))
			ctx := context.Background()

			o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 2})
			require.NoError(t, err)
			f.store.orders[o.ID].Status = status

			_, err = f.svc.Cancel(ctx, o.ID, Actor{Admin: true})
			require.ErrorIs(t, err, ErrNotCancellable)
			assert.Equal(t, 3, f.stock("p1"), "stock unchanged")
			assert.Equal(t, status, f.store.orders[o.ID].Status, "status unchanged")
		})
	}

	t.Run("other buyer", func(t *testing.T) {
		f := newFixture(tracked("p1", "10", 5))
		o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 2})
		require.NoError(t, err)

		_, err = f.svc.Cancel(context.Background(), o.ID, Actor{UserID: "user-2"})
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 3, f.stock("p1"))
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Cancel(context.Background(), "nope", Actor{Admin: true})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCancel_Twice(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	ctx := context.Background()

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, o.ID, Actor{UserID: "user-1"})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, o.ID, Actor{UserID: "user-1"})
	require.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, 5, f.stock("p1"), "stock restored exactly once")
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	ctx := context.Background()

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	paid, err := f.svc.UpdateStatus(ctx, o.ID, StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Nil(t, paid.ShippedAt)

	// Same status is a no-op.
	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusPaid)
	require.NoError(t, err)

	shipped, err := f.svc.UpdateStatus(ctx, o.ID, StatusShipped)
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedAt)

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusProcessing)
	var e *InvalidTransitionError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, StatusShipped, e.From)
	assert.Equal(t, StatusProcessing, e.To)

	delivered, err := f.svc.UpdateStatus(ctx, o.ID, StatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusCancelled)
	require.ErrorIs(t, err, ErrNotCancellable)

	assert.Len(t, f.notifier.changed, 3)
	assert.True(t, strings.HasSuffix(f.notifier.changed[2], "SHIPPED->DELIVERED"))
}

func TestUpdateStatus_CancelledRestoresStock(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	ctx := context.Background()

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 4})
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 5, f.stock("p1"))

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusPaid)
	var e *InvalidTransitionError
	require.ErrorAs(t, err, &e)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	f := newFixture()
	_, err := f.svc.UpdateStatus(context.Background(), "x", Status("LOST"))
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(tracked("p1", "10", 5))
	ctx := context.Background()

	o, err := f.create(t, LineRequest{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, o.ID, Actor{UserID: "user-1"})
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, o.ID, Actor{Admin: true})
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, o.ID, Actor{UserID: "user-2"})
	require.ErrorIs(t, err, ErrNotFound)

	list, err := f.svc.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusShipped, true},
		{StatusPaid, StatusProcessing, true},
		{StatusShipped, StatusDelivered, true},
		{StatusPending, StatusCancelled, true},
		{StatusPaid, StatusCancelled, false},
		{StatusPaid, StatusPending, false},
		{StatusDelivered, StatusShipped, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusPaid, false},
		{StatusPaid, StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNewNumber(t *testing.T) {
	a := NewNumber(fixedNow)
	b := NewNumber(fixedNow)

	assert.True(t, strings.HasPrefix(a, "ORD-"))
	parts := strings.Split(a, "-")
	require.Len(t, parts, 3)
	assert.Len(t, parts[2], 4)
	assert.Equal(t, parts[1], strings.Split(b, "-")[1], "same timestamp part")
}
