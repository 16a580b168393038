package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/grocery-cart/internal/cache"
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/events"
	"github.com/fjod/grocery-cart/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memCartRepo is an in-memory cart store with the same compare-and-swap
// behaviour as the Mongo repository.
type memCartRepo struct {
	m     sync.Mutex
	carts map[primitive.ObjectID]*domain.Cart
	now   func() time.Time

	getErr  error
	saveErr error
	// beforeGet runs at the start of GetCart, outside the lock.
	beforeGet func()
	// beforeSave runs inside SaveCart before the version check, outside the lock.
	beforeSave func(cart *domain.Cart)
	saves      int
	conflicts  int
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{
		carts: make(map[primitive.ObjectID]*domain.Cart),
		now:   time.Now,
	}
}

func (m *memCartRepo) GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	if m.beforeGet != nil {
		m.beforeGet()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return c.Clone(), nil
}

func (m *memCartRepo) SaveCart(_ context.Context, cart *domain.Cart) error {
	if m.beforeSave != nil {
		m.beforeSave(cart)
	}

	m.m.Lock()
	defer m.m.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}

	stored, exists := m.carts[cart.UserID]
	switch {
	case cart.ID.IsZero() && exists:
		m.conflicts++
		return repository.ErrVersionConflict
	case !cart.ID.IsZero() && (!exists || stored.Version != cart.Version):
		m.conflicts++
		return repository.ErrVersionConflict
	}

	next := cart.Clone()
	now := m.now()
	if next.ID.IsZero() {
		next.ID = primitive.NewObjectID()
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	next.Version = cart.Version + 1
	m.carts[cart.UserID] = next
	m.saves++

	*cart = *next.Clone()
	return nil
}

func (m *memCartRepo) FindCarts(_ context.Context, f repository.CartFilter) ([]domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := []domain.Cart{}
	for _, c := range m.carts {
		if f.Match(c) {
			out = append(out, *c.Clone())
		}
	}
	if f.NewestFirst {
		sortNewestFirst(out)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// put stores c as-is, bypassing version checks.
func (m *memCartRepo) put(c *domain.Cart) {
	m.m.Lock()
	defer m.m.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	m.carts[c.UserID] = c.Clone()
}

func (m *memCartRepo) stored(userID primitive.ObjectID) *domain.Cart {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil
	}
	return c.Clone()
}

func (m *memCartRepo) count() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.carts)
}

func sortNewestFirst(carts []domain.Cart) {
	for i := 1; i < len(carts); i++ {
		for j := i; j > 0 && carts[j].UpdatedAt.After(carts[j-1].UpdatedAt); j-- {
			carts[j], carts[j-1] = carts[j-1], carts[j]
		}
	}
}

type mockCatalog struct {
	m        sync.RWMutex
	products map[primitive.ObjectID]*domain.Product
	users    map[primitive.ObjectID]*domain.User

	productErr error
	userErr    error
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		products: make(map[primitive.ObjectID]*domain.Product),
		users:    make(map[primitive.ObjectID]*domain.User),
	}
}

func (m *mockCatalog) addProduct(p *domain.Product) *domain.Product {
	m.m.Lock()
	defer m.m.Unlock()
	m.products[p.ID] = p
	return p
}

func (m *mockCatalog) addUser(name, email string) primitive.ObjectID {
	m.m.Lock()
	defer m.m.Unlock()
	id := primitive.NewObjectID()
	m.users[id] = &domain.User{ID: id, Name: name, Email: email, Role: domain.RoleCustomer}
	return id
}

func (m *mockCatalog) setPrice(id primitive.ObjectID, price, discount float64) {
	m.m.Lock()
	defer m.m.Unlock()
	p := *m.products[id]
	p.Price = price
	p.Discount = discount
	p.FinalPrice = domain.LineFinalPrice(price, discount)
	m.products[id] = &p
}

func (m *mockCatalog) setStock(id primitive.ObjectID, stock int) {
	m.m.Lock()
	defer m.m.Unlock()
	p := *m.products[id]
	p.StockQty = stock
	m.products[id] = &p
}

func (m *mockCatalog) GetProduct(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.productErr != nil {
		return nil, m.productErr
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockCatalog) GetProducts(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.productErr != nil {
		return nil, m.productErr
	}
	out := make(map[primitive.ObjectID]*domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *mockCatalog) ProductIDsByVendor(_ context.Context, vendorID primitive.ObjectID) ([]primitive.ObjectID, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.productErr != nil {
		return nil, m.productErr
	}
	var ids []primitive.ObjectID
	for id, p := range m.products {
		if p.VendorID == vendorID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockCatalog) GetUser(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.userErr != nil {
		return nil, m.userErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *mockCatalog) GetUsers(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.userErr != nil {
		return nil, m.userErr
	}
	out := make(map[primitive.ObjectID]*domain.User)
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// mockCache keeps the version floor semantics of the Redis cache.
type mockCache struct {
	m       sync.RWMutex
	carts   map[primitive.ObjectID]*domain.Cart
	floors  map[primitive.ObjectID]int64
	err     error
	deletes int
	fills   int
	// beforeSet runs at the start of Set, outside the lock.
	beforeSet func()
}

func newMockCache() *mockCache {
	return &mockCache{
		carts:  make(map[primitive.ObjectID]*domain.Cart),
		floors: make(map[primitive.ObjectID]int64),
	}
}

func (m *mockCache) Get(_ context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Set(_ context.Context, userID primitive.ObjectID, cart *domain.Cart) error {
	if m.beforeSet != nil {
		m.beforeSet()
	}

	m.m.Lock()
	defer m.m.Unlock()
	m.fills++
	if m.err != nil {
		return m.err
	}
	if cart.Version < m.floors[userID] {
		return nil
	}
	m.carts[userID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID primitive.ObjectID, version int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.carts, userID)
	if version > m.floors[userID] {
		m.floors[userID] = version
	}
	return m.err
}

func (m *mockCache) fillCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.fills
}

func (m *mockCache) getCart(userID primitive.ObjectID) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[userID]
}

type recordingPublisher struct {
	m      sync.Mutex
	events []events.CartEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.CartEvent) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.EventType {
	p.m.Lock()
	defer p.m.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
