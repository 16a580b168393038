package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/grocery-cart/internal/cache"
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/events"
	"github.com/fjod/grocery-cart/internal/metrics"
	"github.com/fjod/grocery-cart/internal/repository"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

const DefaultWriteRetries = 3

// readTimeout bounds a cart lookup shared by concurrent readers.
const readTimeout = 5 * time.Second

const (
	opAdd     = "cart.add"
	opUpdate  = "cart.update_quantity"
	opRemove  = "cart.remove"
	opClear   = "cart.clear"
	opGet     = "cart.get"
	opSummary = "cart.summary"
)

const (
	msgProductNotFound   = "Product not found"
	msgUserNotFound      = "User not found"
	msgCartNotFound      = "Cart not found"
	msgItemNotFound      = "Item not found in cart"
	msgUnavailable       = "Product is not available"
	msgInsufficientStock = "Insufficient stock available"
	msgInsufficientTotal = "Insufficient stock available for requested quantity"
	msgVendorMismatch    = "Cannot add products from different vendors to the same cart"
	msgQuantityTooLow    = "Quantity must be at least 1"
	msgConcurrentWrite   = "Cart was modified concurrently, please retry"
)

type CartService struct {
	carts   repository.CartRepository
	catalog repository.CatalogRepository
	cache   cache.CartCache
	events  events.Publisher
	metrics *metrics.Cart
	sfg     singleflight.Group // Prevents cache stampede
	retries int
	now     func() time.Time
}

type Option func(*CartService)

func WithCache(c cache.CartCache) Option {
	return func(s *CartService) { s.cache = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *CartService) { s.events = p }
}

func WithMetrics(m *metrics.Cart) Option {
	return func(s *CartService) { s.metrics = m }
}

// WithWriteRetries bounds how many times a mutation is attempted when it keeps
// losing version races.
func WithWriteRetries(n int) Option {
	return func(s *CartService) {
		if n > 0 {
			s.retries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *CartService) { s.now = now }
}

func NewCartService(carts repository.CartRepository, catalog repository.CatalogRepository, opts ...Option) *CartService {
	s := &CartService{
		carts:   carts,
		catalog: catalog,
		cache:   cache.Nop{},
		events:  events.Nop{},
		retries: DefaultWriteRetries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItem puts quantity units of a product into the user's cart, creating the
// cart on first use. Adding a product that is already in the cart increases
// its quantity and refreshes its price snapshot.
func (s *CartService) AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return nil, domain.Invalid(opAdd, msgQuantityTooLow)
	}

	cart, err := s.retry(ctx, opAdd, func(ctx context.Context) (*domain.Cart, error) {
		product, err := s.product(ctx, opAdd, productID)
		if err != nil {
			return nil, err
		}
		if !product.IsAvailable {
			s.metrics.Rejected(opAdd, "unavailable")
			return nil, domain.Invalid(opAdd, msgUnavailable)
		}
		if !product.HasStock(quantity) {
			s.metrics.Rejected(opAdd, "stock")
			return nil, domain.Invalid(opAdd, msgInsufficientStock)
		}

		if _, err := s.catalog.GetUser(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, domain.NotFound(opAdd, msgUserNotFound)
			}
			return nil, domain.Internal(err, opAdd, "failed to load user")
		}

		cart, err := s.load(ctx, opAdd, userID, true)
		if err != nil {
			return nil, err
		}

		if cart.VendorID != nil && *cart.VendorID != product.VendorID {
			s.metrics.Rejected(opAdd, "vendor_mismatch")
			return nil, domain.Conflict(opAdd, msgVendorMismatch)
		}

		if i := cart.FindItem(productID); i >= 0 {
			combined := cart.Items[i].Quantity + quantity
			if !product.HasStock(combined) {
				s.metrics.Rejected(opAdd, "stock")
				return nil, domain.Invalid(opAdd, msgInsufficientTotal)
			}
			cart.Items[i].Quantity = combined
			cart.Items[i].Snapshot(product)
		} else {
			cart.Items = append(cart.Items, domain.NewCartItem(product, quantity))
		}

		if cart.VendorID == nil {
			vendor := product.VendorID
			cart.VendorID = &vendor
		}

		return s.save(ctx, opAdd, cart)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, opAdd, events.ItemAdded, cart, &productID, quantity)
	return s.view(ctx, opAdd, cart), nil
}

// UpdateItemQuantity sets the quantity of a product already in the cart.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return nil, domain.Invalid(opUpdate, msgQuantityTooLow)
	}

	cart, err := s.retry(ctx, opUpdate, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := s.load(ctx, opUpdate, userID, false)
		if err != nil {
			return nil, err
		}

		i := cart.FindItem(productID)
		if i < 0 {
			return nil, domain.NotFound(opUpdate, msgItemNotFound)
		}

		product, err := s.product(ctx, opUpdate, productID)
		if err != nil {
			return nil, err
		}
		if !product.HasStock(quantity) {
			s.metrics.Rejected(opUpdate, "stock")
			return nil, domain.Invalid(opUpdate, msgInsufficientStock)
		}

		cart.Items[i].Quantity = quantity
		cart.Items[i].Snapshot(product)

		return s.save(ctx, opUpdate, cart)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, opUpdate, events.QuantityUpdated, cart, &productID, quantity)
	return s.view(ctx, opUpdate, cart), nil
}

// RemoveItem drops a product from the cart. Removing a product that is not in
// the cart succeeds and leaves the items unchanged.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (*domain.CartView, error) {
	cart, err := s.retry(ctx, opRemove, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := s.load(ctx, opRemove, userID, false)
		if err != nil {
			return nil, err
		}
		cart.RemoveProduct(productID)
		return s.save(ctx, opRemove, cart)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, opRemove, events.ItemRemoved, cart, &productID, 0)
	return s.view(ctx, opRemove, cart), nil
}

// ClearCart empties the cart. The cart document itself is kept.
func (s *CartService) ClearCart(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error) {
	cart, err := s.retry(ctx, opClear, func(ctx context.Context) (*domain.Cart, error) {
		cart, err := s.load(ctx, opClear, userID, false)
		if err != nil {
			return nil, err
		}
		cart.Clear()
		return s.save(ctx, opClear, cart)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, opClear, events.CartCleared, cart, nil, 0)
	return s.view(ctx, opClear, cart), nil
}

// GetCart returns the user's cart with product detail. A user without a cart
// gets an empty view.
func (s *CartService) GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.CartView, error) {
	cart, err := s.read(ctx, opGet, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return domain.EmptyCartView(userID), nil
	}

	products, err := s.catalog.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, domain.Internal(err, opGet, "failed to load cart products")
	}
	return domain.NewCartView(cart, products), nil
}

func (s *CartService) GetCartSummary(ctx context.Context, userID primitive.ObjectID) (*domain.CartSummary, error) {
	cart, err := s.read(ctx, opSummary, userID)
	if err != nil {
		return nil, err
	}
	return domain.NewCartSummary(cart), nil
}

// read returns the stored cart through the cache, or nil if the user has none.
func (s *CartService) read(ctx context.Context, op string, userID primitive.ObjectID) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key.
	// The shared lookup is detached from the first caller's cancellation.
	v, err, _ := s.sfg.Do(userID.Hex(), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()

		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			s.metrics.CacheLookup("hit")
			return cart, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.CacheLookup("miss")
		} else {
			s.metrics.CacheLookup("error")
			zerolog.Ctx(ctx).Warn().Err(err).Str("op", op).Msg("cache get failed")
		}

		cart, err = s.carts.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return (*domain.Cart)(nil), nil
		}
		if err != nil {
			return nil, domain.Internal(err, op, "failed to load cart")
		}

		log := zerolog.Ctx(ctx)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(ctx, userID, cart); err != nil {
				log.Warn().Err(err).Str("op", op).Msg("cache set failed")
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// retry runs attempt until it commits, fails for a reason other than a lost
// version race, or runs out of attempts. Every attempt reloads the cart and
// the catalog facts it checks.
func (s *CartService) retry(ctx context.Context, op string, attempt func(context.Context) (*domain.Cart, error)) (*domain.Cart, error) {
	for i := 1; i <= s.retries; i++ {
		cart, err := attempt(ctx)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		s.metrics.WriteConflict()
		zerolog.Ctx(ctx).Debug().Str("op", op).Int("attempt", i).Msg("cart version conflict, retrying")

		if err := ctx.Err(); err != nil {
			return nil, domain.Internal(err, op, "request cancelled")
		}
	}
	return nil, domain.Conflict(op, msgConcurrentWrite)
}

// load fetches the user's cart. When create is set a missing cart becomes a
// new unsaved one, otherwise it is NotFound.
func (s *CartService) load(ctx context.Context, op string, userID primitive.ObjectID, create bool) (*domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	switch {
	case err == nil:
		return cart, nil
	case errors.Is(err, repository.ErrCartNotFound) && create:
		return domain.NewCart(userID), nil
	case errors.Is(err, repository.ErrCartNotFound):
		return nil, domain.NotFound(op, msgCartNotFound)
	default:
		return nil, domain.Internal(err, op, "failed to load cart")
	}
}

// product resolves a catalog product. Soft-deleted products count as missing.
func (s *CartService) product(ctx context.Context, op string, id primitive.ObjectID) (*domain.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) || (err == nil && !p.Resolvable()) {
		s.metrics.Rejected(op, "not_found")
		return nil, domain.NotFound(op, msgProductNotFound)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load product")
	}
	return p, nil
}

// save recomputes derived fields and persists cart. A lost version race is
// returned as repository.ErrVersionConflict so retry can pick it up.
func (s *CartService) save(ctx context.Context, op string, cart *domain.Cart) (*domain.Cart, error) {
	cart.Recalculate()
	err := s.carts.SaveCart(ctx, cart)
	if err == nil {
		return cart, nil
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		return nil, err
	}
	return nil, domain.Internal(err, op, "failed to save cart")
}

func (s *CartService) committed(ctx context.Context, op string, t events.EventType, cart *domain.Cart, productID *primitive.ObjectID, quantity int) {
	log := zerolog.Ctx(ctx)
	s.metrics.Mutation(op, cart.CartTotal)

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if err := s.cache.Delete(bg, cart.UserID, cart.Version); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("cache invalidate failed")
	}

	event := events.CartEvent{
		Type:      t,
		CartID:    cart.ID,
		UserID:    cart.UserID,
		ProductID: productID,
		Quantity:  quantity,
		VendorID:  cart.VendorID,
		CartTotal: cart.CartTotal,
		ItemCount: cart.ItemCount,
		Version:   cart.Version,
		At:        s.now().UTC(),
	}
	if err := s.events.Publish(bg, event); err != nil {
		log.Warn().Err(err).Str("op", op).Str("event", string(t)).Msg("cart event publish failed")
	}

	log.Debug().Str("op", op).Str("cart_id", cart.ID.Hex()).Int64("version", cart.Version).
		Int("item_count", cart.ItemCount).Float64("cart_total", cart.CartTotal).Msg("cart committed")
}

// view populates a committed cart. A catalog failure only drops the product
// detail; the write has already happened.
func (s *CartService) view(ctx context.Context, op string, cart *domain.Cart) *domain.CartView {
	products, err := s.catalog.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("op", op).Msg("failed to populate cart products")
		products = nil
	}
	return domain.NewCartView(cart, products)
}
