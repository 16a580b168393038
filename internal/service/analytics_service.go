package service

import (
	"context"
	"sort"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultAbandonedAfter = 24 * time.Hour
	DefaultAbandonedLimit = 50
	MaxAbandonedLimit     = 100

	popularProductsLimit = 10
)

const (
	opAnalytics = "cart.analytics"
	opAbandoned = "cart.abandoned"
)

// AnalyticsService builds read-only reports over stored carts.
type AnalyticsService struct {
	carts          repository.CartRepository
	catalog        repository.CatalogRepository
	abandonedAfter time.Duration
	now            func() time.Time
}

func NewAnalyticsService(carts repository.CartRepository, catalog repository.CatalogRepository, abandonedAfter time.Duration) *AnalyticsService {
	if abandonedAfter <= 0 {
		abandonedAfter = DefaultAbandonedAfter
	}
	return &AnalyticsService{
		carts:          carts,
		catalog:        catalog,
		abandonedAfter: abandonedAfter,
		now:            time.Now,
	}
}

// GetCartAnalytics summarizes carts created within period. A vendor sees the
// carts holding at least one of their products, and only their own products in
// the popularity ranking.
func (s *AnalyticsService) GetCartAnalytics(ctx context.Context, period domain.Period, p domain.Principal) (*domain.CartAnalytics, error) {
	scope, err := ScopeFor(ctx, s.catalog, p)
	if err != nil {
		return nil, err
	}

	carts, err := s.carts.FindCarts(ctx, repository.CartFilter{
		CreatedSince: s.now().Add(-period.Duration()),
		AnyProduct:   scope.IDs(),
	})
	if err != nil {
		return nil, domain.Internal(err, opAnalytics, "failed to load carts")
	}

	popular, err := s.popularProducts(ctx, carts, scope)
	if err != nil {
		return nil, err
	}

	return &domain.CartAnalytics{
		Period:          period,
		Summary:         summarize(carts),
		PopularProducts: popular,
	}, nil
}

func summarize(carts []domain.Cart) domain.AnalyticsSummary {
	totals := make([]float64, 0, len(carts))
	items := 0
	for i := range carts {
		totals = append(totals, carts[i].CartTotal)
		items += carts[i].ItemCount
	}
	value := domain.Sum(totals...)

	return domain.AnalyticsSummary{
		TotalCarts:          len(carts),
		TotalItems:          items,
		TotalValue:          value,
		AverageCartValue:    domain.Average(value, len(carts)),
		AverageItemsPerCart: domain.Average(float64(items), len(carts)),
	}
}

func (s *AnalyticsService) popularProducts(ctx context.Context, carts []domain.Cart, scope ProductScope) ([]domain.PopularProduct, error) {
	byProduct := make(map[primitive.ObjectID]*domain.PopularProduct)
	for i := range carts {
		seen := make(map[primitive.ObjectID]bool, len(carts[i].Items))
		for _, item := range carts[i].Items {
			if !scope.Allows(item.ProductID) {
				continue
			}
			pp, ok := byProduct[item.ProductID]
			if !ok {
				pp = &domain.PopularProduct{ProductID: item.ProductID}
				byProduct[item.ProductID] = pp
			}
			pp.TotalQuantity += item.Quantity
			pp.TotalValue = domain.Sum(pp.TotalValue, domain.LineValue(item.FinalPrice, item.Quantity))
			if !seen[item.ProductID] {
				seen[item.ProductID] = true
				pp.CartCount++
			}
		}
	}

	ranked := make([]*domain.PopularProduct, 0, len(byProduct))
	ids := make([]primitive.ObjectID, 0, len(byProduct))
	for id, pp := range byProduct {
		ranked = append(ranked, pp)
		ids = append(ids, id)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalQuantity != ranked[j].TotalQuantity {
			return ranked[i].TotalQuantity > ranked[j].TotalQuantity
		}
		return ranked[i].ProductID.Hex() < ranked[j].ProductID.Hex()
	})

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, domain.Internal(err, opAnalytics, "failed to load products")
	}

	// Products that no longer exist in the catalog are left out of the ranking.
	out := make([]domain.PopularProduct, 0, popularProductsLimit)
	for _, pp := range ranked {
		product, ok := products[pp.ProductID]
		if !ok {
			continue
		}
		pp.ProductName = product.Name
		out = append(out, *pp)
		if len(out) == popularProductsLimit {
			break
		}
	}
	return out, nil
}

// GetAbandonedCarts lists non-empty carts untouched for longer than the
// abandonment threshold, most recently updated first. limit is clamped to
// 1..MaxAbandonedLimit, zero selects DefaultAbandonedLimit.
func (s *AnalyticsService) GetAbandonedCarts(ctx context.Context, limit int, p domain.Principal) ([]domain.AbandonedCart, error) {
	switch {
	case limit == 0:
		limit = DefaultAbandonedLimit
	case limit < 0:
		return nil, domain.Invalid(opAbandoned, "Limit must be between 1 and 100")
	case limit > MaxAbandonedLimit:
		limit = MaxAbandonedLimit
	}

	scope, err := ScopeFor(ctx, s.catalog, p)
	if err != nil {
		return nil, err
	}

	carts, err := s.carts.FindCarts(ctx, repository.CartFilter{
		UpdatedBefore: s.now().Add(-s.abandonedAfter),
		NonEmpty:      true,
		AnyProduct:    scope.IDs(),
		NewestFirst:   true,
		Limit:         limit,
	})
	if err != nil {
		return nil, domain.Internal(err, opAbandoned, "failed to load carts")
	}

	userIDs := make([]primitive.ObjectID, 0, len(carts))
	var productIDs []primitive.ObjectID
	for i := range carts {
		userIDs = append(userIDs, carts[i].UserID)
		productIDs = append(productIDs, carts[i].ProductIDs()...)
	}

	users, err := s.catalog.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, domain.Internal(err, opAbandoned, "failed to load cart owners")
	}
	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, domain.Internal(err, opAbandoned, "failed to load products")
	}

	out := make([]domain.AbandonedCart, 0, len(carts))
	for i := range carts {
		out = append(out, abandoned(&carts[i], users, products))
	}
	return out, nil
}

func abandoned(c *domain.Cart, users map[primitive.ObjectID]*domain.User, products map[primitive.ObjectID]*domain.Product) domain.AbandonedCart {
	ac := domain.AbandonedCart{
		ID:        c.ID,
		UserID:    c.UserID,
		VendorID:  c.VendorID,
		Items:     make([]domain.AbandonedItem, 0, len(c.Items)),
		CartTotal: c.CartTotal,
		ItemCount: c.ItemCount,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if u, ok := users[c.UserID]; ok {
		ac.User = &domain.CartOwner{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	for _, item := range c.Items {
		line := domain.AbandonedItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Price:      item.Price,
			Discount:   item.Discount,
			FinalPrice: item.FinalPrice,
		}
		if p, ok := products[item.ProductID]; ok {
			line.Product = &domain.ProductBrief{ID: p.ID, Name: p.Name, Price: p.Price, FinalPrice: p.FinalPrice}
		}
		ac.Items = append(ac.Items, line)
	}
	return ac
}
