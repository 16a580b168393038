package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BreakerSettings struct {
	Name string
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Breaker stops calling a failing cache. While open, reads are misses and
// writes are dropped, so requests go straight to the store.
type Breaker struct {
	next  CartCache
	reads *gobreaker.CircuitBreaker[*domain.Cart]
	write *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(next CartCache, s BreakerSettings) *Breaker {
	if s.Name == "" {
		s.Name = "cart-cache"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= s.ConsecutiveFailures
			},
			// A miss is a healthy answer.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrCacheMiss)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("cache breaker state changed")
			},
		}
	}

	return &Breaker{
		next:  next,
		reads: gobreaker.NewCircuitBreaker[*domain.Cart](settings(s.Name + "-read")),
		write: gobreaker.NewCircuitBreaker[struct{}](settings(s.Name + "-write")),
	}
}

func (b *Breaker) Get(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	cart, err := b.reads.Execute(func() (*domain.Cart, error) {
		return b.next.Get(ctx, userID)
	})
	if isOpen(err) {
		return nil, ErrCacheMiss
	}
	return cart, err
}

func (b *Breaker) Set(ctx context.Context, userID primitive.ObjectID, cart *domain.Cart) error {
	_, err := b.write.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Set(ctx, userID, cart)
	})
	if isOpen(err) {
		return nil
	}
	return err
}

// Delete bypasses the breaker so invalidations are never skipped.
func (b *Breaker) Delete(ctx context.Context, userID primitive.ObjectID, version int64) error {
	return b.next.Delete(ctx, userID, version)
}

func isOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
