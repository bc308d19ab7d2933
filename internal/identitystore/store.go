// Package identitystore is the durable mapping from holder address to its
// identity record and jurisdiction, with enumerable membership. The identity
// registry is its only writer; the compliance engine reads jurisdictions from
// it.
package identitystore

import (
	"context"
	"errors"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// Record links a holder address to its identity and jurisdiction.
type Record struct {
	Identity domain.Address
	Country  domain.CountryCode
}

// Error Contract:
// - Add returns ErrExists (wrapped) when the holder is already stored
// - Remove/Update*/Get return ErrNotFound (wrapped) when the holder is absent
// - Infrastructure failures are returned wrapped with context
type Store interface {
	Add(ctx context.Context, holder domain.Address, rec Record) error
	Remove(ctx context.Context, holder domain.Address) error
	UpdateIdentity(ctx context.Context, holder, identity domain.Address) error
	UpdateCountry(ctx context.Context, holder domain.Address, country domain.CountryCode) error
	Contains(ctx context.Context, holder domain.Address) (bool, error)
	Get(ctx context.Context, holder domain.Address) (Record, error)
	Holders(ctx context.Context) ([]domain.Address, error)
}

// CountryOf resolves a holder's jurisdiction from any Store. Unregistered
// holders resolve to country zero; the compliance engine relies on that.
func CountryOf(ctx context.Context, s Store, holder domain.Address) (domain.CountryCode, error) {
	rec, err := s.Get(ctx, holder)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return rec.Country, nil
}

// CountryReader adapts a Store to the compliance engine's jurisdiction
// lookup.
type CountryReader struct {
	Store Store
}

func (r CountryReader) CountryOf(ctx context.Context, holder domain.Address) (domain.CountryCode, error) {
	return CountryOf(ctx, r.Store, holder)
}
