//go:build integration

package identitystore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"custos/internal/identitystore"
	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
	"custos/pkg/testutil/containers"
)

// The postgres store must satisfy the same contract as the in-memory store;
// this suite replays the contract against a real database.
type PostgresSuite struct {
	suite.Suite
	store *identitystore.Postgres
	ctx   context.Context
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := containers.StartPostgres(t)
	s := &PostgresSuite{store: identitystore.NewPostgres(db), ctx: context.Background()}
	suite.Run(t, s)
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *PostgresSuite) TestContract() {
	holderA := domain.Address{0x0A, 0x01}
	holderB := domain.Address{0x0B, 0x01}
	rec := identitystore.Record{Identity: domain.Address{0xA0}, Country: 840}

	s.Require().NoError(s.store.Add(s.ctx, holderA, rec))
	s.Require().ErrorIs(s.store.Add(s.ctx, holderA, rec), sentinel.ErrExists)

	got, err := s.store.Get(s.ctx, holderA)
	s.Require().NoError(err)
	s.Equal(rec, got)

	s.Require().NoError(s.store.UpdateCountry(s.ctx, holderA, 276))
	s.Require().NoError(s.store.UpdateIdentity(s.ctx, holderA, domain.Address{0xA1}))
	got, err = s.store.Get(s.ctx, holderA)
	s.Require().NoError(err)
	s.Equal(identitystore.Record{Identity: domain.Address{0xA1}, Country: 276}, got)

	s.Require().ErrorIs(s.store.UpdateCountry(s.ctx, holderB, 1), sentinel.ErrNotFound)

	s.Require().NoError(s.store.Add(s.ctx, holderB, rec))
	holders, err := s.store.Holders(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]domain.Address{holderA, holderB}, holders)

	s.Require().NoError(s.store.Remove(s.ctx, holderA))
	s.Require().ErrorIs(s.store.Remove(s.ctx, holderA), sentinel.ErrNotFound)
	ok, err := s.store.Contains(s.ctx, holderA)
	s.Require().NoError(err)
	s.False(ok)
}
