package trustedissuers

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

type RegistrySuite struct {
	suite.Suite
	ctx context.Context
	reg *Registry

	issuerA   domain.Address
	issuerB   domain.Address
	identityA domain.Address
	identityB domain.Address
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.reg = New(slog.New(slog.DiscardHandler))
	s.issuerA = domain.Address{0xA1}
	s.issuerB = domain.Address{0xB2}
	s.identityA = domain.Address{0xA1, 0xFF}
	s.identityB = domain.Address{0xB2, 0xFF}
}

// checkIndexes asserts the four-way invariant: global list, per-issuer record,
// per-topic lists and topic membership all agree.
func (s *RegistrySuite) checkIndexes(want map[domain.Address][]domain.ClaimTopic) {
	s.T().Helper()

	issuers := s.reg.Issuers(s.ctx)
	s.Len(issuers, len(want))
	topicIssuers := map[domain.ClaimTopic][]domain.Address{}
	for issuer, topics := range want {
		s.True(s.reg.IsTrusted(s.ctx, issuer))
		rec, err := s.reg.Get(s.ctx, issuer)
		s.Require().NoError(err)
		s.ElementsMatch(topics, rec.Topics)
		for _, topic := range topics {
			s.True(s.reg.HasTopic(s.ctx, issuer, topic))
			topicIssuers[topic] = append(topicIssuers[topic], issuer)
		}
	}
	for topic, wantIssuers := range topicIssuers {
		s.ElementsMatch(wantIssuers, s.reg.IssuersForTopic(s.ctx, topic))
	}
}

func (s *RegistrySuite) TestAdd() {
	s.Require().NoError(s.reg.Add(s.ctx, s.issuerA, s.identityA, []domain.ClaimTopic{1, 2}))

	s.Run("duplicate issuer rejected", func() {
		err := s.reg.Add(s.ctx, s.issuerA, s.identityA, []domain.ClaimTopic{3})
		s.Require().ErrorIs(err, sentinel.ErrExists)
	})

	s.Run("empty topic list rejected", func() {
		err := s.reg.Add(s.ctx, s.issuerB, s.identityB, nil)
		s.Require().ErrorIs(err, sentinel.ErrInvalidArgument)
		s.False(s.reg.IsTrusted(s.ctx, s.issuerB))
	})

	s.Run("duplicate topics in request collapsed", func() {
		s.Require().NoError(s.reg.Add(s.ctx, s.issuerB, s.identityB, []domain.ClaimTopic{2, 2, 3}))
		rec, err := s.reg.Get(s.ctx, s.issuerB)
		s.Require().NoError(err)
		s.ElementsMatch([]domain.ClaimTopic{2, 3}, rec.Topics)
	})

	s.checkIndexes(map[domain.Address][]domain.ClaimTopic{
		s.issuerA: {1, 2},
		s.issuerB: {2, 3},
	})
}

func (s *RegistrySuite) TestRemove() {
	s.Require().NoError(s.reg.Add(s.ctx, s.issuerA, s.identityA, []domain.ClaimTopic{1, 2}))
	s.Require().NoError(s.reg.Add(s.ctx, s.issuerB, s.identityB, []domain.ClaimTopic{2, 3}))

	s.Require().NoError(s.reg.Remove(s.ctx, s.issuerA))

	s.Run("all indexes unwound", func() {
		s.False(s.reg.IsTrusted(s.ctx, s.issuerA))
		s.False(s.reg.HasTopic(s.ctx, s.issuerA, 1))
		s.Empty(s.reg.IssuersForTopic(s.ctx, 1))
		s.ElementsMatch([]domain.Address{s.issuerB}, s.reg.IssuersForTopic(s.ctx, 2))
		_, err := s.reg.Get(s.ctx, s.issuerA)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("second removal rejected", func() {
		s.Require().ErrorIs(s.reg.Remove(s.ctx, s.issuerA), sentinel.ErrNotFound)
	})

	s.checkIndexes(map[domain.Address][]domain.ClaimTopic{
		s.issuerB: {2, 3},
	})
}

func (s *RegistrySuite) TestUpdateTopics() {
	s.Require().NoError(s.reg.Add(s.ctx, s.issuerA, s.identityA, []domain.ClaimTopic{1, 2}))

	s.Require().NoError(s.reg.UpdateTopics(s.ctx, s.issuerA, []domain.ClaimTopic{2, 4}))

	s.Run("old topics gone, new topics indexed, identity preserved", func() {
		s.False(s.reg.HasTopic(s.ctx, s.issuerA, 1))
		s.True(s.reg.HasTopic(s.ctx, s.issuerA, 4))
		s.Empty(s.reg.IssuersForTopic(s.ctx, 1))
		ident, err := s.reg.IdentityOf(s.ctx, s.issuerA)
		s.Require().NoError(err)
		s.Equal(s.identityA, ident)
	})

	s.Run("unknown issuer rejected", func() {
		err := s.reg.UpdateTopics(s.ctx, s.issuerB, []domain.ClaimTopic{1})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("empty topic list rejected without unwinding", func() {
		err := s.reg.UpdateTopics(s.ctx, s.issuerA, nil)
		s.Require().ErrorIs(err, sentinel.ErrInvalidArgument)
		s.True(s.reg.HasTopic(s.ctx, s.issuerA, 2))
	})

	s.checkIndexes(map[domain.Address][]domain.ClaimTopic{
		s.issuerA: {2, 4},
	})
}

func (s *RegistrySuite) TestAddBatchSkipsInvalidEntries() {
	s.Require().NoError(s.reg.Add(s.ctx, s.issuerA, s.identityA, []domain.ClaimTopic{1}))

	err := s.reg.AddBatch(s.ctx, []IssuerRecord{
		{Issuer: s.issuerA, Identity: s.identityA, Topics: []domain.ClaimTopic{9}}, // exists: skipped
		{Issuer: s.issuerB, Identity: s.identityB},                                 // empty topics: skipped
		{Issuer: domain.Address{0xC3}, Identity: domain.Address{0xC3, 0xFF}, Topics: []domain.ClaimTopic{2}},
	})
	s.Require().NoError(err)

	s.False(s.reg.HasTopic(s.ctx, s.issuerA, 9), "existing issuer must not be modified")
	s.False(s.reg.IsTrusted(s.ctx, s.issuerB))
	s.True(s.reg.HasTopic(s.ctx, domain.Address{0xC3}, 2))

	s.Require().ErrorIs(s.reg.AddBatch(s.ctx, nil), sentinel.ErrInvalidArgument)
}

// Churn sequence mirroring how operators actually rotate issuers; the indexes
// must agree exactly afterwards.
func (s *RegistrySuite) TestIndexConsistencyAfterChurn() {
	issuerC := domain.Address{0xC3}
	identityC := domain.Address{0xC3, 0xFF}

	s.Require().NoError(s.reg.Add(s.ctx, s.issuerA, s.identityA, []domain.ClaimTopic{1, 2, 3}))
	s.Require().NoError(s.reg.Add(s.ctx, s.issuerB, s.identityB, []domain.ClaimTopic{2}))
	s.Require().NoError(s.reg.Add(s.ctx, issuerC, identityC, []domain.ClaimTopic{3, 1}))
	s.Require().NoError(s.reg.Remove(s.ctx, s.issuerB))
	s.Require().NoError(s.reg.UpdateTopics(s.ctx, s.issuerA, []domain.ClaimTopic{2}))
	s.Require().NoError(s.reg.Add(s.ctx, s.issuerB, s.identityB, []domain.ClaimTopic{1}))
	s.Require().NoError(s.reg.Remove(s.ctx, issuerC))

	s.checkIndexes(map[domain.Address][]domain.ClaimTopic{
		s.issuerA: {2},
		s.issuerB: {1},
	})
	s.Empty(s.reg.IssuersForTopic(s.ctx, 3))
}
