// Package registry orchestrates holder verification: it combines identity
// storage, the required claim topics, the trusted issuers registry and claim
// signature validation into the single isVerified decision the ledger
// consults before any recipient-side balance increase.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"custos/internal/identity"
	"custos/internal/identitystore"
	"custos/internal/platform/metrics"
	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// TopicsSource is the required-topic registry seam.
type TopicsSource interface {
	Topics(ctx context.Context) []domain.ClaimTopic
}

// IssuersSource is the trusted-issuers registry seam.
type IssuersSource interface {
	HasTopic(ctx context.Context, issuer domain.Address, topic domain.ClaimTopic) bool
	IdentityOf(ctx context.Context, issuer domain.Address) (domain.Address, error)
}

// ClaimSource reads claims and answers key-authority questions; implemented
// by the identity service.
type ClaimSource interface {
	ClaimIDsByTopic(ctx context.Context, subject domain.Address, topic domain.ClaimTopic) ([]domain.ClaimID, error)
	GetClaim(ctx context.Context, subject domain.Address, id domain.ClaimID) (*identity.Claim, error)
	AuthorityCheck(ctx context.Context, entity, signer domain.Address, purpose domain.KeyPurpose) (bool, error)
}

// Service is the identity registry. Mutations are gated on the agent role at
// transport; IsVerified is a pure read.
type Service struct {
	storage identitystore.Store
	topics  TopicsSource
	issuers IssuersSource
	claims  ClaimSource
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(storage identitystore.Store, topics TopicsSource, issuers IssuersSource, claims ClaimSource, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		storage: storage,
		topics:  topics,
		issuers: issuers,
		claims:  claims,
		logger:  logger,
		metrics: m,
	}
}

// Registration is one holder registration entry.
type Registration struct {
	Holder   domain.Address
	Identity domain.Address
	Country  domain.CountryCode
}

func (reg Registration) validate() error {
	if reg.Holder == domain.ZeroAddress || reg.Identity == domain.ZeroAddress {
		return fmt.Errorf("holder and identity addresses required: %w", sentinel.ErrInvalidArgument)
	}
	return nil
}

// Register stores a holder's identity and jurisdiction. Double registration
// is rejected.
func (s *Service) Register(ctx context.Context, reg Registration) error {
	if err := reg.validate(); err != nil {
		return err
	}
	if err := s.storage.Add(ctx, reg.Holder, identitystore.Record{Identity: reg.Identity, Country: reg.Country}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "identity registered",
		"holder", reg.Holder.Hex(), "identity", reg.Identity.Hex(), "country", reg.Country)
	return nil
}

// RegisterBatch registers all entries or none: every entry is validated
// against storage and the rest of the batch before the first write.
func (s *Service) RegisterBatch(ctx context.Context, regs []Registration) error {
	if len(regs) == 0 {
		return fmt.Errorf("empty registration batch: %w", sentinel.ErrInvalidArgument)
	}
	seen := make(map[domain.Address]bool, len(regs))
	for _, reg := range regs {
		if err := reg.validate(); err != nil {
			return err
		}
		if seen[reg.Holder] {
			return fmt.Errorf("holder %s repeated in batch: %w", reg.Holder.Hex(), sentinel.ErrInvalidArgument)
		}
		seen[reg.Holder] = true
		exists, err := s.storage.Contains(ctx, reg.Holder)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("holder %s: %w", reg.Holder.Hex(), sentinel.ErrExists)
		}
	}
	for _, reg := range regs {
		if err := s.Register(ctx, reg); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a holder's registration.
func (s *Service) Delete(ctx context.Context, holder domain.Address) error {
	if err := s.storage.Remove(ctx, holder); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "identity deleted", "holder", holder.Hex())
	return nil
}

// Update replaces the identity bound to a holder.
func (s *Service) Update(ctx context.Context, holder, identityAddr domain.Address) error {
	if identityAddr == domain.ZeroAddress {
		return fmt.Errorf("identity address required: %w", sentinel.ErrInvalidArgument)
	}
	return s.storage.UpdateIdentity(ctx, holder, identityAddr)
}

// UpdateCountry replaces the jurisdiction bound to a holder.
func (s *Service) UpdateCountry(ctx context.Context, holder domain.Address, country domain.CountryCode) error {
	return s.storage.UpdateCountry(ctx, holder, country)
}

// Contains reports whether the holder is registered.
func (s *Service) Contains(ctx context.Context, holder domain.Address) (bool, error) {
	return s.storage.Contains(ctx, holder)
}

// Get returns the stored record for a holder.
func (s *Service) Get(ctx context.Context, holder domain.Address) (identitystore.Record, error) {
	return s.storage.Get(ctx, holder)
}

// IsVerified decides whether a holder satisfies every required claim topic.
// AND semantics across topics, OR semantics across a topic's claims: each
// required topic needs at least one claim whose scheme is supported, whose
// issuer is trusted for that topic, and whose signature recovers to a signer
// holding the claim purpose on the issuer's identity. Pure read; no side
// effects beyond metrics.
func (s *Service) IsVerified(ctx context.Context, holder domain.Address) (bool, error) {
	start := time.Now()
	verified, err := s.isVerified(ctx, holder)
	if err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveVerification(verified, time.Since(start).Seconds())
	}
	return verified, nil
}

func (s *Service) isVerified(ctx context.Context, holder domain.Address) (bool, error) {
	registered, err := s.storage.Contains(ctx, holder)
	if err != nil {
		return false, err
	}
	if !registered {
		return false, nil
	}

	for _, topic := range s.topics.Topics(ctx) {
		satisfied, err := s.topicSatisfied(ctx, holder, topic)
		if err != nil {
			return false, err
		}
		if !satisfied {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) topicSatisfied(ctx context.Context, holder domain.Address, topic domain.ClaimTopic) (bool, error) {
	ids, err := s.claims.ClaimIDsByTopic(ctx, holder, topic)
	if err != nil {
		// A holder can be registered without ever creating an identity
		// record. No record means no claims: the topic is unsatisfied,
		// not an error.
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, id := range ids {
		claim, err := s.claims.GetClaim(ctx, holder, id)
		if err != nil {
			return false, err
		}
		ok, err := s.claimSatisfies(ctx, claim, topic)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) claimSatisfies(ctx context.Context, claim *identity.Claim, topic domain.ClaimTopic) (bool, error) {
	if claim.Topic != topic || claim.Scheme != domain.SchemeECDSA {
		return false, nil
	}
	if !s.issuers.HasTopic(ctx, claim.Issuer, topic) {
		return false, nil
	}
	signer, err := identity.RecoverClaimSigner(claim.Subject, claim.Topic, claim.Data, claim.Signature)
	if err != nil {
		// A stored claim with an unrecoverable signature simply does not
		// satisfy; it must not poison verification of sibling claims.
		return false, nil
	}
	if signer == claim.Issuer {
		return true, nil
	}
	issuerIdentity, err := s.issuers.IdentityOf(ctx, claim.Issuer)
	if err != nil {
		return false, nil
	}
	return s.claims.AuthorityCheck(ctx, issuerIdentity, signer, domain.PurposeClaim)
}
