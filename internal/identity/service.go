package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// Store is the persistence seam for identity records. InMemoryStore is the
// only implementation; the interface exists so tests can fail selectively.
type Store interface {
	CreateIdentity(ctx context.Context, entity domain.Address, managementKey Key) error
	Exists(ctx context.Context, entity domain.Address) (bool, error)
	AddKeyPurpose(ctx context.Context, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose, keyType domain.KeyType) error
	RemoveKeyPurpose(ctx context.Context, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose) error
	GetKey(ctx context.Context, entity domain.Address, keyHash domain.Hash) (*Key, error)
	KeyHasPurpose(ctx context.Context, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose) (bool, error)
	PutClaim(ctx context.Context, claim *Claim) error
	DeleteClaim(ctx context.Context, subject domain.Address, id domain.ClaimID) (*Claim, error)
	GetClaim(ctx context.Context, subject domain.Address, id domain.ClaimID) (*Claim, error)
	ClaimIDsByTopic(ctx context.Context, subject domain.Address, topic domain.ClaimTopic) ([]domain.ClaimID, error)
}

// Service owns key and claim management for identities. Authorization is
// self-referential: whether a caller or signer may act for an identity is
// answered by that identity's own key registry.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// AuthorityCheck reports whether signer is authorized to act for entity with
// the given purpose, per the entity's registered keys. A missing entity never
// authorizes.
func (s *Service) AuthorityCheck(ctx context.Context, entity, signer domain.Address, purpose domain.KeyPurpose) (bool, error) {
	ok, err := s.store.KeyHasPurpose(ctx, entity, domain.KeyHashOf(signer), purpose)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("authority check: %w", err)
	}
	return ok, nil
}

// CreateIdentity provisions a fresh identity whose first management key is
// derived from the owner address. Transport gates this on the agent role.
func (s *Service) CreateIdentity(ctx context.Context, owner domain.Address) error {
	if owner == domain.ZeroAddress {
		return fmt.Errorf("owner address required: %w", sentinel.ErrInvalidArgument)
	}
	key := Key{
		Hash:     domain.KeyHashOf(owner),
		Type:     domain.KeyTypeECDSA,
		Purposes: []domain.KeyPurpose{domain.PurposeManagement},
	}
	if err := s.store.CreateIdentity(ctx, owner, key); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "identity created", "entity", owner.Hex())
	return nil
}

// Exists reports whether an identity record is present.
func (s *Service) Exists(ctx context.Context, entity domain.Address) (bool, error) {
	return s.store.Exists(ctx, entity)
}

// AddKey grants a purpose to a key on entity. The caller must hold the
// management purpose on entity; only ECDSA keys are supported.
func (s *Service) AddKey(ctx context.Context, caller, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose, keyType domain.KeyType) error {
	if keyType != domain.KeyTypeECDSA {
		return fmt.Errorf("unsupported key type %d: %w", keyType, sentinel.ErrInvalidArgument)
	}
	switch purpose {
	case domain.PurposeManagement, domain.PurposeAction, domain.PurposeClaim:
	default:
		return fmt.Errorf("unknown key purpose %d: %w", purpose, sentinel.ErrInvalidArgument)
	}
	if err := s.requireManagement(ctx, caller, entity); err != nil {
		return err
	}
	if err := s.store.AddKeyPurpose(ctx, entity, keyHash, purpose, keyType); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "key purpose added",
		"entity", entity.Hex(), "key", keyHash.Hex(), "purpose", purpose)
	return nil
}

// RemoveKey revokes a purpose from a key on entity; the key disappears when
// its last purpose is revoked.
func (s *Service) RemoveKey(ctx context.Context, caller, entity domain.Address, keyHash domain.Hash, purpose domain.KeyPurpose) error {
	if err := s.requireManagement(ctx, caller, entity); err != nil {
		return err
	}
	if err := s.store.RemoveKeyPurpose(ctx, entity, keyHash, purpose); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "key purpose removed",
		"entity", entity.Hex(), "key", keyHash.Hex(), "purpose", purpose)
	return nil
}

// GetKey is a pure read.
func (s *Service) GetKey(ctx context.Context, entity domain.Address, keyHash domain.Hash) (*Key, error) {
	return s.store.GetKey(ctx, entity, keyHash)
}

// AddClaimRequest carries the fields of a claim to attach.
type AddClaimRequest struct {
	Subject   domain.Address
	Topic     domain.ClaimTopic
	Scheme    domain.ClaimScheme
	Issuer    domain.Address
	Signature []byte
	Data      []byte
	URI       string
}

// AddClaim verifies and stores a claim on its subject, returning the claim
// ID. The signature must recover to the issuer itself or to a signer holding
// the claim purpose on the issuer's own identity; the caller must hold the
// management or claim purpose on the subject.
func (s *Service) AddClaim(ctx context.Context, caller domain.Address, req AddClaimRequest) (domain.ClaimID, error) {
	if req.Scheme != domain.SchemeECDSA {
		return domain.ClaimID{}, fmt.Errorf("unsupported claim scheme %d: %w", req.Scheme, sentinel.ErrInvalidArgument)
	}

	allowed, err := s.callerMayManageClaims(ctx, caller, req.Subject)
	if err != nil {
		return domain.ClaimID{}, err
	}
	if !allowed {
		return domain.ClaimID{}, fmt.Errorf("caller %s may not manage claims on %s: %w",
			caller.Hex(), req.Subject.Hex(), sentinel.ErrUnauthorized)
	}

	signer, err := RecoverClaimSigner(req.Subject, req.Topic, req.Data, req.Signature)
	if err != nil {
		return domain.ClaimID{}, err
	}
	if signer != req.Issuer {
		ok, err := s.AuthorityCheck(ctx, req.Issuer, signer, domain.PurposeClaim)
		if err != nil {
			return domain.ClaimID{}, err
		}
		if !ok {
			return domain.ClaimID{}, fmt.Errorf("signer %s not authorized for issuer %s: %w",
				signer.Hex(), req.Issuer.Hex(), sentinel.ErrInvalidSignature)
		}
	}

	claim := &Claim{
		ID:        domain.ClaimIDOf(req.Issuer, req.Topic, req.Subject, req.Data),
		Subject:   req.Subject,
		Topic:     req.Topic,
		Scheme:    req.Scheme,
		Issuer:    req.Issuer,
		Signature: req.Signature,
		Data:      req.Data,
		URI:       req.URI,
	}
	if err := s.store.PutClaim(ctx, claim); err != nil {
		return domain.ClaimID{}, err
	}
	s.logger.InfoContext(ctx, "claim added",
		"subject", req.Subject.Hex(), "topic", req.Topic, "issuer", req.Issuer.Hex(), "claim", claim.ID.Hex())
	return claim.ID, nil
}

// RemoveClaim deletes a claim from its subject. Caller authorization matches
// AddClaim.
func (s *Service) RemoveClaim(ctx context.Context, caller, subject domain.Address, id domain.ClaimID) error {
	allowed, err := s.callerMayManageClaims(ctx, caller, subject)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("caller %s may not manage claims on %s: %w",
			caller.Hex(), subject.Hex(), sentinel.ErrUnauthorized)
	}
	claim, err := s.store.DeleteClaim(ctx, subject, id)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "claim removed",
		"subject", subject.Hex(), "topic", claim.Topic, "claim", id.Hex())
	return nil
}

// GetClaim is a pure read.
func (s *Service) GetClaim(ctx context.Context, subject domain.Address, id domain.ClaimID) (*Claim, error) {
	return s.store.GetClaim(ctx, subject, id)
}

// ClaimIDsByTopic is a pure read.
func (s *Service) ClaimIDsByTopic(ctx context.Context, subject domain.Address, topic domain.ClaimTopic) ([]domain.ClaimID, error) {
	return s.store.ClaimIDsByTopic(ctx, subject, topic)
}

func (s *Service) requireManagement(ctx context.Context, caller, entity domain.Address) error {
	ok, err := s.AuthorityCheck(ctx, entity, caller, domain.PurposeManagement)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("caller %s lacks management purpose on %s: %w",
			caller.Hex(), entity.Hex(), sentinel.ErrUnauthorized)
	}
	return nil
}

func (s *Service) callerMayManageClaims(ctx context.Context, caller, subject domain.Address) (bool, error) {
	ok, err := s.AuthorityCheck(ctx, subject, caller, domain.PurposeManagement)
	if err != nil || ok {
		return ok, err
	}
	return s.AuthorityCheck(ctx, subject, caller, domain.PurposeClaim)
}
