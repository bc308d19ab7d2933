package identity

import (
	"custos/pkg/domain"
)

// Key is an authorization key registered on an identity, addressed by the
// keccak hash of its signer address. A key never holds the same purpose
// twice; a key whose purpose set empties is deleted from the identity.
type Key struct {
	Hash     domain.Hash
	Type     domain.KeyType
	Purposes []domain.KeyPurpose
}

// HasPurpose reports whether the key carries the given purpose.
func (k *Key) HasPurpose(p domain.KeyPurpose) bool {
	for _, have := range k.Purposes {
		if have == p {
			return true
		}
	}
	return false
}

// addPurpose appends p, reporting false if already held.
func (k *Key) addPurpose(p domain.KeyPurpose) bool {
	if k.HasPurpose(p) {
		return false
	}
	k.Purposes = append(k.Purposes, p)
	return true
}

// removePurpose drops p, reporting false if absent.
func (k *Key) removePurpose(p domain.KeyPurpose) bool {
	for i, have := range k.Purposes {
		if have == p {
			k.Purposes = append(k.Purposes[:i], k.Purposes[i+1:]...)
			return true
		}
	}
	return false
}

// Claim is a signed attestation that Subject satisfies Topic, issued by
// Issuer. ID is derived from (issuer, topic, subject, data) so re-issuing the
// same claim overwrites rather than duplicates.
type Claim struct {
	ID        domain.ClaimID
	Subject   domain.Address
	Topic     domain.ClaimTopic
	Scheme    domain.ClaimScheme
	Issuer    domain.Address
	Signature []byte
	Data      []byte
	URI       string
}
