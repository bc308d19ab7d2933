// Package domain defines the shared identifier and value types of the
// compliance core: holder addresses, key hashes, claim identifiers, key
// purposes, claim topics and jurisdiction codes. Keeping these in one
// dependency-light package lets every feature package agree on the same
// vocabulary without importing each other.
package domain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies a holder, issuer or signer. Addresses are opaque to the
// core; the execution substrate authenticates them.
type Address = common.Address

// Hash is a 32-byte keccak digest used for key hashes and claim IDs.
type Hash = common.Hash

// ZeroAddress marks the absent party of a mint (from) or burn (to).
var ZeroAddress = Address{}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (Address, bool) {
	if !common.IsHexAddress(s) {
		return Address{}, false
	}
	return common.HexToAddress(s), true
}

// KeyPurpose enumerates what a key registered on an identity may do.
type KeyPurpose uint64

const (
	PurposeManagement KeyPurpose = 1 // manage the identity's own keys
	PurposeAction     KeyPurpose = 2 // act on behalf of the identity
	PurposeClaim      KeyPurpose = 3 // sign claims issued by the identity
)

// KeyType enumerates supported signature schemes for keys.
type KeyType uint64

// KeyTypeECDSA is the only supported key type.
const KeyTypeECDSA KeyType = 1

// ClaimTopic is a numeric identifier for a required attestation category
// (KYC, AML, accreditation, ...). Values are assigned by the operator.
type ClaimTopic uint64

// ClaimScheme identifies how a claim signature is produced and checked.
type ClaimScheme uint64

// SchemeECDSA is the only supported claim scheme.
const SchemeECDSA ClaimScheme = 1

// ClaimID addresses a claim deterministically by its issuer, topic, subject
// and payload.
type ClaimID = Hash

// CountryCode is an ISO 3166-1 numeric jurisdiction code.
type CountryCode uint16

// Role names a capability granted to an authenticated caller.
type Role string

const (
	RoleAdmin   Role = "admin"   // compliance limits, restrictions, token binding
	RoleManager Role = "manager" // claim topics and trusted issuers
	RoleAgent   Role = "agent"   // identity registration
	RoleLedger  Role = "ledger"  // settlement notifications and pre-transfer checks
)

// KeyHashOf derives the key hash registered for a signer address.
func KeyHashOf(signer Address) Hash {
	return crypto.Keccak256Hash(signer.Bytes())
}

func topicBytes(topic ClaimTopic) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(topic))
	return b[:]
}

// ClaimIDOf derives the deterministic identifier of a claim.
func ClaimIDOf(issuer Address, topic ClaimTopic, subject Address, data []byte) ClaimID {
	return crypto.Keccak256Hash(issuer.Bytes(), topicBytes(topic), subject.Bytes(), data)
}

// ClaimDataHash is the canonical digest of a claim's signed fields.
func ClaimDataHash(subject Address, topic ClaimTopic, data []byte) Hash {
	return crypto.Keccak256Hash(subject.Bytes(), topicBytes(topic), data)
}

// ClaimSigningHash wraps the data hash in the signed-message envelope that
// wallet signers produce, so recovery matches what issuers actually sign.
func ClaimSigningHash(subject Address, topic ClaimTopic, data []byte) Hash {
	inner := ClaimDataHash(subject, topic, data)
	return crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n32"), inner.Bytes())
}
