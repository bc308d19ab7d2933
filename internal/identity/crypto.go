package identity

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

const signatureLength = 65 // R || S || V

// RecoverClaimSigner recovers the address that signed a claim over the
// prefixed canonical hash of (subject, topic, data). Accepts both V in
// {27, 28} (wallet convention) and {0, 1}.
func RecoverClaimSigner(subject domain.Address, topic domain.ClaimTopic, data, sig []byte) (domain.Address, error) {
	if len(sig) != signatureLength {
		return domain.Address{}, fmt.Errorf("signature must be %d bytes, got %d: %w",
			signatureLength, len(sig), sentinel.ErrInvalidSignature)
	}
	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	hash := domain.ClaimSigningHash(subject, topic, data)
	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return domain.Address{}, fmt.Errorf("recover signer: %v: %w", err, sentinel.ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignClaim produces a claim signature for the given signer key. Used by
// issuer tooling and tests; the service itself only ever recovers.
func SignClaim(signer *ecdsa.PrivateKey, subject domain.Address, topic domain.ClaimTopic, data []byte) ([]byte, error) {
	hash := domain.ClaimSigningHash(subject, topic, data)
	sig, err := crypto.Sign(hash.Bytes(), signer)
	if err != nil {
		return nil, fmt.Errorf("sign claim: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
