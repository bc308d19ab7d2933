package identity

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

func TestRecoverClaimSigner(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := ethcrypto.PubkeyToAddress(key.PublicKey)
	subject := domain.Address{0x01}
	data := []byte("attestation payload")

	t.Run("recovers the signing address", func(t *testing.T) {
		sig, err := SignClaim(key, subject, 42, data)
		require.NoError(t, err)

		got, err := RecoverClaimSigner(subject, 42, data, sig)
		require.NoError(t, err)
		require.Equal(t, signer, got)
	})

	t.Run("accepts recovery id in 0/1 form", func(t *testing.T) {
		sig, err := SignClaim(key, subject, 42, data)
		require.NoError(t, err)
		sig[64] -= 27

		got, err := RecoverClaimSigner(subject, 42, data, sig)
		require.NoError(t, err)
		require.Equal(t, signer, got)
	})

	t.Run("different topic recovers a different address", func(t *testing.T) {
		sig, err := SignClaim(key, subject, 42, data)
		require.NoError(t, err)

		got, err := RecoverClaimSigner(subject, 43, data, sig)
		if err == nil {
			require.NotEqual(t, signer, got)
		}
	})

	t.Run("short signature rejected", func(t *testing.T) {
		_, err := RecoverClaimSigner(subject, 42, data, make([]byte, 64))
		require.ErrorIs(t, err, sentinel.ErrInvalidSignature)
	})
}
