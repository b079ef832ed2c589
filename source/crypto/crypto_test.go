package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyAgreementDerivesMatchingSecretBothSides(t *testing.T) {
	server, err := NewKeyAgreement()
	require.NoError(t, err)

	clientPriv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	key, iv, salt, err := server.Derive(&clientPriv.PublicKey)
	require.NoError(t, err)
	assert.NotZero(t, key)
	assert.NotZero(t, iv)
	assert.Len(t, salt, 16)

	// Client side: its private key against the server's ephemeral
	// public key, folded with the same salt, must give the same key/IV.
	clientECDH, err := clientPriv.ECDH()
	require.NoError(t, err)
	serverPub, err := server.ephemeral.PublicKey.ECDH()
	require.NoError(t, err)
	secret, err := clientECDH.ECDH(serverPub)
	require.NoError(t, err)
	digest := sha256.Sum256(append(append([]byte{}, salt...), secret...))
	assert.Equal(t, digest[:32], key[:])
	assert.Equal(t, digest[:16], iv[:])
}

func TestServerHandshakeJWTCarriesSalt(t *testing.T) {
	server, err := NewKeyAgreement()
	require.NoError(t, err)

	salt := make([]byte, 16)
	_, err = rand.Read(salt)
	require.NoError(t, err)

	token, err := server.ServerHandshakeJWT(salt)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestStreamCipherRoundTrip(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	copy(key[:], []byte("01234567890123456789012345678901"))
	copy(iv[:], []byte("0123456789012345"))

	sender, err := NewStreamCipher(key, iv)
	require.NoError(t, err)
	receiver, err := NewStreamCipher(key, iv)
	require.NoError(t, err)

	plain := []byte("login packet body")
	ct := sender.Encrypt(plain)
	got, err := receiver.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestStreamCipherCountersAdvanceIndependently(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	copy(key[:], []byte("01234567890123456789012345678901"))
	copy(iv[:], []byte("0123456789012345"))

	sender, err := NewStreamCipher(key, iv)
	require.NoError(t, err)
	receiver, err := NewStreamCipher(key, iv)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ct := sender.Encrypt([]byte("packet"))
		plain, err := receiver.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, []byte("packet"), plain)
	}
}

func TestStreamCipherRejectsTamperedChecksum(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	copy(key[:], []byte("01234567890123456789012345678901"))
	copy(iv[:], []byte("0123456789012345"))

	sender, err := NewStreamCipher(key, iv)
	require.NoError(t, err)
	receiver, err := NewStreamCipher(key, iv)
	require.NoError(t, err)

	ct := sender.Encrypt([]byte("packet"))
	ct[0] ^= 0xff
	_, err = receiver.Decrypt(ct)
	assert.Error(t, err)
}
