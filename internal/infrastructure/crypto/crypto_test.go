package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"
)

const testKey = "01234567890123456789012345678901"

func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)
	return enc
}

func TestNewEncryptorKeyLength(t *testing.T) {
	for _, key := range []string{"", "short", testKey + "x"} {
		_, err := NewEncryptor(key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key length %d", len(key))
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)
	token := "access-sandbox-8ab976e6-64bc-4b38-98f7-731e7a349970"

	sealed, err := enc.Encrypt(token)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "access-sandbox")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, token, opened)
}

func TestEncryptLayout(t *testing.T) {
	enc := newTestEncryptor(t)
	plaintext := "access-production-1"

	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	assert.Equal(t, 24, enc.aead.NonceSize())
	assert.Len(t, raw, chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	enc := newTestEncryptor(t)

	seen := make(map[string]struct{})
	nonces := make(map[string]struct{})
	for range 16 {
		sealed, err := enc.Encrypt("access-sandbox-1")
		require.NoError(t, err)
		seen[sealed] = struct{}{}

		raw, err := base64.StdEncoding.DecodeString(sealed)
		require.NoError(t, err)
		nonces[string(raw[:chacha20poly1305.NonceSizeX])] = struct{}{}
	}

	assert.Len(t, seen, 16)
	assert.Len(t, nonces, 16)
}

func TestEmptyStringPassesThrough(t *testing.T) {
	enc := newTestEncryptor(t)

	sealed, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	opened, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestDecryptDetectsTampering(t *testing.T) {
	enc := newTestEncryptor(t)
	sealed, err := enc.Encrypt("access-sandbox-1")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)

	flip := func(i int) string {
		b := append([]byte(nil), raw...)
		b[i] ^= 0x01
		return base64.StdEncoding.EncodeToString(b)
	}

	tests := []struct {
		name       string
		ciphertext string
	}{
		{"flipped nonce byte", flip(0)},
		{"flipped payload byte", flip(chacha20poly1305.NonceSizeX)},
		{"flipped tag byte", flip(len(raw) - 1)},
		{"truncated", base64.StdEncoding.EncodeToString(raw[:chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead-1])},
		{"not base64", "!!not-base64!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.ciphertext)
			assert.Error(t, err)
		})
	}
}

func TestDecryptWithOtherKeyFails(t *testing.T) {
	sealed, err := newTestEncryptor(t).Encrypt("access-sandbox-1")
	require.NoError(t, err)

	other, err := NewEncryptor(strings.Repeat("k", chacha20poly1305.KeySize))
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err)
}
