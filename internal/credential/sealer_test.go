package credential

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	key := make([]byte, keyLen)
	_, err := rand.Read(key)
	require.NoError(t, err)
	s, err := NewSealerFromKey(key)
	require.NoError(t, err)
	return s
}

func flipHex(t *testing.T, s string) string {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	require.NotEmpty(t, b)
	b[0] ^= 0x01
	return hex.EncodeToString(b)
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("unit-test-salt")
	k1 := DeriveKey("master", salt)
	k2 := DeriveKey("master", salt)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, keyLen)
	assert.False(t, bytes.Equal(k1, DeriveKey("other", salt)))
	assert.False(t, bytes.Equal(k1, DeriveKey("master", []byte("other-salt"))))
}

func TestNewSealer_RejectsEmptySecret(t *testing.T) {
	_, err := NewSealer("", []byte("salt"))
	assert.ErrorIs(t, err, ErrEncryption)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	s := testSealer(t)
	for _, secret := range []string{"", "hunter2", `{"cookies":{"PHPSESSID":"abc"}}`} {
		env, err := s.Seal([]byte(secret))
		require.NoError(t, err)
		assert.NotContains(t, env.Ciphertext, hex.EncodeToString([]byte("hunter2")))

		got, err := s.Open(env)
		require.NoError(t, err)
		assert.Equal(t, secret, string(got))
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	s := testSealer(t)
	a, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext+a.Tag, b.Ciphertext+b.Tag)
}

func TestOpen_Tampered(t *testing.T) {
	s := testSealer(t)
	env, err := s.Seal([]byte("secret-password"))
	require.NoError(t, err)

	tampered := map[string]Envelope{
		"ciphertext": {Nonce: env.Nonce, Ciphertext: flipHex(t, env.Ciphertext), Tag: env.Tag},
		"tag":        {Nonce: env.Nonce, Ciphertext: env.Ciphertext, Tag: flipHex(t, env.Tag)},
		"nonce":      {Nonce: flipHex(t, env.Nonce), Ciphertext: env.Ciphertext, Tag: env.Tag},
		"short tag":  {Nonce: env.Nonce, Ciphertext: env.Ciphertext, Tag: env.Tag[:8]},
		"not hex":    {Nonce: env.Nonce, Ciphertext: "zz", Tag: env.Tag},
	}
	for name, bad := range tampered {
		t.Run(name, func(t *testing.T) {
			_, err := s.Open(bad)
			assert.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func TestOpen_WrongKey(t *testing.T) {
	env, err := testSealer(t).Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = testSealer(t).Open(env)
	assert.ErrorIs(t, err, ErrDecryption)
}
