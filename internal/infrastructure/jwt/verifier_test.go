package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeKeyPair generates an RSA key, writes the public half as PEM and
// returns the private key for signing test tokens.
func writeKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPath := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0600))
	return privKey, pubPath
}

func sign(t *testing.T, key *rsa.PrivateKey, userID string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestVerifier_AcceptsValidToken(t *testing.T) {
	key, path := writeKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	claims, err := v.Verify(sign(t, key, "u1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
}

func TestVerifier_RejectsExpired(t *testing.T) {
	key, path := writeKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	_, err = v.Verify(sign(t, key, "u1", time.Now().Add(-time.Minute)))
	assert.Error(t, err)
}

func TestVerifier_RejectsForeignKey(t *testing.T) {
	_, path := writeKeyPair(t)
	other, _ := writeKeyPair(t)
	v, err := NewVerifier(path)
	require.NoError(t, err)

	_, err = v.Verify(sign(t, other, "u1", time.Now().Add(time.Hour)))
	assert.Error(t, err)
}

func TestNewVerifier_MissingFile(t *testing.T) {
	_, err := NewVerifier(filepath.Join(t.TempDir(), "absent.pem"))
	assert.ErrorContains(t, err, "read public key")
}
