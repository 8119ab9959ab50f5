package jwtinfra

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wave-api/internal/config"
)

// newTestProvider generates a fresh RSA key pair, writes them to temp files,
// and returns a Provider reading them.
func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         time.Hour,
	})
	require.NoError(t, err)
	return p
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider(&config.Config{JWTPrivateKeyPath: filepath.Join(t.TempDir(), "nope.pem")})
	assert.ErrorContains(t, err, "read private key")
}

func TestSignVerify_RoundTrip(t *testing.T) {
	p := newTestProvider(t)
	tok, exp, err := p.Sign("u1", "+15551234567")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "+15551234567", claims.PhoneNumber)
}

func TestVerify_RejectsAttestationToken(t *testing.T) {
	p := newTestProvider(t)
	tok, _, err := p.SignAttestation("dev1", time.Minute)
	require.NoError(t, err)

	_, err = p.Verify(tok)
	assert.Error(t, err)
}

func TestVerifyAttestation_RejectsCredentialToken(t *testing.T) {
	p := newTestProvider(t)
	tok, _, err := p.Sign("u1", "+15551234567")
	require.NoError(t, err)

	_, err = p.VerifyAttestation(tok)
	assert.Error(t, err)
}

func TestVerifyAttestation_Expired(t *testing.T) {
	p := newTestProvider(t)
	tok, _, err := p.SignAttestation("dev1", -time.Minute)
	require.NoError(t, err)

	_, err = p.VerifyAttestation(tok)
	assert.Error(t, err)
}

func TestVerify_ForeignKey(t *testing.T) {
	a, b := newTestProvider(t), newTestProvider(t)
	tok, _, err := a.Sign("u1", "+15551234567")
	require.NoError(t, err)

	_, err = b.Verify(tok)
	assert.Error(t, err)
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{UserID: "u1"})
	c, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", c.UserID)
}
