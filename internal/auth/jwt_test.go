package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	keyPair, err := GenerateKeyPair()
	require.NoError(t, err)

	svc := NewJWTService(keyPair, "test-issuer")

	token, err := svc.GenerateToken("operator", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "operator", claims.Subject)
	require.Equal(t, RoleOperator, claims.Role)
	require.Equal(t, "test-issuer", claims.Issuer)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	keyPair, err := GenerateKeyPair()
	require.NoError(t, err)

	svc := NewJWTService(keyPair, "test-issuer")

	token, err := svc.GenerateToken("operator", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	issuerKeys, err := GenerateKeyPair()
	require.NoError(t, err)
	otherKeys, err := GenerateKeyPair()
	require.NoError(t, err)

	issuer := NewJWTService(issuerKeys, "test-issuer")
	verifier := NewJWTService(otherKeys, "test-issuer")

	token, err := issuer.GenerateToken("operator", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}

func TestLoadOrGenerateKeyPairRoundTrip(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	first, err := LoadOrGenerateKeyPair(privPath, pubPath)
	require.NoError(t, err)
	require.FileExists(t, privPath)
	require.FileExists(t, pubPath)

	// A second load returns the same keys, so tokens survive restarts.
	second, err := LoadOrGenerateKeyPair(privPath, pubPath)
	require.NoError(t, err)
	require.True(t, first.PrivateKey.Equal(second.PrivateKey))

	token, err := NewJWTService(first, "test-issuer").GenerateToken("operator", time.Hour)
	require.NoError(t, err)
	_, err = NewJWTService(second, "test-issuer").ValidateToken(token)
	require.NoError(t, err)
}
