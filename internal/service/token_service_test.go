package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

func newTestTokenService() *TokenService {
	return NewTokenService(config.JWTConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "enrollment-api"})
}

func TestTokenServiceIssueAndValidate(t *testing.T) {
	svc := newTestTokenService()

	token, expiresAt, err := svc.Issue("admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "enrollment-api", claims.Issuer)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := newTestTokenService()

	other := NewTokenService(config.JWTConfig{Secret: "other", Issuer: "enrollment-api"})
	forged, _, err := other.Issue("admin-1", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.True(t, appErrors.HasCode(err, "UNAUTHORIZED"))

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := svc.Issue("admin-1", models.RoleAdmin)
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.Error(t, err)

	_, _, err = svc.Issue(" ", models.RoleStaff)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeValidation))
}
