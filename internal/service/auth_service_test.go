package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/pkg/config"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "secret"})
	token, err := svc.IssueToken(models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty, InstitutionID: "inst-1"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "fac-1", claims.UserID)
	assert.Equal(t, models.RoleFaculty, claims.Role)
	assert.Equal(t, "inst-1", claims.InstitutionID)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "secret"})

	other := NewAuthService(config.JWTConfig{Secret: "other"})
	foreign, err := other.IssueToken(models.JWTClaims{UserID: "u", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	expired, err := svc.IssueToken(models.JWTClaims{UserID: "u", Role: models.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	unknownRole, err := svc.IssueToken(models.JWTClaims{UserID: "u", Role: "PARENT"}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unknownRole)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u", Role: models.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
