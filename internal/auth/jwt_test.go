package auth

import (
	"testing"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.ErrorIs(t, err, ErrSecretMissing)
}

func TestTokenService_IssueAndParse(t *testing.T) {
	svc, err := NewTokenService("s3cret", time.Hour)
	require.NoError(t, err)

	user := &models.User{ID: uuid.New(), Roles: models.NewRoleSet(models.RoleUser, models.RoleAdmin)}
	token, err := svc.Issue(user)
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, []string{"admin", "user"}, claims.Roles)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	svc, err := NewTokenService("s3cret", time.Minute)
	require.NoError(t, err)

	issued := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issued }
	token, err := svc.Issue(&models.User{ID: uuid.New()})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	a, _ := NewTokenService("one", time.Hour)
	b, _ := NewTokenService("two", time.Hour)

	token, err := a.Issue(&models.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = b.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokenService_RejectsNonHMAC(t *testing.T) {
	svc, _ := NewTokenService("s3cret", time.Hour)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": uuid.NewString(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Parse(token)
	assert.Error(t, err)
}
