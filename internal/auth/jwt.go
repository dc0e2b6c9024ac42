package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrSecretMissing = errors.New("jwt secret must be provided")

// Claims is what a verified token says about its bearer
type Claims struct {
	UserID uuid.UUID
	Roles  []string
}

// TokenService issues and verifies HS256 access tokens
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service signing with secret
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs an access token for user
func (s *TokenService) Issue(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
		"roles": user.Roles.Strings(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies a token and extracts its claims
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	sub, err := mc.GetSubject()
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}

	claims := &Claims{UserID: userID}
	rolesClaim, _ := mc["roles"].([]any)
	for _, r := range rolesClaim {
		if role, ok := r.(string); ok {
			claims.Roles = append(claims.Roles, role)
		}
	}
	return claims, nil
}
