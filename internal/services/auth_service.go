package services

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/vikasavnish/botbridge/internal/models"
)

// ErrInvalidToken is returned for malformed, expired or wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenVerifier decodes a bearer token into the user id it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (uint, error)
}

// AuthService defines the interface for authentication operations
type AuthService interface {
	TokenVerifier
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	GenerateToken(user models.User) (string, error)
}

// authService implements the AuthService interface
type authService struct {
	db        *gorm.DB
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(db *gorm.DB, secretKey []byte, ttl time.Duration) AuthService {
	return &authService{
		db:        db,
		secretKey: secretKey,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Authenticate verifies user credentials and returns the user if valid
func (s *authService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	var user models.User
	result := s.db.WithContext(ctx).Where("username = ?", username).First(&user)
	if result.Error != nil {
		return models.User{}, result.Error
	}

	// Check password
	err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password))
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

// GenerateToken creates a new JWT token for the user
func (s *authService) GenerateToken(user models.User) (string, error) {
	now := s.now()
	claims := &models.Claims{
		UserID:   user.ID,
		Username: user.Username,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(s.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Verify checks signature, algorithm and expiry.
func (s *authService) Verify(_ context.Context, tokenString string) (uint, error) {
	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
