package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vikasavnish/botbridge/internal/models"
)

func TestAuthenticateAndVerify(t *testing.T) {
	db := newTestDB(t)
	hashed, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{Username: "trader", HashedPassword: string(hashed)}).Error)

	service := NewAuthService(db, []byte("test-key"), time.Minute)
	ctx := context.Background()

	_, err = service.Authenticate(ctx, "trader", "wrong")
	assert.Error(t, err)
	_, err = service.Authenticate(ctx, "nobody", "s3cret")
	assert.Error(t, err)

	user, err := service.Authenticate(ctx, "trader", "s3cret")
	require.NoError(t, err)

	token, err := service.GenerateToken(user)
	require.NoError(t, err)

	userID, err := service.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	other := NewAuthService(db, []byte("other-key"), time.Minute)
	_, err = other.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.Verify(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	service := NewAuthService(nil, []byte("test-key"), time.Minute).(*authService)
	service.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := service.GenerateToken(models.User{ID: 4, Username: "old"})
	require.NoError(t, err)

	_, err = service.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
