package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "open database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every new connection to :memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Account{}), "migrate schema")
	return db
}

func TestAccountService(t *testing.T) {
	db := newTestDB(t)
	service := NewAccountService(db)
	ctx := context.Background()

	acc, err := service.RegisterAccount(ctx, 1, "5001", "ctrader")
	require.NoError(t, err)
	assert.NotZero(t, acc.ID)

	_, err = service.RegisterAccount(ctx, 1, "5001", "ctrader")
	assert.True(t, apperr.IsKind(err, apperr.KindConstraint))

	_, err = service.RegisterAccount(ctx, 1, "50:01", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = service.RegisterAccount(ctx, 2, "5001", "mt5")
	require.NoError(t, err, "the same number may belong to another user")

	owned, err := service.Owns(ctx, 1, "5001")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = service.Owns(ctx, 3, "5001")
	require.NoError(t, err)
	assert.False(t, owned)

	accounts, err := service.ListAccounts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "5001", accounts[0].AccountNumber)
}

func TestResolveNamespace(t *testing.T) {
	dir := fakeDirectory{1: {"5001"}}
	ctx := context.Background()

	ns, err := ResolveNamespace(ctx, dir, 1, "5001")
	require.NoError(t, err)
	assert.Equal(t, "bot:1:5001:", ns.Prefix())

	_, err = ResolveNamespace(ctx, dir, 2, "5001")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = ResolveNamespace(ctx, dir, 1, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
