package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
)

const ownerID = uint(7)

func newCopyTrade(t *testing.T) (CopyTradeService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	dir := fakeDirectory{
		ownerID: {"1001", "2002", "3003"},
		9:    {"9009"},
	}
	return NewCopyTradeService(env.store, dir, env.v, zap.NewNop()), env
}

func link(master, slave string) models.CopyLinkRequest {
	return models.CopyLinkRequest{MasterAccount: master, SlaveAccount: slave}
}

func TestLinkIsIdempotent(t *testing.T) {
	svc, env := newCopyTrade(t)
	ctx := context.Background()

	already, err := svc.Link(ctx, ownerID, link("1001", "2002"))
	require.NoError(t, err)
	assert.False(t, already)

	already, err = svc.Link(ctx, ownerID, link("1001", "2002"))
	require.NoError(t, err)
	assert.True(t, already)

	members, err := env.mr.Members(keyspace.SlavesKey(ownerID, "1001"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2002"}, members)

	slaves, err := svc.Slaves(ctx, ownerID, "1001")
	require.NoError(t, err)
	assert.Equal(t, []string{"2002"}, slaves)
}

func TestLinkRequiresOwnedDistinctAccounts(t *testing.T) {
	svc, env := newCopyTrade(t)
	ctx := context.Background()

	_, err := svc.Link(ctx, ownerID, link("1001", "9009"))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.Link(ctx, ownerID, link("1001", "1001"))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.Link(ctx, ownerID, link("1001", "bad:acct"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	assert.False(t, env.mr.Exists(keyspace.SlavesKey(ownerID, "1001")))
}

func TestUnlink(t *testing.T) {
	svc, _ := newCopyTrade(t)
	ctx := context.Background()

	err := svc.Unlink(ctx, ownerID, link("1001", "2002"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = svc.Link(ctx, ownerID, link("1001", "2002"))
	require.NoError(t, err)
	require.NoError(t, svc.Unlink(ctx, ownerID, link("1001", "2002")))

	slaves, err := svc.Slaves(ctx, ownerID, "1001")
	require.NoError(t, err)
	assert.Empty(t, slaves)
}

func TestSlaveConfig(t *testing.T) {
	svc, env := newCopyTrade(t)
	ctx := context.Background()

	cfg, err := svc.SlaveConfig(ctx, ownerID, "1001", "2002")
	require.NoError(t, err)
	assert.Equal(t, models.SlaveConfig{Paused: false, Multiplier: 1.0}, cfg)

	// pausing does not require an existing link
	paused := true
	require.NoError(t, svc.SetPaused(ctx, ownerID, models.PauseRequest{MasterAccount: "1001", SlaveAccount: "2002", Paused: &paused}))
	assert.Equal(t, "true", env.mr.HGet(keyspace.PauseKey(ownerID, "1001", "2002"), "paused"))

	require.NoError(t, svc.SetMultiplier(ctx, ownerID, models.MultiplierRequest{MasterAccount: "1001", SlaveAccount: "2002", Multiplier: fp(2.5)}))
	slaveNS, err := keyspace.New(ownerID, "2002")
	require.NoError(t, err)
	assert.Equal(t, "2.5", env.mr.HGet(slaveNS.MasterMultipliers(), "1001"))

	cfg, err = svc.SlaveConfig(ctx, ownerID, "1001", "2002")
	require.NoError(t, err)
	assert.Equal(t, models.SlaveConfig{Paused: true, Multiplier: 2.5}, cfg)

	err = svc.SetMultiplier(ctx, ownerID, models.MultiplierRequest{MasterAccount: "1001", SlaveAccount: "2002", Multiplier: fp(0)})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = svc.SetPaused(ctx, ownerID, models.PauseRequest{MasterAccount: "1001", SlaveAccount: "9009", Paused: &paused})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestSymbolMap(t *testing.T) {
	svc, env := newCopyTrade(t)
	ctx := context.Background()

	master, err := keyspace.New(ownerID, "1001")
	require.NoError(t, err)
	slave, err := keyspace.New(ownerID, "2002")
	require.NoError(t, err)
	_, err = env.mr.SAdd(master.AvailableSymbols(), "XAUUSD", "EURUSD")
	require.NoError(t, err)
	_, err = env.mr.SAdd(slave.AvailableSymbols(), "GOLD", "EURUSD.M")
	require.NoError(t, err)

	err = svc.SetSymbolMap(ctx, ownerID, models.SymbolMapRequest{SlaveAccount: "2002", BaseSymbol: "XAUUSD", SlaveSymbol: "SILVER"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = svc.SetSymbolMap(ctx, ownerID, models.SymbolMapRequest{SlaveAccount: "2002", BaseSymbol: "BTCUSD", SlaveSymbol: "GOLD", MasterAccount: "1001"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = svc.SetSymbolMap(ctx, ownerID, models.SymbolMapRequest{SlaveAccount: "2002", BaseSymbol: "   ", SlaveSymbol: "GOLD"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	require.NoError(t, svc.SetSymbolMap(ctx, ownerID, models.SymbolMapRequest{SlaveAccount: "2002", BaseSymbol: "xauusd", SlaveSymbol: "gold", MasterAccount: "1001"}))
	require.NoError(t, svc.SetSymbolMap(ctx, ownerID, models.SymbolMapRequest{SlaveAccount: "2002", BaseSymbol: "EURUSD", SlaveSymbol: "eurusd.m"}))

	m, err := svc.SymbolMap(ctx, ownerID, "2002")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"XAUUSD": "GOLD", "EURUSD": "EURUSD.M"}, m)

	require.NoError(t, svc.DeleteSymbolMap(ctx, ownerID, models.DeleteSymbolMapRequest{SlaveAccount: "2002", BaseSymbol: "eurusd"}))
	err = svc.DeleteSymbolMap(ctx, ownerID, models.DeleteSymbolMapRequest{SlaveAccount: "2002", BaseSymbol: "EURUSD"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	symbols, err := svc.AccountSymbols(ctx, ownerID, "2002")
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD.M", "GOLD"}, symbols)

	_, err = svc.SymbolMap(ctx, ownerID, "9009")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestAliases(t *testing.T) {
	svc, env := newCopyTrade(t)
	ctx := context.Background()

	aliases, err := svc.Aliases(ctx, ownerID, "3003")
	require.NoError(t, err)
	assert.Equal(t, models.AliasMap{}, aliases)

	want := models.AliasMap{"GOLD": {"XAUUSD", "XAUUSD.m"}}
	require.NoError(t, svc.SetAliases(ctx, ownerID, models.AliasesRequest{SlaveAccount: "3003", Aliases: want}))

	aliases, err = svc.Aliases(ctx, ownerID, "3003")
	require.NoError(t, err)
	assert.Equal(t, want, aliases)

	ns, err := keyspace.New(ownerID, "3003")
	require.NoError(t, err)
	require.NoError(t, env.mr.Set(ns.CommonAliases(), "{broken"))
	aliases, err = svc.Aliases(ctx, ownerID, "3003")
	require.NoError(t, err)
	assert.Equal(t, models.AliasMap{}, aliases)
}

func TestCreateMaster(t *testing.T) {
	svc, env := newCopyTrade(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateMaster(ctx, ownerID, "1001"))
	ns, err := keyspace.New(ownerID, "1001")
	require.NoError(t, err)
	assert.Equal(t, "Master", env.mr.HGet(ns.AccountInfo(), "accountType"))

	err = svc.CreateMaster(ctx, ownerID, "9009")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}
