package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/store"
	"github.com/vikasavnish/botbridge/internal/validation"
)

// CopyTradeService manages master/slave links and the per-slave settings the
// workers use to replicate trades. Values are stored as the plain strings the
// workers read, not as JSON.
type CopyTradeService interface {
	Link(ctx context.Context, userID uint, req models.CopyLinkRequest) (alreadyLinked bool, err error)
	Unlink(ctx context.Context, userID uint, req models.CopyLinkRequest) error
	SetPaused(ctx context.Context, userID uint, req models.PauseRequest) error
	SetMultiplier(ctx context.Context, userID uint, req models.MultiplierRequest) error
	SetSymbolMap(ctx context.Context, userID uint, req models.SymbolMapRequest) error
	DeleteSymbolMap(ctx context.Context, userID uint, req models.DeleteSymbolMapRequest) error
	SetAliases(ctx context.Context, userID uint, req models.AliasesRequest) error
	CreateMaster(ctx context.Context, userID uint, account string) error
	Slaves(ctx context.Context, userID uint, master string) ([]string, error)
	SlaveConfig(ctx context.Context, userID uint, master, slave string) (models.SlaveConfig, error)
	SymbolMap(ctx context.Context, userID uint, slave string) (map[string]string, error)
	Aliases(ctx context.Context, userID uint, slave string) (models.AliasMap, error)
	AccountSymbols(ctx context.Context, userID uint, account string) ([]string, error)
}

type copyTradeService struct {
	store    *store.Store
	accounts AccountDirectory
	validate *validation.Validator
	logger   *zap.Logger
}

// NewCopyTradeService creates a new copy trade service
func NewCopyTradeService(st *store.Store, accounts AccountDirectory, v *validation.Validator, logger *zap.Logger) CopyTradeService {
	return &copyTradeService{
		store:    st,
		accounts: accounts,
		validate: v,
		logger:   logger.Named("copytrade"),
	}
}

// owned resolves every account to its namespace, failing Forbidden if any
// of them is not the user's.
func (s *copyTradeService) owned(ctx context.Context, userID uint, accounts ...string) ([]keyspace.Namespace, error) {
	out := make([]keyspace.Namespace, 0, len(accounts))
	for _, account := range accounts {
		ns, err := ResolveNamespace(ctx, s.accounts, userID, account)
		if err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, nil
}

func (s *copyTradeService) pair(ctx context.Context, userID uint, master, slave string) (keyspace.Namespace, keyspace.Namespace, error) {
	nss, err := s.owned(ctx, userID, master, slave)
	if err != nil {
		return keyspace.Namespace{}, keyspace.Namespace{}, err
	}
	return nss[0], nss[1], nil
}

// Link adds slave to master's slave set. Linking twice succeeds and reports
// alreadyLinked.
func (s *copyTradeService) Link(ctx context.Context, userID uint, req models.CopyLinkRequest) (bool, error) {
	if err := s.validate.Struct(req); err != nil {
		return false, err
	}
	if req.MasterAccount == req.SlaveAccount {
		return false, apperr.Forbidden("master and slave accounts must differ")
	}
	if _, _, err := s.pair(ctx, userID, req.MasterAccount, req.SlaveAccount); err != nil {
		return false, err
	}

	var added int64
	err := s.store.Run(ctx, "link slave", func(rdb *redis.Client) error {
		var err error
		added, err = rdb.SAdd(ctx, keyspace.SlavesKey(userID, req.MasterAccount), req.SlaveAccount).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("slave linked",
		zap.Uint("user_id", userID), zap.String("master", req.MasterAccount), zap.String("slave", req.SlaveAccount), zap.Bool("new", added > 0))
	return added == 0, nil
}

func (s *copyTradeService) Unlink(ctx context.Context, userID uint, req models.CopyLinkRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if _, _, err := s.pair(ctx, userID, req.MasterAccount, req.SlaveAccount); err != nil {
		return err
	}

	var removed int64
	err := s.store.Run(ctx, "unlink slave", func(rdb *redis.Client) error {
		var err error
		removed, err = rdb.SRem(ctx, keyspace.SlavesKey(userID, req.MasterAccount), req.SlaveAccount).Result()
		return err
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		return apperr.NotFound("slave %s is not linked to master %s", req.SlaveAccount, req.MasterAccount)
	}
	s.logger.Info("slave unlinked", zap.Uint("user_id", userID), zap.String("master", req.MasterAccount), zap.String("slave", req.SlaveAccount))
	return nil
}

// SetPaused writes the pause flag whether or not the pair is linked, so a
// slave can be paused before it is attached.
func (s *copyTradeService) SetPaused(ctx context.Context, userID uint, req models.PauseRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if _, _, err := s.pair(ctx, userID, req.MasterAccount, req.SlaveAccount); err != nil {
		return err
	}
	return s.store.Run(ctx, "set paused", func(rdb *redis.Client) error {
		return rdb.HSet(ctx, keyspace.PauseKey(userID, req.MasterAccount, req.SlaveAccount), "paused", strconv.FormatBool(*req.Paused)).Err()
	})
}

func (s *copyTradeService) SetMultiplier(ctx context.Context, userID uint, req models.MultiplierRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	_, slave, err := s.pair(ctx, userID, req.MasterAccount, req.SlaveAccount)
	if err != nil {
		return err
	}
	return s.store.Run(ctx, "set multiplier", func(rdb *redis.Client) error {
		return rdb.HSet(ctx, slave.MasterMultipliers(), req.MasterAccount, strconv.FormatFloat(*req.Multiplier, 'f', -1, 64)).Err()
	})
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (s *copyTradeService) symbolAvailable(ctx context.Context, ns keyspace.Namespace, symbol string) (bool, error) {
	return s.store.IsMember(ctx, ns.AvailableSymbols(), symbol)
}

// SetSymbolMap maps baseSymbol to slaveSymbol on the slave account,
// replacing any earlier mapping. Both symbols must be known to the
// respective accounts.
func (s *copyTradeService) SetSymbolMap(ctx context.Context, userID uint, req models.SymbolMapRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	base, target := normalizeSymbol(req.BaseSymbol), normalizeSymbol(req.SlaveSymbol)

	nss, err := s.owned(ctx, userID, req.SlaveAccount)
	if err != nil {
		return err
	}
	slave := nss[0]
	ok, err := s.symbolAvailable(ctx, slave, target)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("slaveSymbol %s does not exist for account %s", target, req.SlaveAccount)
	}

	if req.MasterAccount != "" {
		nss, err := s.owned(ctx, userID, req.MasterAccount)
		if err != nil {
			return err
		}
		ok, err := s.symbolAvailable(ctx, nss[0], base)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("baseSymbol %s does not exist for account %s", base, req.MasterAccount)
		}
	}

	err = s.store.Run(ctx, "set symbol map", func(rdb *redis.Client) error {
		return rdb.HSet(ctx, slave.SymbolMap(), base, target).Err()
	})
	if err != nil {
		return err
	}
	s.logger.Info("symbol mapped", zap.String("ns", slave.String()), zap.String("base", base), zap.String("slave_symbol", target))
	return nil
}

func (s *copyTradeService) DeleteSymbolMap(ctx context.Context, userID uint, req models.DeleteSymbolMapRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	nss, err := s.owned(ctx, userID, req.SlaveAccount)
	if err != nil {
		return err
	}
	base := normalizeSymbol(req.BaseSymbol)

	var deleted int64
	err = s.store.Run(ctx, "delete symbol map", func(rdb *redis.Client) error {
		var err error
		deleted, err = rdb.HDel(ctx, nss[0].SymbolMap(), base).Result()
		return err
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return apperr.NotFound("no mapping for %s", base)
	}
	return nil
}

// SetAliases replaces the slave's alias map with one JSON document.
func (s *copyTradeService) SetAliases(ctx context.Context, userID uint, req models.AliasesRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	nss, err := s.owned(ctx, userID, req.SlaveAccount)
	if err != nil {
		return err
	}
	b, err := json.Marshal(req.Aliases)
	if err != nil {
		return apperr.Internal(errors.Wrap(err, "marshal aliases"), "encode aliases")
	}
	return s.store.Run(ctx, "set aliases", func(rdb *redis.Client) error {
		return rdb.Set(ctx, nss[0].CommonAliases(), string(b), 0).Err()
	})
}

// CreateMaster flags the account as a master in its account info.
func (s *copyTradeService) CreateMaster(ctx context.Context, userID uint, account string) error {
	nss, err := s.owned(ctx, userID, account)
	if err != nil {
		return err
	}
	err = s.store.Run(ctx, "create master", func(rdb *redis.Client) error {
		return rdb.HSet(ctx, nss[0].AccountInfo(), "accountType", "Master").Err()
	})
	if err != nil {
		return err
	}
	s.logger.Info("master created", zap.String("ns", nss[0].String()))
	s.store.Notify(ctx, nss[0].Events())
	return nil
}

func (s *copyTradeService) Slaves(ctx context.Context, userID uint, master string) ([]string, error) {
	if _, err := s.owned(ctx, userID, master); err != nil {
		return nil, err
	}
	return s.store.Members(ctx, keyspace.SlavesKey(userID, master))
}

// SlaveConfig reports the pause flag and multiplier of slave under master.
// Unset values read as not paused with multiplier 1.
func (s *copyTradeService) SlaveConfig(ctx context.Context, userID uint, master, slave string) (models.SlaveConfig, error) {
	_, slaveNS, err := s.pair(ctx, userID, master, slave)
	if err != nil {
		return models.SlaveConfig{}, err
	}

	cfg := models.SlaveConfig{Multiplier: models.DefaultMultiplier}
	var paused, multiplier *redis.StringCmd
	err = s.store.Run(ctx, "slave config", func(rdb *redis.Client) error {
		_, err := rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			paused = pipe.HGet(ctx, keyspace.PauseKey(userID, master, slave), "paused")
			multiplier = pipe.HGet(ctx, slaveNS.MasterMultipliers(), master)
			return nil
		})
		return err
	})
	if err != nil {
		return models.SlaveConfig{}, err
	}

	cfg.Paused = strings.EqualFold(paused.Val(), "true")
	if m, err := strconv.ParseFloat(multiplier.Val(), 64); err == nil && m > 0 {
		cfg.Multiplier = m
	}
	return cfg, nil
}

func (s *copyTradeService) SymbolMap(ctx context.Context, userID uint, slave string) (map[string]string, error) {
	nss, err := s.owned(ctx, userID, slave)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	err = s.store.Run(ctx, "symbol map", func(rdb *redis.Client) error {
		var err error
		out, err = rdb.HGetAll(ctx, nss[0].SymbolMap()).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

// Aliases returns the slave's alias map, or an empty map when none is stored
// or the stored document is not valid.
func (s *copyTradeService) Aliases(ctx context.Context, userID uint, slave string) (models.AliasMap, error) {
	nss, err := s.owned(ctx, userID, slave)
	if err != nil {
		return nil, err
	}
	var raw string
	err = s.store.Run(ctx, "aliases", func(rdb *redis.Client) error {
		var err error
		raw, err = rdb.Get(ctx, nss[0].CommonAliases()).Result()
		return err
	})
	if err != nil {
		return nil, err
	}

	aliases := models.AliasMap{}
	if raw == "" {
		return aliases, nil
	}
	if err := json.Unmarshal([]byte(raw), &aliases); err != nil || aliases == nil {
		s.logger.Warn("ignoring corrupt alias map", zap.String("ns", nss[0].String()))
		return models.AliasMap{}, nil
	}
	return aliases, nil
}

// AccountSymbols returns the symbols the worker discovered for the account,
// sorted.
func (s *copyTradeService) AccountSymbols(ctx context.Context, userID uint, account string) ([]string, error) {
	nss, err := s.owned(ctx, userID, account)
	if err != nil {
		return nil, err
	}
	return s.store.Members(ctx, nss[0].AvailableSymbols())
}
