package services

import (
	"context"
	"sort"

	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/store"
)

// SnapshotService assembles the full state of a namespace for streaming.
type SnapshotService interface {
	Snapshot(ctx context.Context, ns keyspace.Namespace) (models.Snapshot, error)
}

type snapshotService struct {
	store  *store.Store
	orders OrderService
	trades RunningTradeService
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(st *store.Store, orders OrderService, trades RunningTradeService) SnapshotService {
	return &snapshotService{store: st, orders: orders, trades: trades}
}

// Snapshot reads pending orders, running trades, the market quotes of every
// symbol they reference and the account info.
func (s *snapshotService) Snapshot(ctx context.Context, ns keyspace.Namespace) (models.Snapshot, error) {
	pending, err := s.orders.ListOrders(ctx, ns)
	if err != nil {
		return models.Snapshot{}, err
	}
	running, err := s.trades.ListTrades(ctx, ns)
	if err != nil {
		return models.Snapshot{}, err
	}

	seen := map[string]bool{}
	for _, o := range pending {
		seen[o.Symbol] = true
	}
	for _, t := range running {
		seen[t.Symbol] = true
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	keys := make([]string, 0, len(symbols)+1)
	for _, sym := range symbols {
		keys = append(keys, ns.Market(sym))
	}
	keys = append(keys, ns.AccountInfo())
	hashes, err := s.store.ReadHashes(ctx, keys)
	if err != nil {
		return models.Snapshot{}, err
	}

	market := make(map[string]map[string]interface{}, len(symbols))
	for i, sym := range symbols {
		if len(hashes[i]) > 0 {
			market[sym] = store.DecodeMap(hashes[i])
		}
	}

	return models.Snapshot{
		Pending: pending,
		Running: running,
		Market:  market,
		Account: store.DecodeMap(hashes[len(symbols)]),
	}, nil
}
