package services

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/store"
	"github.com/vikasavnish/botbridge/internal/validation"
)

// RunningTradeService defines the open-position operations of one namespace
type RunningTradeService interface {
	CreateTrade(ctx context.Context, ns keyspace.Namespace, req models.NewTradeRequest) (models.RunningTrade, error)
	GetTrade(ctx context.Context, ns keyspace.Namespace, id string) (models.RunningTrade, error)
	ListTrades(ctx context.Context, ns keyspace.Namespace) ([]models.RunningTrade, error)
	SetSlTpBreakeven(ctx context.Context, ns keyspace.Namespace, id string, req models.SlTpBreakeven) (models.RunningTrade, error)
	SetPartialClose(ctx context.Context, ns keyspace.Namespace, id string, req models.PartialClose) (models.RunningTrade, error)
	SetVolumeToClose(ctx context.Context, ns keyspace.Namespace, id string, req models.VolumeToClose) (models.RunningTrade, error)
	AddSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, in models.SpotAddInput) ([]models.SpotAdd, error)
	UpdateSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, index int, patch models.SpotAddPatch) (models.SpotAdd, error)
	QueueSpotDeletion(ctx context.Context, ns keyspace.Namespace, parentID string, index int) error
	QueueClose(ctx context.Context, ns keyspace.Namespace, id string) error
	ListExecuted(ctx context.Context, ns keyspace.Namespace) ([]models.ExecutedOrder, error)
	AppendExecuted(ctx context.Context, ns keyspace.Namespace, entry models.ExecutedOrder) error
}

type runningTradeService struct {
	store    *store.Store
	queue    *deletionQueue
	spots    *spotLedger
	validate *validation.Validator
	logger   *zap.Logger
}

// NewRunningTradeService creates a new running trade service
func NewRunningTradeService(st *store.Store, v *validation.Validator, logger *zap.Logger) RunningTradeService {
	logger = logger.Named("trades")
	queue := newDeletionQueue(st, logger)
	return &runningTradeService{
		store:    st,
		queue:    queue,
		spots:    &spotLedger{store: st, queue: queue, validate: v, logger: logger, entity: "running trade"},
		validate: v,
		logger:   logger,
	}
}

func (s *runningTradeService) CreateTrade(ctx context.Context, ns keyspace.Namespace, req models.NewTradeRequest) (models.RunningTrade, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.RunningTrade{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	trade := models.RunningTrade{
		ID:             id,
		Symbol:         req.Symbol,
		EntryType:      req.EntryType,
		TradeSetup:     req.TradeSetup,
		OrderType:      req.OrderType,
		CheckOn:        req.CheckOn,
		RiskPercentage: *req.RiskPercentage,
		Price:          req.Price,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		SlToUpdate:     req.StopLoss,
		TpToUpdate:     req.TakeProfit,
		OrderID:        models.TicketPtr(req.OrderID),
		Volume:         *req.Volume,
		SpotAdds:       make([]models.SpotAdd, 0, len(req.SpotAdds)),
	}
	for _, in := range req.SpotAdds {
		trade.SpotAdds = append(trade.SpotAdds, in.SpotAdd())
	}
	fields, err := store.EncodeFields(trade)
	if err != nil {
		return models.RunningTrade{}, apperr.Internal(err, "encode running trade")
	}

	key := ns.RunningTrade(id)
	err = s.store.Optimistic(ctx, "add_trade", func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Constraint("running trade %s already exists", id)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.SAdd(ctx, ns.RunningTradeIDs(), id)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return models.RunningTrade{}, err
	}

	s.logger.Info("running trade added", zap.String("ns", ns.String()), zap.String("trade_id", id))
	s.store.Notify(ctx, ns.Events())
	return trade, nil
}

func normalizeTrade(t *models.RunningTrade, id string) {
	if t.ID == "" {
		t.ID = id
	}
	if t.SpotAdds == nil {
		t.SpotAdds = []models.SpotAdd{}
	}
}

func (s *runningTradeService) GetTrade(ctx context.Context, ns keyspace.Namespace, id string) (models.RunningTrade, error) {
	var trade models.RunningTrade
	found, err := s.store.ReadEntity(ctx, ns.RunningTrade(id), &trade)
	if err != nil {
		return models.RunningTrade{}, err
	}
	if !found {
		return models.RunningTrade{}, apperr.NotFound("running trade %s not found", id)
	}
	normalizeTrade(&trade, id)
	return trade, nil
}

func (s *runningTradeService) ListTrades(ctx context.Context, ns keyspace.Namespace) ([]models.RunningTrade, error) {
	trades := []models.RunningTrade{}
	err := s.store.ReadIndexed(ctx, ns.RunningTradeIDs(), ns.RunningTrade, func(id string, data map[string]string) error {
		var t models.RunningTrade
		if err := s.store.Decode(ns.RunningTrade(id), data, &t); err != nil {
			return err
		}
		normalizeTrade(&t, id)
		trades = append(trades, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// adjust writes fields onto an existing trade. check, when set, sees the
// trade as read under WATCH and may reject the change.
func (s *runningTradeService) adjust(ctx context.Context, ns keyspace.Namespace, op, id string, fields map[string]interface{}, check func(models.RunningTrade) error) (models.RunningTrade, error) {
	key := ns.RunningTrade(id)
	err := s.store.Optimistic(ctx, op, func(tx *redis.Tx) error {
		var trade models.RunningTrade
		found, err := s.store.ReadEntityTx(ctx, tx, key, &trade)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFound("running trade %s not found", id)
		}
		if check != nil {
			if err := check(trade); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return models.RunningTrade{}, err
	}

	s.logger.Info("running trade adjusted", zap.String("ns", ns.String()), zap.String("trade_id", id), zap.String("op", op))
	s.store.Notify(ctx, ns.Events())
	return s.GetTrade(ctx, ns, id)
}

// withinVolume rejects amounts larger than the trade's current volume.
// Comparison is decimal so that 1.0 against a stored 1.0 is never off by
// float rounding.
func withinVolume(field string, amount float64) func(models.RunningTrade) error {
	return func(t models.RunningTrade) error {
		if decimal.NewFromFloat(amount).GreaterThan(decimal.NewFromFloat(t.Volume)) {
			return apperr.Constraint("%s %v exceeds trade volume %v", field, amount, t.Volume)
		}
		return nil
	}
}

// SetSlTpBreakeven writes only the provided adjustments.
func (s *runningTradeService) SetSlTpBreakeven(ctx context.Context, ns keyspace.Namespace, id string, req models.SlTpBreakeven) (models.RunningTrade, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.RunningTrade{}, err
	}
	fields, err := store.EncodeFields(req)
	if err != nil {
		return models.RunningTrade{}, apperr.Internal(err, "encode adjustment")
	}
	if len(fields) == 0 {
		return models.RunningTrade{}, apperr.Validation("one of slToUpdate, tpToUpdate, breakevenPrice is required")
	}
	return s.adjust(ctx, ns, "sltp_breakeven", id, fields, nil)
}

func (s *runningTradeService) SetPartialClose(ctx context.Context, ns keyspace.Namespace, id string, req models.PartialClose) (models.RunningTrade, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.RunningTrade{}, err
	}
	fields, err := store.EncodeFields(req)
	if err != nil {
		return models.RunningTrade{}, apperr.Internal(err, "encode partial close")
	}
	if len(fields) == 0 {
		return models.RunningTrade{}, apperr.Validation("one of partialClosePrice, lotToClose is required")
	}
	var check func(models.RunningTrade) error
	if req.Lot != nil {
		check = withinVolume("lotToClose", *req.Lot)
	}
	return s.adjust(ctx, ns, "partial_close", id, fields, check)
}

func (s *runningTradeService) SetVolumeToClose(ctx context.Context, ns keyspace.Namespace, id string, req models.VolumeToClose) (models.RunningTrade, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.RunningTrade{}, err
	}
	fields, err := store.EncodeFields(req)
	if err != nil {
		return models.RunningTrade{}, apperr.Internal(err, "encode volume to close")
	}
	return s.adjust(ctx, ns, "volume_to_close", id, fields, withinVolume("volumeToClose", *req.Volume))
}

func (s *runningTradeService) AddSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, in models.SpotAddInput) ([]models.SpotAdd, error) {
	return s.spots.add(ctx, ns, ns.RunningTrade(parentID), parentID, in)
}

func (s *runningTradeService) UpdateSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, index int, patch models.SpotAddPatch) (models.SpotAdd, error) {
	return s.spots.update(ctx, ns, ns.RunningTrade(parentID), parentID, index, patch)
}

func (s *runningTradeService) QueueSpotDeletion(ctx context.Context, ns keyspace.Namespace, parentID string, index int) error {
	return s.spots.queueDeletion(ctx, ns, ns.RunningTrade(parentID), parentID, index)
}

// QueueClose queues the trade id for closure by the worker and removes the
// running record.
func (s *runningTradeService) QueueClose(ctx context.Context, ns keyspace.Namespace, id string) error {
	key := ns.RunningTrade(id)
	err := s.store.Optimistic(ctx, "close_trade", func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("running trade %s not found", id)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queue.queueOrder(ctx, pipe, ns, id)
			pipe.Del(ctx, key)
			pipe.SRem(ctx, ns.RunningTradeIDs(), id)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}

	s.logger.Info("running trade queued for close", zap.String("ns", ns.String()), zap.String("trade_id", id))
	s.store.Notify(ctx, ns.Events())
	return nil
}

// ListExecuted returns the worker's execution log, oldest first. Entries that
// are not JSON objects are skipped.
func (s *runningTradeService) ListExecuted(ctx context.Context, ns keyspace.Namespace) ([]models.ExecutedOrder, error) {
	var raw []string
	err := s.store.Run(ctx, "list executed", func(rdb *redis.Client) error {
		var err error
		raw, err = rdb.LRange(ctx, ns.ExecutedOrders(), 0, -1).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.ExecutedOrder, 0, len(raw))
	for i, v := range raw {
		var entry models.ExecutedOrder
		if err := json.Unmarshal([]byte(v), &entry); err != nil || entry == nil {
			s.logger.Warn("skipping unparseable executed entry", zap.String("ns", ns.String()), zap.Int("index", i))
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// AppendExecuted pushes one entry onto the execution log.
func (s *runningTradeService) AppendExecuted(ctx context.Context, ns keyspace.Namespace, entry models.ExecutedOrder) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return apperr.Internal(errors.Wrap(err, "marshal executed entry"), "encode executed entry")
	}
	err = s.store.Run(ctx, "append executed", func(rdb *redis.Client) error {
		return rdb.RPush(ctx, ns.ExecutedOrders(), string(b)).Err()
	})
	if err != nil {
		return err
	}
	s.store.Notify(ctx, ns.Events())
	return nil
}
