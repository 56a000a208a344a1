package services

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/store"
	"github.com/vikasavnish/botbridge/internal/validation"
)

// OrderService defines the pending-order operations of one namespace
type OrderService interface {
	AddOrder(ctx context.Context, ns keyspace.Namespace, req models.NewOrderRequest) (models.PendingOrder, error)
	GetOrder(ctx context.Context, ns keyspace.Namespace, id string) (models.PendingOrder, error)
	ListOrders(ctx context.Context, ns keyspace.Namespace) ([]models.PendingOrder, error)
	ListRemoved(ctx context.Context, ns keyspace.Namespace) ([]models.PendingOrder, error)
	UpdatePendingOrder(ctx context.Context, ns keyspace.Namespace, id string, patch models.OrderPatch) (models.PendingOrder, error)
	AddSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, in models.SpotAddInput) ([]models.SpotAdd, error)
	UpdateSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, index int, patch models.SpotAddPatch) (models.SpotAdd, error)
	QueueSpotDeletion(ctx context.Context, ns keyspace.Namespace, parentID string, index int) error
	QueueDeletion(ctx context.Context, ns keyspace.Namespace, id string) error
}

type orderService struct {
	store    *store.Store
	queue    *deletionQueue
	spots    *spotLedger
	validate *validation.Validator
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st *store.Store, v *validation.Validator, logger *zap.Logger) OrderService {
	logger = logger.Named("orders")
	queue := newDeletionQueue(st, logger)
	return &orderService{
		store:    st,
		queue:    queue,
		spots:    &spotLedger{store: st, queue: queue, validate: v, logger: logger, entity: "order"},
		validate: v,
		logger:   logger,
	}
}

func newPendingOrder(id string, req models.NewOrderRequest) models.PendingOrder {
	order := models.PendingOrder{
		ID:             id,
		Symbol:         req.Symbol,
		EntryType:      req.EntryType,
		StartTime:      req.StartTime,
		TradeSetup:     req.TradeSetup,
		OrderType:      req.OrderType,
		CheckOn:        req.CheckOn,
		RiskPercentage: *req.RiskPercentage,
		Price:          req.Price,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		RemovalPrice:   req.RemovalPrice,
		SpotAdds:       make([]models.SpotAdd, 0, len(req.SpotAdds)),
	}
	if req.StopLoss != nil {
		order.SlToUpdate = *req.StopLoss
	}
	if req.TakeProfit != nil {
		order.TpToUpdate = *req.TakeProfit
	}
	for _, in := range req.SpotAdds {
		order.SpotAdds = append(order.SpotAdds, in.SpotAdd())
	}
	return order
}

// AddOrder stores a new pending order and registers it in the id index in
// one MULTI. A caller-supplied id must not already be in use.
func (s *orderService) AddOrder(ctx context.Context, ns keyspace.Namespace, req models.NewOrderRequest) (models.PendingOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.PendingOrder{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	order := newPendingOrder(id, req)
	fields, err := store.EncodeFields(order)
	if err != nil {
		return models.PendingOrder{}, apperr.Internal(err, "encode order")
	}

	key := ns.Order(id)
	err = s.store.Optimistic(ctx, "add_order", func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Constraint("order %s already exists", id)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.SAdd(ctx, ns.OrderIDs(), id)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return models.PendingOrder{}, err
	}

	s.logger.Info("order added", zap.String("ns", ns.String()), zap.String("order_id", id), zap.String("symbol", order.Symbol))
	s.store.Notify(ctx, ns.Events())
	return order, nil
}

// GetOrder returns one pending order
func (s *orderService) GetOrder(ctx context.Context, ns keyspace.Namespace, id string) (models.PendingOrder, error) {
	var order models.PendingOrder
	found, err := s.store.ReadEntity(ctx, ns.Order(id), &order)
	if err != nil {
		return models.PendingOrder{}, err
	}
	if !found {
		return models.PendingOrder{}, apperr.NotFound("order %s not found", id)
	}
	normalizeOrder(&order, id)
	return order, nil
}

func normalizeOrder(o *models.PendingOrder, id string) {
	if o.ID == "" {
		o.ID = id
	}
	if o.SpotAdds == nil {
		o.SpotAdds = []models.SpotAdd{}
	}
}

// ListOrders returns all pending orders of the namespace
func (s *orderService) ListOrders(ctx context.Context, ns keyspace.Namespace) ([]models.PendingOrder, error) {
	return s.readOrders(ctx, ns.OrderIDs(), ns.Order)
}

// ListRemoved returns the orders the worker moved out of the pending set.
func (s *orderService) ListRemoved(ctx context.Context, ns keyspace.Namespace) ([]models.PendingOrder, error) {
	return s.readOrders(ctx, ns.RemovedOrderIDs(), ns.RemovedOrder)
}

func (s *orderService) readOrders(ctx context.Context, indexKey string, keyFor func(string) string) ([]models.PendingOrder, error) {
	orders := []models.PendingOrder{}
	err := s.store.ReadIndexed(ctx, indexKey, keyFor, func(id string, data map[string]string) error {
		var o models.PendingOrder
		if err := s.store.Decode(keyFor(id), data, &o); err != nil {
			return err
		}
		normalizeOrder(&o, id)
		orders = append(orders, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func patchFields(patch models.OrderPatch) (map[string]interface{}, error) {
	fields, err := store.EncodeFields(patch)
	if err != nil {
		return nil, err
	}
	if patch.StopLoss != nil {
		fields["slToUpdate"] = fields["stopLoss"]
	}
	if patch.TakeProfit != nil {
		fields["tpToUpdate"] = fields["takeProfit"]
	}
	return fields, nil
}

// UpdatePendingOrder merges patch over the stored order. Only the fields
// present in the patch are written.
func (s *orderService) UpdatePendingOrder(ctx context.Context, ns keyspace.Namespace, id string, patch models.OrderPatch) (models.PendingOrder, error) {
	if err := s.validate.Struct(patch); err != nil {
		return models.PendingOrder{}, err
	}
	fields, err := patchFields(patch)
	if err != nil {
		return models.PendingOrder{}, apperr.Internal(err, "encode order patch")
	}
	if len(fields) == 0 {
		return models.PendingOrder{}, apperr.Validation("no order fields to update")
	}

	member, err := s.store.IsMember(ctx, ns.OrderIDs(), id)
	if err != nil {
		return models.PendingOrder{}, err
	}
	if !member {
		return models.PendingOrder{}, apperr.NotFound("order %s not found", id)
	}

	key := ns.Order(id)
	err = s.store.Optimistic(ctx, "update_order", func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("order %s not found", id)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return models.PendingOrder{}, err
	}

	s.logger.Info("order updated", zap.String("ns", ns.String()), zap.String("order_id", id), zap.Int("fields", len(fields)))
	s.store.Notify(ctx, ns.Events())
	return s.GetOrder(ctx, ns, id)
}

func (s *orderService) AddSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, in models.SpotAddInput) ([]models.SpotAdd, error) {
	return s.spots.add(ctx, ns, ns.Order(parentID), parentID, in)
}

func (s *orderService) UpdateSpotAdd(ctx context.Context, ns keyspace.Namespace, parentID string, index int, patch models.SpotAddPatch) (models.SpotAdd, error) {
	return s.spots.update(ctx, ns, ns.Order(parentID), parentID, index, patch)
}

func (s *orderService) QueueSpotDeletion(ctx context.Context, ns keyspace.Namespace, parentID string, index int) error {
	return s.spots.queueDeletion(ctx, ns, ns.Order(parentID), parentID, index)
}

// QueueDeletion removes the pending order. When the broker already holds an
// order for it, its ticket is queued so the worker cancels it.
func (s *orderService) QueueDeletion(ctx context.Context, ns keyspace.Namespace, id string) error {
	key := ns.Order(id)
	var ticket string
	err := s.store.Optimistic(ctx, "delete_order", func(tx *redis.Tx) error {
		var order models.PendingOrder
		found, err := s.store.ReadEntityTx(ctx, tx, key, &order)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFound("order %s not found", id)
		}
		ticket = ""
		if order.OrderID != nil {
			ticket = order.OrderID.String()
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ticket != "" {
				s.queue.queueOrder(ctx, pipe, ns, ticket)
			}
			pipe.Del(ctx, key)
			pipe.SRem(ctx, ns.OrderIDs(), id)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}

	s.logger.Info("order removed", zap.String("ns", ns.String()), zap.String("order_id", id), zap.String("ticket", ticket))
	s.store.Notify(ctx, ns.Events())
	return nil
}
