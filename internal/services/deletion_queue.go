package services

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/store"
)

// QueuedTickets lists what is waiting for the execution worker.
type QueuedTickets struct {
	Orders []string `json:"orders"`
	Spots  []string `json:"spots"`
}

// DeletionQueue holds cancellation and closure tickets for the execution
// worker. It only ever adds tickets; the worker removes them once the broker
// confirmed.
type DeletionQueue interface {
	Enqueue(ctx context.Context, ns keyspace.Namespace, ticket string) error
	Pending(ctx context.Context, ns keyspace.Namespace) (QueuedTickets, error)
}

type deletionQueue struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewDeletionQueue creates a new deletion queue
func NewDeletionQueue(st *store.Store, logger *zap.Logger) DeletionQueue {
	return newDeletionQueue(st, logger)
}

func newDeletionQueue(st *store.Store, logger *zap.Logger) *deletionQueue {
	return &deletionQueue{store: st, logger: logger.Named("queue"), now: time.Now}
}

// Enqueue adds a broker ticket. Adding a ticket twice is a no-op.
func (q *deletionQueue) Enqueue(ctx context.Context, ns keyspace.Namespace, ticket string) error {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return apperr.Validation("ticket required")
	}
	_, err := q.store.Batch(ctx, "enqueue ticket", func(pipe redis.Pipeliner) error {
		q.queueOrder(ctx, pipe, ns, ticket)
		return nil
	})
	if err != nil {
		return err
	}
	q.logger.Info("ticket queued", zap.String("ns", ns.String()), zap.String("ticket", ticket))
	q.store.Notify(ctx, ns.Events())
	return nil
}

// queueOrder queues an order ticket on pipe. The enqueue time is only
// recorded for the first add, so re-queueing keeps the original age.
func (q *deletionQueue) queueOrder(ctx context.Context, pipe redis.Pipeliner, ns keyspace.Namespace, ticket string) {
	pipe.SAdd(ctx, ns.OrdersToDelete(), ticket)
	pipe.HSetNX(ctx, ns.OrdersToDeleteAt(), ticket, q.now().Unix())
	pipe.SAdd(ctx, keyspace.QueueRegistry, ns.OrdersToDeleteAt())
}

func (q *deletionQueue) queueSpot(ctx context.Context, pipe redis.Pipeliner, ns keyspace.Namespace, parentID string, index int) {
	ticket := keyspace.SpotTicket(parentID, index)
	pipe.SAdd(ctx, ns.SpotsToDelete(), ticket)
	pipe.HSetNX(ctx, ns.SpotsToDeleteAt(), ticket, q.now().Unix())
	pipe.SAdd(ctx, keyspace.QueueRegistry, ns.SpotsToDeleteAt())
}

// Pending lists queued tickets in sorted order.
func (q *deletionQueue) Pending(ctx context.Context, ns keyspace.Namespace) (QueuedTickets, error) {
	orders, err := q.store.Members(ctx, ns.OrdersToDelete())
	if err != nil {
		return QueuedTickets{}, err
	}
	spots, err := q.store.Members(ctx, ns.SpotsToDelete())
	if err != nil {
		return QueuedTickets{}, err
	}
	return QueuedTickets{Orders: orders, Spots: spots}, nil
}
