package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/store"
)

// Manager handles the execution of scheduled tasks
type Manager struct {
	store  *store.Store
	cfg    config.QueueConfig
	logger *zap.Logger
	tasks  []Task
}

// Task represents a scheduled task that needs to be executed
type Task interface {
	Start()
	Stop()
}

// NewManager creates a new task manager
func NewManager(st *store.Store, cfg config.QueueConfig, logger *zap.Logger) *Manager {
	return &Manager{
		store:  st,
		cfg:    cfg,
		logger: logger.Named("tasks"),
		tasks:  make([]Task, 0),
	}
}

// RegisterTask registers a task with the manager
func (m *Manager) RegisterTask(task Task) {
	m.tasks = append(m.tasks, task)
}

// StartScheduledTasks starts all registered tasks
func (m *Manager) StartScheduledTasks() {
	m.RegisterTask(NewQueueReconcileTask(m.store, m.cfg, m.logger))

	for _, task := range m.tasks {
		task.Start()
	}

	m.logger.Info("started scheduled tasks", zap.Int("count", len(m.tasks)))
}

// StopAllTasks stops all running tasks
func (m *Manager) StopAllTasks() {
	for _, task := range m.tasks {
		task.Stop()
	}
	m.logger.Info("stopped scheduled tasks")
}

// ticker runs fn immediately and then on every interval until stopped.
type ticker struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func (t *ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.stopped = make(chan struct{})

	go func() {
		defer close(t.stopped)
		tk := time.NewTicker(t.interval)
		defer tk.Stop()

		t.fn(ctx)
		for {
			select {
			case <-tk.C:
				t.fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	t.logger.Info("task started", zap.String("task", t.name), zap.Duration("interval", t.interval))
}

// Stop cancels the task and waits for the running pass to return.
func (t *ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return
	}

	t.cancel()
	<-t.stopped
	t.cancel = nil
	t.logger.Info("task stopped", zap.String("task", t.name))
}
