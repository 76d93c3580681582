package accounts

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/auth"
)

// EmbeddingQueue accepts newly created accounts for background embedding.
type EmbeddingQueue interface {
	Enqueue(scope auth.Scope, ids ...uuid.UUID)
}

// EmbedFunc embeds a single account.
type EmbedFunc func(ctx context.Context, scope auth.Scope, id uuid.UUID) error

type job struct {
	scope auth.Scope
	id    uuid.UUID
}

// Queue is a bounded in-process EmbeddingQueue. Jobs that do not fit in the
// buffer are dropped with a warning; RefreshEmbeddings picks them up later.
type Queue struct {
	jobs    chan job
	workers int
	logger  *slog.Logger

	mu     sync.Mutex
	embed  EmbedFunc
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a queue with the given worker count and buffer size.
// Jobs are not processed until Start is called.
func NewQueue(workers, buffer int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		jobs:    make(chan job, buffer),
		workers: workers,
		logger:  logger.With("queue", "embeddings"),
	}
}

// Start launches the workers. Jobs run under a context carrying ctx's values
// but not its cancellation; it is cancelled only after Close has drained the
// buffer.
func (q *Queue) Start(ctx context.Context, embed EmbedFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	q.mu.Lock()
	q.embed = embed
	q.cancel = cancel
	q.mu.Unlock()

	for range q.workers {
		q.wg.Add(1)
		go q.run(ctx)
	}
}

// Enqueue schedules ids for embedding without blocking.
func (q *Queue) Enqueue(scope auth.Scope, ids ...uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	for _, id := range ids {
		select {
		case q.jobs <- job{scope: scope, id: id}:
		default:
			q.logger.Warn("embedding queue full, job dropped", "account_id", id)
		}
	}
}

// Close stops accepting jobs, waits for the workers to embed everything
// already buffered, then releases the job context.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	pending := len(q.jobs)
	cancel := q.cancel
	q.mu.Unlock()

	if pending > 0 {
		q.logger.Info("draining embedding queue", "pending", pending)
	}
	q.wg.Wait()
	if cancel != nil {
		cancel()
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for j := range q.jobs {
		if err := q.embed(ctx, j.scope, j.id); err != nil {
			q.logger.Warn("background embedding failed", "account_id", j.id, "error", err)
		}
	}
}
