package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/updatewatch/internal/metrics"
	"github.com/rickgao/updatewatch/internal/model"
)

// BatchSender runs a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// StoreConfig holds configuration for the notification Store.
type StoreConfig struct {
	QueueSize     int           // Default: 1000
	BatchSize     int           // Default: 100
	FlushInterval time.Duration // Default: 2s
}

// DefaultStoreConfig returns default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		QueueSize:     1000,
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
	}
}

// StoreStats contains runtime statistics.
type StoreStats struct {
	Queued  int64
	Dropped int64
	Inserts int64
	Flushes int64
	Errors  int64
}

// Store is a Sink that persists notifications to the notifications table.
// Notify never blocks: when the queue is full the notification is dropped.
type Store struct {
	cfg     StoreConfig
	logger  *slog.Logger
	db      BatchSender
	metrics *metrics.Metrics
	now     func() time.Time

	queue chan model.Notification

	// Batching
	batch   []model.Notification
	batchMu sync.Mutex

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stateMu sync.RWMutex
	running bool

	stats StoreStats
}

// NewStore creates a new Store. Call Start before notifications are written.
func NewStore(cfg StoreConfig, db BatchSender, mt *metrics.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultStoreConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	return &Store{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		metrics: mt,
		now:     time.Now,
		queue:   make(chan model.Notification, cfg.QueueSize),
		batch:   make([]model.Notification, 0, cfg.BatchSize),
	}
}

// Start begins consuming the queue and flushing batches.
func (s *Store) Start(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(2)
	go s.consumeLoop()
	go s.flushLoop()

	s.logger.Info("notification store started",
		"queue_size", s.cfg.QueueSize,
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the queue, writes the final batch and shuts down.
func (s *Store) Stop(ctx context.Context) error {
	s.stateMu.Lock()
	if !s.running {
		s.stateMu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.stateMu.Unlock()

	s.logger.Info("stopping notification store")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("notification store stop timed out")
		return ctx.Err()
	}

	// Anything still queued goes into the final flush
	for {
		select {
		case n := <-s.queue:
			s.batchMu.Lock()
			s.batch = append(s.batch, n)
			s.batchMu.Unlock()
			continue
		default:
		}
		break
	}
	s.flush(ctx)

	s.logger.Info("notification store stopped")
	return nil
}

// Notify queues a notification for the next batch.
func (s *Store) Notify(severity Severity, title, description string) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	if !s.running {
		s.drop("store not running")
		return
	}

	n := model.NewNotification(string(severity), title, description, s.now())
	select {
	case s.queue <- n:
		s.batchMu.Lock()
		s.stats.Queued++
		s.batchMu.Unlock()
	default:
		s.drop("queue full")
	}
}

// Stats returns current statistics.
func (s *Store) Stats() StoreStats {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.stats
}

func (s *Store) drop(reason string) {
	s.batchMu.Lock()
	s.stats.Dropped++
	s.batchMu.Unlock()
	s.metrics.StoreDropped()
	s.logger.Warn("notification dropped", "reason", reason)
}

func (s *Store) consumeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case n := <-s.queue:
			s.add(n)
		}
	}
}

func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flush(s.ctx)
		}
	}
}

func (s *Store) add(n model.Notification) {
	s.batchMu.Lock()
	s.batch = append(s.batch, n)
	shouldFlush := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flush(s.ctx)
	}
}

// flush writes the current batch to the database.
func (s *Store) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := s.batch
	s.batch = make([]model.Notification, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	start := time.Now()

	inserted, err := s.batchInsert(ctx, batch)
	if err != nil {
		s.logger.Error("batch insert failed", "error", err, "count", len(batch))
		s.batchMu.Lock()
		s.stats.Errors++
		s.batchMu.Unlock()
		s.metrics.StoreError()
		return
	}

	s.batchMu.Lock()
	s.stats.Inserts += int64(inserted)
	s.stats.Flushes++
	s.batchMu.Unlock()
	s.metrics.StoreWritten(inserted)

	s.logger.Debug("flushed notifications",
		"count", len(batch),
		"inserted", inserted,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *Store) batchInsert(ctx context.Context, rows []model.Notification) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, n := range rows {
		batch.Queue(`
			INSERT INTO notifications (id, severity, title, description, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, n.ID, n.Severity, n.Title, n.Description, n.CreatedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}

	return inserted, nil
}
