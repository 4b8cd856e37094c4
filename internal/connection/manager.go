package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/updatewatch/internal/metrics"
)

// FrameHandler consumes frames in arrival order. The Event Dispatcher implements it.
type FrameHandler interface {
	HandleFrame(f Frame)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(f Frame)

// HandleFrame calls fn(f).
func (fn FrameHandlerFunc) HandleFrame(f Frame) { fn(f) }

// Timer is the cancellable retry timer; *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Swappable for tests.
type AfterFunc func(d time.Duration, f func()) Timer

// StatusObserver is called for every status transition, in order.
type StatusObserver func(from, to Status)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClientFactory replaces the transport constructor.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) {
		m.newClient = f
	}
}

// WithAfterFunc replaces time.AfterFunc for the retry timer.
func WithAfterFunc(f AfterFunc) ManagerOption {
	return func(m *Manager) {
		m.afterFunc = f
	}
}

// WithMetrics records connection metrics.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// session is one transport attempt. It is current while m.session points at it.
type session struct {
	id     uint64
	client Client
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}   // closed when the session goroutine exits
	after  <-chan struct{} // closed once the previous transport is released
}

// Manager keeps one event stream open and reconnects with exponential backoff.
//
// All state transitions happen under mu. Each session has a single reader
// goroutine, so frames reach the handler serially and in arrival order.
type Manager struct {
	cfg       ManagerConfig
	handler   FrameHandler
	logger    *slog.Logger
	newClient ClientFactory
	afterFunc AfterFunc
	metrics   *metrics.Metrics

	mu        sync.Mutex
	started   bool
	session   *session
	nextID    uint64
	retry     RetryState
	timer     Timer
	timerSeq  uint64
	stopWatch func() bool
	observers []StatusObserver
	released  chan struct{} // closed once the last released transport is closed

	// deliverMu keeps a superseded session's reader from overlapping the current one.
	deliverMu sync.Mutex

	status   atomic.Int32
	connects atomic.Int64
	failures atomic.Int64
	frames   atomic.Int64
}

// NewManager creates a new Connection Manager. Nothing is opened until Start.
func NewManager(cfg ManagerConfig, handler FrameHandler, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:       cfg,
		handler:   handler,
		logger:    slog.Default(),
		newClient: NewClient,
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		retry:     NewRetryState(cfg.InitialRetryDelay, cfg.MaxRetryDelay),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.status.Store(int32(StatusDisconnected))
	m.metrics.SetStatus(StatusDisconnected.String())

	return m
}

// Start opens the stream unless it is already open or a retry is pending.
// Cancelling ctx stops the manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	m.startLocked(ctx)

	m.logger.Info("stream manager started", "url", StreamURL(m.cfg.BaseURL))
	return nil
}

// Stop releases the transport, cancels any pending retry and leaves the
// status at disconnected. It waits, bounded by ctx, for the session's reader
// to exit so that no frame is dispatched after it returns. Handlers must not
// call Stop with an unbounded ctx from inside a dispatch.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}

	m.started = false
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	m.cancelTimerLocked()

	var done chan struct{}
	if m.session != nil {
		done = m.session.done
	}
	m.releaseSessionLocked()
	released := m.released
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	for _, ch := range []chan struct{}{done, released} {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			m.logger.Warn("stream manager stop timed out")
			return fmt.Errorf("wait for stream reader: %w", ctx.Err())
		}
	}

	m.logger.Info("stream manager stopped")
	return nil
}

// ReconnectNow drops the current transport (if any) and connects immediately,
// skipping the backoff delay. The delay is reset only once that attempt
// opens. On a stopped manager it behaves like Start.
func (m *Manager) ReconnectNow() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		m.startLocked(context.Background())
		m.logger.Info("stream manager started by manual reconnect")
		return
	}

	m.logger.Info("manual reconnect requested", "status", m.Status())
	m.cancelTimerLocked()
	m.connectLocked()
}

// Status returns the current connectivity status.
func (m *Manager) Status() Status {
	return Status(m.status.Load())
}

// OnStatusChange registers an observer. Observers run synchronously with the
// manager locked, so they may call Status but not Start, Stop or ReconnectNow.
func (m *Manager) OnStatusChange(fn StatusObserver) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Retry returns a snapshot of the backoff state.
func (m *Manager) Retry() RetryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	retry := m.retry
	m.mu.Unlock()

	return ManagerStats{
		Status:         m.Status(),
		Connects:       m.connects.Load(),
		Failures:       m.failures.Load(),
		FramesReceived: m.frames.Load(),
		RetryDelay:     retry.Delay,
		RetryAttempt:   retry.Attempt,
	}
}

func (m *Manager) startLocked(ctx context.Context) {
	m.started = true
	m.stopWatch = context.AfterFunc(ctx, func() {
		m.Stop(context.Background())
	})
	m.connectLocked()
}

// connectLocked releases the current transport and starts a new attempt.
func (m *Manager) connectLocked() {
	m.releaseSessionLocked()
	m.setStatusLocked(StatusReconnecting)

	m.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     m.nextID,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		after:  m.released,
	}
	m.session = s
	m.metrics.ConnectAttempt()

	go m.run(s)
}

// releaseSessionLocked cancels the current session and closes its transport
// off the lock, since a WebSocket close can wait on a dead peer. m.released is
// closed once the transport is gone; the next session waits for it before
// opening its own.
func (m *Manager) releaseSessionLocked() {
	s := m.session
	if s == nil {
		return
	}
	m.session = nil

	s.cancel()
	if s.client == nil {
		return
	}

	released := make(chan struct{})
	m.released = released
	go func() {
		defer close(released)
		if err := s.client.Close(); err != nil {
			m.logger.Debug("close transport", "session", s.id, "error", err)
		}
	}()
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

// scheduleRetryLocked arms the single retry timer with the current delay.
func (m *Manager) scheduleRetryLocked() time.Duration {
	m.cancelTimerLocked()

	seq := m.timerSeq
	delay := m.retry.Delay
	m.timer = m.afterFunc(delay, func() { m.retryFired(seq) })
	m.metrics.RetryScheduled(delay)

	return delay
}

func (m *Manager) retryFired(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || seq != m.timerSeq || m.timer == nil {
		return
	}
	m.timer = nil

	m.retry.Advance()
	m.logger.Info("attempting reconnection", "attempt", m.retry.Attempt)
	m.connectLocked()
}

func (m *Manager) setStatusLocked(to Status) {
	from := Status(m.status.Load())
	if from == to {
		return
	}
	m.status.Store(int32(to))
	m.metrics.SetStatus(to.String())

	for _, fn := range m.observers {
		m.notifyObserver(fn, from, to)
	}
}

func (m *Manager) notifyObserver(fn StatusObserver, from, to Status) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("status observer panicked", "panic", r)
		}
	}()
	fn(from, to)
}

// run drives one session: build the transport, connect, then read.
func (m *Manager) run(s *session) {
	defer close(s.done)

	if s.after != nil {
		select {
		case <-s.after:
		case <-s.ctx.Done():
			return
		}
	}

	client, err := m.newClient(m.clientConfig(), m.logger.With("session", s.id))
	if err != nil {
		m.handleFailure(s, err)
		return
	}

	if !m.attach(s, client) {
		client.Close()
		return
	}

	if err := client.Connect(s.ctx); err != nil {
		m.handleFailure(s, err)
		return
	}

	if !m.handleOpen(s) {
		return
	}

	m.readLoop(s, client)
}

func (m *Manager) clientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = StreamURL(m.cfg.BaseURL)
	cfg.Token = m.cfg.Token
	cfg.StaleTimeout = m.cfg.StaleTimeout
	if m.cfg.BufferSize > 0 {
		cfg.BufferSize = m.cfg.BufferSize
	}
	return cfg
}

// attach records the transport on a still-current session.
func (m *Manager) attach(s *session, client Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s != m.session {
		return false
	}
	s.client = client
	return true
}

func (m *Manager) handleOpen(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s != m.session {
		return false
	}

	m.retry.Reset()
	m.connects.Add(1)
	m.metrics.Connected()
	m.setStatusLocked(StatusConnected)

	m.logger.Info("stream connected", "session", s.id)
	return true
}

// handleFailure routes any transport error into the retry path.
func (m *Manager) handleFailure(s *session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s != m.session {
		return
	}

	m.failures.Add(1)
	m.metrics.Failure()

	m.releaseSessionLocked()
	m.setStatusLocked(StatusDisconnected)
	delay := m.scheduleRetryLocked()

	m.logger.Warn("stream failed, scheduling retry",
		"session", s.id,
		"error", err,
		"retry_in", delay,
	)
}

func (m *Manager) isCurrent(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s == m.session
}

// readLoop forwards frames to the handler until the transport fails or the
// session is superseded.
func (m *Manager) readLoop(s *session, client Client) {
	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-client.Errors():
			// Deliver what was buffered before the failure
			m.drain(s, client)
			m.handleFailure(s, err)
			return

		case f, ok := <-client.Messages():
			if !ok {
				m.handleFailure(s, ErrStreamClosed)
				return
			}
			if !m.deliver(s, f) {
				return
			}
		}
	}
}

func (m *Manager) drain(s *session, client Client) {
	for {
		select {
		case f := <-client.Messages():
			if !m.deliver(s, f) {
				return
			}
		default:
			return
		}
	}
}

// deliver hands one frame to the handler if s is still current.
func (m *Manager) deliver(s *session, f Frame) bool {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	if !m.isCurrent(s) {
		return false
	}

	m.frames.Add(1)
	m.metrics.Frame()
	m.dispatch(f)

	return true
}

func (m *Manager) dispatch(f Frame) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("frame handler panicked", "panic", r)
		}
	}()
	m.handler.HandleFrame(f)
}
