// Package engine drives the entity store: it applies realtime events,
// sends messages optimistically, recovers after a lost connection and
// moves the view between conversations, teams and threads.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tmitchel/sidesync"
	"github.com/tmitchel/sidesync/readqueue"
	"github.com/tmitchel/sidesync/realtime"
	"github.com/tmitchel/sidesync/state"
)

// Services groups the REST collaborators.
type Services struct {
	Teams         sidesync.TeamService
	Conversations sidesync.ConversationService
	Messages      sidesync.MessageService
	Threads       sidesync.ThreadService
	Notifications sidesync.NotificationService
	Users         sidesync.UserService
}

// Config tunes the engine. Zero values fall back to the defaults below.
type Config struct {
	ReadDelay time.Duration
	// ReadFlushTimeout bounds each mark-as-read request.
	ReadFlushTimeout time.Duration
	RetryAttempts    int
	RetryWait        time.Duration
	PageSize         int
	PresenceBatch    int
	// DeviceToken is re-registered on every reconnect when set.
	DeviceToken string
	Now         func() time.Time
}

const (
	defaultRetryAttempts = 3
	defaultRetryWait     = 250 * time.Millisecond
	defaultPageSize      = 50
	defaultPresenceBatch = 50
)

func (c Config) withDefaults() Config {
	if c.ReadDelay <= 0 {
		c.ReadDelay = readqueue.DefaultDelay
	}
	if c.ReadFlushTimeout <= 0 {
		c.ReadFlushTimeout = readqueue.DefaultFlushTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	} else if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryWait <= 0 {
		c.RetryWait = defaultRetryWait
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.PresenceBatch <= 0 {
		c.PresenceBatch = defaultPresenceBatch
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Engine is the synchronization engine of one signed-in user.
type Engine struct {
	store   *state.Store
	svc     Services
	creds   sidesync.Credentials
	network sidesync.Network
	reads   *readqueue.Queue
	cfg     Config
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	selectSeq    uint64
	recovering   int32
	reconnecting int32
	// rerun is set when the connection came back again while a recovery
	// was already running.
	rerun int32
}

// New returns an Engine writing to store.
func New(store *state.Store, svc Services, creds sidesync.Credentials, network sidesync.Network, cfg Config, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.WithField("component", "engine")
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:   store,
		svc:     svc,
		creds:   creds,
		network: network,
		reads:   readqueue.New(store, svc.Notifications, svc.Threads, cfg.ReadDelay, cfg.ReadFlushTimeout, log.WithField("component", "readqueue")),
		cfg:     cfg,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Store returns the entity store the engine writes to.
func (e *Engine) Store() *state.Store {
	return e.store
}

// Recovering reports whether a reconnect is running. Clients use it to
// show that the state may still be catching up.
func (e *Engine) Recovering() bool {
	return atomic.LoadInt32(&e.recovering) == 1
}

// Close stops pending read flushes and waits for background recoveries.
func (e *Engine) Close() {
	e.cancel()
	e.reads.Close()
	e.wg.Wait()
}

// OnStateChange is the transport state listener. A connection that comes
// back from unavailable starts a recovery in the background; only one runs
// at a time. Coming back again while it runs queues one more pass, since
// the running walk may already have fetched the pages of that outage.
func (e *Engine) OnStateChange(prev, cur realtime.State) {
	if cur == realtime.StateUnavailable {
		e.log.WithField("event", "connection_unavailable").Warn("realtime connection lost")
	}
	if prev != realtime.StateUnavailable || cur != realtime.StateConnected {
		return
	}

	atomic.StoreInt32(&e.rerun, 1)
	if !atomic.CompareAndSwapInt32(&e.reconnecting, 0, 1) {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			atomic.StoreInt32(&e.rerun, 0)
			e.recoverOnce()

			atomic.StoreInt32(&e.reconnecting, 0)
			// a transition that raced the reset above may have found the
			// flag still held; pick its pass up here
			if atomic.LoadInt32(&e.rerun) == 0 || !atomic.CompareAndSwapInt32(&e.reconnecting, 0, 1) {
				return
			}
		}
	}()
}

func (e *Engine) recoverOnce() {
	ctx, cancel := context.WithTimeout(e.ctx, reconnectTimeout)
	defer cancel()
	if err := e.Reconnect(ctx); err != nil {
		e.log.WithError(err).Error("reconnect failed")
	}
}

// statusCoder is implemented by REST errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

type retryClassifier struct{}

// Classify retries everything except cancellation, missing entities and
// client errors.
func (retryClassifier) Classify(err error) retrier.Action {
	if err == nil {
		return retrier.Succeed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sidesync.ErrNotFound) {
		return retrier.Fail
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() >= 400 && sc.StatusCode() < 500 {
		return retrier.Fail
	}
	return retrier.Retry
}

// retry runs work with the bounded backfill retry policy.
func (e *Engine) retry(ctx context.Context, work func(ctx context.Context) error) error {
	r := retrier.New(retrier.ConstantBackoff(e.cfg.RetryAttempts, e.cfg.RetryWait), retryClassifier{})
	r.SetJitter(0.2)
	return r.RunCtx(ctx, work)
}
