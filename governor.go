package governor

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/tlahtinen/governor/internal/dispatcher"
	"github.com/tlahtinen/governor/internal/engine"
	"github.com/tlahtinen/governor/internal/persistence"
	"github.com/tlahtinen/governor/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine            = api.Engine
	Procedure         = api.Procedure
	RemoteProcedure   = api.RemoteProcedure
	Dispatcher        = api.Dispatcher
	Scheduler         = api.Scheduler
	ServerName        = api.ServerName
	OperationType     = api.OperationType
	Envelope          = api.Envelope
	ProcedureInfo     = api.ProcedureInfo
	ListOptions       = api.ListOptions
	Status            = api.Status
	ExecResult        = api.ExecResult
	Observer          = api.Observer
	LoggingObserver   = api.LoggingObserver
	CompositeObserver = api.CompositeObserver
	NoopObserver      = api.NoopObserver
)

// Re-export common helpers.

var (
	ParseServerName      = api.ParseServerName
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status and result values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusWaiting   = api.StatusWaiting
	StatusSucceeded = api.StatusSucceeded
	StatusFailed    = api.StatusFailed

	ExecDone    = api.ExecDone
	ExecSuspend = api.ExecSuspend
	ExecDelay   = api.ExecDelay
)

// Options tunes engine construction. The zero value is usable.
type Options struct {
	Observer Observer
	Logger   *slog.Logger
}

func buildEngine(store persistence.Store, d Dispatcher, opts ...Options) Engine {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return engine.New(engine.Config{
		Store:      store,
		Dispatcher: d,
		Observer:   o.Observer,
		Logger:     o.Logger,
	})
}

// Engine constructors
// These wrap the internal packages so external callers never need to
// import them. The returned engine also satisfies Scheduler; bind it to
// the dispatcher before starting.

// NewInMemoryEngine returns an Engine backed by an in-memory store.
// State does not survive the process; best for tests.
func NewInMemoryEngine(d Dispatcher, opts ...Options) Engine {
	return buildEngine(persistence.NewMemoryStore(), d, opts...)
}

// NewSQLiteEngine returns an Engine that persists procedure state in a
// SQLite database.
func NewSQLiteEngine(db *sql.DB, d Dispatcher, opts ...Options) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return buildEngine(store, d, opts...), nil
}

// NewPostgresEngine returns an Engine that persists procedure state in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB, d Dispatcher, opts ...Options) (Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return buildEngine(store, d, opts...), nil
}

// NewRedisEngine returns an Engine that persists procedure state in Redis
// under the given key prefix.
func NewRedisEngine(client *redis.Client, prefix string, d Dispatcher, opts ...Options) Engine {
	return buildEngine(persistence.NewRedisStore(client, prefix), d, opts...)
}

// Dispatcher constructors

// BufferedDispatcher is the node-aware dispatcher with per-node batching.
type BufferedDispatcher = dispatcher.Buffered

// Transport delivers envelope batches to nodes.
type Transport = dispatcher.Transport

// DispatcherOptions tunes dispatcher construction. The zero value is
// usable.
type DispatcherOptions struct {
	Logger        *slog.Logger
	FlushInterval time.Duration
	BufferSize    int
}

// NewDispatcher returns a buffered dispatcher over the given transport.
// Bind the engine to it before dispatching.
func NewDispatcher(tr Transport, opts ...DispatcherOptions) *BufferedDispatcher {
	var o DispatcherOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return dispatcher.New(dispatcher.Config{
		Transport:     tr,
		Logger:        o.Logger,
		FlushInterval: o.FlushInterval,
		BufferSize:    o.BufferSize,
	})
}

// NewGRPCTransport returns a transport that dials each node over gRPC.
func NewGRPCTransport(opts ...grpc.DialOption) Transport {
	return dispatcher.NewGRPCTransport(opts...)
}

// NewLoopbackTransport returns an in-process transport for single-binary
// deployments and tests.
func NewLoopbackTransport() *dispatcher.Loopback {
	return dispatcher.NewLoopback()
}
