// Package engine executes procedures: it persists their snapshots, runs
// them on a pool of workers, parks suspended ones, and re-runs them when
// the scheduler wakes them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tlahtinen/governor/internal/persistence"
	"github.com/tlahtinen/governor/internal/runq"
	"github.com/tlahtinen/governor/pkg/api"
)

const (
	defaultWorkers    = 4
	defaultRetryDelay = time.Second
	defaultQueueSize  = 1024
)

// Config describes how to construct an Engine.
type Config struct {
	Store      persistence.Store
	Dispatcher api.Dispatcher
	Observer   api.Observer
	Logger     *slog.Logger

	// Workers is the size of the execution pool. Defaults to 4.
	Workers int

	// RetryDelay is how long an ExecDelay procedure waits before the engine
	// re-runs it. This is the engine's liveness-driven rescheduling;
	// procedures themselves carry no timers. Defaults to 1s.
	RetryDelay time.Duration
}

// Engine is the procedure executor. It implements api.Engine, and therefore
// also api.Scheduler: completion callbacks wake parked procedures through it.
type Engine struct {
	store      persistence.Store
	disp       api.Dispatcher
	obs        api.Observer
	logger     *slog.Logger
	workers    int
	retryDelay time.Duration

	reg   *Registry
	queue *runq.Queue

	mu      sync.Mutex
	procs   map[string]*entry
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// entry is the engine's in-memory bookkeeping for one live procedure.
// Its mutex serializes Execute invocations for the procedure.
type entry struct {
	mu     sync.Mutex
	proc   api.Procedure
	status api.Status
	err    error
}

var _ api.Engine = (*Engine)(nil)

// New constructs an Engine from cfg. Store and Dispatcher are required.
func New(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Engine{
		store:      cfg.Store,
		disp:       cfg.Dispatcher,
		obs:        obs,
		logger:     logger,
		workers:    workers,
		retryDelay: retryDelay,
		reg:        NewRegistry(),
		queue:      runq.New(defaultQueueSize),
		procs:      make(map[string]*entry),
	}
}

// RegisterKind registers the restore factory for an operation type.
func (e *Engine) RegisterKind(op api.OperationType, factory api.ProcedureFactory) error {
	return e.reg.Register(op, factory)
}

// Submit persists the procedure and schedules it for execution.
func (e *Engine) Submit(ctx context.Context, proc api.Procedure) error {
	snap, err := proc.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", proc.ID(), err)
	}

	rec := &persistence.Record{
		ID:       proc.ID(),
		Kind:     proc.Kind(),
		Status:   api.StatusPending,
		Snapshot: snap,
	}
	if err := e.store.Save(rec); err != nil {
		return fmt.Errorf("persist %s: %w", proc.ID(), err)
	}

	ent := &entry{proc: proc, status: api.StatusPending}
	e.mu.Lock()
	e.procs[proc.ID()] = ent
	e.mu.Unlock()

	e.obs.OnSubmit(ctx, infoOf(proc, api.StatusPending, nil))
	e.queue.Push(runq.Item{ProcID: proc.ID()})
	return nil
}

// WakeUp moves a parked procedure back onto the runnable queue. It is safe
// to call from transport goroutines.
func (e *Engine) WakeUp(proc api.Procedure) {
	e.obs.OnWake(context.Background(), infoOf(proc, api.StatusWaiting, nil))
	e.queue.Push(runq.Item{ProcID: proc.ID()})
}

// Get returns the persisted view of a procedure.
func (e *Engine) Get(ctx context.Context, id string) (*api.ProcedureInfo, error) {
	rec, err := e.store.Get(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrProcNotFound, id)
		}
		return nil, err
	}
	return recordInfo(rec), nil
}

// List returns procedures matching opts.
func (e *Engine) List(ctx context.Context, opts api.ListOptions) ([]*api.ProcedureInfo, error) {
	recs, err := e.store.List(persistence.Filter{
		Kind:   opts.Kind,
		Status: opts.Status,
	})
	if err != nil {
		return nil, err
	}
	infos := make([]*api.ProcedureInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, recordInfo(rec))
	}
	return infos, nil
}

// Ack removes a terminal procedure once its outcome has been consumed.
func (e *Engine) Ack(ctx context.Context, id string) error {
	rec, err := e.store.Get(id)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", api.ErrProcNotFound, id)
		}
		return err
	}
	if !rec.Status.Terminal() {
		return fmt.Errorf("cannot ack procedure %s in status %s", id, rec.Status)
	}

	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.procs, id)
	e.mu.Unlock()
	return nil
}

// Recover reloads all non-terminal persisted procedures, restores each in
// its initial logical state through its registered factory, and schedules
// it for re-dispatch. Restart therefore always re-sends: the in-flight
// association with the dispatcher cannot survive the process.
func (e *Engine) Recover(ctx context.Context) error {
	recs, err := e.store.List(persistence.Filter{})
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if rec.Status.Terminal() {
			continue
		}

		factory, err := e.reg.Factory(rec.Kind)
		if err != nil {
			return fmt.Errorf("recover %s: %w", rec.ID, err)
		}
		proc := factory(rec.ID)
		if err := proc.Restore(rec.Snapshot); err != nil {
			return fmt.Errorf("restore %s: %w", rec.ID, err)
		}

		if rec.Status != api.StatusPending {
			rec.Status = api.StatusPending
			if err := e.store.Update(rec); err != nil {
				return fmt.Errorf("reset status of %s: %w", rec.ID, err)
			}
		}

		ent := &entry{proc: proc, status: api.StatusPending}
		e.mu.Lock()
		e.procs[rec.ID] = ent
		e.mu.Unlock()

		e.logger.Info("recovered procedure", "proc", rec.ID, "kind", string(rec.Kind))
		e.queue.Push(runq.Item{ProcID: rec.ID})
	}
	return nil
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	e.cancel = cancel
	e.group = group
	e.started = true
	e.mu.Unlock()

	for i := 0; i < e.workers; i++ {
		group.Go(func() error {
			return e.runWorker(groupCtx)
		})
	}
	return nil
}

// Stop cancels the workers and waits for them to drain.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	group := e.group
	e.started = false
	e.mu.Unlock()

	cancel()
	return group.Wait()
}

func (e *Engine) runWorker(ctx context.Context) error {
	for {
		it, err := e.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		e.mu.Lock()
		ent := e.procs[it.ProcID]
		e.mu.Unlock()
		if ent == nil {
			// Acked or never known; a stale queue item is harmless.
			continue
		}
		e.runOnce(ctx, ent)
	}
}

// runOnce drives one Execute invocation. ent.mu guarantees Execute is not
// re-entered while an earlier invocation is still running; a wake that
// lands mid-execution simply queues the next invocation.
func (e *Engine) runOnce(ctx context.Context, ent *entry) {
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.status.Terminal() {
		return
	}

	e.obs.OnExecute(ctx, infoOf(ent.proc, ent.status, ent.err))

	env := &api.Env{
		Dispatcher: e.disp,
		Scheduler:  e,
		Logger:     e.logger,
	}
	res, err := ent.proc.Execute(ctx, env)

	switch res {
	case api.ExecDone:
		if err != nil {
			ent.status = api.StatusFailed
			ent.err = err
		} else {
			ent.status = api.StatusSucceeded
		}
		e.persist(ent)
		if err != nil {
			e.obs.OnFailed(ctx, infoOf(ent.proc, ent.status, ent.err), err)
		} else {
			e.obs.OnCompleted(ctx, infoOf(ent.proc, ent.status, nil))
		}

	case api.ExecSuspend:
		if ent.status != api.StatusWaiting {
			ent.status = api.StatusWaiting
			e.persist(ent)
			e.obs.OnSuspend(ctx, infoOf(ent.proc, ent.status, nil))
		}

	case api.ExecDelay:
		ent.status = api.StatusPending
		e.persist(ent)
		e.queue.Push(runq.Item{
			ProcID:    ent.proc.ID(),
			NotBefore: time.Now().Add(e.retryDelay),
		})

	default:
		e.logger.Error("procedure returned unknown exec result",
			"proc", ent.proc.ID(), "result", res.String())
	}
}

func (e *Engine) persist(ent *entry) {
	snap, err := ent.proc.Snapshot()
	if err != nil {
		e.logger.Error("snapshot failed during persist", "proc", ent.proc.ID(), "error", err)
		return
	}
	rec := &persistence.Record{
		ID:       ent.proc.ID(),
		Kind:     ent.proc.Kind(),
		Status:   ent.status,
		Snapshot: snap,
	}
	if ent.err != nil {
		rec.Error = ent.err.Error()
	}
	if err := e.store.Update(rec); err != nil {
		e.logger.Error("persist failed", "proc", ent.proc.ID(), "error", err)
	}
}

func infoOf(proc api.Procedure, status api.Status, err error) *api.ProcedureInfo {
	info := &api.ProcedureInfo{
		ID:     proc.ID(),
		Kind:   proc.Kind(),
		Status: status,
	}
	if err != nil {
		info.Error = err.Error()
	}
	return info
}

func recordInfo(rec *persistence.Record) *api.ProcedureInfo {
	return &api.ProcedureInfo{
		ID:     rec.ID,
		Kind:   rec.Kind,
		Status: rec.Status,
		Error:  rec.Error,
	}
}
