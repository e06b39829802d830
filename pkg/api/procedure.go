package api

import (
	"context"
	"fmt"
	"log/slog"
)

// Env is what a procedure sees of the world during Execute: the dispatcher
// it hands envelopes to, the scheduler that wakes parked procedures, and the
// engine's logger. It is constructed per invocation by the engine.
type Env struct {
	Dispatcher Dispatcher
	Scheduler  Scheduler
	Logger     *slog.Logger
}

// Procedure is a unit of durable, resumable work driven by the engine.
//
// Execute is invoked by engine workers. It must not block; long waits are
// expressed by returning ExecSuspend after arming a wake signal. Between
// Execute invocations a procedure holds no locks and performs no I/O.
//
// Snapshot and Restore carry only the fields needed to reconstruct the
// procedure in its initial logical state. In-flight dispatch state is
// deliberately not persisted: the association with the dispatcher cannot
// survive a process restart, so a restored procedure always re-dispatches.
type Procedure interface {
	fmt.Stringer

	// ID is the stable identity of this procedure instance.
	ID() string

	// Kind is the operation type tag, also used as the registry key when
	// restoring persisted procedures.
	Kind() OperationType

	// Execute advances the procedure one step. See ExecResult for the
	// contract on each return value.
	Execute(ctx context.Context, env *Env) (ExecResult, error)

	// Snapshot encodes the persisted fields of the procedure.
	Snapshot() ([]byte, error)

	// Restore decodes a snapshot, resetting all in-memory dispatch state so
	// the procedure is ready to re-dispatch from scratch.
	Restore(data []byte) error
}

// RemoteProcedure is a procedure that dispatches exactly one operation to a
// remote node and completes when the node reports back.
//
// For each accepted dispatch the dispatcher invokes exactly one of the three
// completion callbacks, possibly from a transport goroutine. Implementations
// must record the outcome, fire their wake signal once, and reject (loudly)
// a second callback for the same attempt.
type RemoteProcedure interface {
	Procedure

	// TargetServer is the node this procedure is addressed to.
	TargetServer() ServerName

	// BuildEnvelope produces the wire descriptor for the dispatch. remote is
	// the node the dispatcher is about to send to and must match
	// TargetServer.
	BuildEnvelope(remote ServerName) (Envelope, error)

	// OnSendFailed reports that the envelope could not be delivered at all.
	OnSendFailed(sched Scheduler, cause error)

	// OnRemoteSuccess reports that the remote node executed the operation.
	OnRemoteSuccess(sched Scheduler)

	// OnRemoteFailure reports that the remote node executed the operation
	// and returned an error.
	OnRemoteFailure(sched Scheduler, cause error)
}

// Dispatcher batches and transmits envelopes to remote nodes. Dispatch
// returns ErrNodeUnknown when the target is not registered; in that case no
// completion callback will ever be invoked for the operation. If Dispatch
// returns nil the operation was accepted and exactly one completion callback
// will eventually fire, unless the process is torn down first (recovery then
// relies on re-dispatch after restart).
type Dispatcher interface {
	Dispatch(target ServerName, op RemoteProcedure) error
}

// Scheduler is the process-wide facility that moves a parked procedure back
// onto an engine worker. It is always injected, never a singleton, so tests
// can observe wake calls precisely.
type Scheduler interface {
	WakeUp(proc Procedure)
}

// ProcedureFactory constructs an empty procedure of one kind with the given
// ID, ready to be filled in by Restore.
type ProcedureFactory func(id string) Procedure
