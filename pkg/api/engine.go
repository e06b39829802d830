package api

import "context"

// Engine drives procedures: it persists their snapshots, executes them on a
// pool of workers, parks suspended ones, and re-runs them when woken.
//
// The Engine is also the Scheduler handed to procedures and bound to the
// dispatcher, so completion callbacks wake parked procedures through it.
type Engine interface {
	Scheduler

	// RegisterKind registers the factory used to restore persisted
	// procedures of the given operation type.
	RegisterKind(op OperationType, factory ProcedureFactory) error

	// Submit persists the procedure and schedules it for execution.
	Submit(ctx context.Context, proc Procedure) error

	// Get returns the current view of a procedure, or ErrProcNotFound.
	Get(ctx context.Context, id string) (*ProcedureInfo, error)

	// List returns procedures matching opts.
	List(ctx context.Context, opts ListOptions) ([]*ProcedureInfo, error)

	// Ack removes a terminal procedure once its outcome has been consumed
	// by the owning workflow. Non-terminal procedures cannot be acked.
	Ack(ctx context.Context, id string) error

	// Recover reloads all non-terminal persisted procedures, restores each
	// through its registered factory, and schedules it for re-dispatch.
	// Call it once after restart, before Submit traffic resumes.
	Recover(ctx context.Context) error

	// Start launches the worker pool. Submissions before Start are queued.
	Start(ctx context.Context) error

	// Stop cancels the workers and waits for them to drain.
	Stop() error
}
