package api

import (
	"context"
	"log/slog"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay procedure execution.
type Observer interface {
	// OnSubmit is called once when a procedure is first submitted.
	OnSubmit(ctx context.Context, info *ProcedureInfo)

	// OnExecute is called before each Execute invocation.
	OnExecute(ctx context.Context, info *ProcedureInfo)

	// OnSuspend is called when a procedure parks awaiting its wake signal.
	OnSuspend(ctx context.Context, info *ProcedureInfo)

	// OnWake is called when the scheduler moves a parked procedure back
	// onto the runnable queue. It may run on a transport goroutine.
	OnWake(ctx context.Context, info *ProcedureInfo)

	// OnCompleted is called when a procedure reaches StatusSucceeded.
	OnCompleted(ctx context.Context, info *ProcedureInfo)

	// OnFailed is called when a procedure reaches StatusFailed.
	OnFailed(ctx context.Context, info *ProcedureInfo, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnSubmit(ctx context.Context, info *ProcedureInfo)            {}
func (NoopObserver) OnExecute(ctx context.Context, info *ProcedureInfo)           {}
func (NoopObserver) OnSuspend(ctx context.Context, info *ProcedureInfo)           {}
func (NoopObserver) OnWake(ctx context.Context, info *ProcedureInfo)              {}
func (NoopObserver) OnCompleted(ctx context.Context, info *ProcedureInfo)         {}
func (NoopObserver) OnFailed(ctx context.Context, info *ProcedureInfo, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnSubmit(ctx context.Context, info *ProcedureInfo) {
	for _, o := range c.observers {
		o.OnSubmit(ctx, info)
	}
}

func (c *CompositeObserver) OnExecute(ctx context.Context, info *ProcedureInfo) {
	for _, o := range c.observers {
		o.OnExecute(ctx, info)
	}
}

func (c *CompositeObserver) OnSuspend(ctx context.Context, info *ProcedureInfo) {
	for _, o := range c.observers {
		o.OnSuspend(ctx, info)
	}
}

func (c *CompositeObserver) OnWake(ctx context.Context, info *ProcedureInfo) {
	for _, o := range c.observers {
		o.OnWake(ctx, info)
	}
}

func (c *CompositeObserver) OnCompleted(ctx context.Context, info *ProcedureInfo) {
	for _, o := range c.observers {
		o.OnCompleted(ctx, info)
	}
}

func (c *CompositeObserver) OnFailed(ctx context.Context, info *ProcedureInfo, err error) {
	for _, o := range c.observers {
		o.OnFailed(ctx, info, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs procedure lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnSubmit(ctx context.Context, info *ProcedureInfo) {
	o.Logger.InfoContext(ctx, "proc_submit",
		slog.String("proc_id", info.ID),
		slog.String("kind", string(info.Kind)),
	)
}

func (o *LoggingObserver) OnExecute(ctx context.Context, info *ProcedureInfo) {
	o.Logger.DebugContext(ctx, "proc_execute",
		slog.String("proc_id", info.ID),
		slog.String("kind", string(info.Kind)),
	)
}

func (o *LoggingObserver) OnSuspend(ctx context.Context, info *ProcedureInfo) {
	o.Logger.DebugContext(ctx, "proc_suspend",
		slog.String("proc_id", info.ID),
		slog.String("kind", string(info.Kind)),
	)
}

func (o *LoggingObserver) OnWake(ctx context.Context, info *ProcedureInfo) {
	o.Logger.DebugContext(ctx, "proc_wake",
		slog.String("proc_id", info.ID),
		slog.String("kind", string(info.Kind)),
	)
}

func (o *LoggingObserver) OnCompleted(ctx context.Context, info *ProcedureInfo) {
	o.Logger.InfoContext(ctx, "proc_completed",
		slog.String("proc_id", info.ID),
		slog.String("kind", string(info.Kind)),
	)
}

func (o *LoggingObserver) OnFailed(ctx context.Context, info *ProcedureInfo, err error) {
	o.Logger.ErrorContext(ctx, "proc_failed",
		slog.String("proc_id", info.ID),
		slog.String("kind", string(info.Kind)),
		slog.Any("error", err),
	)
}
