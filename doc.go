// Package governor provides durable remote-dispatch procedures for Go.
//
// Governor is built for control planes that must push an operation to a
// remote node and survive their own restarts while waiting for the answer.
// The first-class operation is the throttle switch: enable or disable a
// node's request throttle exactly once, from the node's point of view.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Procedure
//  2. Engine
//  3. Dispatcher
//  4. Agent
//
// A Procedure is one durable unit of work. Its Execute method returns how
// the engine should proceed: done, suspended waiting for a remote answer,
// or delayed for a retry. Suspension is a return value, not a panic or an
// exception; the control flow is visible in the procedure's code.
//
// The Engine persists procedure snapshots, runs procedures on a worker
// pool, and wakes suspended ones when completion callbacks fire. Snapshots
// capture logical parameters only. A procedure recovered after a crash
// always starts from the beginning and re-dispatches; the remote operation
// is idempotent, so a duplicate send is harmless.
//
// The Dispatcher buffers operations per target node and flushes them in
// batches over gRPC. It answers only "was the operation accepted"; the
// outcome arrives later through one of three callbacks: send failed,
// remote success, or remote failure. Exactly one fires per accepted
// dispatch.
//
// The Agent is the node side: it decodes envelope batches and applies the
// throttle switch to its local controller, idempotently.
//
// # Persistence
//
// Engines can be backed by different stores:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// # Getting Started
//
//	d := governor.NewDispatcher(governor.NewGRPCTransport())
//	eng := governor.NewInMemoryEngine(d)
//	d.Bind(eng)
//
//	node, _ := governor.ParseServerName("rs1.example.com,16020,1700000000")
//	d.AddNode(node)
//	eng.Start(ctx)
//
//	proc := governor.NewSwitchThrottle(node, false)
//	eng.Submit(ctx, proc)
//
// The procedure suspends after its single send and completes when the
// node answers. Query it with eng.Get, and Ack it once the outcome has
// been consumed.
package governor
