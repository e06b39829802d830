// Package dispatcher accepts remote operations from procedures, buffers
// them per target node, and flushes them over a Transport. Completion is
// reported back through the procedure's callbacks, never through Dispatch's
// return value: Dispatch only answers "was the operation accepted".
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tlahtinen/governor/internal/wire"
	"github.com/tlahtinen/governor/pkg/api"
)

const (
	defaultFlushInterval = 100 * time.Millisecond
	defaultBufferSize    = 256
)

var errClosed = errors.New("dispatcher closed")

// Transport delivers one envelope batch to one node and returns the per
// envelope results.
type Transport interface {
	Send(ctx context.Context, target api.ServerName, req *wire.BatchRequest) (*wire.BatchResponse, error)
	Close() error
}

// Config describes how to construct a Buffered dispatcher.
type Config struct {
	Transport Transport
	Logger    *slog.Logger

	// FlushInterval is the longest an accepted operation sits in a node
	// buffer before it is sent. Defaults to 100ms.
	FlushInterval time.Duration

	// BufferSize is the per-node buffer capacity. A full buffer flushes
	// immediately. Defaults to 256.
	BufferSize int
}

// Buffered is the node-aware dispatcher. Nodes must be registered with
// AddNode before operations targeting them are accepted.
type Buffered struct {
	transport Transport
	logger    *slog.Logger
	interval  time.Duration
	bufSize   int

	mu     sync.Mutex
	sched  api.Scheduler
	nodes  map[string]*nodeBuffer
	closed bool
	wg     sync.WaitGroup
}

type nodeBuffer struct {
	target api.ServerName
	ops    chan api.RemoteProcedure
	stop   chan struct{}
}

var _ api.Dispatcher = (*Buffered)(nil)

// New constructs a Buffered dispatcher. Call Bind before dispatching.
func New(cfg Config) *Buffered {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Buffered{
		transport: cfg.Transport,
		logger:    logger,
		interval:  interval,
		bufSize:   bufSize,
		nodes:     make(map[string]*nodeBuffer),
	}
}

// Bind attaches the scheduler that completion callbacks run against. The
// engine and the dispatcher reference each other, so the dispatcher is
// constructed first and bound once the engine exists.
func (d *Buffered) Bind(sched api.Scheduler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sched = sched
}

// AddNode registers a target node and starts its buffer goroutine.
func (d *Buffered) AddNode(target api.ServerName) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errClosed
	}
	key := target.String()
	if _, ok := d.nodes[key]; ok {
		return fmt.Errorf("node already registered: %s", key)
	}

	nb := &nodeBuffer{
		target: target,
		ops:    make(chan api.RemoteProcedure, d.bufSize),
		stop:   make(chan struct{}),
	}
	d.nodes[key] = nb
	d.wg.Add(1)
	go d.runNode(nb)
	return nil
}

// RemoveNode unregisters a node. Operations still buffered for it complete
// with a send failure.
func (d *Buffered) RemoveNode(target api.ServerName) error {
	key := target.String()

	d.mu.Lock()
	nb, ok := d.nodes[key]
	if ok {
		delete(d.nodes, key)
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", api.ErrNodeUnknown, key)
	}
	close(nb.stop)
	return nil
}

// Dispatch buffers op for its target node. It returns api.ErrNodeUnknown
// when the target is not registered; the operation is then not owned by
// the dispatcher and no callback will fire for it.
func (d *Buffered) Dispatch(target api.ServerName, op api.RemoteProcedure) error {
	key := target.String()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errClosed
	}
	nb, ok := d.nodes[key]
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", api.ErrNodeUnknown, key)
	}

	select {
	case nb.ops <- op:
		return nil
	default:
		// A full buffer is a rejection, not a blocked caller. The engine
		// retries later.
		return fmt.Errorf("buffer full for node %s", key)
	}
}

// Close stops all node buffers and the transport. Buffered operations
// complete with a send failure.
func (d *Buffered) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	nodes := d.nodes
	d.nodes = make(map[string]*nodeBuffer)
	d.mu.Unlock()

	for _, nb := range nodes {
		close(nb.stop)
	}
	d.wg.Wait()
	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}

func (d *Buffered) scheduler() api.Scheduler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sched
}

// runNode is the per-node buffer loop: collect until the flush interval
// elapses or the buffer fills, then send the batch.
func (d *Buffered) runNode(nb *nodeBuffer) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var batch []api.RemoteProcedure
	for {
		select {
		case op := <-nb.ops:
			batch = append(batch, op)
			if len(batch) >= d.bufSize {
				d.flush(nb.target, batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				d.flush(nb.target, batch)
				batch = nil
			}

		case <-nb.stop:
			// Drain what is left and fail it; the node is gone.
			for {
				select {
				case op := <-nb.ops:
					batch = append(batch, op)
				default:
					d.failAll(nb.target, batch, fmt.Errorf("node removed: %s", nb.target))
					return
				}
			}
		}
	}
}

// flush sends one batch to one node and maps the response back onto the
// operations' completion callbacks.
func (d *Buffered) flush(target api.ServerName, batch []api.RemoteProcedure) {
	req := &wire.BatchRequest{Envelopes: make([]api.Envelope, 0, len(batch))}
	sendable := make([]api.RemoteProcedure, 0, len(batch))
	sched := d.scheduler()

	for _, op := range batch {
		env, err := op.BuildEnvelope(target)
		if err != nil {
			d.logger.Error("envelope build failed",
				"proc", op.ID(), "node", target.String(), "error", err)
			op.OnSendFailed(sched, err)
			continue
		}
		req.Envelopes = append(req.Envelopes, env)
		sendable = append(sendable, op)
	}
	if len(sendable) == 0 {
		return
	}

	resp, err := d.transport.Send(context.Background(), target, req)
	if err != nil {
		d.logger.Warn("batch send failed",
			"node", target.String(), "ops", len(sendable), "error", err)
		d.failAll(target, sendable, err)
		return
	}

	byID := make(map[string]api.RemoteProcedure, len(sendable))
	for _, op := range sendable {
		byID[op.ID()] = op
	}
	for _, res := range resp.Results {
		op, ok := byID[res.ProcID]
		if !ok {
			d.logger.Error("result for unknown operation",
				"proc", res.ProcID, "node", target.String())
			continue
		}
		delete(byID, res.ProcID)
		if res.ErrMsg != "" {
			op.OnRemoteFailure(sched, errors.New(res.ErrMsg))
		} else {
			op.OnRemoteSuccess(sched)
		}
	}
	// Anything the node did not answer for failed on the wire.
	for _, op := range byID {
		op.OnSendFailed(sched, fmt.Errorf("no result from node %s", target))
	}
}

func (d *Buffered) failAll(target api.ServerName, batch []api.RemoteProcedure, cause error) {
	sched := d.scheduler()
	for _, op := range batch {
		op.OnSendFailed(sched, cause)
	}
}
