// Package agent is the node side of the dispatch path: a ThrottleAdmin
// server that decodes envelope batches and applies throttle switches to
// the local controller.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"

	governor "github.com/tlahtinen/governor"
	"github.com/tlahtinen/governor/internal/wire"
	"github.com/tlahtinen/governor/pkg/api"
)

// ThrottleController holds a node's request-throttle switch. Applying the
// current state again is a no-op, so replayed envelopes are harmless.
type ThrottleController struct {
	mu      sync.Mutex
	enabled bool
	applied int
}

// NewThrottleController starts with throttling enabled, the safe default
// for a node joining a loaded cluster.
func NewThrottleController() *ThrottleController {
	return &ThrottleController{enabled: true}
}

// Apply sets the switch. Returns whether the state changed.
func (c *ThrottleController) Apply(enabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.applied++
	if c.enabled == enabled {
		return false
	}
	c.enabled = enabled
	return true
}

// Enabled reports the current switch state.
func (c *ThrottleController) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// AppliedCount reports how many envelopes have been applied, replays
// included.
func (c *ThrottleController) AppliedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Agent serves ThrottleAdmin for one node.
type Agent struct {
	name       api.ServerName
	controller *ThrottleController
	logger     *slog.Logger
}

var _ wire.ThrottleAdminServer = (*Agent)(nil)

// Register attaches an agent to a gRPC server.
func Register(s grpc.ServiceRegistrar, a *Agent) {
	wire.RegisterThrottleAdminServer(s, a)
}

// New creates an agent for the named node.
func New(name api.ServerName, controller *ThrottleController, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		name:       name,
		controller: controller,
		logger:     logger,
	}
}

// Apply handles one envelope batch. Failures are per envelope; the batch
// itself only errors when the transport or codec does.
func (a *Agent) Apply(ctx context.Context, req *wire.BatchRequest) (*wire.BatchResponse, error) {
	resp := &wire.BatchResponse{Results: make([]wire.Result, 0, len(req.Envelopes))}
	for _, env := range req.Envelopes {
		res := wire.Result{ProcID: env.ProcID}
		if err := a.apply(&env); err != nil {
			res.ErrMsg = err.Error()
			a.logger.Warn("envelope rejected",
				"proc", env.ProcID, "op", string(env.Op), "error", err)
		}
		resp.Results = append(resp.Results, res)
	}
	return resp, nil
}

func (a *Agent) apply(env *api.Envelope) error {
	if env.Version != api.EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.Target != a.name {
		return fmt.Errorf("envelope addressed to %s, this is %s", env.Target, a.name)
	}

	switch env.Op {
	case governor.OpSwitchThrottle:
		req, err := governor.DecodeThrottleRequest(env.Payload)
		if err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		changed := a.controller.Apply(req.Enabled)
		a.logger.Info("throttle switch applied",
			"proc", env.ProcID, "enabled", req.Enabled, "changed", changed)
		return nil
	default:
		return fmt.Errorf("%w: %s", api.ErrUnknownKind, env.Op)
	}
}
