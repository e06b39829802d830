package governor

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tlahtinen/governor/pkg/api"
	"github.com/tlahtinen/governor/pkg/event"
)

// OpSwitchThrottle tags the "switch request throttling on a node" operation.
const OpSwitchThrottle api.OperationType = "SWITCH_THROTTLE"

// ThrottleRequest is the operation payload carried in the envelope: the
// desired throttle state on the target node. Applying it is idempotent, so
// the at-least-once re-dispatch after restart is safe.
type ThrottleRequest struct {
	Enabled bool
}

// EncodeThrottleRequest serializes the payload for an envelope.
func EncodeThrottleRequest(req ThrottleRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeThrottleRequest deserializes an envelope payload.
func DecodeThrottleRequest(data []byte) (ThrottleRequest, error) {
	var req ThrottleRequest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

// SwitchThrottleProcedure switches request throttling on exactly one remote
// node and resumes the owning workflow when the node reports success or
// failure.
//
// Persisted state is exactly {target, enabled}. The dispatch sub-state
// (dispatched, outcome, wake event) lives only in memory: after a restart
// the procedure is restored in its initial state and re-dispatches
// unconditionally, because the in-flight association with the dispatcher
// cannot survive the process.
type SwitchThrottleProcedure struct {
	id      string
	target  api.ServerName
	enabled bool

	mu         sync.Mutex
	dispatched bool
	outcome    *api.Outcome
	event      *event.Event
	logger     *slog.Logger
}

var _ api.RemoteProcedure = (*SwitchThrottleProcedure)(nil)

// NewSwitchThrottle creates a procedure that sets throttling to enabled on
// target. A procedure serves a single target and parameter set; it is never
// reused for another.
func NewSwitchThrottle(target api.ServerName, enabled bool) *SwitchThrottleProcedure {
	return &SwitchThrottleProcedure{
		id:      uuid.NewString(),
		target:  target,
		enabled: enabled,
		logger:  slog.Default(),
	}
}

// RestoreSwitchThrottle is the registry factory for recovering persisted
// procedures; the returned value is filled in by Restore.
func RestoreSwitchThrottle(id string) api.Procedure {
	return &SwitchThrottleProcedure{id: id, logger: slog.Default()}
}

func (p *SwitchThrottleProcedure) ID() string              { return p.id }
func (p *SwitchThrottleProcedure) Kind() api.OperationType { return OpSwitchThrottle }

// TargetServer returns the node this procedure is addressed to.
func (p *SwitchThrottleProcedure) TargetServer() api.ServerName { return p.target }

// Enabled returns the requested throttle state.
func (p *SwitchThrottleProcedure) Enabled() bool { return p.enabled }

func (p *SwitchThrottleProcedure) String() string {
	return fmt.Sprintf("SwitchThrottleProcedure server=%s enabled=%t", p.target, p.enabled)
}

// Execute advances the procedure state machine.
//
// On re-entry after a wake it reads the recorded outcome and finishes.
// Otherwise it arms a fresh wake event and hands itself to the dispatcher;
// the event must be armed before the dispatcher can reach a completion
// callback, or a fast completion could fire with no waiter registered.
func (p *SwitchThrottleProcedure) Execute(ctx context.Context, env *api.Env) (api.ExecResult, error) {
	p.mu.Lock()
	if env.Logger != nil {
		p.logger = env.Logger
	}

	if p.dispatched {
		out := p.outcome
		p.mu.Unlock()
		if out == nil {
			// Woken with no outcome recorded; the dispatch is still
			// outstanding, keep waiting on the already-armed event.
			p.logger.Warn("executed while dispatch still outstanding",
				"proc", p.id, "server", p.target.String())
			return api.ExecSuspend, nil
		}
		if out.Success {
			return api.ExecDone, nil
		}
		return api.ExecDone, fmt.Errorf("switch throttle to %t on %s: %w",
			p.enabled, p.target, out.Cause)
	}

	ev := event.New(p.String())
	p.event = ev
	p.dispatched = true
	p.outcome = nil
	p.mu.Unlock()

	// Arm before handoff: once Dispatch accepts, a completion callback may
	// run at any moment on a transport goroutine.
	ev.SuspendIfNotReady(p)

	if err := env.Dispatcher.Dispatch(p.target, p); err != nil {
		// Rejected synchronously, so no callback will ever fire for this
		// attempt; discard the armed event rather than leak it.
		p.mu.Lock()
		p.dispatched = false
		p.event = nil
		p.mu.Unlock()

		if errors.Is(err, api.ErrNodeUnknown) {
			p.logger.Warn("cannot add remote operation for switching throttle",
				"enabled", p.enabled, "server", p.target.String())
			return api.ExecDelay, nil
		}
		p.logger.Warn("dispatch failed for switching throttle",
			"enabled", p.enabled, "server", p.target.String(), "error", err)
		return api.ExecDelay, nil
	}

	return api.ExecSuspend, nil
}

// BuildEnvelope produces the wire descriptor for the dispatch attempt.
func (p *SwitchThrottleProcedure) BuildEnvelope(remote api.ServerName) (api.Envelope, error) {
	if remote != p.target {
		return api.Envelope{}, fmt.Errorf("envelope requested for %s but procedure targets %s",
			remote, p.target)
	}
	payload, err := EncodeThrottleRequest(ThrottleRequest{Enabled: p.enabled})
	if err != nil {
		return api.Envelope{}, err
	}
	return api.Envelope{
		ProcID:  p.id,
		Op:      OpSwitchThrottle,
		Target:  p.target,
		Version: api.EnvelopeVersion,
		Payload: payload,
	}, nil
}

// OnSendFailed records a delivery failure and fires the wake event.
func (p *SwitchThrottleProcedure) OnSendFailed(sched api.Scheduler, cause error) {
	p.complete(sched, cause)
}

// OnRemoteSuccess records success and fires the wake event.
func (p *SwitchThrottleProcedure) OnRemoteSuccess(sched api.Scheduler) {
	p.complete(sched, nil)
}

// OnRemoteFailure records a remote-reported error and fires the wake event.
func (p *SwitchThrottleProcedure) OnRemoteFailure(sched api.Scheduler, cause error) {
	p.complete(sched, cause)
}

func (p *SwitchThrottleProcedure) complete(sched api.Scheduler, cause error) {
	p.mu.Lock()
	ev := p.event
	if ev == nil || p.outcome != nil {
		// Second callback for the same attempt, or a callback with no
		// dispatch outstanding. Collaborator bug; do not touch state.
		p.mu.Unlock()
		p.logger.Error("stray completion callback for remote procedure",
			"proc", p.id, "server", p.target.String(), "cause", cause)
		return
	}
	if cause != nil {
		p.logger.Warn("failed to switch throttle",
			"enabled", p.enabled, "server", p.target.String(), "error", cause)
		p.outcome = &api.Outcome{Success: false, Cause: cause}
	} else {
		p.outcome = &api.Outcome{Success: true}
	}
	p.event = nil
	p.mu.Unlock()

	if err := ev.Wake(sched); err != nil {
		p.logger.Error("wake after completion failed", "proc", p.id, "error", err)
	}
}

// switchThrottleState is the persisted snapshot: target and parameters
// only, never the in-memory dispatch sub-state.
type switchThrottleState struct {
	Target  api.ServerName
	Enabled bool
}

// Snapshot encodes {target, enabled}.
func (p *SwitchThrottleProcedure) Snapshot() ([]byte, error) {
	var buf bytes.Buffer
	st := switchThrottleState{Target: p.target, Enabled: p.enabled}
	if err := gob.NewEncoder(&buf).Encode(&st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore decodes a snapshot and resets the procedure to its initial
// logical state, ready to re-dispatch unconditionally.
func (p *SwitchThrottleProcedure) Restore(data []byte) error {
	var st switchThrottleState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = st.Target
	p.enabled = st.Enabled
	p.dispatched = false
	p.outcome = nil
	p.event = nil
	return nil
}
