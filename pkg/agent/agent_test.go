package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	governor "github.com/tlahtinen/governor"
	"github.com/tlahtinen/governor/internal/wire"
	"github.com/tlahtinen/governor/pkg/api"
)

var agentNode = api.ServerName{Host: "node-1", Port: 16020, StartCode: 42}

func throttleEnvelope(t *testing.T, procID string, target api.ServerName, enabled bool) api.Envelope {
	t.Helper()
	payload, err := governor.EncodeThrottleRequest(governor.ThrottleRequest{Enabled: enabled})
	require.NoError(t, err)
	return api.Envelope{
		ProcID:  procID,
		Op:      governor.OpSwitchThrottle,
		Target:  target,
		Version: api.EnvelopeVersion,
		Payload: payload,
	}
}

func TestApplySwitchesThrottle(t *testing.T) {
	ctrl := NewThrottleController()
	require.True(t, ctrl.Enabled(), "throttle starts enabled")

	a := New(agentNode, ctrl, nil)
	resp, err := a.Apply(context.Background(), &wire.BatchRequest{
		Envelopes: []api.Envelope{throttleEnvelope(t, "p1", agentNode, false)},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Empty(t, resp.Results[0].ErrMsg)
	require.False(t, ctrl.Enabled())
}

func TestApplyIsIdempotent(t *testing.T) {
	ctrl := NewThrottleController()
	a := New(agentNode, ctrl, nil)

	env := throttleEnvelope(t, "p1", agentNode, false)
	for i := 0; i < 3; i++ {
		resp, err := a.Apply(context.Background(), &wire.BatchRequest{Envelopes: []api.Envelope{env}})
		require.NoError(t, err)
		require.Empty(t, resp.Results[0].ErrMsg)
	}
	require.False(t, ctrl.Enabled())
	require.Equal(t, 3, ctrl.AppliedCount())
}

func TestApplyRejectsWrongTarget(t *testing.T) {
	ctrl := NewThrottleController()
	a := New(agentNode, ctrl, nil)

	other := api.ServerName{Host: "node-2", Port: 16020, StartCode: 7}
	resp, err := a.Apply(context.Background(), &wire.BatchRequest{
		Envelopes: []api.Envelope{throttleEnvelope(t, "p1", other, false)},
	})
	require.NoError(t, err)
	require.Contains(t, resp.Results[0].ErrMsg, "addressed to")
	require.True(t, ctrl.Enabled(), "misaddressed envelope must not change state")
}

func TestApplyRejectsUnknownOperation(t *testing.T) {
	a := New(agentNode, NewThrottleController(), nil)

	resp, err := a.Apply(context.Background(), &wire.BatchRequest{
		Envelopes: []api.Envelope{{
			ProcID:  "p1",
			Op:      "COMPACT_REGION",
			Target:  agentNode,
			Version: api.EnvelopeVersion,
		}},
	})
	require.NoError(t, err)
	require.Contains(t, resp.Results[0].ErrMsg, "unknown")
}

func TestApplyRejectsVersionMismatch(t *testing.T) {
	a := New(agentNode, NewThrottleController(), nil)

	env := throttleEnvelope(t, "p1", agentNode, false)
	env.Version = 99
	resp, err := a.Apply(context.Background(), &wire.BatchRequest{Envelopes: []api.Envelope{env}})
	require.NoError(t, err)
	require.Contains(t, resp.Results[0].ErrMsg, "version")
}

func TestApplyMixedBatchKeepsOrder(t *testing.T) {
	ctrl := NewThrottleController()
	a := New(agentNode, ctrl, nil)

	bad := throttleEnvelope(t, "bad", agentNode, false)
	bad.Payload = []byte("not gob")
	resp, err := a.Apply(context.Background(), &wire.BatchRequest{
		Envelopes: []api.Envelope{
			throttleEnvelope(t, "ok-1", agentNode, false),
			bad,
			throttleEnvelope(t, "ok-2", agentNode, true),
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	require.Equal(t, "ok-1", resp.Results[0].ProcID)
	require.Empty(t, resp.Results[0].ErrMsg)
	require.Equal(t, "bad", resp.Results[1].ProcID)
	require.Contains(t, resp.Results[1].ErrMsg, "decode payload")
	require.Equal(t, "ok-2", resp.Results[2].ProcID)
	require.Empty(t, resp.Results[2].ErrMsg)
	require.True(t, ctrl.Enabled(), "last envelope wins")
}
