package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tlahtinen/governor/pkg/api"
)

// stubProc is the minimal Procedure used as an event waiter.
type stubProc struct {
	id string
}

func (p *stubProc) ID() string             { return p.id }
func (p *stubProc) Kind() api.OperationType { return "stub" }
func (p *stubProc) Execute(ctx context.Context, env *api.Env) (api.ExecResult, error) {
	return api.ExecDone, nil
}
func (p *stubProc) Snapshot() ([]byte, error) { return nil, nil }
func (p *stubProc) Restore(data []byte) error { return nil }
func (p *stubProc) String() string            { return "stub " + p.id }

// recordingScheduler captures WakeUp calls.
type recordingScheduler struct {
	woken []api.Procedure
}

func (s *recordingScheduler) WakeUp(p api.Procedure) {
	s.woken = append(s.woken, p)
}

func TestWakeReleasesArmedWaiter(t *testing.T) {
	ev := New("test")
	p := &stubProc{id: "p1"}
	sched := &recordingScheduler{}

	require.True(t, ev.SuspendIfNotReady(p))
	require.NoError(t, ev.Wake(sched))

	require.Len(t, sched.woken, 1)
	require.Same(t, api.Procedure(p), sched.woken[0])
	require.True(t, ev.Fired())
}

func TestWakeWithoutWaiterIsSurfaced(t *testing.T) {
	ev := New("test")
	sched := &recordingScheduler{}

	err := ev.Wake(sched)
	require.Error(t, err)
	require.Empty(t, sched.woken)
	require.False(t, ev.Fired())
}

func TestDoubleWakeIsRejected(t *testing.T) {
	ev := New("test")
	p := &stubProc{id: "p1"}
	sched := &recordingScheduler{}

	require.True(t, ev.SuspendIfNotReady(p))
	require.NoError(t, ev.Wake(sched))

	err := ev.Wake(sched)
	require.Error(t, err)
	require.Len(t, sched.woken, 1, "second fire must not wake anything")
}

func TestSuspendAfterFireReturnsFalse(t *testing.T) {
	ev := New("test")
	p := &stubProc{id: "p1"}
	sched := &recordingScheduler{}

	require.True(t, ev.SuspendIfNotReady(p))
	require.NoError(t, ev.Wake(sched))

	require.False(t, ev.SuspendIfNotReady(p), "a fired event must not accept a new waiter")
}
