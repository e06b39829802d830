package agent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	governor "github.com/tlahtinen/governor"
	"github.com/tlahtinen/governor/internal/dispatcher"
	"github.com/tlahtinen/governor/internal/engine"
	"github.com/tlahtinen/governor/internal/persistence"
	"github.com/tlahtinen/governor/pkg/api"
)

const bufSize = 1 << 20

// TestEndToEndOverGRPC runs the whole dispatch path: engine, buffered
// dispatcher, gRPC transport over bufconn, and an agent flipping its
// throttle controller.
func TestEndToEndOverGRPC(t *testing.T) {
	node := api.ServerName{Host: "node-1", Port: 16020, StartCode: 1}

	ctrl := NewThrottleController()
	srv := grpc.NewServer()
	Register(srv, New(node, ctrl, nil))

	lis := bufconn.Listen(bufSize)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	transport := dispatcher.NewGRPCTransport(
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	d := dispatcher.New(dispatcher.Config{
		Transport:     transport,
		FlushInterval: 10 * time.Millisecond,
	})
	defer func() { require.NoError(t, d.Close()) }()
	require.NoError(t, d.AddNode(node))

	e := engine.New(engine.Config{
		Store:      persistence.NewMemoryStore(),
		Dispatcher: d,
	})
	d.Bind(e)
	require.NoError(t, e.RegisterKind(governor.OpSwitchThrottle, governor.RestoreSwitchThrottle))
	require.NoError(t, e.Start(context.Background()))
	defer func() { require.NoError(t, e.Stop()) }()

	proc := governor.NewSwitchThrottle(node, false)
	require.NoError(t, e.Submit(context.Background(), proc))

	require.Eventually(t, func() bool {
		info, err := e.Get(context.Background(), proc.ID())
		return err == nil && info.Status == api.StatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)
	require.False(t, ctrl.Enabled(), "remote throttle switched off")

	// A second procedure flips it back over the same connection.
	proc2 := governor.NewSwitchThrottle(node, true)
	require.NoError(t, e.Submit(context.Background(), proc2))
	require.Eventually(t, func() bool {
		info, err := e.Get(context.Background(), proc2.ID())
		return err == nil && info.Status == api.StatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, ctrl.Enabled())
}

// TestEndToEndRemoteRejection drives a misaddressed operation through the
// real wire and checks the failure lands on the procedure.
func TestEndToEndRemoteRejection(t *testing.T) {
	served := api.ServerName{Host: "node-1", Port: 16020, StartCode: 1}
	claimed := api.ServerName{Host: "node-1", Port: 16020, StartCode: 2}

	srv := grpc.NewServer()
	Register(srv, New(served, NewThrottleController(), nil))

	lis := bufconn.Listen(bufSize)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	transport := dispatcher.NewGRPCTransport(
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	d := dispatcher.New(dispatcher.Config{
		Transport:     transport,
		FlushInterval: 10 * time.Millisecond,
	})
	defer func() { require.NoError(t, d.Close()) }()
	// The dispatcher knows the node by a stale start code; the agent
	// rejects the envelope.
	require.NoError(t, d.AddNode(claimed))

	e := engine.New(engine.Config{
		Store:      persistence.NewMemoryStore(),
		Dispatcher: d,
	})
	d.Bind(e)
	require.NoError(t, e.RegisterKind(governor.OpSwitchThrottle, governor.RestoreSwitchThrottle))
	require.NoError(t, e.Start(context.Background()))
	defer func() { require.NoError(t, e.Stop()) }()

	proc := governor.NewSwitchThrottle(claimed, false)
	require.NoError(t, e.Submit(context.Background(), proc))

	var info *api.ProcedureInfo
	require.Eventually(t, func() bool {
		got, err := e.Get(context.Background(), proc.ID())
		if err != nil {
			return false
		}
		info = got
		return got.Status == api.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)
	require.Contains(t, info.Error, "addressed to")
}
