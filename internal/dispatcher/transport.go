package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tlahtinen/governor/internal/wire"
	"github.com/tlahtinen/governor/pkg/api"
)

// GRPCTransport sends batches to agents over gRPC, one cached client
// connection per node.
type GRPCTransport struct {
	opts []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

var _ Transport = (*GRPCTransport)(nil)

// NewGRPCTransport creates a transport dialing with the given options.
// Without options it dials insecurely, which suits tests and closed
// cluster networks.
func NewGRPCTransport(opts ...grpc.DialOption) *GRPCTransport {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &GRPCTransport{
		opts:  opts,
		conns: make(map[string]*grpc.ClientConn),
	}
}

func (t *GRPCTransport) conn(target api.ServerName) (*grpc.ClientConn, error) {
	key := target.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[key]; ok {
		return conn, nil
	}
	// passthrough hands the address to the dialer unresolved, so a
	// WithContextDialer option (bufconn in tests) sees it verbatim.
	conn, err := grpc.NewClient("passthrough:///"+target.Addr(), t.opts...)
	if err != nil {
		return nil, fmt.Errorf("dial node %s: %w", key, err)
	}
	t.conns[key] = conn
	return conn, nil
}

// Send delivers one batch to one node.
func (t *GRPCTransport) Send(ctx context.Context, target api.ServerName, req *wire.BatchRequest) (*wire.BatchResponse, error) {
	conn, err := t.conn(target)
	if err != nil {
		return nil, err
	}
	return wire.Apply(ctx, conn, req)
}

// Close closes every cached connection.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for key, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close conn to %s: %w", key, err)
		}
		delete(t.conns, key)
	}
	return firstErr
}

// Loopback delivers batches to in-process servers. It backs single-binary
// deployments and tests that do not want a listener per node.
type Loopback struct {
	mu      sync.RWMutex
	servers map[string]wire.ThrottleAdminServer
}

var _ Transport = (*Loopback)(nil)

// NewLoopback creates an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{servers: make(map[string]wire.ThrottleAdminServer)}
}

// Register attaches an in-process server for a node.
func (t *Loopback) Register(target api.ServerName, srv wire.ThrottleAdminServer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers[target.String()] = srv
}

// Send delivers the batch directly to the registered server.
func (t *Loopback) Send(ctx context.Context, target api.ServerName, req *wire.BatchRequest) (*wire.BatchResponse, error) {
	t.mu.RLock()
	srv, ok := t.servers[target.String()]
	t.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no server for node %s", target)
	}
	return srv.Apply(ctx, req)
}

func (t *Loopback) Close() error { return nil }
