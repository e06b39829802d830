package wire

import (
	"context"

	"google.golang.org/grpc"

	"github.com/tlahtinen/governor/pkg/api"
)

const (
	// ServiceName is the full gRPC service name served by agents.
	ServiceName = "governor.ThrottleAdmin"

	applyMethod = "/" + ServiceName + "/Apply"
)

// BatchRequest is one buffered flush from the dispatcher: every envelope
// addressed to the same node.
type BatchRequest struct {
	Envelopes []api.Envelope
}

// Result reports the outcome of applying one envelope.
type Result struct {
	ProcID string

	// ErrMsg is empty on success. Errors are carried as strings so the
	// batch response stays a plain gob value.
	ErrMsg string
}

// BatchResponse carries one Result per envelope, in request order.
type BatchResponse struct {
	Results []Result
}

// ThrottleAdminServer is implemented by node agents.
type ThrottleAdminServer interface {
	Apply(ctx context.Context, req *BatchRequest) (*BatchResponse, error)
}

func applyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BatchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ThrottleAdminServer).Apply(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: applyMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ThrottleAdminServer).Apply(ctx, req.(*BatchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ThrottleAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Apply",
			Handler:    applyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "governor/wire",
}

// RegisterThrottleAdminServer registers srv on a gRPC server.
func RegisterThrottleAdminServer(s grpc.ServiceRegistrar, srv ThrottleAdminServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Apply invokes the Apply method on conn using the gob codec.
func Apply(ctx context.Context, conn grpc.ClientConnInterface, req *BatchRequest) (*BatchResponse, error) {
	resp := new(BatchResponse)
	err := conn.Invoke(ctx, applyMethod, req, resp, grpc.CallContentSubtype(ContentSubtype))
	if err != nil {
		return nil, err
	}
	return resp, nil
}
