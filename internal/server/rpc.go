package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/utils/validate"
)

// Method builds the descriptor of one unary method of service.
type Method func(service string) grpc.MethodDesc

// Unary adapts a typed handler to a gRPC method. Requests are decoded with
// the JSON codec and validated against their `validate` tags before the
// handler runs.
func Unary[Req, Resp any](name string, handle func(context.Context, *Req) (*Resp, error)) Method {
	return func(service string) grpc.MethodDesc {
		fullMethod := "/" + service + "/" + name
		return grpc.MethodDesc{
			MethodName: name,
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(Req)
				if err := dec(req); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
				}

				call := func(ctx context.Context, r any) (any, error) {
					typed := r.(*Req)
					if _, isProto := r.(proto.Message); !isProto {
						if err := validate.Struct(typed); err != nil {
							return nil, err
						}
					}
					resp, err := handle(ctx, typed)
					if err != nil {
						return nil, err
					}
					return resp, nil
				}

				if interceptor == nil {
					return call(ctx, req)
				}
				return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
			},
		}
	}
}

// NewServiceDesc describes a hand-written service. Any value may be
// registered against it.
func NewServiceDesc(service string, methods ...Method) *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: service,
		HandlerType: (*any)(nil),
		Metadata:    CodecName,
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, m(service))
	}
	return desc
}

// FullMethod is the path interceptors see for method of service.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Caller returns the authenticated principal of an RPC.
func Caller(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Principal{}, status.Error(codes.Unauthenticated, auth.ErrMissingToken.Error())
	}
	return p, nil
}
