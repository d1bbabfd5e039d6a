// Package trace - gRPC interceptors for trace propagation.
package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor injects trace context into outgoing gRPC calls.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = injectMetadata(ctx)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor continues the caller's trace and logs each call as a span.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = WithContext(ctx, extractMetadata(ctx))
		ctx, span := StartSpan(ctx, info.FullMethod)

		resp, err := handler(ctx, req)
		span.End()
		span.SetAttr("code", status.Code(err).String())

		log := Logger(ctx)
		if err != nil {
			log.Warn("rpc failed", "span", span, "error", err)
		} else {
			log.Debug("rpc complete", "span", span)
		}
		return resp, err
	}
}

// extractMetadata reads trace context from incoming gRPC metadata.
func extractMetadata(ctx context.Context) Context {
	md, _ := metadata.FromIncomingContext(ctx)
	m := make(map[string]string, 3)
	for _, key := range []string{TraceIDKey, SpanIDKey, ParentSpanIDKey} {
		if v := md.Get(key); len(v) > 0 {
			m[key] = v[0]
		}
	}
	return FromMap(m)
}

// injectMetadata adds trace context to outgoing gRPC metadata.
func injectMetadata(ctx context.Context) context.Context {
	ctx, tc := EnsureContext(ctx)

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}
	for k, v := range tc.ToMap() {
		md.Set(k, v)
	}
	return metadata.NewOutgoingContext(ctx, md)
}
