package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/trace"
)

// Server hosts the Recognizer service.
type Server struct {
	grpc *grpc.Server
}

// New creates a server for engine. Extra options are appended to the defaults.
func New(engine recognition.Engine, opts ...grpc.ServerOption) *Server {
	serverOpts := append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(MaxRecvMsgSize),
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             MinClientPingInterval,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    KeepaliveTime,
			Timeout: KeepaliveTimeout,
		}),
	}, opts...)

	s := grpc.NewServer(serverOpts...)
	s.RegisterService(&ServiceDesc, NewService(engine))
	return &Server{grpc: s}
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("recognizer service listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// ListenAndServe serves on addr until ctx is cancelled, then stops gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "listen").WithMetadata("addr", addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.Stop(ShutdownTimeout)
		return nil
	}
}

// Stop drains in-flight calls, cutting them off after timeout.
func (s *Server) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("recognizer graceful stop timed out", "timeout", timeout)
		s.grpc.Stop()
	}
	slog.Info("recognizer service stopped")
}
