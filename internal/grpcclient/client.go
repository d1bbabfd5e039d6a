package grpcclient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/resilience"
	"github.com/GriffinCanCode/ocrwatch/internal/trace"
)

// Client calls a remote recognizer with retries behind a circuit breaker.
type Client struct {
	conn     *grpc.ClientConn
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig
	timeout  time.Duration
	dialOpts []grpc.DialOption
}

// Option configures a Client.
type Option func(*Client)

// WithRetry replaces the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithCallTimeout bounds each Recognize call, retries included.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithDialOptions appends options used by New when dialing.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// New dials addr. The connection is established lazily on the first call.
func New(addr string, opts ...Option) (*Client, error) {
	c := newClient(opts)
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}, c.dialOpts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "dial recognizer").WithMetadata("addr", addr)
	}
	c.conn = conn
	slog.Info("remote recognizer configured", "addr", addr, "breaker", c.breaker.Name())
	return c, nil
}

// NewWithConn wraps an existing connection.
func NewWithConn(conn *grpc.ClientConn, opts ...Option) *Client {
	c := newClient(opts)
	c.conn = conn
	return c
}

func newClient(opts []Option) *Client {
	c := &Client{
		breaker: resilience.New(resilience.DefaultConfig()),
		retry:   resilience.DefaultRetryConfig(),
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Recognize sends img to the remote engine.
func (c *Client) Recognize(ctx context.Context, img []byte) ([]recognition.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := resilience.RetryValue(ctx, c.retry, func() (*structpb.ListValue, error) {
		return resilience.ExecuteWithResult(c.breaker, func() (*structpb.ListValue, error) {
			out := new(structpb.ListValue)
			if err := c.conn.Invoke(ctx, recognition.RecognizeMethod, wrapperspb.Bytes(img), out); err != nil {
				return nil, err
			}
			return out, nil
		})
	})
	if err != nil {
		return nil, toAppError(err, "remote recognize")
	}
	return recognition.DecodeResults(list), nil
}

// SetThreshold changes the remote engine's confidence threshold.
func (c *Client) SetThreshold(ctx context.Context, threshold float64) error {
	err := c.conn.Invoke(ctx, recognition.SetThresholdMethod, wrapperspb.Double(threshold), new(emptypb.Empty))
	if err != nil {
		return toAppError(err, "remote set threshold")
	}
	return nil
}

// SetConfidenceThreshold implements recognition.ThresholdSetter. Failures are logged.
func (c *Client) SetConfidenceThreshold(threshold float64) {
	ctx, cancel := context.WithTimeout(context.Background(), ThresholdTimeout)
	defer cancel()
	if err := c.SetThreshold(ctx, threshold); err != nil {
		slog.Warn("remote threshold update failed", "threshold", threshold, "error", err)
	}
}

// toAppError keeps AppErrors and restores codes carried in gRPC statuses.
func toAppError(err error, op string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.CodeTimeout, op)
	}
	restored := apperrors.FromGRPCError(err)
	restored.Cause = err
	return restored.WithMetadata("op", op)
}
