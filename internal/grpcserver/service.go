package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/ocrwatch/internal/errors"
	"github.com/GriffinCanCode/ocrwatch/internal/recognition"
	"github.com/GriffinCanCode/ocrwatch/internal/trace"
)

// Handler is the server side of ocrwatch.v1.Recognizer.
type Handler interface {
	Recognize(ctx context.Context, img *wrapperspb.BytesValue) (*structpb.ListValue, error)
	SetConfidenceThreshold(ctx context.Context, threshold *wrapperspb.DoubleValue) (*emptypb.Empty, error)
}

// ServiceDesc describes the Recognizer service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: recognition.ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: recognition.RecognizeMethodName, Handler: recognizeHandler},
		{MethodName: recognition.SetThresholdMethodName, Handler: setThresholdHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ocrwatch/v1/recognizer",
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Recognize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recognition.RecognizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).Recognize(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func setThresholdHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.DoubleValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).SetConfidenceThreshold(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recognition.SetThresholdMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).SetConfidenceThreshold(ctx, req.(*wrapperspb.DoubleValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Service adapts a recognition.Engine to Handler.
type Service struct {
	engine recognition.Engine
}

// NewService wraps engine.
func NewService(engine recognition.Engine) *Service {
	return &Service{engine: engine}
}

// Recognize runs the engine on the received image.
func (s *Service) Recognize(ctx context.Context, img *wrapperspb.BytesValue) (*structpb.ListValue, error) {
	if len(img.GetValue()) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "empty image")
	}
	results, err := s.engine.Recognize(ctx, img.GetValue())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRecognitionFailed, "recognize")
	}
	trace.Logger(ctx).Debug("recognized frame", "bytes", len(img.GetValue()), "results", len(results))

	list, err := recognition.EncodeResults(results)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode results")
	}
	return list, nil
}

// SetConfidenceThreshold forwards to engines that support runtime thresholds.
func (s *Service) SetConfidenceThreshold(ctx context.Context, threshold *wrapperspb.DoubleValue) (*emptypb.Empty, error) {
	t := threshold.GetValue()
	if !recognition.ValidConfidence(t) {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "threshold %v outside [0,1]", t)
	}
	ts, ok := recognition.AsThresholdSetter(s.engine)
	if !ok {
		return nil, apperrors.New(apperrors.CodeUnsupported, "engine does not support confidence threshold")
	}
	ts.SetConfidenceThreshold(t)
	trace.Logger(ctx).Info("engine confidence threshold set", "threshold", t)
	return &emptypb.Empty{}, nil
}
