package grpc

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	grpcprom "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const tracerName = "github.com/kodypay/kody-clientsdk-go/pkg/grpc"

// InterceptorOptions returns the dial options installing client tracing and
// Prometheus metrics for unary and streaming calls. Tracing runs outermost so
// metrics observe the traced context.
func InterceptorOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(UnaryClientTracing(), grpcprom.UnaryClientInterceptor),
		grpc.WithChainStreamInterceptor(StreamClientTracing(), grpcprom.StreamClientInterceptor),
	}
}

// RegisterMetrics adds the client RPC metrics to reg. They are already part
// of the default Prometheus registry; use this for a custom one.
func RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(grpcprom.DefaultClientMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// parseFullMethod splits "/package.Service/Method" into ("package.Service", "Method").
func parseFullMethod(fullMethod string) (service, method string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	idx := strings.LastIndex(fullMethod, "/")
	if idx < 0 {
		return fullMethod, fullMethod
	}
	return fullMethod[:idx], fullMethod[idx+1:]
}

func startClientSpan(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	service, method := parseFullMethod(fullMethod)
	ctx, span := otel.Tracer(tracerName).Start(ctx, fullMethod,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		),
	)

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.MD{}
	} else {
		md = md.Copy()
	}
	otel.GetTextMapPropagator().Inject(ctx, metadataCarrier(md))
	return metadata.NewOutgoingContext(ctx, md), span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if st, ok := status.FromError(err); ok {
			span.SetAttributes(attribute.Int("rpc.grpc.status_code", int(st.Code())))
		}
	}
	span.End()
}

// UnaryClientTracing creates a client span per unary call and injects the
// trace context into outgoing metadata.
func UnaryClientTracing() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, span := startClientSpan(ctx, method)
		err := invoker(ctx, method, req, reply, cc, opts...)
		endSpan(span, err)
		return err
	}
}

// StreamClientTracing creates a client span per stream. The span ends when the
// stream finishes, fails, or its context is done.
func StreamClientTracing() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx, span := startClientSpan(ctx, method)
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			endSpan(span, err)
			return nil, err
		}
		ts := &tracedStream{ClientStream: cs, span: span}
		ts.stop = context.AfterFunc(ctx, func() { ts.finish(ctx.Err()) })
		return ts, nil
	}
}

type tracedStream struct {
	grpc.ClientStream
	span trace.Span
	once sync.Once
	stop func() bool
}

func (s *tracedStream) finish(err error) {
	s.once.Do(func() { endSpan(s.span, err) })
}

// succeed ends the span as successful when the caller stops reading after a
// final reply.
func (s *tracedStream) succeed() {
	s.stop()
	s.finish(nil)
}

func (s *tracedStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		return nil
	}
	s.stop()
	if errors.Is(err, io.EOF) {
		s.finish(nil)
	} else {
		s.finish(err)
	}
	return err
}

// metadataCarrier adapts metadata.MD to propagation.TextMapCarrier.
type metadataCarrier metadata.MD

var _ propagation.TextMapCarrier = metadataCarrier(nil)

func (c metadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}
