package grpc_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/kodypay/kody-clientsdk-go/internal/testutil/grpcbuf"
	kgrpc "github.com/kodypay/kody-clientsdk-go/pkg/grpc"
	"github.com/kodypay/kody-clientsdk-go/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// withRecorder installs a recording tracer provider and W3C propagation for
// the duration of the test.
func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func attr(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit()
		}
	}
	return ""
}

func TestTracing_UnaryInjectsTraceContext(t *testing.T) {
	rec := withRecorder(t)
	conn, capture := grpcbuf.Start(t, &grpcbuf.TerminalService{
		Terminals: func(context.Context, string) ([]model.Terminal, error) { return nil, nil },
	})
	client, err := kgrpc.NewClientFromConn(conn)
	if err != nil {
		t.Fatalf("NewClientFromConn: %v", err)
	}

	md, _, _ := client.Method(kgrpc.MethodTerminals)
	if _, err := client.Invoke(context.Background(), kgrpc.MethodTerminals, kgrpc.EncodeTerminalsRequest(md.Input(), "s")); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if got := capture.Last().Get("traceparent"); len(got) != 1 {
		t.Fatalf("expected traceparent header, got %v", got)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	s := spans[0]
	if s.SpanKind() != trace.SpanKindClient {
		t.Fatalf("unexpected span kind %v", s.SpanKind())
	}
	if got := attr(s.Attributes(), "rpc.method"); got != "Terminals" {
		t.Fatalf("rpc.method = %q", got)
	}
	if got := attr(s.Attributes(), "rpc.service"); got != "com.kodypay.grpc.pay.v1.KodyPayTerminalService" {
		t.Fatalf("rpc.service = %q", got)
	}
}

func TestTracing_StreamSpanEndsAtEOF(t *testing.T) {
	rec := withRecorder(t)
	conn, _ := grpcbuf.Start(t, &grpcbuf.TerminalService{
		Pay: func(_ context.Context, _ model.PaymentRequest, send func(model.PaymentResponse) error) error {
			return send(model.PaymentResponse{Status: model.Cancelled, FailureReason: "timeout"})
		},
	})
	client, err := kgrpc.NewClientFromConn(conn)
	if err != nil {
		t.Fatalf("NewClientFromConn: %v", err)
	}

	md, _, _ := client.Method(kgrpc.MethodPay)
	stream, err := client.OpenServerStream(context.Background(), kgrpc.MethodPay, kgrpc.EncodePayRequest(md.Input(), model.PaymentRequest{Amount: "1.00"}))
	if err != nil {
		t.Fatalf("OpenServerStream: %v", err)
	}
	if len(rec.Ended()) != 0 {
		t.Fatal("span must stay open while the stream is active")
	}
	for {
		if _, err := stream.Recv(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("Recv: %v", err)
		}
	}
	if len(rec.Ended()) != 1 {
		t.Fatalf("expected stream span to end at EOF, got %d ended", len(rec.Ended()))
	}
}

func TestTracing_StreamSpanEndsOnCancel(t *testing.T) {
	rec := withRecorder(t)
	block := make(chan struct{})
	defer close(block)
	conn, _ := grpcbuf.Start(t, &grpcbuf.TerminalService{
		Pay: func(ctx context.Context, _ model.PaymentRequest, send func(model.PaymentResponse) error) error {
			if err := send(model.PaymentResponse{Status: model.Pending, OrderID: "O1"}); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
			case <-block:
			}
			return nil
		},
	})
	client, err := kgrpc.NewClientFromConn(conn)
	if err != nil {
		t.Fatalf("NewClientFromConn: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	md, _, _ := client.Method(kgrpc.MethodPay)
	stream, err := client.OpenServerStream(ctx, kgrpc.MethodPay, kgrpc.EncodePayRequest(md.Input(), model.PaymentRequest{Amount: "1.00"}))
	if err != nil {
		t.Fatalf("OpenServerStream: %v", err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Ended()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream span did not end after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := kgrpc.RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if err := kgrpc.RegisterMetrics(reg); err != nil {
		t.Fatalf("second RegisterMetrics: %v", err)
	}

	conn, _ := grpcbuf.Start(t, &grpcbuf.TerminalService{
		Terminals: func(context.Context, string) ([]model.Terminal, error) { return nil, nil },
	})
	client, err := kgrpc.NewClientFromConn(conn)
	if err != nil {
		t.Fatalf("NewClientFromConn: %v", err)
	}
	md, _, _ := client.Method(kgrpc.MethodTerminals)
	if _, err := client.Invoke(context.Background(), kgrpc.MethodTerminals, kgrpc.EncodeTerminalsRequest(md.Input(), "s")); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	n, err := promtest.GatherAndCount(reg, "grpc_client_started_total", "grpc_client_handled_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected started and handled series, got %d", n)
	}
}

func TestServerStreamClose_EndsSpanAsSuccess(t *testing.T) {
	rec := withRecorder(t)
	released := make(chan struct{})
	conn, _ := grpcbuf.Start(t, &grpcbuf.TerminalService{
		Pay: func(ctx context.Context, _ model.PaymentRequest, send func(model.PaymentResponse) error) error {
			defer close(released)
			if err := send(model.PaymentResponse{Status: model.Cancelled, FailureReason: "cancelled"}); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	})
	client, err := kgrpc.NewClientFromConn(conn)
	if err != nil {
		t.Fatalf("NewClientFromConn: %v", err)
	}

	md, _, _ := client.Method(kgrpc.MethodPay)
	stream, err := client.OpenServerStream(context.Background(), kgrpc.MethodPay, kgrpc.EncodePayRequest(md.Input(), model.PaymentRequest{Amount: "1.00"}))
	if err != nil {
		t.Fatalf("OpenServerStream: %v", err)
	}
	if _, err := stream.Recv(); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	stream.Close(50 * time.Millisecond)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if spans[0].Status().Code != otelcodes.Unset {
		t.Fatalf("span status = %v %q, want unset", spans[0].Status().Code, spans[0].Status().Description)
	}
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not release the stream")
	}
}
