// Package grpcbuf runs an in-memory KodyPayTerminalService over bufconn for
// tests. Handlers are plain functions so each test scripts its own replies.
package grpcbuf

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	kgrpc "github.com/kodypay/kody-clientsdk-go/pkg/grpc"
	"github.com/kodypay/kody-clientsdk-go/pkg/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

const bufSize = 1024 * 1024

// Call is what the server saw for one RPC.
type Call struct {
	Metadata    metadata.MD
	Deadline    time.Time
	HasDeadline bool
}

// MetaCapture records incoming metadata and deadlines per full method name.
type MetaCapture struct {
	mu    sync.Mutex
	last  Call
	calls map[string][]Call
}

func (m *MetaCapture) record(ctx context.Context, fullMethod string) {
	md, _ := metadata.FromIncomingContext(ctx)
	dl, ok := ctx.Deadline()
	c := Call{Metadata: md, Deadline: dl, HasDeadline: ok}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string][]Call)
	}
	m.last = c
	m.calls[fullMethod] = append(m.calls[fullMethod], c)
}

// Interceptor records incoming metadata and forwards the request to the next handler.
func (m *MetaCapture) Interceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	m.record(ctx, info.FullMethod)
	return handler(ctx, req)
}

// StreamInterceptor is the streaming counterpart of Interceptor.
func (m *MetaCapture) StreamInterceptor(
	srv interface{},
	ss grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	m.record(ss.Context(), info.FullMethod)
	return handler(srv, ss)
}

// Last returns the most recently captured metadata or nil if none.
func (m *MetaCapture) Last() metadata.MD {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Metadata
}

// Calls returns the calls seen for a simple method name (e.g. "Pay").
func (m *MetaCapture) Calls(method string) []Call {
	md := mustMethod(method)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls[kgrpc.FullMethodName(md)]...)
}

// TerminalService is a scriptable KodyPayTerminalService. A nil handler
// answers codes.Unimplemented.
type TerminalService struct {
	Terminals      func(ctx context.Context, storeID string) ([]model.Terminal, error)
	Pay            func(ctx context.Context, req model.PaymentRequest, send func(model.PaymentResponse) error) error
	Cancel         func(ctx context.Context, req model.CancelRequest) (model.PaymentStatus, error)
	PaymentDetails func(ctx context.Context, req model.PaymentDetailsRequest) (model.PaymentResponse, error)
}

type terminalServer interface {
	terminalService() *TerminalService
}

func (s *TerminalService) terminalService() *TerminalService { return s }

func mustMethod(name string) protoreflect.MethodDescriptor {
	fds, err := kgrpc.PayDescriptors()
	if err != nil {
		panic(err)
	}
	_, md, err := kgrpc.FindMethod(fds, name)
	if err != nil {
		panic(err)
	}
	return md
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// unaryMethod adapts a dynamic handler to grpc.MethodDesc.
func unaryMethod(name string, call func(s *TerminalService, ctx context.Context, in *dynamicpb.Message, out protoreflect.MessageDescriptor) (proto.Message, error)) grpc.MethodDesc {
	md := mustMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := dynamicpb.NewMessage(md.Input())
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(terminalServer).terminalService()
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*dynamicpb.Message), md.Output())
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: kgrpc.FullMethodName(md),
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func payStream(srv interface{}, stream grpc.ServerStream) error {
	md := mustMethod(kgrpc.MethodPay)
	s := srv.(terminalServer).terminalService()
	if s.Pay == nil {
		return unimplemented(kgrpc.MethodPay)
	}
	in := dynamicpb.NewMessage(md.Input())
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	send := func(r model.PaymentResponse) error {
		return stream.SendMsg(kgrpc.EncodePayResponse(md.Output(), r))
	}
	return s.Pay(stream.Context(), kgrpc.DecodePayRequest(in), send)
}

// TerminalServiceDesc builds the service description of KodyPayTerminalService
// backed by TerminalService.
func TerminalServiceDesc() *grpc.ServiceDesc {
	pay := mustMethod(kgrpc.MethodPay)
	return &grpc.ServiceDesc{
		ServiceName: string(pay.Parent().FullName()),
		HandlerType: (*terminalServer)(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod(kgrpc.MethodTerminals, func(s *TerminalService, ctx context.Context, in *dynamicpb.Message, out protoreflect.MessageDescriptor) (proto.Message, error) {
				if s.Terminals == nil {
					return nil, unimplemented(kgrpc.MethodTerminals)
				}
				terminals, err := s.Terminals(ctx, kgrpc.DecodeTerminalsRequest(in))
				if err != nil {
					return nil, err
				}
				return kgrpc.EncodeTerminalsResponse(out, terminals), nil
			}),
			unaryMethod(kgrpc.MethodCancel, func(s *TerminalService, ctx context.Context, in *dynamicpb.Message, out protoreflect.MessageDescriptor) (proto.Message, error) {
				if s.Cancel == nil {
					return nil, unimplemented(kgrpc.MethodCancel)
				}
				st, err := s.Cancel(ctx, kgrpc.DecodeCancelRequest(in))
				if err != nil {
					return nil, err
				}
				return kgrpc.EncodeCancelResponse(out, st), nil
			}),
			unaryMethod(kgrpc.MethodPaymentDetails, func(s *TerminalService, ctx context.Context, in *dynamicpb.Message, out protoreflect.MessageDescriptor) (proto.Message, error) {
				if s.PaymentDetails == nil {
					return nil, unimplemented(kgrpc.MethodPaymentDetails)
				}
				r, err := s.PaymentDetails(ctx, kgrpc.DecodePaymentDetailsRequest(in))
				if err != nil {
					return nil, err
				}
				return kgrpc.EncodePayResponse(out, r), nil
			}),
		},
		Streams: []grpc.StreamDesc{
			{StreamName: kgrpc.MethodPay, Handler: payStream, ServerStreams: true},
		},
		Metadata: "kody/pay/v1/pay.proto",
	}
}

// StartServer spins up a bufconn-backed gRPC server serving svc plus the
// standard health service, with metadata capture enabled.
func StartServer(svc *TerminalService) (*grpc.Server, *bufconn.Listener, *MetaCapture) {
	lis := bufconn.Listen(bufSize)
	cap := &MetaCapture{}
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(cap.Interceptor),
		grpc.StreamInterceptor(cap.StreamInterceptor),
	)
	srv.RegisterService(TerminalServiceDesc(), svc)
	grpc_health_v1.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	return srv, lis, cap
}

// Dial connects to the provided bufconn listener using the standard gRPC client stack.
func Dial(ctx context.Context, lis *bufconn.Listener, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	// Use insecure credentials because bufconn does not provide TLS.
	// Use NewClient with a passthrough target so the custom dialer is honored.
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	}
	base = append(base, opts...)
	return grpc.NewClient("passthrough://bufnet", base...)
}

// Start runs svc for the duration of the test and returns a client connection
// to it. Server and connection are closed by t.Cleanup.
func Start(t testing.TB, svc *TerminalService, opts ...grpc.DialOption) (*grpc.ClientConn, *MetaCapture) {
	t.Helper()
	srv, lis, cap := StartServer(svc)
	conn, err := Dial(context.Background(), lis, append(kgrpc.InterceptorOptions(), opts...)...)
	if err != nil {
		srv.Stop()
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return conn, cap
}
