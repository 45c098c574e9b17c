package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bufbuild/protocompile/linker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Client holds a gRPC ClientConn and the compiled pay.proto descriptors used
// to locate methods at runtime.
type Client struct {
	// GRPC is the underlying client connection.
	GRPC *grpc.ClientConn `json:"-"`
	// ProtoFiles are the compiled descriptors of pay.proto.
	ProtoFiles linker.Files `json:"-"`

	owned bool
}

// NewClient creates a client for the given endpoint. The endpoint scheme
// determines transport security:
//   - "https://": TLS (system defaults)
//   - "http://":  insecure
//   - no scheme:  insecure
//
// Tracing and metrics interceptors are always installed; extra dial options
// are appended after them. The returned client proactively starts connecting
// (ClientConn.Connect()).
func NewClient(endpoint string, opts ...grpc.DialOption) (*Client, error) {
	addr, creds := grpcCredsFromEndpoint(endpoint)
	dialOpts := append([]grpc.DialOption{creds}, InterceptorOptions()...)
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		zap.L().Error("failed to create grpc client", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("create grpc client for %s: %w", endpoint, err)
	}

	c, err := NewClientFromConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.owned = true

	conn.Connect()
	return c, nil
}

// NewClientFromConn wraps an existing connection. Close will not close conn;
// the caller keeps ownership.
func NewClientFromConn(conn *grpc.ClientConn) (*Client, error) {
	if conn == nil {
		return nil, errors.New("nil grpc connection")
	}
	descriptors, err := PayDescriptors()
	if err != nil {
		return nil, err
	}
	return &Client{
		GRPC:       conn,
		ProtoFiles: descriptors,
	}, nil
}

// Close shuts down the underlying gRPC connection when the client created it.
// It is safe to call on a nil receiver or when GRPC is nil.
func (c *Client) Close() error {
	if c == nil || c.GRPC == nil || !c.owned {
		return nil
	}
	return c.GRPC.Close()
}

// Method resolves a method by its simple name and returns its descriptor and
// the full wire path.
func (c *Client) Method(name string) (protoreflect.MethodDescriptor, string, error) {
	_, md, err := FindMethod(c.ProtoFiles, name)
	if err != nil {
		return nil, "", err
	}
	return md, FullMethodName(md), nil
}

// Invoke calls a unary method by simple name and returns the dynamic response.
func (c *Client) Invoke(ctx context.Context, method string, req proto.Message, opts ...grpc.CallOption) (*dynamicpb.Message, error) {
	md, fullMethod, err := c.Method(method)
	if err != nil {
		return nil, err
	}
	out := dynamicpb.NewMessage(md.Output())
	if err := c.GRPC.Invoke(ctx, fullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ServerStream reads the replies of a server-streaming call.
type ServerStream struct {
	stream grpc.ClientStream
	output protoreflect.MessageDescriptor
	cancel context.CancelFunc
	ended  bool
}

// Recv blocks for the next reply. It returns io.EOF once the server closes the
// stream normally.
func (s *ServerStream) Recv() (*dynamicpb.Message, error) {
	out := dynamicpb.NewMessage(s.output)
	if err := s.stream.RecvMsg(out); err != nil {
		s.ended = true
		return nil, err
	}
	return out, nil
}

// Close finishes a call whose last meaningful reply has been read. The call
// is recorded as successful; Close then waits up to grace for the server to
// end the stream and abandons it afterwards. Calling Close after Recv
// returned an error only releases the stream.
func (s *ServerStream) Close(grace time.Duration) {
	defer s.cancel()
	if s.ended {
		return
	}
	if ts, ok := s.stream.(interface{ succeed() }); ok {
		ts.succeed()
	}
	timer := time.AfterFunc(grace, s.cancel)
	defer timer.Stop()
	for {
		if _, err := s.Recv(); err != nil {
			return
		}
	}
}

// OpenServerStream starts a server-streaming call by simple method name, sends
// the single request and half-closes the send side. Cancel ctx or call Close
// to release the stream before it ends.
func (c *Client) OpenServerStream(ctx context.Context, method string, req proto.Message, opts ...grpc.CallOption) (*ServerStream, error) {
	md, fullMethod, err := c.Method(method)
	if err != nil {
		return nil, err
	}
	if !md.IsStreamingServer() {
		return nil, fmt.Errorf("method %s is not server streaming", method)
	}

	ctx, cancel := context.WithCancel(ctx)
	desc := &grpc.StreamDesc{StreamName: string(md.Name()), ServerStreams: true}
	stream, err := c.GRPC.NewStream(ctx, desc, fullMethod, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	// io.EOF means the server already ended the call; RecvMsg reports the status.
	if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		cancel()
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, err
	}
	return &ServerStream{stream: stream, output: md.Output(), cancel: cancel}, nil
}

// grpcCredsFromEndpoint derives a dial address and dial option from an endpoint URL.
// "https://" enables TLS; "http://" and bare addresses use insecure credentials.
// A trailing slash is dropped.
func grpcCredsFromEndpoint(endpoint string) (string, grpc.DialOption) {
	if strings.HasPrefix(endpoint, "https://") {
		addr := strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/")
		if !strings.Contains(addr, ":") {
			addr += ":443"
		}
		return addr, grpc.WithTransportCredentials(credentials.NewTLS(nil))
	}
	if strings.HasPrefix(endpoint, "http://") {
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	return endpoint, grpc.WithTransportCredentials(insecure.NewCredentials())
}
