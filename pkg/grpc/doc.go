// Package grpc provides the transport for the Kody terminal client.
//
// The package invokes KodyPayTerminalService without generated stubs. The
// service definition (pay.proto) is embedded, compiled on first use via
// protocompile, and requests/responses are dynamicpb messages built by the
// codec functions in this package.
//
// # Client Creation
//
//	client, err := grpc.NewClient("https://grpc-staging.kodypay.com")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// NewClientFromConn wraps a connection owned by the caller (for example a
// bufconn connection in tests); Close then leaves it open.
//
// # Invocation
//
// Unary methods go through Invoke, the Pay stream through OpenServerStream:
//
//	md, _, _ := client.Method(grpc.MethodTerminals)
//	out, err := client.Invoke(ctx, grpc.MethodTerminals, grpc.EncodeTerminalsRequest(md.Input(), storeID))
//	terminals := grpc.DecodeTerminalsResponse(out)
//
//	stream, err := client.OpenServerStream(ctx, grpc.MethodPay, req)
//	for {
//		msg, err := stream.Recv()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
//	stream.Close(2 * time.Second)
//
// Close marks a stream whose final reply has been read as successful and
// gives the server a moment to end it, so tracing and metrics record a
// completed call rather than a cancelled one.
//
// # Transport Security
//
// Transport is determined by endpoint scheme:
//
//	"https://host"      → TLS with system certificates, port 443 by default
//	"http://host:8080"  → insecure plaintext
//	"host:8080"         → insecure plaintext (no scheme)
//
// # Observability
//
// Every connection created by NewClient carries client interceptors that
// open an OpenTelemetry span per call (propagating the trace context in the
// outgoing metadata) and record go-grpc-prometheus client metrics.
//
// # Thread Safety
//
// Client instances are safe for concurrent use. Multiple goroutines can
// make parallel calls through the same client.
package grpc
