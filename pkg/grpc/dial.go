package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// DialEndpoint creates a client for endpoint and waits until the connection is
// READY or timeout elapses. On failure the connection is closed.
func DialEndpoint(ctx context.Context, endpoint string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	c, err := NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := waitReady(ctx, c.GRPC); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return c, nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return fmt.Errorf("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// Healthcheck performs a standard gRPC health check against the connected
// service. An empty service name asks about the server as a whole.
func (c *Client) Healthcheck(ctx context.Context, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	client := grpc_health_v1.NewHealthClient(c.GRPC)
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, fmt.Errorf("grpc health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}
