package terminal

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// APIKeyHeader is the gRPC metadata key carrying the API key. gRPC metadata
// keys are lowercase on the wire; the service documents it as "X-API-Key".
const APIKeyHeader = "x-api-key"

// Authenticator decorates outgoing calls with credentials.
//
// GRPCMetadata returns a derived context that should be used for the RPC
// invocation.
type Authenticator interface {
	GRPCMetadata(ctx context.Context) context.Context
}

// APIKey authenticates every call with the X-API-Key header.
type APIKey string

// GRPCMetadata appends the API key to the outgoing metadata of ctx.
func (k APIKey) GRPCMetadata(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, APIKeyHeader, string(k))
}
