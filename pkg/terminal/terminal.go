package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kodypay/kody-clientsdk-go/pkg/config"
	kgrpc "github.com/kodypay/kody-clientsdk-go/pkg/grpc"
	"github.com/kodypay/kody-clientsdk-go/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// init configures a default global zap logger. Applications may replace it
// with zap.ReplaceGlobals(...) or pass WithLogger to a client.
func init() {
	logger, err := defaultLogConfig().Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// defaultLogConfig logs to stderr so stdout stays free for program output.
func defaultLogConfig() zap.Config {
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// Client talks to KodyPayTerminalService on behalf of one store. Its
// configuration is fixed at construction and every call keeps its state on the
// stack, so a single Client may be shared by any number of goroutines.
type Client struct {
	grpc     *kgrpc.Client
	store    string
	auth     Authenticator
	timeouts config.Timeouts
	now      func() time.Time
	logger   *zap.Logger
}

type options struct {
	timeouts config.Timeouts
	now      func() time.Time
	conn     *grpc.ClientConn
	dialOpts []grpc.DialOption
	logger   *zap.Logger
	ready    bool
}

// Option customizes a Client.
type Option func(*options)

// WithTimeouts overrides call timeouts. Zero fields keep their defaults.
func WithTimeouts(t config.Timeouts) Option {
	return func(o *options) { o.timeouts = t }
}

// WithClock sets the clock used to compute absolute call deadlines.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithConn makes the client use an existing connection instead of dialing the
// address. The connection is not closed by Client.Close.
func WithConn(conn *grpc.ClientConn) Option {
	return func(o *options) { o.conn = conn }
}

// WithDialOptions appends options used when dialing the address.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// WithWaitReady makes NewClient connect up front and fail if the service is
// not reachable within Timeouts.Dial. It has no effect together with WithConn.
func WithWaitReady() Option {
	return func(o *options) { o.ready = true }
}

// WithLogger sets the logger. By default the global zap logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient creates a client for the service at address (e.g.
// "https://grpc-staging.kodypay.com") acting for store and authenticating
// with apiKey. The connection is established lazily unless WithWaitReady is
// given; no call is made here.
func NewClient(address string, store uuid.UUID, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if store == uuid.Nil {
		return nil, errors.New("store id is required")
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		conn *kgrpc.Client
		err  error
	)
	timeouts := o.timeouts.WithDefaults()
	switch {
	case o.conn != nil:
		conn, err = kgrpc.NewClientFromConn(o.conn)
	case o.ready:
		conn, err = kgrpc.DialEndpoint(context.Background(), address, timeouts.Dial, o.dialOpts...)
	default:
		conn, err = kgrpc.NewClient(address, o.dialOpts...)
	}
	if err != nil {
		return nil, err
	}

	return &Client{
		grpc:     conn,
		store:    store.String(),
		auth:     APIKey(apiKey),
		timeouts: timeouts,
		now:      o.now,
		logger:   o.logger,
	}, nil
}

// NewFromSettings validates s and creates a client from it.
func NewFromSettings(s *config.Settings, opts ...Option) (*Client, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return NewClient(s.Address, s.Store(), s.APIKey, opts...)
}

// Close releases the connection if the client dialed it.
func (c *Client) Close() error {
	return c.grpc.Close()
}

// StoreID returns the store the client acts for.
func (c *Client) StoreID() string { return c.store }

func (c *Client) log() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return zap.L()
}

// callContext returns ctx carrying the API key and an absolute deadline of
// now+timeout.
func (c *Client) callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithDeadline(ctx, c.now().Add(timeout))
	return c.auth.GRPCMetadata(ctx), cancel
}

// ListTerminals returns every terminal assigned to the store, in the order the
// service reports them.
func (c *Client) ListTerminals(ctx context.Context) ([]model.Terminal, error) {
	md, _, err := c.grpc.Method(kgrpc.MethodTerminals)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx, c.timeouts.Terminals)
	defer cancel()

	out, err := c.grpc.Invoke(ctx, kgrpc.MethodTerminals, kgrpc.EncodeTerminalsRequest(md.Input(), c.store))
	if err != nil {
		return nil, c.fail(kgrpc.MethodTerminals, err)
	}
	terminals := kgrpc.DecodeTerminalsResponse(out)
	c.log().Debug("terminals listed", zap.String("store", c.store), zap.Int("count", len(terminals)))
	return terminals, nil
}

// CancelPayment asks the service to cancel the payment orderID on terminalID.
// The returned status is what the service reports; Cancelled is expected but
// not enforced.
func (c *Client) CancelPayment(ctx context.Context, amount decimal.Decimal, terminalID, orderID string) (model.PaymentStatus, error) {
	md, _, err := c.grpc.Method(kgrpc.MethodCancel)
	if err != nil {
		return model.Pending, err
	}
	ctx, cancel := c.callContext(ctx, c.timeouts.Request)
	defer cancel()

	req := model.CancelRequest{
		StoreID:    c.store,
		Amount:     FormatAmount(amount),
		TerminalID: terminalID,
		OrderID:    orderID,
	}
	out, err := c.grpc.Invoke(ctx, kgrpc.MethodCancel, kgrpc.EncodeCancelRequest(md.Input(), req))
	if err != nil {
		return model.Pending, c.fail(kgrpc.MethodCancel, err)
	}
	st := kgrpc.DecodeCancelResponse(out)
	c.log().Debug("payment cancel requested", zap.String("order_id", orderID), zap.Stringer("status", st))
	return st, nil
}

// GetPaymentDetails returns the payment record for orderID as it currently
// stands on the service.
func (c *Client) GetPaymentDetails(ctx context.Context, orderID string) (*model.PaymentResponse, error) {
	md, _, err := c.grpc.Method(kgrpc.MethodPaymentDetails)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx, c.timeouts.Request)
	defer cancel()

	req := model.PaymentDetailsRequest{StoreID: c.store, OrderID: orderID}
	out, err := c.grpc.Invoke(ctx, kgrpc.MethodPaymentDetails, kgrpc.EncodePaymentDetailsRequest(md.Input(), req))
	if err != nil {
		return nil, c.fail(kgrpc.MethodPaymentDetails, err)
	}
	resp := kgrpc.DecodePayResponse(out)
	c.check(kgrpc.MethodPaymentDetails, &resp)
	return &resp, nil
}

// Healthcheck asks the endpoint's standard gRPC health service whether it is
// serving. It is bounded by the dial timeout.
func (c *Client) Healthcheck(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithDeadline(ctx, c.now().Add(c.timeouts.Dial))
	defer cancel()
	st, err := c.grpc.Healthcheck(ctx, "")
	if err != nil {
		return false, newCallError("Health", err)
	}
	return st == grpc_health_v1.HealthCheckResponse_SERVING, nil
}

func (c *Client) fail(method string, err error) error {
	ce := newCallError(method, err)
	c.log().Debug("terminal call failed", zap.String("method", method), zap.Stringer("code", ce.Code), zap.Error(err))
	return ce
}

// check logs responses whose fields disagree with their status. The service
// is authoritative, so the response is still returned.
func (c *Client) check(method string, r *model.PaymentResponse) {
	if err := r.Validate(); err != nil {
		c.log().Warn("unexpected payment response", zap.String("method", method), zap.String("order_id", r.OrderID), zap.Error(err))
	}
}
