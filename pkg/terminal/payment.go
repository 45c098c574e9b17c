package terminal

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	kgrpc "github.com/kodypay/kody-clientsdk-go/pkg/grpc"
	"github.com/kodypay/kody-clientsdk-go/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// streamCloseGrace is how long SendPayment waits for the service to end the
// Pay stream after a final reply.
const streamCloseGrace = 2 * time.Second

type payOptions struct {
	showTips  *bool
	notifiers []func(orderID string)
}

// PayOption customizes a single payment.
type PayOption func(*payOptions)

// WithShowTips asks the terminal to offer (or not) a tip screen. Without it
// the terminal uses its own default.
func WithShowTips(show bool) PayOption {
	return func(o *payOptions) { o.showTips = &show }
}

// WithOrderIDNotifier registers fn to receive the order ID as soon as the
// service assigns it, before the payment completes. fn is called at most once,
// with a non-empty ID, on the goroutine reading the payment stream; replies
// are not read while it runs.
func WithOrderIDNotifier(fn func(orderID string)) PayOption {
	return func(o *payOptions) {
		if fn != nil {
			o.notifiers = append(o.notifiers, fn)
		}
	}
}

// SendPayment asks terminalID to collect amount and blocks until the payment
// reaches Success, Cancelled or Failed, or the service closes the stream.
//
// The returned response is the last one received. If the stream ends while
// the payment is still Pending, that Pending response is returned without an
// error and the caller decides what to do (typically CancelPayment). Transport
// failures, including running past the request deadline, are returned as
// *CallError.
func (c *Client) SendPayment(ctx context.Context, amount decimal.Decimal, terminalID string, opts ...PayOption) (*model.PaymentResponse, error) {
	var po payOptions
	for _, opt := range opts {
		opt(&po)
	}

	md, _, err := c.grpc.Method(kgrpc.MethodPay)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx, c.timeouts.Request)
	defer cancel()

	req := model.PaymentRequest{
		StoreID:    c.store,
		Amount:     FormatAmount(amount),
		TerminalID: terminalID,
		ShowTips:   po.showTips,
	}
	c.log().Debug("sending payment", zap.String("terminal_id", terminalID), zap.String("amount", req.Amount))

	stream, err := c.grpc.OpenServerStream(ctx, kgrpc.MethodPay, kgrpc.EncodePayRequest(md.Input(), req))
	if err != nil {
		return nil, c.fail(kgrpc.MethodPay, err)
	}
	defer stream.Close(streamCloseGrace)

	last := model.PaymentResponse{Status: model.Pending}
	notified := false
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, c.fail(kgrpc.MethodPay, err)
		}

		last = kgrpc.DecodePayResponse(msg)
		c.check(kgrpc.MethodPay, &last)
		if last.Status.IsTerminal() {
			break
		}
		if !notified && last.OrderID != "" {
			notified = true
			c.log().Debug("payment order assigned", zap.String("order_id", last.OrderID))
			for _, fn := range po.notifiers {
				fn(last.OrderID)
			}
		}
	}

	if !last.Status.IsTerminal() {
		c.log().Warn("payment stream ended while pending", zap.String("terminal_id", terminalID), zap.String("order_id", last.OrderID))
	}
	return &last, nil
}

// PendingPayment is a payment running in the background. The order ID and the
// final response become available independently.
type PendingPayment struct {
	orderReady chan struct{}
	orderID    string

	done chan struct{}
	resp *model.PaymentResponse
	err  error
}

// StartPayment runs SendPayment in a new goroutine and returns immediately.
// Cancelling ctx abandons the payment stream.
func (c *Client) StartPayment(ctx context.Context, amount decimal.Decimal, terminalID string, opts ...PayOption) *PendingPayment {
	p := &PendingPayment{
		orderReady: make(chan struct{}),
		done:       make(chan struct{}),
	}
	var once sync.Once
	resolve := func(id string) {
		once.Do(func() {
			p.orderID = id
			close(p.orderReady)
		})
	}

	opts = append(opts[:len(opts):len(opts)], WithOrderIDNotifier(resolve))
	go func() {
		resp, err := c.SendPayment(ctx, amount, terminalID, opts...)
		p.resp, p.err = resp, err
		close(p.done)
		if resp != nil {
			resolve(resp.OrderID)
		} else {
			resolve("")
		}
	}()
	return p
}

// OrderID waits for the order ID. If the payment finishes first, the ID of the
// final response is used; a payment that failed in transport returns its error
// and one that never got an ID returns ErrNoOrderID.
func (p *PendingPayment) OrderID(ctx context.Context) (string, error) {
	select {
	case <-p.orderReady:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if p.orderID != "" {
		return p.orderID, nil
	}
	<-p.done
	if p.err != nil {
		return "", p.err
	}
	return "", ErrNoOrderID
}

// Done is closed once the payment has finished.
func (p *PendingPayment) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the payment finishes and returns what SendPayment
// returned.
func (p *PendingPayment) Wait(ctx context.Context) (*model.PaymentResponse, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
