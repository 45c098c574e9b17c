package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPaymentResponse reports a PaymentResponse whose optional fields do
// not match its status.
var ErrInvalidPaymentResponse = errors.New("invalid payment response")

// Terminal is a payment device registered to a store.
type Terminal struct {
	TerminalID string `json:"terminal_id"`
	Online     bool   `json:"online"`
}

// PaymentStatus is the lifecycle state of a single payment. The numeric values
// match the PaymentStatus enum of the terminal service.
type PaymentStatus int32

const (
	Pending   PaymentStatus = 0
	Success   PaymentStatus = 1
	Failed    PaymentStatus = 2
	Cancelled PaymentStatus = 3
)

var statusNames = map[PaymentStatus]string{
	Pending:   "PENDING",
	Success:   "SUCCESS",
	Failed:    "FAILED",
	Cancelled: "CANCELLED",
}

// String returns the wire name of the status (e.g. "SUCCESS").
func (s PaymentStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("PaymentStatus(%d)", int32(s))
}

// IsTerminal reports whether no further replies follow a response with this
// status.
func (s PaymentStatus) IsTerminal() bool {
	return s == Success || s == Failed || s == Cancelled
}

// ParsePaymentStatus accepts the wire enum names, case-insensitively.
func ParsePaymentStatus(name string) (PaymentStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for s, n := range statusNames {
		if n == upper {
			return s, nil
		}
	}
	return Pending, fmt.Errorf("unknown payment status %q", name)
}

// MarshalJSON encodes the status by name.
func (s PaymentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *PaymentStatus) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParsePaymentStatus(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// PaymentRequest asks a terminal to collect Amount. Amount is already
// formatted with two fraction digits. ShowTips is nil when the caller did not
// express a preference.
type PaymentRequest struct {
	StoreID    string `json:"store_id"`
	Amount     string `json:"amount"`
	TerminalID string `json:"terminal_id"`
	ShowTips   *bool  `json:"show_tips,omitempty"`
}

// PaymentResponse is the state of a payment as reported by the service.
//
// DatePaid is set only for Success; FailureReason only for Cancelled and
// Failed. ReceiptJSON is passed through untouched.
type PaymentResponse struct {
	Status        PaymentStatus   `json:"status"`
	OrderID       string          `json:"order_id"`
	DateCreated   time.Time       `json:"date_created"`
	DatePaid      *time.Time      `json:"date_paid,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ExtPaymentRef string          `json:"ext_payment_ref,omitempty"`
	ReceiptJSON   json.RawMessage `json:"receipt_json,omitempty"`
}

// Validate checks that the optional fields agree with Status.
func (r *PaymentResponse) Validate() error {
	switch r.Status {
	case Success:
		if r.DatePaid == nil {
			return fmt.Errorf("%w: %s without paid date", ErrInvalidPaymentResponse, r.Status)
		}
		if r.FailureReason != "" {
			return fmt.Errorf("%w: %s with failure reason", ErrInvalidPaymentResponse, r.Status)
		}
	case Cancelled, Failed:
		if r.FailureReason == "" {
			return fmt.Errorf("%w: %s without failure reason", ErrInvalidPaymentResponse, r.Status)
		}
		if r.DatePaid != nil {
			return fmt.Errorf("%w: %s with paid date", ErrInvalidPaymentResponse, r.Status)
		}
	case Pending:
		if r.DatePaid != nil || r.FailureReason != "" {
			return fmt.Errorf("%w: %s with completion fields", ErrInvalidPaymentResponse, r.Status)
		}
	default:
		return fmt.Errorf("%w: unknown status %d", ErrInvalidPaymentResponse, int32(r.Status))
	}
	return nil
}

// String renders the response on one line for console output.
func (r *PaymentResponse) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s order_id=%q", r.Status, r.OrderID)
	if !r.DateCreated.IsZero() {
		fmt.Fprintf(&b, " date_created=%s", r.DateCreated.UTC().Format(time.RFC3339))
	}
	if r.DatePaid != nil {
		fmt.Fprintf(&b, " date_paid=%s", r.DatePaid.UTC().Format(time.RFC3339))
	}
	if r.FailureReason != "" {
		fmt.Fprintf(&b, " failure_reason=%q", r.FailureReason)
	}
	if r.ExtPaymentRef != "" {
		fmt.Fprintf(&b, " ext_payment_ref=%q", r.ExtPaymentRef)
	}
	if len(r.ReceiptJSON) > 0 {
		fmt.Fprintf(&b, " receipt=%s", r.ReceiptJSON)
	}
	return b.String()
}

// CancelRequest cancels the payment identified by OrderID on TerminalID.
type CancelRequest struct {
	StoreID    string `json:"store_id"`
	Amount     string `json:"amount"`
	TerminalID string `json:"terminal_id"`
	OrderID    string `json:"order_id"`
}

// PaymentDetailsRequest fetches the current record of a payment.
type PaymentDetailsRequest struct {
	StoreID string `json:"store_id"`
	OrderID string `json:"order_id"`
}
