package grpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kodypay/kody-clientsdk-go/pkg/model"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// The functions below translate between model values and dynamic pay.proto
// messages. Encode* builds a new message of the given descriptor; Decode*
// reads any message with the matching shape. Client code encodes requests and
// decodes responses; test servers do the reverse.

// EncodeTerminalsRequest builds a TerminalsRequest.
func EncodeTerminalsRequest(md protoreflect.MessageDescriptor, storeID string) *dynamicpb.Message {
	m := dynamicpb.NewMessage(md)
	setString(m, "store_id", storeID)
	return m
}

// DecodeTerminalsRequest returns the store ID of a TerminalsRequest.
func DecodeTerminalsRequest(m protoreflect.Message) string {
	return getString(m, "store_id")
}

// EncodeTerminalsResponse builds a TerminalsResponse listing terminals in order.
func EncodeTerminalsResponse(md protoreflect.MessageDescriptor, terminals []model.Terminal) *dynamicpb.Message {
	m := dynamicpb.NewMessage(md)
	list := m.Mutable(field(m, "terminals")).List()
	for _, t := range terminals {
		e := list.NewElement().Message()
		setString(e, "terminal_id", t.TerminalID)
		e.Set(field(e, "online"), protoreflect.ValueOfBool(t.Online))
		list.Append(protoreflect.ValueOfMessage(e))
	}
	return m
}

// DecodeTerminalsResponse returns the terminals of a TerminalsResponse in wire order.
func DecodeTerminalsResponse(m protoreflect.Message) []model.Terminal {
	list := m.Get(field(m, "terminals")).List()
	out := make([]model.Terminal, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		e := list.Get(i).Message()
		out = append(out, model.Terminal{
			TerminalID: getString(e, "terminal_id"),
			Online:     e.Get(field(e, "online")).Bool(),
		})
	}
	return out
}

// EncodePayRequest builds a PayRequest. show_tips is only present when
// r.ShowTips is set.
func EncodePayRequest(md protoreflect.MessageDescriptor, r model.PaymentRequest) *dynamicpb.Message {
	m := dynamicpb.NewMessage(md)
	setString(m, "store_id", r.StoreID)
	setString(m, "amount", r.Amount)
	setString(m, "terminal_id", r.TerminalID)
	if r.ShowTips != nil {
		m.Set(field(m, "show_tips"), protoreflect.ValueOfBool(*r.ShowTips))
	}
	return m
}

// DecodePayRequest reads a PayRequest.
func DecodePayRequest(m protoreflect.Message) model.PaymentRequest {
	r := model.PaymentRequest{
		StoreID:    getString(m, "store_id"),
		Amount:     getString(m, "amount"),
		TerminalID: getString(m, "terminal_id"),
	}
	if fd := field(m, "show_tips"); m.Has(fd) {
		v := m.Get(fd).Bool()
		r.ShowTips = &v
	}
	return r
}

// EncodePayResponse builds a PayResponse.
func EncodePayResponse(md protoreflect.MessageDescriptor, r model.PaymentResponse) *dynamicpb.Message {
	m := dynamicpb.NewMessage(md)
	setStatus(m, r.Status)
	setString(m, "order_id", r.OrderID)
	setString(m, "failure_reason", r.FailureReason)
	setString(m, "ext_payment_ref", r.ExtPaymentRef)
	if len(r.ReceiptJSON) > 0 {
		setString(m, "receipt_json", string(r.ReceiptJSON))
	}
	if !r.DateCreated.IsZero() {
		setTime(m, "date_created", r.DateCreated)
	}
	if r.DatePaid != nil {
		setTime(m, "date_paid", *r.DatePaid)
	}
	return m
}

// DecodePayResponse reads a PayResponse.
func DecodePayResponse(m protoreflect.Message) model.PaymentResponse {
	r := model.PaymentResponse{
		Status:        getStatus(m),
		OrderID:       getString(m, "order_id"),
		FailureReason: getString(m, "failure_reason"),
		ExtPaymentRef: getString(m, "ext_payment_ref"),
	}
	if receipt := getString(m, "receipt_json"); receipt != "" {
		r.ReceiptJSON = json.RawMessage(receipt)
	}
	if t, ok := getTime(m, "date_created"); ok {
		r.DateCreated = t
	}
	if t, ok := getTime(m, "date_paid"); ok {
		r.DatePaid = &t
	}
	return r
}

// EncodeCancelRequest builds a CancelRequest.
func EncodeCancelRequest(md protoreflect.MessageDescriptor, r model.CancelRequest) *dynamicpb.Message {
	m := dynamicpb.NewMessage(md)
	setString(m, "store_id", r.StoreID)
	setString(m, "amount", r.Amount)
	setString(m, "terminal_id", r.TerminalID)
	setString(m, "order_id", r.OrderID)
	return m
}

// DecodeCancelRequest reads a CancelRequest.
func DecodeCancelRequest(m protoreflect.Message) model.CancelRequest {
	return model.CancelRequest{
		StoreID:    getString(m, "store_id"),
		Amount:     getString(m, "amount"),
		TerminalID: getString(m, "terminal_id"),
		OrderID:    getString(m, "order_id"),
	}
}

// EncodeCancelResponse builds a CancelResponse.
func EncodeCancelResponse(md protoreflect.MessageDescriptor, status model.PaymentStatus) *dynamicpb.Message {
	m := dynamicpb.NewMessage(md)
	setStatus(m, status)
	return m
}

// DecodeCancelResponse returns the status of a CancelResponse.
func DecodeCancelResponse(m protoreflect.Message) model.PaymentStatus {
	return getStatus(m)
}

// EncodePaymentDetailsRequest builds a PaymentDetailsRequest.
func EncodePaymentDetailsRequest(md protoreflect.MessageDescriptor, r model.PaymentDetailsRequest) *dynamicpb.Message {
	m := dynamicpb.NewMessage(md)
	setString(m, "store_id", r.StoreID)
	setString(m, "order_id", r.OrderID)
	return m
}

// DecodePaymentDetailsRequest reads a PaymentDetailsRequest.
func DecodePaymentDetailsRequest(m protoreflect.Message) model.PaymentDetailsRequest {
	return model.PaymentDetailsRequest{
		StoreID: getString(m, "store_id"),
		OrderID: getString(m, "order_id"),
	}
}

// field resolves a field by name. pay.proto is embedded, so a missing field is
// a programming error.
func field(m protoreflect.Message, name string) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("grpc: field %q not found in %s", name, m.Descriptor().FullName()))
	}
	return fd
}

// setString leaves the field unset for empty values so optional fields keep
// their absence.
func setString(m protoreflect.Message, name, v string) {
	if v == "" {
		return
	}
	m.Set(field(m, name), protoreflect.ValueOfString(v))
}

func getString(m protoreflect.Message, name string) string {
	return m.Get(field(m, name)).String()
}

func setStatus(m protoreflect.Message, s model.PaymentStatus) {
	m.Set(field(m, "status"), protoreflect.ValueOfEnum(protoreflect.EnumNumber(s)))
}

func getStatus(m protoreflect.Message) model.PaymentStatus {
	return model.PaymentStatus(m.Get(field(m, "status")).Enum())
}

// setTime stores t as a google.protobuf.Timestamp.
func setTime(m protoreflect.Message, name string, t time.Time) {
	fd := field(m, name)
	ts := m.NewField(fd).Message()
	ts.Set(field(ts, "seconds"), protoreflect.ValueOfInt64(t.Unix()))
	ts.Set(field(ts, "nanos"), protoreflect.ValueOfInt32(int32(t.Nanosecond())))
	m.Set(fd, protoreflect.ValueOfMessage(ts))
}

func getTime(m protoreflect.Message, name string) (time.Time, bool) {
	fd := field(m, name)
	if !m.Has(fd) {
		return time.Time{}, false
	}
	ts := m.Get(fd).Message()
	sec := ts.Get(field(ts, "seconds")).Int()
	nanos := ts.Get(field(ts, "nanos")).Int()
	return time.Unix(sec, nanos).UTC(), true
}
