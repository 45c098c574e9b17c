// Package model defines the payment terminal data types used by the client.
//
// # Terminals
//
// Terminal is a device assigned to a store:
//
//	type Terminal struct {
//		TerminalID string // device identifier
//		Online     bool   // whether the device is reachable right now
//	}
//
// # Payments
//
// A payment is started with a PaymentRequest and observed through a sequence
// of PaymentResponse values. The sequence starts in Pending and ends in exactly
// one of Success, Cancelled or Failed:
//
//	[Initiated] --first reply--> [Pending] --status changes--> [Success|Cancelled|Failed]
//
// The order ID is assigned by the service on an early Pending reply and stays
// the same for the life of the payment. It is the key used by CancelRequest
// and PaymentDetailsRequest.
//
// # Response invariants
//
// PaymentResponse.Validate enforces the field/status relationship:
//
//   - Success carries DatePaid and no FailureReason
//   - Cancelled and Failed carry a FailureReason and no DatePaid
//   - Pending carries neither
//
// Cancelled and Failed are ordinary outcomes, not errors.
package model
