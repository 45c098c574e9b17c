// Package terminal is the client for the Kody payment terminal service. It
// wraps one shared gRPC connection and exposes the service operations:
// listing a store's terminals, sending a payment to a terminal, cancelling it
// and fetching its details.
//
// # Usage
//
//	settings, err := config.LoadSettings("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := terminal.NewFromSettings(settings)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.SendPayment(ctx, decimal.RequireFromString("1.00"), "T1",
//		terminal.WithOrderIDNotifier(func(id string) { fmt.Println("order", id) }))
//
// # Deadlines
//
// Every call sends the X-API-Key header. SendPayment, CancelPayment and
// GetPaymentDetails run under an absolute deadline of clock()+Timeouts.Request
// (3 minutes by default); ListTerminals uses Timeouts.Terminals.
//
// # Results and errors
//
// Cancelled and Failed payments are returned as responses, not errors.
// Transport failures, a passed deadline included, are returned as *CallError
// carrying the gRPC status code.
package terminal
