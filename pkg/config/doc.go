// Package config provides settings loading for the Kody terminal client.
//
// # Settings file
//
// The client needs three values issued when an integration is set up:
//
//	{
//		"Address": "https://grpc-staging.kodypay.com",
//		"StoreId": "5fa2dd05-1805-494d-b843-fa1a7c34cf8a",
//		"ApiKey":  "YOUR_API_KEY"
//	}
//
// LoadSettings looks for the file (appsettings.json by default) in the
// working directory and then in every parent directory, so samples can be run
// from any subdirectory of a checkout:
//
//	settings, err := config.LoadSettings("")
//	if errors.Is(err, config.ErrSettingsNotFound) {
//		log.Fatal(err)
//	}
//
// # Environment
//
// KODY_ADDRESS, KODY_STORE_ID and KODY_API_KEY override the values from the
// file when set.
//
// # Timeouts
//
// Timeouts holds the per-call deadlines. Zero values are replaced with
// defaults via WithDefaults(): 3 minutes for payment calls, 30 seconds for
// listing terminals and 5 seconds for dialing.
package config
