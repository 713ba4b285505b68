// Package batch fetches every identifier of a customer in parallel.
//
// Inputs are validated first; invalid ones become Invalid outcomes and never
// reach the API client. Valid identifiers are queued, tagged with their input
// position, and drained by a bounded worker pool. Identical identifiers are
// fetched once and share the outcome.
//
// Example usage:
//
//	fetcher := batch.NewFetcher(apiClient, batch.DefaultConfig())
//	result, err := fetcher.Run(ctx, customer, creds)
//
// A fatal error from the client (authentication failure) cancels queued and
// in-flight work; outcomes already collected for the customer are discarded
// and Run returns the error with a zero batch.
package batch
