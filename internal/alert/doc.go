// Package alert implements the daily inventory-alert pipeline.
//
// The flow per shop is: resolve effective settings, classify the current
// inventory snapshot into expired / near-expiry / low-stock, compose one
// digest message, and dispatch it to the shop's subscribers through the
// messaging gateway.
//
// Delivery semantics
//
// Everything is best-effort and sequential. There are no retries at any
// level; a failed delivery leaves the subscriber untouched, and an endpoint
// the gateway reports as permanently unreachable gets its subscriber record
// deleted. A problem inside one shop never aborts the run.
package alert
