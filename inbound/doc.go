// Package inbound routes provider callbacks to the webhook processor
// registered for each provider and exposes them over HTTP.
//
// Deduplication and retry bookkeeping live in the processor's delivery
// ledger; the router only resolves the provider and shapes the response.
package inbound
