// Package providers holds the payment provider adapters and the helpers they
// share. Each subpackage adapts one payment method; GatewayAdapter forwards
// any method to a remote authorization gateway over a transport.
package providers
