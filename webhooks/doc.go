// Package webhooks receives asynchronous payment provider callbacks.
//
// Each provider is described by a ProviderWebhookTemplate: how the callback is
// authenticated, how a delivery is identified and how the body is reduced to a
// Notification. A Processor claims every delivery in a DeliveryLedger before
// handing it to the reconcile handler:
// pending/retry_ready -> processing -> processed|dead.
// Redelivered callbacks are acknowledged without touching the ledger store
// again, and failed ones stay claimable once their retry delay elapses.
package webhooks
