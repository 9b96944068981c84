// Package core contains the payment lifecycle domain: orders, transactions,
// the transaction state machine and the contracts it consumes (ledger store,
// provider adapters, notification delivery). Adapters for SQL storage, queues
// and HTTP live in sibling packages and depend on core, never the reverse.
package core
