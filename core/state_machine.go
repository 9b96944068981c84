package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type applyOutcome struct {
	Transaction Transaction
	Order       Order
	// Applied is true when this call moved the transaction into a terminal state.
	Applied bool
}

func (s *Service) DispatchTransaction(ctx context.Context, req DispatchRequest) (result DispatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id":       req.ClientID,
		"order_reference": req.OrderReference,
		"method":          req.Method,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "dispatch_transaction", err, fields)
	}()

	method, err := ParsePaymentMethod(req.Method)
	if err != nil {
		return DispatchResult{}, s.mapError(err)
	}
	client, err := s.activeClient(ctx, req.ClientID)
	if err != nil {
		return DispatchResult{}, err
	}
	if !client.PaymentMethods.Allows(method) {
		err = s.mapError(NewPolicyError(
			fmt.Sprintf("payment method %s is not enabled for this client", method),
			map[string]any{"client_id": client.ID, "method": string(method)},
		))
		return DispatchResult{}, err
	}
	order, err := s.GetOrder(ctx, client.ID, req.OrderReference)
	if err != nil {
		return DispatchResult{}, err
	}
	if err = checkDispatchAmount(order, req); err != nil {
		return DispatchResult{}, s.mapError(err)
	}
	switch {
	case order.Status == OrderStatusCancelled,
		order.Status == OrderStatusPaid && !s.config.AllowDispatchOnPaid:
		err = s.mapError(NewInvalidStateError(
			fmt.Sprintf("order %s is %s and cannot be charged", order.Reference, order.Status),
			map[string]any{"order_reference": order.Reference, "status": string(order.Status)},
		))
		return DispatchResult{}, err
	}
	adapter, ok := s.providers.Resolve(method)
	if !ok || adapter == nil {
		err = s.mapError(NewPolicyError(
			fmt.Sprintf("no provider adapter is configured for method %s", method),
			map[string]any{"method": string(method)},
		))
		return DispatchResult{}, err
	}

	now := s.now()
	txn, err := s.store.InsertTransaction(ctx, Transaction{
		ID:              s.references.NewID(),
		Reference:       s.references.TransactionReference(),
		OrderID:         order.ID,
		ClientID:        client.ID,
		Method:          method,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Status:          TransactionStatusProcessing,
		ProviderPayload: map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return DispatchResult{}, s.mapError(err)
	}
	fields["transaction_reference"] = txn.Reference
	if _, syncErr := s.syncOrder(ctx, order.ID); syncErr != nil {
		s.logError(ctx, "order projection refresh failed", map[string]any{
			"order_reference": order.Reference,
			"error":           syncErr.Error(),
		})
	}

	providerResult := s.authorize(ctx, adapter, txn, order, req.Credentials)
	fields["outcome"] = string(providerResult.Outcome)
	applied, err := s.applyResult(ctx, txn.ID, providerResult)
	if err != nil {
		return DispatchResult{Order: applied.Order, Transaction: applied.Transaction}, s.mapError(err)
	}
	fields["transaction_status"] = string(applied.Transaction.Status)
	fields["order_status"] = string(applied.Order.Status)
	return DispatchResult{Order: applied.Order, Transaction: applied.Transaction}, nil
}

// checkDispatchAmount requires the request to restate the order's amount and
// currency exactly.
func checkDispatchAmount(order Order, req DispatchRequest) error {
	if strings.TrimSpace(req.Currency) == "" {
		return NewValidationError("currency", "currency is required")
	}
	parsed, err := ParseCurrency(req.Currency)
	if err != nil {
		return err
	}
	if parsed != order.Currency {
		return NewValidationError(
			"currency",
			fmt.Sprintf("currency %s does not match order currency %s", parsed, order.Currency),
		)
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if !amount.Equal(order.Amount) {
		return NewValidationError(
			"amount",
			fmt.Sprintf("amount %s does not match order amount %s", amount.String(), order.Money().AmountString()),
		)
	}
	return nil
}

type authorizeResponse struct {
	result ProviderResult
	err    error
}

// authorize calls the adapter under provider_timeout. A response arriving
// after the deadline but within late_response_window is still routed through
// apply, which ignores it once the transaction is terminal.
func (s *Service) authorize(
	ctx context.Context,
	adapter ProviderAdapter,
	txn Transaction,
	order Order,
	credentials map[string]string,
) ProviderResult {
	callCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	req := AuthorizeRequest{
		TransactionReference: txn.Reference,
		OrderReference:       order.Reference,
		Method:               txn.Method,
		Amount:               txn.Amount,
		Currency:             txn.Currency,
		Customer:             order.Customer,
		Credentials:          copyStringMap(credentials),
	}
	done := make(chan authorizeResponse, 1)
	go func() {
		result, err := adapter.Authorize(callCtx, req)
		done <- authorizeResponse{result: result, err: err}
	}()

	select {
	case resp := <-done:
		if resp.err != nil {
			return transportFailure(NewProviderTransportError(resp.err, txn.Method), false)
		}
		return normalizeProviderResult(resp.result)
	case <-callCtx.Done():
		go s.applyLateResponse(context.WithoutCancel(ctx), txn, done)
		return transportFailure(NewProviderTransportError(callCtx.Err(), txn.Method), true)
	}
}

// applyLateResponse waits up to late_response_window for an adapter that
// ignored its deadline.
func (s *Service) applyLateResponse(ctx context.Context, txn Transaction, done <-chan authorizeResponse) {
	fields := map[string]any{
		"transaction_reference": txn.Reference,
		"method":                string(txn.Method),
	}
	wait := s.config.LateResponseWindow
	if wait <= 0 {
		wait = DefaultConfig().LateResponseWindow
	}
	window := time.NewTimer(wait)
	defer window.Stop()
	var resp authorizeResponse
	select {
	case resp = <-done:
	case <-window.C:
		fields["late_response_window"] = wait.String()
		s.recordCounter(ctx, "payments.provider.late_response_abandoned", 1, map[string]string{"method": string(txn.Method)})
		s.logInfo(ctx, "late provider response window elapsed", fields)
		return
	}
	if resp.err != nil {
		fields["error"] = resp.err.Error()
		s.logInfo(ctx, "late provider response discarded", fields)
		return
	}
	result := normalizeProviderResult(resp.result)
	fields["outcome"] = string(result.Outcome)
	fields["provider_reference"] = result.ProviderReference
	if _, err := s.applyResult(ctx, txn.ID, result); err != nil {
		fields["error"] = err.Error()
		if IsInvalidStateError(err) {
			s.recordAnomaly(ctx, "late_provider_response", fields)
			return
		}
		s.logError(ctx, "late provider response apply failed", fields)
	}
}

func transportFailure(err error, timedOut bool) ProviderResult {
	return ProviderResult{
		Outcome:       ProviderOutcomeFailure,
		DeclineReason: "payment provider unreachable",
		Detail: map[string]any{
			"failure_kind": FailureKindTransport,
			"timed_out":    timedOut,
			"error":        err.Error(),
		},
	}
}

func normalizeProviderResult(result ProviderResult) ProviderResult {
	out := result
	out.ProviderReference = strings.TrimSpace(result.ProviderReference)
	out.Detail = copyAnyMap(result.Detail)
	switch out.Outcome {
	case ProviderOutcomeSuccess, ProviderOutcomePending:
	case ProviderOutcomeFailure:
		if _, ok := out.Detail["failure_kind"]; !ok {
			out.Detail["failure_kind"] = FailureKindDecline
		}
	default:
		out.Outcome = ProviderOutcomeFailure
		out.DeclineReason = "provider returned no outcome"
		out.Detail["failure_kind"] = FailureKindDecline
	}
	return out
}

// ApplyResult applies a provider outcome to a transaction by reference.
func (s *Service) ApplyResult(ctx context.Context, transactionReference string, result ProviderResult) (txn Transaction, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"transaction_reference": transactionReference,
		"outcome":               string(result.Outcome),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "apply_result", err, fields)
	}()

	current, err := s.store.GetTransactionByReference(ctx, transactionReference)
	if err != nil {
		return Transaction{}, s.mapError(err)
	}
	out, err := s.applyResult(ctx, current.ID, normalizeProviderResult(result))
	fields["applied"] = out.Applied
	if err != nil {
		return out.Transaction, s.mapError(err)
	}
	return out.Transaction, nil
}

func (s *Service) applyResult(ctx context.Context, transactionID string, result ProviderResult) (applyOutcome, error) {
	var out applyOutcome
	err := s.withConflictRetry(ctx, func() error {
		next, applyErr := s.applyOnce(ctx, transactionID, result)
		out = next
		return applyErr
	})
	return out, err
}

func (s *Service) applyOnce(ctx context.Context, transactionID string, result ProviderResult) (applyOutcome, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return applyOutcome{}, err
	}
	if txn.Status.Terminal() {
		order, syncErr := s.syncOrder(ctx, txn.OrderID)
		if syncErr != nil {
			return applyOutcome{Transaction: txn}, syncErr
		}
		out := applyOutcome{Transaction: txn, Order: order}
		if outcomeMatches(txn.Status, result.Outcome) {
			return out, nil
		}
		return out, NewInvalidStateError(
			fmt.Sprintf("transaction %s is already %s; %s outcome ignored", txn.Reference, txn.Status, result.Outcome),
			map[string]any{
				"transaction_reference": txn.Reference,
				"status":                string(txn.Status),
				"outcome":               string(result.Outcome),
			},
		)
	}

	owner, taken, err := s.providerReferenceOwner(ctx, txn, result.ProviderReference)
	if err != nil {
		return applyOutcome{}, err
	}
	if taken {
		return s.rejectProviderReference(ctx, txn, result, owner)
	}

	switch result.Outcome {
	case ProviderOutcomePending:
		return s.applyPending(ctx, txn, result)
	case ProviderOutcomeSuccess:
		return s.applySuccess(ctx, txn, result)
	default:
		kind := FailureKindDecline
		if value, ok := result.Detail["failure_kind"].(string); ok && value != "" {
			kind = value
		}
		return s.applyFailure(ctx, txn, result, kind)
	}
}

func outcomeMatches(status TransactionStatus, outcome ProviderOutcome) bool {
	switch outcome {
	case ProviderOutcomeSuccess:
		return status.Captured()
	case ProviderOutcomeFailure:
		return status == TransactionStatusFailed
	default:
		return true
	}
}

func (s *Service) applyPending(ctx context.Context, txn Transaction, result ProviderResult) (applyOutcome, error) {
	if result.ProviderReference != "" && result.ProviderReference != txn.ProviderReference {
		next := cloneTransaction(txn)
		next.ProviderReference = result.ProviderReference
		next.ProviderPayload = mergeAnyMaps(txn.ProviderPayload, result.Detail)
		next.UpdatedAt = s.now()
		saved, err := s.store.PutTransaction(ctx, next, txn.Version)
		if err != nil {
			return applyOutcome{}, err
		}
		txn = saved
	}
	order, err := s.store.GetOrder(ctx, txn.OrderID)
	if err != nil {
		return applyOutcome{}, err
	}
	return applyOutcome{Transaction: txn, Order: order}, nil
}

func (s *Service) applySuccess(ctx context.Context, txn Transaction, result ProviderResult) (applyOutcome, error) {
	order, err := s.store.GetOrder(ctx, txn.OrderID)
	if err != nil {
		return applyOutcome{}, err
	}

	if claim := order.SettledTransactionID; claim != "" && claim != txn.ID {
		holder, holderErr := s.store.GetTransaction(ctx, claim)
		if holderErr != nil && !IsNotFoundError(holderErr) {
			return applyOutcome{}, holderErr
		}
		if holderErr == nil {
			switch {
			case holder.Status.Captured():
				s.recordAnomaly(ctx, FailureKindDuplicateCapture, map[string]any{
					"order_reference":       order.Reference,
					"transaction_reference": txn.Reference,
					"settled_by":            holder.Reference,
					"provider_reference":    result.ProviderReference,
				})
				duplicate := result
				duplicate.Outcome = ProviderOutcomeFailure
				duplicate.DeclineReason = "order already settled by transaction " + holder.Reference
				duplicate.Detail = mergeAnyMaps(result.Detail, map[string]any{
					"failure_kind": FailureKindDuplicateCapture,
					"settled_by":   holder.Reference,
				})
				return s.applyFailure(ctx, txn, duplicate, FailureKindDuplicateCapture)
			case holder.Status == TransactionStatusProcessing:
				// another transaction is committing its success
				return applyOutcome{}, NewConflictError("order", order.ID)
			}
		}
	}

	if order.SettledTransactionID != txn.ID {
		now := s.now()
		claimed := cloneOrder(order)
		claimed.SettledTransactionID = txn.ID
		claimed.Status = OrderStatusPaid
		if claimed.SettledAt == nil {
			claimed.SettledAt = &now
		}
		claimed.UpdatedAt = now
		order, err = s.store.PutOrder(ctx, claimed, order.Version)
		if err != nil {
			return applyOutcome{}, err
		}
	}

	now := s.now()
	next := cloneTransaction(txn)
	next.Status = TransactionStatusSuccess
	if result.ProviderReference != "" {
		next.ProviderReference = result.ProviderReference
	}
	next.ProviderPayload = mergeAnyMaps(txn.ProviderPayload, result.Detail)
	next.FailureReason = ""
	next.FailureKind = ""
	next.SettledAt = &now
	next.UpdatedAt = now
	saved, err := s.store.PutTransaction(ctx, next, txn.Version)
	if err != nil {
		if _, releaseErr := s.releaseClaim(ctx, order.ID, txn.ID); releaseErr != nil {
			s.logError(ctx, "order claim release failed", map[string]any{
				"order_reference":       order.Reference,
				"transaction_reference": txn.Reference,
				"error":                 releaseErr.Error(),
			})
		}
		if IsConflictError(err) {
			return applyOutcome{}, err
		}
		return s.rejectSettlement(ctx, txn, result, err)
	}

	s.notify(ctx, EventPaymentSuccess, order, saved)
	return applyOutcome{Transaction: saved, Order: order, Applied: true}, nil
}

// providerReferenceOwner reports the transaction already bound to reference
// when it is not txn.
func (s *Service) providerReferenceOwner(ctx context.Context, txn Transaction, reference string) (Transaction, bool, error) {
	if reference == "" || reference == txn.ProviderReference {
		return Transaction{}, false, nil
	}
	owner, err := s.store.FindTransactionByProviderReference(ctx, reference)
	if err != nil {
		if IsNotFoundError(err) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return owner, owner.ID != txn.ID, nil
}

func (s *Service) rejectProviderReference(ctx context.Context, txn Transaction, result ProviderResult, owner Transaction) (applyOutcome, error) {
	s.recordAnomaly(ctx, FailureKindReferenceConflict, map[string]any{
		"transaction_reference": txn.Reference,
		"provider_reference":    result.ProviderReference,
		"provider_outcome":      string(result.Outcome),
		"bound_to":              owner.Reference,
	})
	rejected := ProviderResult{
		Outcome: ProviderOutcomeFailure,
		DeclineReason: fmt.Sprintf(
			"provider reference %s is already bound to transaction %s", result.ProviderReference, owner.Reference,
		),
		Detail: mergeAnyMaps(result.Detail, map[string]any{
			"failure_kind":       FailureKindReferenceConflict,
			"provider_reference": result.ProviderReference,
			"provider_outcome":   string(result.Outcome),
			"bound_to":           owner.Reference,
		}),
	}
	return s.applyFailure(ctx, txn, rejected, FailureKindReferenceConflict)
}

// rejectSettlement fails a transaction whose success could not be saved. The
// provider reference stays in the payload only.
func (s *Service) rejectSettlement(ctx context.Context, txn Transaction, result ProviderResult, cause error) (applyOutcome, error) {
	s.recordAnomaly(ctx, FailureKindSettlementWrite, map[string]any{
		"transaction_reference": txn.Reference,
		"provider_reference":    result.ProviderReference,
		"error":                 cause.Error(),
	})
	rejected := ProviderResult{
		Outcome:       ProviderOutcomeFailure,
		DeclineReason: "provider success could not be recorded",
		Detail: mergeAnyMaps(result.Detail, map[string]any{
			"failure_kind":       FailureKindSettlementWrite,
			"provider_reference": result.ProviderReference,
			"error":              cause.Error(),
		}),
	}
	out, err := s.applyFailure(ctx, txn, rejected, FailureKindSettlementWrite)
	if err != nil {
		return out, cause
	}
	return out, nil
}

// releaseClaim drops a settlement claim held by transactionID and re-derives
// the order status without it.
func (s *Service) releaseClaim(ctx context.Context, orderID string, transactionID string) (Order, error) {
	var order Order
	err := s.withConflictRetry(ctx, func() error {
		current, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if current.SettledTransactionID != transactionID {
			order = current
			return nil
		}
		txns, err := s.store.ListTransactionsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		others := make([]Transaction, 0, len(txns))
		for _, txn := range txns {
			if txn.ID != transactionID {
				others = append(others, txn)
			}
		}
		next, _ := projectOrder(current, others, s.now())
		if next.SettledTransactionID == "" && next.Status != OrderStatusCancelled {
			next.Status = DeriveOrderStatus(txns)
		}
		next.UpdatedAt = s.now()
		saved, err := s.store.PutOrder(ctx, next, current.Version)
		if err != nil {
			return err
		}
		order = saved
		return nil
	})
	return order, err
}

func (s *Service) applyFailure(ctx context.Context, txn Transaction, result ProviderResult, kind string) (applyOutcome, error) {
	now := s.now()
	next := cloneTransaction(txn)
	next.Status = TransactionStatusFailed
	if result.ProviderReference != "" {
		next.ProviderReference = result.ProviderReference
	}
	next.ProviderPayload = mergeAnyMaps(txn.ProviderPayload, result.Detail)
	next.FailureReason = strings.TrimSpace(result.DeclineReason)
	if next.FailureReason == "" {
		next.FailureReason = "payment declined by provider"
	}
	next.FailureKind = kind
	next.UpdatedAt = now
	saved, err := s.store.PutTransaction(ctx, next, txn.Version)
	if err != nil {
		return applyOutcome{}, err
	}

	order, err := s.syncOrder(ctx, saved.OrderID)
	if err != nil {
		s.logError(ctx, "order projection refresh failed", map[string]any{
			"transaction_reference": saved.Reference,
			"error":                 err.Error(),
		})
		if order, err = s.store.GetOrder(ctx, saved.OrderID); err != nil {
			return applyOutcome{Transaction: saved, Applied: true}, nil
		}
	}
	if kind != FailureKindDuplicateCapture && order.Status != OrderStatusPaid {
		s.notify(ctx, EventPaymentFailed, order, saved)
	}
	return applyOutcome{Transaction: saved, Order: order, Applied: true}, nil
}

// syncOrder re-derives the order projection from its transactions and
// persists it when it changed.
func (s *Service) syncOrder(ctx context.Context, orderID string) (Order, error) {
	var order Order
	err := s.withConflictRetry(ctx, func() error {
		current, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		txns, err := s.store.ListTransactionsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		next, changed := projectOrder(current, txns, s.now())
		if !changed {
			order = current
			return nil
		}
		saved, err := s.store.PutOrder(ctx, next, current.Version)
		if err != nil {
			return err
		}
		order = saved
		return nil
	})
	return order, err
}

// ReconcileByProviderReference applies an asynchronous provider outcome.
// Unknown references are logged and ignored; replays are no-ops.
func (s *Service) ReconcileByProviderReference(ctx context.Context, req ReconcileRequest) (result ReconcileResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_reference": req.ProviderReference,
		"outcome":            string(req.Outcome),
		"source":             req.Source,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "reconcile", err, fields)
	}()

	reference := strings.TrimSpace(req.ProviderReference)
	if reference == "" {
		return ReconcileResult{}, s.mapError(NewValidationError("provider_reference", "provider reference is required"))
	}
	outcome, err := ParseProviderOutcome(string(req.Outcome))
	if err != nil {
		return ReconcileResult{}, s.mapError(err)
	}

	txn, err := s.store.FindTransactionByProviderReference(ctx, reference)
	if err != nil {
		if IsNotFoundError(err) {
			fields["matched"] = false
			s.recordCounter(ctx, "payments.reconcile.unmatched", 1, map[string]string{"source": req.Source})
			s.logInfo(ctx, "reconcile ignored unknown provider reference", fields)
			return ReconcileResult{Matched: false}, nil
		}
		return ReconcileResult{}, s.mapError(err)
	}
	fields["transaction_reference"] = txn.Reference
	fields["matched"] = true

	detail := copyAnyMap(req.Detail)
	if source := strings.TrimSpace(req.Source); source != "" {
		detail["reconciled_by"] = source
	}
	out, err := s.applyResult(ctx, txn.ID, normalizeProviderResult(ProviderResult{
		Outcome:           outcome,
		ProviderReference: reference,
		DeclineReason:     req.FailureReason,
		Detail:            detail,
	}))
	result = ReconcileResult{
		Matched:     true,
		Applied:     out.Applied,
		Order:       out.Order,
		Transaction: out.Transaction,
	}
	fields["applied"] = out.Applied
	if err != nil {
		if IsInvalidStateError(err) {
			s.recordAnomaly(ctx, "conflicting_outcome", fields)
		}
		return result, s.mapError(err)
	}
	return result, nil
}

func (s *Service) RefundTransaction(ctx context.Context, req RefundRequest) (txn Transaction, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id":             req.ClientID,
		"transaction_reference": req.TransactionReference,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refund_transaction", err, fields)
	}()

	err = s.withConflictRetry(ctx, func() error {
		current, getErr := s.GetTransaction(ctx, req.ClientID, req.TransactionReference)
		if getErr != nil {
			return getErr
		}
		if current.Status != TransactionStatusSuccess {
			return NewInvalidStateError(
				fmt.Sprintf("transaction %s is %s; only successful transactions can be refunded", current.Reference, current.Status),
				map[string]any{"transaction_reference": current.Reference, "status": string(current.Status)},
			)
		}
		now := s.now()
		next := cloneTransaction(current)
		next.Status = TransactionStatusRefunded
		next.RefundedAt = &now
		next.UpdatedAt = now
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			next.ProviderPayload = mergeAnyMaps(next.ProviderPayload, map[string]any{"refund_reason": reason})
		}
		saved, putErr := s.store.PutTransaction(ctx, next, current.Version)
		if putErr != nil {
			return putErr
		}
		txn = saved
		return nil
	})
	if err != nil {
		return Transaction{}, s.mapError(err)
	}

	order, syncErr := s.syncOrder(ctx, txn.OrderID)
	if syncErr != nil {
		s.logError(ctx, "order projection refresh failed", map[string]any{
			"transaction_reference": txn.Reference,
			"error":                 syncErr.Error(),
		})
		order, syncErr = s.store.GetOrder(ctx, txn.OrderID)
		if syncErr != nil {
			return txn, nil
		}
	}
	s.notify(ctx, EventPaymentRefunded, order, txn)
	return txn, nil
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
