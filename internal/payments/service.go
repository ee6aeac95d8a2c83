package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/internal/orders"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	"github.com/forkline-app/forkline-backend/pkg/outbox"
	"github.com/forkline-app/forkline-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderStateMachine is the slice of the orders service the orchestrator
// drives: confirming paid orders, marking refunds, and finishing deferred
// cancellations once the payment resolves.
type orderStateMachine interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ConfirmTx(ctx context.Context, tx *gorm.DB, orderID, paymentID uuid.UUID, actor *outbox.ActorRef) error
	MarkRefundedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor *outbox.ActorRef) error
	SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error
	Cancel(ctx context.Context, input orders.CancelInput) (*models.Order, error)
}

// shipmentBooker books the courier shipment once a delivery order confirms.
// Booking failures never block the order; the delivery service flags the
// order for manual arrangement instead.
type shipmentBooker interface {
	CreateShipmentForOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
}

// Service orchestrates payment attempts across the configured strategies and
// reconciles asynchronous gateway confirmations idempotently.
type Service interface {
	InitiatePayment(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	FundWallet(ctx context.Context, input FundWalletInput) (*InitiateResult, error)
	Confirm(ctx context.Context, input ConfirmInput) (*models.Payment, error)
	Refund(ctx context.Context, input RefundInput) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	CancelOrder(ctx context.Context, input CancelOrderInput) (*models.Order, error)
	ExpireStaleAttempts(ctx context.Context, limit int) (int, error)
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	orders     orderStateMachine
	ledger     walletLedger
	shipments  shipmentBooker
	strategies Strategies
	logg       *logger.Logger

	fundingMin    decimal.Decimal
	fundingMax    decimal.Decimal
	pendingMaxAge time.Duration
}

// NewService wires the payment orchestrator. Wallet funding limits come from
// payment configuration and are parsed once here.
func NewService(
	repo Repository,
	tx txRunner,
	emitter outboxPublisher,
	orderSM orderStateMachine,
	ledger walletLedger,
	shipments shipmentBooker,
	strategies Strategies,
	cfg config.PaymentsConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher is required")
	}
	if orderSM == nil {
		return nil, fmt.Errorf("order state machine is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger is required")
	}
	if shipments == nil {
		return nil, fmt.Errorf("shipment booker is required")
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("at least one payment strategy is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	fundingMin, err := decimal.NewFromString(cfg.WalletFundingMin)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet funding minimum %q: %w", cfg.WalletFundingMin, err)
	}
	fundingMax, err := decimal.NewFromString(cfg.WalletFundingMax)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet funding maximum %q: %w", cfg.WalletFundingMax, err)
	}
	return &service{
		repo:          repo,
		tx:            tx,
		outbox:        emitter,
		orders:        orderSM,
		ledger:        ledger,
		shipments:     shipments,
		strategies:    strategies,
		logg:          logg,
		fundingMin:    fundingMin,
		fundingMax:    fundingMax,
		pendingMaxAge: cfg.PendingPaymentMaxAge,
	}, nil
}

func newPaymentReference() string {
	return "pay_" + uuid.NewString()
}

// InitiatePayment starts one payment attempt against an order. An order may
// carry at most one open attempt at a time; a failed attempt is never retried
// in place, the caller starts a fresh one.
func (s *service) InitiatePayment(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	strategy, err := s.strategies.byMethod(input.Method)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusNew {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]string{"status": order.Status.String()})
	}
	if order.CustomerID != input.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}

	open, err := s.repo.FindNonTerminalByOrder(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to check open payments")
	}
	if open != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a payment attempt is already in progress").
			WithDetails(map[string]string{"payment_id": open.ID.String()})
	}

	orderID := order.ID
	reference := newPaymentReference()
	payment := &models.Payment{
		OrderID:           &orderID,
		CustomerID:        order.CustomerID,
		Method:            input.Method,
		Provider:          strategy.Provider(),
		Status:            enums.PaymentStatusPending,
		Amount:            order.TotalAmount,
		Currency:          order.Currency,
		ExternalReference: &reference,
	}

	if input.Method == enums.PaymentMethodWallet {
		return s.settleWalletPayment(ctx, strategy, payment, input.Actor)
	}
	return s.startGatewayPayment(ctx, strategy, payment, InitiateMeta{
		CustomerEmail: input.CustomerEmail,
		Card:          input.Card,
	}, input.Actor)
}

// settleWalletPayment runs the whole wallet flow in one transaction: the
// funds check happens first, then the payment row, the ledger debit and the
// order confirmation commit together.
func (s *service) settleWalletPayment(ctx context.Context, strategy Strategy, payment *models.Payment, actor *outbox.ActorRef) (*InitiateResult, error) {
	// Balance pre-check; insufficient funds fail before any row is written.
	if _, err := strategy.Initiate(ctx, payment, InitiateMeta{}); err != nil {
		return nil, err
	}

	w, err := s.ledger.GetByUserID(ctx, payment.CustomerID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, payment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create payment")
		}
		payment = created

		description := fmt.Sprintf("payment for order %s", payment.OrderID)
		result, err := s.ledger.DebitTx(ctx, tx, wallet.MovementInput{
			WalletID:    w.ID,
			Amount:      payment.Amount,
			Reference:   *payment.ExternalReference,
			Description: &description,
			Actor:       actor,
		})
		if err != nil {
			return err
		}
		if !result.Applied {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment reference already debited")
		}

		now := time.Now()
		ok, err := repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusCompleted, map[string]any{
			"completed_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to complete payment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment status changed concurrently")
		}
		payment.Status = enums.PaymentStatusCompleted
		payment.CompletedAt = &now

		if err := s.orders.ConfirmTx(ctx, tx, *payment.OrderID, payment.ID, actor); err != nil {
			return err
		}
		return s.emitCompleted(ctx, tx, payment, actor)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   payment.OrderID.String(),
		"method":     payment.Method.String(),
		"amount":     payment.Amount.String(),
	})
	s.logg.Info(logCtx, "wallet payment settled")

	s.bookShipment(ctx, *payment.OrderID)
	return &InitiateResult{Payment: payment}, nil
}

// startGatewayPayment creates the pending row, calls the provider, and
// applies whatever outcome came back. Transient provider failures leave the
// row pending and surface as retryable errors.
func (s *service) startGatewayPayment(ctx context.Context, strategy Strategy, payment *models.Payment, meta InitiateMeta, actor *outbox.ActorRef) (*InitiateResult, error) {
	created, err := s.repo.Create(ctx, payment)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create payment")
	}
	payment = created

	outcome, err := strategy.Initiate(ctx, payment, meta)
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_id": payment.ID.String(),
			"provider":   payment.Provider.String(),
		})
		s.logg.Warn(logCtx, "payment initiation failed; attempt left pending")
		return nil, err
	}

	switch outcome.Status {
	case enums.PaymentStatusFailed:
		if err := s.markFailed(ctx, payment, outcome.FailureReason, outcome.Raw, actor); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeProvider, outcome.FailureReason).
			WithDetails(map[string]string{"payment_id": payment.ID.String()})
	case enums.PaymentStatusCompleted:
		confirmed, err := s.applyCompletion(ctx, payment, outcome.ExternalReference, outcome.Raw, actor)
		if err != nil {
			return nil, err
		}
		return &InitiateResult{Payment: confirmed}, nil
	default:
		updates := map[string]any{}
		if outcome.ExternalReference != "" {
			updates["external_reference"] = outcome.ExternalReference
		}
		if outcome.AuthorizationURL != "" {
			updates["authorization_url"] = outcome.AuthorizationURL
		}
		if len(outcome.Raw) > 0 {
			updates["gateway_raw_response"] = string(outcome.Raw)
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusProcessing, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark payment processing")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment status changed concurrently")
			}
			if payment.OrderID != nil {
				return s.orders.SetPaymentStatusTx(ctx, tx, *payment.OrderID, enums.PaymentStatusProcessing)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		payment.Status = enums.PaymentStatusProcessing
		if outcome.ExternalReference != "" {
			ref := outcome.ExternalReference
			payment.ExternalReference = &ref
		}
		if outcome.AuthorizationURL != "" {
			url := outcome.AuthorizationURL
			payment.AuthorizationURL = &url
		}
		return &InitiateResult{Payment: payment, AuthorizationURL: outcome.AuthorizationURL}, nil
	}
}

// FundWallet starts an order-less payment whose settlement credits the
// customer's wallet.
func (s *service) FundWallet(ctx context.Context, input FundWalletInput) (*InitiateResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if input.Method == enums.PaymentMethodWallet {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a wallet cannot fund itself")
	}
	strategy, err := s.strategies.byMethod(input.Method)
	if err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "funding amount must be positive")
	}
	if input.Amount.LessThan(s.fundingMin) || input.Amount.GreaterThan(s.fundingMax) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "funding amount outside allowed range").
			WithDetails(map[string]string{
				"min": s.fundingMin.String(),
				"max": s.fundingMax.String(),
			})
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyNGN
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	// The wallet is created up front so a later webhook always has a
	// credit target.
	if _, err := s.ledger.GetOrCreate(ctx, input.CustomerID); err != nil {
		return nil, err
	}

	reference := newPaymentReference()
	payment := &models.Payment{
		CustomerID:        input.CustomerID,
		Method:            input.Method,
		Provider:          strategy.Provider(),
		Status:            enums.PaymentStatusPending,
		Amount:            input.Amount,
		Currency:          currency,
		ExternalReference: &reference,
	}
	return s.startGatewayPayment(ctx, strategy, payment, InitiateMeta{
		CustomerEmail: input.CustomerEmail,
		Card:          input.Card,
	}, input.Actor)
}

// Confirm reconciles a provider's asynchronous outcome with the payment its
// reference points at. A payment that is already terminal is returned
// unchanged: replaying the same webhook N times leaves identical state and
// exactly one ledger entry.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*models.Payment, error) {
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	payment, err := s.repo.FindByReference(ctx, input.Reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment for reference").
			WithDetails(map[string]string{"reference": input.Reference})
	}
	if payment.Status.IsTerminal() {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_id": payment.ID.String(),
			"reference":  input.Reference,
			"status":     payment.Status.String(),
		})
		s.logg.Info(logCtx, "payment confirmation replayed; no-op")
		return payment, nil
	}

	if input.Succeeded {
		return s.applyCompletion(ctx, payment, input.Reference, input.Raw, input.Actor)
	}
	if err := s.markFailed(ctx, payment, input.FailureReason, input.Raw, input.Actor); err != nil {
		return nil, err
	}
	return s.finishDeferredCancel(ctx, payment)
}

// applyCompletion moves an open payment to completed and performs the
// settlement side effects: order confirmation for order payments, wallet
// crediting for funding payments. The whole mutation is one transaction.
func (s *service) applyCompletion(ctx context.Context, payment *models.Payment, externalReference string, raw []byte, actor *outbox.ActorRef) (*models.Payment, error) {
	var order *models.Order
	if payment.OrderID != nil {
		var err error
		order, err = s.orders.Get(ctx, *payment.OrderID)
		if err != nil {
			return nil, err
		}
	}

	var fundingWallet *models.Wallet
	if payment.OrderID == nil {
		w, err := s.ledger.GetOrCreate(ctx, payment.CustomerID)
		if err != nil {
			return nil, err
		}
		fundingWallet = w
	}

	replayed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := time.Now()
		updates := map[string]any{"completed_at": now}
		if externalReference != "" {
			updates["external_reference"] = externalReference
		}
		if len(raw) > 0 {
			updates["gateway_raw_response"] = string(raw)
		}
		ok, err := repo.UpdateStatus(ctx, payment.ID, payment.Status, enums.PaymentStatusCompleted, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to complete payment")
		}
		if !ok {
			// Lost the race against a concurrent delivery of the same
			// confirmation; the winner already applied the side effects.
			replayed = true
			return nil
		}
		payment.Status = enums.PaymentStatusCompleted
		payment.CompletedAt = &now
		if externalReference != "" {
			ref := externalReference
			payment.ExternalReference = &ref
		}

		switch {
		case fundingWallet != nil:
			description := fmt.Sprintf("wallet funding payment %s", payment.ID)
			result, err := s.ledger.CreditTx(ctx, tx, wallet.MovementInput{
				WalletID:    fundingWallet.ID,
				Amount:      payment.Amount,
				Reference:   creditReference(payment, externalReference),
				Description: &description,
				Actor:       actor,
			})
			if err != nil {
				return err
			}
			if !result.Applied {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"payment_id": payment.ID.String(),
					"wallet_id":  fundingWallet.ID.String(),
				})
				s.logg.Info(logCtx, "wallet already credited for reference; skipped")
			}
		case order.Status.IsTerminal(), order.CancelRequested:
			// The order closed or a cancel is pending while the charge
			// was in flight; the order never confirms, the settlement is
			// recorded so the refund that follows has a charge to reverse.
			if err := s.orders.SetPaymentStatusTx(ctx, tx, order.ID, enums.PaymentStatusCompleted); err != nil {
				return err
			}
		default:
			if err := s.orders.ConfirmTx(ctx, tx, order.ID, payment.ID, actor); err != nil {
				return err
			}
		}
		return s.emitCompleted(ctx, tx, payment, actor)
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		reloaded, err := s.repo.FindByID(ctx, payment.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to reload payment")
		}
		return reloaded, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"provider":   payment.Provider.String(),
		"amount":     payment.Amount.String(),
	})
	s.logg.Info(logCtx, "payment completed")

	if order != nil {
		switch {
		case order.Status.IsTerminal():
			return s.refundLateSettlement(ctx, payment, order, actor)
		case order.CancelRequested:
			return s.finishDeferredCancel(ctx, payment)
		default:
			s.bookShipment(ctx, order.ID)
		}
	}
	return payment, nil
}

// refundLateSettlement reverses a charge that settled after its order had
// already reached a terminal state, typically a cancellation that won the
// race against the gateway. The order stays where it ended up; the customer
// gets the money back in full.
func (s *service) refundLateSettlement(ctx context.Context, payment *models.Payment, order *models.Order, actor *outbox.ActorRef) (*models.Payment, error) {
	refunded, err := s.Refund(ctx, RefundInput{
		PaymentID: payment.ID,
		Reason:    "payment settled after order was closed",
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":   payment.ID.String(),
		"order_id":     order.ID.String(),
		"order_status": order.Status.String(),
	})
	s.logg.Info(logCtx, "late settlement refunded on closed order")
	return refunded, nil
}

// markFailed moves an open payment to failed, preserving the provider's
// reason verbatim for support.
func (s *service) markFailed(ctx context.Context, payment *models.Payment, reason string, raw []byte, actor *outbox.ActorRef) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{}
		if reason != "" {
			updates["failure_reason"] = reason
		}
		if len(raw) > 0 {
			updates["gateway_raw_response"] = string(raw)
		}
		ok, err := repo.UpdateStatus(ctx, payment.ID, payment.Status, enums.PaymentStatusFailed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark payment failed")
		}
		if !ok {
			return nil
		}
		payment.Status = enums.PaymentStatusFailed
		if reason != "" {
			r := reason
			payment.FailureReason = &r
		}
		if payment.OrderID != nil {
			if err := s.orders.SetPaymentStatusTx(ctx, tx, *payment.OrderID, enums.PaymentStatusFailed); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actor,
			Version:       1,
			Data: payloads.PaymentFailedEvent{
				PaymentID: payment.ID,
				OrderID:   payment.OrderID,
				Provider:  payment.Provider,
				Reason:    reason,
			},
		})
	})
}

// finishDeferredCancel completes a cancellation that was requested while the
// payment was still processing: a settled payment is refunded in full, then
// the order moves to cancelled with its originally recorded reason.
func (s *service) finishDeferredCancel(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.OrderID == nil {
		return payment, nil
	}
	order, err := s.orders.Get(ctx, *payment.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.CancelRequested || order.Status.IsTerminal() {
		return payment, nil
	}

	if payment.Status == enums.PaymentStatusCompleted {
		refunded, err := s.Refund(ctx, RefundInput{PaymentID: payment.ID, Reason: "order cancellation"})
		if err != nil {
			return nil, err
		}
		payment = refunded
	}

	reason := "cancel requested during payment"
	if order.CancelReason != nil {
		reason = *order.CancelReason
	}
	actorKind := enums.CancelActorCustomer
	if order.CancelActor != nil {
		actorKind = *order.CancelActor
	}
	if _, err := s.orders.Cancel(ctx, orders.CancelInput{
		OrderID:   order.ID,
		Reason:    reason,
		ActorKind: actorKind,
	}); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   order.ID.String(),
	})
	s.logg.Info(logCtx, "deferred cancellation completed after payment resolved")
	return payment, nil
}

// Refund reverses part or all of a settled payment. The provider call runs
// first; local state mutates only once the provider accepted the reversal.
func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	payment, err := s.Get(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case enums.PaymentStatusCompleted, enums.PaymentStatusPartiallyRefunded:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not refundable").
			WithDetails(map[string]string{"status": payment.Status.String()})
	}

	remaining := payment.Amount.Sub(payment.RefundedAmount)
	amount := remaining
	if input.Amount != nil {
		amount = *input.Amount
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amount.GreaterThan(remaining) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable amount").
			WithDetails(map[string]string{
				"requested":  amount.String(),
				"refundable": remaining.String(),
			})
	}

	strategy, err := s.strategies.byProvider(payment.Provider)
	if err != nil {
		return nil, err
	}

	newTotal := payment.RefundedAmount.Add(amount)
	// Deterministic per cumulative refund state, so retrying a refund that
	// failed after the provider call does not double-reverse.
	reference := fmt.Sprintf("refund_%s_%s", payment.ID, newTotal.String())
	raw, err := strategy.Refund(ctx, payment, amount, reference)
	if err != nil {
		return nil, err
	}

	fullyRefunded := newTotal.Equal(payment.Amount)
	target := enums.PaymentStatusPartiallyRefunded
	if fullyRefunded {
		target = enums.PaymentStatusRefunded
	}

	var order *models.Order
	if payment.OrderID != nil {
		order, err = s.orders.Get(ctx, *payment.OrderID)
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{"refunded_amount": newTotal}
		if len(raw) > 0 {
			updates["gateway_raw_response"] = string(raw)
		}
		ok, err := repo.UpdateStatus(ctx, payment.ID, payment.Status, target, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record refund")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment status changed concurrently")
		}
		payment.Status = target
		payment.RefundedAmount = newTotal

		if fullyRefunded && order != nil && orders.CanTransition(order.Status, enums.OrderStatusRefunded) {
			if err := s.orders.MarkRefundedTx(ctx, tx, order.ID, input.Actor); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         input.Actor,
			Version:       1,
			Data: payloads.PaymentRefundedEvent{
				PaymentID:      payment.ID,
				OrderID:        payment.OrderID,
				RefundedAmount: amount,
				TotalRefunded:  newTotal,
				Partial:        !fullyRefunded,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":     payment.ID.String(),
		"refunded":       amount.String(),
		"total_refunded": newTotal.String(),
		"partial":        !fullyRefunded,
	})
	s.logg.Info(logCtx, "payment refunded")

	return payment, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list payments")
	}
	return rows, nil
}

// CancelOrder cancels an order and, when its payment already settled, issues
// the compensating refund. A payment still processing defers the
// cancellation until the provider resolves it.
func (s *service) CancelOrder(ctx context.Context, input CancelOrderInput) (*models.Order, error) {
	order, err := s.orders.Cancel(ctx, orders.CancelInput{
		OrderID:   input.OrderID,
		Reason:    input.Reason,
		ActorKind: input.ActorKind,
		Actor:     input.Actor,
	})
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusCancelled {
		// Deferred: the confirmation path finishes the cancellation.
		return order, nil
	}
	if order.PaymentStatus != enums.PaymentStatusCompleted {
		return order, nil
	}

	settled, err := s.latestCompleted(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if settled == nil {
		return order, nil
	}
	if _, err := s.Refund(ctx, RefundInput{
		PaymentID: settled.ID,
		Reason:    "order cancelled",
		Actor:     input.Actor,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) latestCompleted(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	rows, err := s.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Status == enums.PaymentStatusCompleted {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// ExpireStaleAttempts cancels open payment attempts older than the
// configured maximum age. Gateways that settle one later are reconciled by
// the normal confirmation path finding a cancelled (terminal) payment and
// no-opping.
func (s *service) ExpireStaleAttempts(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().Add(-s.pendingMaxAge)
	rows, err := s.repo.ListStaleOpen(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list stale payments")
	}

	expired := 0
	for i := range rows {
		payment := rows[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.UpdateStatus(ctx, payment.ID, payment.Status, enums.PaymentStatusCancelled, map[string]any{
				"failure_reason": "payment attempt expired",
			})
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if payment.OrderID != nil {
				if err := s.orders.SetPaymentStatusTx(ctx, tx, *payment.OrderID, enums.PaymentStatusCancelled); err != nil {
					return err
				}
			}
			expired++
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentAttemptExpired,
				AggregateType: enums.AggregatePayment,
				AggregateID:   payment.ID,
				Version:       1,
				Data: payloads.PaymentAttemptExpiredEvent{
					PaymentID: payment.ID,
					OrderID:   payment.OrderID,
					Provider:  payment.Provider,
					AgeHours:  int(time.Since(payment.CreatedAt).Hours()),
				},
			})
		})
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to expire payment attempt")
		}
	}
	return expired, nil
}

// bookShipment asks the delivery side to create the shipment for a freshly
// confirmed order. Failures are logged, never propagated: the delivery
// service flags the order for manual arrangement.
func (s *service) bookShipment(ctx context.Context, orderID uuid.UUID) {
	if _, err := s.shipments.CreateShipmentForOrder(ctx, orderID); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String()})
		s.logg.Warn(logCtx, fmt.Sprintf("shipment booking skipped: %v", err))
	}
}

func (s *service) emitCompleted(ctx context.Context, tx *gorm.DB, payment *models.Payment, actor *outbox.ActorRef) error {
	reference := ""
	if payment.ExternalReference != nil {
		reference = *payment.ExternalReference
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentCompleted,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		Version:       1,
		Data: payloads.PaymentCompletedEvent{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			Provider:  payment.Provider,
			Method:    payment.Method,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Reference: reference,
		},
	})
}

// creditReference picks the ledger reference for a wallet-funding credit:
// the gateway's reference when it supplied one, the payment's own otherwise.
func creditReference(payment *models.Payment, externalReference string) string {
	if externalReference != "" {
		return externalReference
	}
	if payment.ExternalReference != nil && *payment.ExternalReference != "" {
		return *payment.ExternalReference
	}
	return payment.ID.String()
}
