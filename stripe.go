package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"goflare.io/settlement/config"
	"goflare.io/settlement/event"
	"goflare.io/settlement/lifecycle"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
	"goflare.io/settlement/quote"
	"goflare.io/settlement/referralfee"
)

type StripeSettlement struct {
	client       *client.API
	config       *config.Config
	natsConn     *nats.Conn
	eventManager *EventManager
	dispatcher   *Dispatcher
	logger       *zap.Logger

	quote     quote.Service
	fee       referralfee.Service
	lifecycle lifecycle.Service
	event     event.Service
}

func NewStripeSettlement(
	cfg *config.Config,
	natsConn *nats.Conn,
	qs quote.Service,
	fs referralfee.Service,
	lc lifecycle.Service,
	es event.Service,
	logger *zap.Logger,
) (Settlement, error) {
	ss := &StripeSettlement{
		client:    client.New(cfg.Stripe.SecretKey, nil),
		config:    cfg,
		natsConn:  natsConn,
		quote:     qs,
		fee:       fs,
		lifecycle: lc,
		event:     es,
		logger:    logger,
	}

	ss.eventManager = NewEventManager(natsConn, logger)
	ss.dispatcher = NewDispatcher(8, 1024, ss, logger)
	ss.dispatcher.Run()

	ss.registerEventHandlers()
	if err := ss.eventManager.SubscribeToEvents(ss.dispatcher); err != nil {
		return nil, fmt.Errorf("failed to subscribe to settlement events: %w", err)
	}

	return ss, nil
}

func (ss *StripeSettlement) CreateReferralCheckout(ctx context.Context, quoteID string) (*CheckoutResult, error) {
	q, err := ss.quote.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	// Checkout is only open between selection and the confirmation deadline;
	// anything else would strand a charge at the gateway for a dead quote.
	if q.Status != enum.QuoteStatusPendingConfirmation {
		return nil, fmt.Errorf("%w: quote is %s", models.ErrNotAwaitingPayment, q.Status)
	}

	fee, err := ss.fee.GetOrCreate(ctx, q)
	if err != nil {
		return nil, err
	}
	if !fee.Status.Payable() {
		return nil, fmt.Errorf("%w: fee is %s", models.ErrFeeAlreadyPaid, fee.Status)
	}

	// The gateway call happens with no database transaction open; the
	// session id is attached only after Stripe returns.
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(ss.config.Stripe.SuccessURL),
		CancelURL:  stripe.String(ss.config.Stripe.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(fee.AmountCents()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Referral fee"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata("quote_id", q.ID)
	params.AddMetadata("fee_id", fee.ID)
	params.AddMetadata("professional_id", q.ProfessionalID)

	session, err := ss.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create Stripe checkout session: %w", err)
	}

	if err = ss.fee.AttachSession(ctx, fee.ID, session.ID); err != nil {
		return nil, err
	}

	ss.logger.Info("referral checkout created",
		zap.String("quote_id", q.ID),
		zap.String("fee_id", fee.ID),
		zap.String("session_id", session.ID))

	return &CheckoutResult{
		RedirectURL: session.URL,
		SessionID:   session.ID,
		FeeID:       fee.ID,
	}, nil
}

func (ss *StripeSettlement) VerifyReferralPayment(ctx context.Context, sessionID string) (*VerifyResult, error) {
	session, err := ss.client.CheckoutSessions.Get(sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve Stripe checkout session: %w", err)
	}

	return ss.settleVerifiedSession(ctx, session)
}

// settleVerifiedSession applies the confirmation cascade for a session the
// gateway reports as paid. Anything short of a definitive paid status is a
// conflict, not a confirmation.
func (ss *StripeSettlement) settleVerifiedSession(ctx context.Context, session *stripe.CheckoutSession) (*VerifyResult, error) {
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, fmt.Errorf("%w: session %s is %s",
			models.ErrPaymentNotVerified, session.ID, session.PaymentStatus)
	}

	var paymentIntentID string
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}

	result, err := ss.lifecycle.Confirm(ctx, session.ID, paymentIntentID)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{Paid: true, QuoteID: result.QuoteID}, nil
}

func (ss *StripeSettlement) RefundReferralFee(ctx context.Context, paymentIntentID string, reason enum.CancellationReason) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("cancellation_reason", string(reason))

	refund, err := ss.client.Refunds.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			ss.logger.Info("refund already issued at gateway",
				zap.String("payment_intent", paymentIntentID))
			return "", nil
		}
		return "", fmt.Errorf("failed to create Stripe refund: %w", err)
	}

	return refund.ID, nil
}

// HandleStripeWebhook verifies the event signature, records it for dedup and
// publishes it for the worker pool. Heavy processing never happens on the
// webhook request itself.
func (ss *StripeSettlement) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	stripeEvent, err := webhook.ConstructEvent(payload, signature, ss.config.Stripe.WebhookSecret)
	if err != nil {
		return fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	processed, err := ss.event.IsEventProcessed(ctx, stripeEvent.ID)
	if err != nil {
		return err
	}
	if processed {
		ss.logger.Info("event already processed", zap.String("event_id", stripeEvent.ID))
		return nil
	}

	eventModel := &models.Event{
		ID:        stripeEvent.ID,
		Type:      stripeEvent.Type,
		Processed: false,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err = ss.event.Create(ctx, eventModel); err != nil {
		ss.logger.Error("failed to record event", zap.Error(err))
		return err
	}

	if err = ss.eventManager.PublishEvent(&stripeEvent); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	return nil
}

func (ss *StripeSettlement) ProcessEvent(ctx context.Context, stripeEvent *stripe.Event) error {
	handler, exists := ss.eventManager.GetHandler(stripeEvent.Type)
	if !exists {
		return fmt.Errorf("no handler registered for event type: %s", stripeEvent.Type)
	}

	if err := handler(ctx, stripeEvent); err != nil {
		ss.logger.Error("failed to process event",
			zap.String("event_id", stripeEvent.ID),
			zap.String("event_type", string(stripeEvent.Type)),
			zap.Error(err))
		return err
	}

	if err := ss.event.MarkEventAsProcessed(ctx, stripeEvent.ID); err != nil {
		ss.logger.Error("failed to mark event as processed", zap.Error(err))
		return err
	}

	return nil
}

func (ss *StripeSettlement) handleCheckoutSessionEvent(ctx context.Context, stripeEvent *stripe.Event) error {
	session := new(stripe.CheckoutSession)
	if err := json.Unmarshal(stripeEvent.Data.Raw, session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session event: %w", err)
	}

	switch stripeEvent.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var paymentIntentID string
		if session.PaymentIntent != nil {
			paymentIntentID = session.PaymentIntent.ID
		}

		result, err := ss.lifecycle.Confirm(ctx, session.ID, paymentIntentID)
		if err != nil {
			// A replay or a lost race against expiry is a conflict, not a
			// processing failure worth a webhook retry.
			if errors.Is(err, models.ErrAlreadyPaid) || errors.Is(err, models.ErrAlreadyDecided) {
				ss.logger.Warn("checkout completion not applied",
					zap.String("session_id", session.ID),
					zap.Error(err))
				return nil
			}
			return err
		}

		ss.logger.Info("checkout session settled",
			zap.String("session_id", session.ID),
			zap.String("quote_id", result.QuoteID),
			zap.Bool("already_confirmed", result.AlreadyConfirmed))
		return nil

	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		// The confirmation sweep owns quote expiry; an abandoned session
		// needs no local transition, the fee simply stays owed.
		ss.logger.Info("checkout session ended unpaid",
			zap.String("session_id", session.ID),
			zap.String("event_type", string(stripeEvent.Type)))
		return nil

	default:
		ss.logger.Error(fmt.Sprintf("unexpected checkout session event type: %s", stripeEvent.Type))
		return nil
	}
}

// handleRefundEvent reconciles refunds issued outside the cancellation flow,
// e.g. from the Stripe dashboard during manual follow-up.
func (ss *StripeSettlement) handleRefundEvent(ctx context.Context, stripeEvent *stripe.Event) error {
	refund := new(stripe.Refund)
	if err := json.Unmarshal(stripeEvent.Data.Raw, refund); err != nil {
		return fmt.Errorf("failed to unmarshal refund event: %w", err)
	}
	if refund.PaymentIntent == nil || refund.Status != stripe.RefundStatusSucceeded {
		return nil
	}

	fee, err := ss.fee.GetByPaymentIntent(ctx, refund.PaymentIntent.ID)
	if err != nil {
		if errors.Is(err, models.ErrReferralFeeNotFound) {
			return nil
		}
		return err
	}
	if fee.Status != enum.ReferralFeeStatusPaid {
		return nil
	}

	reason := enum.CancellationReasonCustomerCanceled
	if r, ok := refund.Metadata["cancellation_reason"]; ok && enum.CancellationReason(r).Valid() {
		reason = enum.CancellationReason(r)
	}

	if err = ss.fee.RecordRefund(ctx, fee.ID, refund.ID, reason); err != nil {
		if errors.Is(err, models.ErrNotRefundable) {
			ss.logger.Warn("gateway refund for non-refundable fee, flagged for reconciliation",
				zap.String("fee_id", fee.ID),
				zap.String("refund_id", refund.ID))
			return nil
		}
		return err
	}

	return nil
}

func (ss *StripeSettlement) Close() {
	ss.logger.Info("initiating graceful shutdown of settlement workers")
	ss.dispatcher.Stop()
	ss.natsConn.Close()
	ss.logger.Info("settlement engine shut down")
}
