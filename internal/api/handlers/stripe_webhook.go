// Package handlers contains the HTTP handlers of the billing webhook service.
//
// The Stripe webhook handler is NOT behind auth middleware; it is called
// directly by Stripe. Security is provided by verifying the Stripe-Signature
// header using HMAC-SHA256.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"petcare/internal/billing"
	"petcare/internal/core"
	"petcare/internal/external"
	"petcare/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a Stripe webhook payload (64 KB).
const maxWebhookBodySize = 64 * 1024

// signatureHeader carries the Stripe HMAC signature.
const signatureHeader = "Stripe-Signature"

// EventDispatcher reconciles a parsed event. *billing.Reconciler satisfies it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev billing.Event) (string, error)
}

var _ EventDispatcher = (*billing.Reconciler)(nil)

// webhookAck is the 200 acknowledgement body.
type webhookAck struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// StripeWebhookHandler handles asynchronous events from Stripe.
// Every response is either 200 or 400: a 400 asks Stripe to redeliver.
type StripeWebhookHandler struct {
	verifier   external.WebhookVerifier
	dispatcher EventDispatcher
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler with the provided dependencies.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	dispatcher EventDispatcher,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:   verifier,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterRoutes mounts the Stripe webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes incoming Stripe webhook events.
//
//  1. Reads the body (64 KB limit).
//  2. Verifies the Stripe-Signature header; nothing is read or written on failure.
//  3. Parses the event into its typed form.
//  4. Dispatches to the reconciler.
//  5. Acknowledges with 200, or 400 on any failure.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.logger.WarnContext(ctx, "webhook body exceeds limit", "limit", tooBig.Limit)
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationPayloadTooBig,
				"request body too large",
				err,
			))
			return
		}
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"failed to read request body",
			err,
		))
		return
	}

	raw, err := h.verifier.Verify(payload, r.Header.Get(signatureHeader))
	if err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed", "error", err)
		core.Error(w, r, asBadRequest(err, ""))
		return
	}

	ev, err := billing.ParseEvent(raw)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook event rejected",
			"event_id", raw.ID,
			"event_type", string(raw.Type),
			"error", err,
		)
		core.Error(w, r, asBadRequest(err, raw.ID))
		return
	}

	meta := ev.Meta()
	logger := h.logger.With("event_id", meta.ID, "event_type", meta.Type)
	ctx = types.WithLogger(ctx, logger)

	outcome, err := h.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		logger.ErrorContext(ctx, "webhook event processing failed", "error", err)
		core.Error(w, r, asBadRequest(err, meta.ID))
		return
	}

	logger.InfoContext(ctx, "webhook event handled", "outcome", outcome)
	core.JSON(w, r, http.StatusOK, webhookAck{Received: true, EventID: meta.ID, Outcome: outcome})
}

// asBadRequest keeps client-facing AppErrors that already map to 400 and
// folds everything else into webhook_processing_failed, hiding internals.
func asBadRequest(err error, eventID string) *types.AppError {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus() == http.StatusBadRequest {
		return appErr
	}

	details := map[string]any{}
	if eventID != "" {
		details["event_id"] = eventID
	}
	if appErr != nil {
		details["cause"] = string(appErr.Code)
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeWebhookProcessing,
		"webhook processing failed",
		err,
		details,
	)
}
