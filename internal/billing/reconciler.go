package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"petcare/internal/types"
)

// Missing-linkage reasons, used as metric dimensions.
const (
	ReasonMissingMetadata     = "missing_metadata"
	ReasonUnknownPackage      = "unknown_package"
	ReasonUnknownSubscription = "unknown_subscription"
	ReasonMissingUser         = "missing_user"
)

// Entities whose primary write can be exhausted.
const (
	EntitySubscriber       = "subscriber"
	EntityUserSubscription = "user_subscription"
)

// Best-effort effects.
const (
	EffectProviderLookup = "provider_lookup"
	EffectPaymentLog     = "payment_log"
	EffectNotify         = "verification_notify"
	EffectFirstPaidCheck = "first_paid_check"
)

// Verification change reasons carried on notifications.
const (
	ReasonPaidCheckout        = "paid_checkout"
	ReasonNoPaidSubscriptions = "no_active_paid_subscriptions"
)

// Deps are the collaborators of a Reconciler. Stores, Policy and Logger are
// required; Provider, Notifier, Metrics and Alerter may be nil.
type Deps struct {
	Subscribers   SubscriberStore
	Subscriptions UserSubscriptionStore
	Payments      PaymentLogStore
	Packages      PackageStore
	Verification  VerificationStore
	Provider      SubscriptionProvider
	Notifier      VerificationNotifier
	Metrics       Metrics
	Alerter       Alerter
	Policy        TierPolicy
	Logger        *slog.Logger
	Now           func() time.Time
}

// Reconciler applies verified Stripe events to subscription and
// verification state.
type Reconciler struct {
	subscribers   SubscriberStore
	subscriptions UserSubscriptionStore
	payments      PaymentLogStore
	packages      PackageStore
	verification  VerificationStore
	provider      SubscriptionProvider
	notifier      VerificationNotifier
	metrics       Metrics
	alerter       Alerter
	policy        TierPolicy
	logger        *slog.Logger
	now           func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(d Deps) *Reconciler {
	r := &Reconciler{
		subscribers:   d.Subscribers,
		subscriptions: d.Subscriptions,
		payments:      d.Payments,
		packages:      d.Packages,
		verification:  d.Verification,
		provider:      d.Provider,
		notifier:      d.Notifier,
		metrics:       d.Metrics,
		alerter:       d.Alerter,
		policy:        d.Policy,
		logger:        d.Logger,
		now:           d.Now,
	}
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.alerter == nil {
		r.alerter = nopAlerter{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// Dispatch routes ev to its handler and records the outcome. A returned
// error means the event should be redelivered.
func (r *Reconciler) Dispatch(ctx context.Context, ev Event) (string, error) {
	meta := ev.Meta()

	var (
		outcome string
		err     error
	)
	switch e := ev.(type) {
	case CheckoutCompleted:
		outcome, err = r.HandleCheckoutCompleted(ctx, e)
	case SubscriptionChanged:
		outcome, err = r.HandleSubscriptionChanged(ctx, e)
	case InvoicePayment:
		outcome, err = r.HandleInvoicePayment(ctx, e)
	default:
		r.log(ctx).InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_id", meta.ID,
			"event_type", meta.Type,
		)
		outcome = types.OutcomeIgnored
	}
	if err != nil {
		outcome = types.OutcomeFailed
	}
	r.metrics.RecordWebhookEvent(ctx, meta.Type, outcome)
	return outcome, err
}

// HandleCheckoutCompleted turns a completed checkout into an active
// subscription and grants verification for paid tiers.
func (r *Reconciler) HandleCheckoutCompleted(ctx context.Context, e CheckoutCompleted) (string, error) {
	log := r.log(ctx).With(
		"event_id", e.ID,
		"event_type", e.Type,
		"session_id", e.SessionID,
		"user_id", e.UserID,
		"package_id", e.PackageID,
	)

	if e.UserID == "" || e.PackageID == "" {
		r.missingLinkage(ctx, log, e.Envelope, ReasonMissingMetadata, true)
		return types.OutcomeNoop, nil
	}

	pkg, err := r.packages.GetPackage(ctx, e.PackageID)
	if err != nil {
		return "", fmt.Errorf("resolve package %s: %w", e.PackageID, err)
	}
	if pkg == nil {
		r.missingLinkage(ctx, log, e.Envelope, ReasonUnknownPackage, true)
		r.appendPaymentLog(ctx, log, checkoutPaymentLog(e, nil))
		return types.OutcomeNoop, nil
	}
	paid := r.policy.IsPaid(pkg.Name)

	// The provider may already have ended the subscription if this delivery
	// arrived after its deletion event.
	var periodEnd *time.Time
	ended := false
	if live := r.lookupSubscription(ctx, log, e.SubscriptionID); live != nil {
		periodEnd = live.CurrentPeriodEnd
		ended = live.Status.IsCanceled()
	}

	if paid && !ended {
		r.logFirstPaid(ctx, log, e.UserID)
		if err := r.setVerification(ctx, log, e.Envelope, e.UserID, pkg.ID, types.VerificationVerified, ReasonPaidCheckout); err != nil {
			return "", err
		}
	}

	now := r.now()
	status := types.SubscriptionActive
	endDate := periodEnd
	if ended {
		status = types.SubscriptionCancelled
		endDate = &now
		log.WarnContext(ctx, "checkout arrived for a subscription the provider already ended")
	}

	if e.Email == "" {
		log.InfoContext(ctx, "checkout carries no email; skipping subscriber upsert")
	} else {
		err := r.subscribers.UpsertByEmail(ctx, &types.Subscriber{
			UserID:               e.UserID,
			Email:                e.Email,
			StripeCustomerID:     e.CustomerID,
			StripeSubscriptionID: types.StrPtr(e.SubscriptionID),
			Subscribed:           !ended,
			SubscriptionTier:     &pkg.Name,
			SubscriptionEnd:      endDate,
		})
		if err != nil {
			r.primaryWriteFailed(ctx, log, e.Envelope, EntitySubscriber, err)
		}
	}

	us := &types.UserSubscription{
		UserID:    e.UserID,
		PackageID: pkg.ID,
		Status:    status,
		StartDate: now,
		EndDate:   endDate,
		PaymentID: e.SubscriptionID,
	}
	if err := r.writeUserSubscription(ctx, log, us); err != nil {
		r.primaryWriteFailed(ctx, log, e.Envelope, EntityUserSubscription, err)
	}

	if ended {
		if err := r.rederiveVerification(ctx, log, e.Envelope, e.UserID); err != nil {
			return "", err
		}
	}

	r.appendPaymentLog(ctx, log, checkoutPaymentLog(e, pkg))

	log.InfoContext(ctx, "checkout reconciled", "paid_tier", paid, "status", status)
	return types.OutcomeProcessed, nil
}

// checkoutPaymentLog builds the audit row for a checkout. pkg is nil when
// the package could not be resolved.
func checkoutPaymentLog(e CheckoutCompleted, pkg *types.Package) *types.PaymentLog {
	entry := &types.PaymentLog{
		UserID:         e.UserID,
		SessionID:      e.SessionID,
		SubscriptionID: e.SubscriptionID,
		AmountMinor:    e.AmountMinor,
		Currency:       e.Currency,
		Status:         types.PaymentCompleted,
		Metadata: types.PaymentMetadata{
			"event_id":    e.ID,
			"customer_id": e.CustomerID,
		},
	}
	if pkg != nil {
		entry.PackageID = types.StrPtr(pkg.ID)
		entry.Metadata["package_name"] = pkg.Name
	} else {
		entry.Metadata["requested_package_id"] = e.PackageID
	}
	return entry
}

// HandleSubscriptionChanged mirrors a subscription lifecycle change and
// revokes verification once no active paid subscription remains.
func (r *Reconciler) HandleSubscriptionChanged(ctx context.Context, e SubscriptionChanged) (string, error) {
	log := r.log(ctx).With(
		"event_id", e.ID,
		"event_type", e.Type,
		"subscription_id", e.SubscriptionID,
		"provider_status", string(e.Status),
	)

	pkg := r.inferPackage(ctx, log, e.PriceID)

	sub, err := r.subscribers.FindBySubscriptionID(ctx, e.SubscriptionID)
	if err != nil {
		return "", fmt.Errorf("find subscriber for %s: %w", e.SubscriptionID, err)
	}
	if sub == nil {
		r.missingLinkage(ctx, log, e.Envelope, ReasonUnknownSubscription, false)
		return types.OutcomeNoop, nil
	}
	log = log.With("user_id", sub.UserID)

	isActive := e.Status.IsActive()
	isCanceled := e.Status.IsCanceled() || e.Deleted()

	now := r.now()
	endDate := e.CurrentPeriodEnd
	if isCanceled {
		endDate = &now
	}

	subUpdate := types.SubscriberUpdate{Subscribed: isActive, SubscriptionEnd: endDate}
	if pkg != nil {
		subUpdate.Tier = &pkg.Name
	}
	if err := r.subscribers.UpdateByEmail(ctx, sub.Email, subUpdate); err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundSubscriber {
			return "", fmt.Errorf("update subscriber: %w", err)
		}
		log.WarnContext(ctx, "subscriber vanished before update")
	}

	if sub.UserID == "" {
		r.missingLinkage(ctx, log, e.Envelope, ReasonMissingUser, false)
		return types.OutcomeNoop, nil
	}

	status := types.SubscriptionExpired
	switch {
	case isCanceled:
		status = types.SubscriptionCancelled
	case isActive:
		status = types.SubscriptionActive
	}
	usUpdate := types.UserSubscriptionUpdate{Status: status, EndDate: endDate}
	if pkg != nil {
		usUpdate.PackageID = types.StrPtr(pkg.ID)
	}
	if err := r.subscriptions.ApplyLifecycle(ctx, sub.UserID, usUpdate); err != nil {
		return "", fmt.Errorf("update user subscription: %w", err)
	}

	if isCanceled || !isActive {
		if err := r.rederiveVerification(ctx, log, e.Envelope, sub.UserID); err != nil {
			return "", err
		}
	}

	logStatus := types.PaymentExpired
	switch {
	case e.Deleted():
		logStatus = types.PaymentCancelled
	case isActive:
		logStatus = types.PaymentUpdated
	}
	entry := &types.PaymentLog{
		UserID:         sub.UserID,
		SubscriptionID: e.SubscriptionID,
		Status:         logStatus,
		Metadata: types.PaymentMetadata{
			"event_id":        e.ID,
			"event_type":      e.Type,
			"provider_status": string(e.Status),
		},
	}
	if pkg != nil {
		entry.PackageID = types.StrPtr(pkg.ID)
	}
	r.appendPaymentLog(ctx, log, entry)

	log.InfoContext(ctx, "subscription lifecycle reconciled", "status", status)
	return types.OutcomeProcessed, nil
}

// HandleInvoicePayment records an invoice outcome in the payment log. It
// never touches subscription state.
func (r *Reconciler) HandleInvoicePayment(ctx context.Context, e InvoicePayment) (string, error) {
	log := r.log(ctx).With(
		"event_id", e.ID,
		"event_type", e.Type,
		"invoice_id", e.InvoiceID,
		"subscription_id", e.SubscriptionID,
	)

	if e.SubscriptionID == "" {
		log.DebugContext(ctx, "invoice not tied to a subscription")
		return types.OutcomeNoop, nil
	}
	sub, err := r.subscribers.FindBySubscriptionID(ctx, e.SubscriptionID)
	if err != nil {
		return "", fmt.Errorf("find subscriber for %s: %w", e.SubscriptionID, err)
	}
	if sub == nil {
		log.DebugContext(ctx, "no subscriber for invoice subscription")
		return types.OutcomeNoop, nil
	}

	status := types.PaymentFailed
	if e.Succeeded {
		status = types.PaymentCompleted
	}
	r.appendPaymentLog(ctx, log, &types.PaymentLog{
		UserID:         sub.UserID,
		SubscriptionID: e.SubscriptionID,
		AmountMinor:    e.AmountMinor,
		Currency:       e.Currency,
		Status:         status,
		Metadata: types.PaymentMetadata{
			"event_id":   e.ID,
			"invoice_id": e.InvoiceID,
			"amount":     e.AmountMinor,
			"currency":   e.Currency,
		},
	})
	return types.OutcomeProcessed, nil
}

// writeUserSubscription upserts the row, falling back to update-or-insert
// when the upsert itself fails.
func (r *Reconciler) writeUserSubscription(ctx context.Context, log *slog.Logger, us *types.UserSubscription) error {
	upsertErr := r.subscriptions.Upsert(ctx, us)
	if upsertErr == nil {
		return nil
	}
	log.WarnContext(ctx, "user subscription upsert failed, trying update-or-insert", "error", upsertErr)

	existing, err := r.subscriptions.FindByUser(ctx, us.UserID)
	if err != nil {
		return errors.Join(upsertErr, err)
	}
	if existing != nil {
		err = r.subscriptions.Replace(ctx, us)
	} else {
		err = r.subscriptions.Insert(ctx, us)
	}
	if err != nil {
		return errors.Join(upsertErr, err)
	}
	return nil
}

// rederiveVerification revokes verification when the user holds no active
// paid subscription. It reads current state instead of trusting the event.
func (r *Reconciler) rederiveVerification(ctx context.Context, log *slog.Logger, env Envelope, userID string) error {
	names, err := r.subscriptions.ListActivePackageNames(ctx, userID)
	if err != nil {
		return fmt.Errorf("list active subscriptions for %s: %w", userID, err)
	}
	if n := r.policy.CountPaid(names); n > 0 {
		log.InfoContext(ctx, "paid subscriptions remain; verification kept", "active_paid", n)
		return nil
	}
	return r.setVerification(ctx, log, env, userID, "", types.VerificationUnverified, ReasonNoPaidSubscriptions)
}

func (r *Reconciler) setVerification(
	ctx context.Context,
	log *slog.Logger,
	env Envelope,
	userID, packageID string,
	status types.VerificationStatus,
	reason string,
) error {
	if err := r.verification.SetVerificationStatus(ctx, userID, status); err != nil {
		return fmt.Errorf("set verification %s: %w", status, err)
	}
	log.InfoContext(ctx, "verification status set", "verification_status", string(status), "reason", reason)
	r.metrics.RecordVerificationChanged(ctx, status)

	if r.notifier == nil {
		return nil
	}
	msg := types.VerificationChangedMessage{
		UserID:    userID,
		Status:    status,
		Reason:    reason,
		EventID:   env.ID,
		EventType: env.Type,
		PackageID: packageID,
		ChangedAt: r.now(),
		TraceID:   types.GetRequestID(ctx),
	}
	r.fire(ctx, log, secondary{effect: EffectNotify, do: func(ctx context.Context) error {
		return r.notifier.PublishVerificationChanged(ctx, msg)
	}})
	return nil
}

// logFirstPaid reports whether this is the user's first paid subscription.
// The result is informational only.
func (r *Reconciler) logFirstPaid(ctx context.Context, log *slog.Logger, userID string) {
	r.fire(ctx, log, secondary{effect: EffectFirstPaidCheck, do: func(ctx context.Context) error {
		names, err := r.subscriptions.ListActivePackageNames(ctx, userID)
		if err != nil {
			return err
		}
		if r.policy.CountNonFree(names) == 0 {
			log.InfoContext(ctx, "first paid subscription for user")
		}
		return nil
	}})
}

func (r *Reconciler) lookupSubscription(ctx context.Context, log *slog.Logger, subscriptionID string) *types.ProviderSubscription {
	if subscriptionID == "" || r.provider == nil {
		return nil
	}
	var live *types.ProviderSubscription
	r.fire(ctx, log, secondary{effect: EffectProviderLookup, do: func(ctx context.Context) error {
		got, err := r.provider.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		live = got
		return nil
	}})
	return live
}

// inferPackage maps a price to its package. Any failure leaves the package
// unknown.
func (r *Reconciler) inferPackage(ctx context.Context, log *slog.Logger, priceID string) *types.Package {
	if priceID == "" {
		return nil
	}
	packageID, err := r.packages.PackageIDForPrice(ctx, priceID)
	if err != nil {
		log.WarnContext(ctx, "price mapping lookup failed", "price_id", priceID, "error", err)
		return nil
	}
	if packageID == "" {
		log.InfoContext(ctx, "price not mapped to a package", "price_id", priceID)
		return nil
	}
	pkg, err := r.packages.GetPackage(ctx, packageID)
	if err != nil {
		log.WarnContext(ctx, "package lookup failed", "package_id", packageID, "error", err)
		return nil
	}
	return pkg
}

func (r *Reconciler) appendPaymentLog(ctx context.Context, log *slog.Logger, entry *types.PaymentLog) {
	r.fire(ctx, log, secondary{effect: EffectPaymentLog, do: func(ctx context.Context) error {
		return r.payments.Append(ctx, entry)
	}})
}

func (r *Reconciler) missingLinkage(ctx context.Context, log *slog.Logger, env Envelope, reason string, alert bool) {
	log.WarnContext(ctx, "event lacks linkage; no changes applied", "reason", reason)
	r.metrics.RecordMissingLinkage(ctx, env.Type, reason)
	if alert {
		r.alerter.Alert(ctx, "webhook event skipped: "+reason, map[string]string{
			"event_id":   env.ID,
			"event_type": env.Type,
			"reason":     reason,
		})
	}
}

func (r *Reconciler) primaryWriteFailed(ctx context.Context, log *slog.Logger, env Envelope, entity string, err error) {
	log.ErrorContext(ctx, "primary write failed; acknowledging event anyway", "entity", entity, "error", err)
	r.metrics.RecordWriteFailure(ctx, entity)
	r.alerter.Alert(ctx, "reconcile write failed: "+entity, map[string]string{
		"event_id":   env.ID,
		"event_type": env.Type,
		"entity":     entity,
	})
}

func (r *Reconciler) log(ctx context.Context) *slog.Logger {
	return types.LoggerFromContext(ctx, r.logger)
}
