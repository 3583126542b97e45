package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	stripe "github.com/stripe/stripe-go/v82"

	"petcare/internal/types"
)

// Stripe event types the reconciler acts on.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Event is the closed set of webhook events the router dispatches on. The
// concrete types are CheckoutCompleted, SubscriptionChanged, InvoicePayment
// and Unknown.
type Event interface {
	Meta() Envelope
	isEvent()
}

// Envelope carries the fields every provider event has.
type Envelope struct {
	ID      string    `validate:"required"`
	Type    string    `validate:"required"`
	Created time.Time
}

// Meta returns the envelope.
func (e Envelope) Meta() Envelope { return e }

func (Envelope) isEvent() {}

// CheckoutCompleted is a finished Checkout session in subscription mode.
// UserID and PackageID come from session metadata and may be empty; the
// reconciler treats that as missing linkage rather than a malformed event.
type CheckoutCompleted struct {
	Envelope
	SessionID      string `validate:"required"`
	UserID         string
	PackageID      string
	Email          string
	CustomerID     string
	SubscriptionID string
	AmountMinor    int64 `validate:"gte=0"`
	Currency       string
}

// SubscriptionChanged covers the created, updated and deleted lifecycle events.
type SubscriptionChanged struct {
	Envelope
	SubscriptionID   string                           `validate:"required"`
	Status           types.ProviderSubscriptionStatus `validate:"required"`
	CustomerID       string
	PriceID          string
	CurrentPeriodEnd *time.Time
}

// Deleted reports whether the provider removed the subscription.
func (e SubscriptionChanged) Deleted() bool { return e.Type == EventSubscriptionDeleted }

// InvoicePayment is a succeeded or failed invoice payment attempt.
type InvoicePayment struct {
	Envelope
	InvoiceID      string `validate:"required"`
	SubscriptionID string
	AmountMinor    int64 `validate:"gte=0"`
	Currency       string
	Succeeded      bool
}

// Unknown is any event type the router does not handle.
type Unknown struct {
	Envelope
}

var eventValidator = validator.New()

// ParseEvent turns a verified provider event into its typed variant. It only
// fails when a recognised event is missing the fields its handler needs.
func ParseEvent(ev stripe.Event) (Event, error) {
	env := Envelope{ID: ev.ID, Type: string(ev.Type)}
	if ev.Created > 0 {
		env.Created = time.Unix(ev.Created, 0).UTC()
	}

	var (
		out Event
		err error
	)
	switch env.Type {
	case EventCheckoutCompleted:
		out, err = parseCheckout(env, rawObject(ev))
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		out, err = parseSubscription(env, rawObject(ev))
	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		out, err = parseInvoice(env, rawObject(ev))
	default:
		out = Unknown{Envelope: env}
	}
	if err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPayload,
			fmt.Sprintf("malformed %s event", env.Type),
			err,
			map[string]any{"event_id": env.ID},
		)
	}

	if err := eventValidator.Struct(out); err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPayload,
			fmt.Sprintf("%s event failed validation", env.Type),
			err,
			map[string]any{"event_id": env.ID},
		)
	}
	return out, nil
}

func rawObject(ev stripe.Event) json.RawMessage {
	if ev.Data == nil {
		return nil
	}
	return ev.Data.Raw
}

type expandable struct {
	ID string
}

// UnmarshalJSON accepts either an ID string or an expanded object.
func (e *expandable) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type checkoutObject struct {
	ID              string            `json:"id"`
	Customer        expandable        `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Subscription expandable        `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
	AmountTotal  int64             `json:"amount_total"`
	Currency     string            `json:"currency"`
}

func parseCheckout(env Envelope, raw json.RawMessage) (Event, error) {
	var obj checkoutObject
	if err := decodeObject(raw, &obj); err != nil {
		return nil, err
	}
	// The email is only a lookup key, so its format is not checked here.
	email := strings.TrimSpace(obj.CustomerEmail)
	if obj.CustomerDetails != nil {
		if e := strings.TrimSpace(obj.CustomerDetails.Email); e != "" {
			email = e
		}
	}
	return CheckoutCompleted{
		Envelope:       env,
		SessionID:      obj.ID,
		UserID:         obj.Metadata["user_id"],
		PackageID:      obj.Metadata["package_id"],
		Email:          email,
		CustomerID:     obj.Customer.ID,
		SubscriptionID: obj.Subscription.ID,
		AmountMinor:    obj.AmountTotal,
		Currency:       obj.Currency,
	}, nil
}

type subscriptionObject struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Customer         expandable `json:"customer"`
	CurrentPeriodEnd int64      `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func parseSubscription(env Envelope, raw json.RawMessage) (Event, error) {
	var obj subscriptionObject
	if err := decodeObject(raw, &obj); err != nil {
		return nil, err
	}
	ev := SubscriptionChanged{
		Envelope:       env,
		SubscriptionID: obj.ID,
		Status:         types.ProviderSubscriptionStatus(obj.Status),
		CustomerID:     obj.Customer.ID,
	}
	end := obj.CurrentPeriodEnd
	if len(obj.Items.Data) > 0 {
		first := obj.Items.Data[0]
		ev.PriceID = first.Price.ID
		if first.CurrentPeriodEnd > 0 {
			end = first.CurrentPeriodEnd
		}
	}
	if end > 0 {
		t := time.Unix(end, 0).UTC()
		ev.CurrentPeriodEnd = &t
	}
	return ev, nil
}

type invoiceObject struct {
	ID           string      `json:"id"`
	Subscription *expandable `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
}

func (o invoiceObject) subscriptionID() string {
	if o.Parent != nil && o.Parent.SubscriptionDetails != nil && o.Parent.SubscriptionDetails.Subscription.ID != "" {
		return o.Parent.SubscriptionDetails.Subscription.ID
	}
	if o.Subscription != nil {
		return o.Subscription.ID
	}
	return ""
}

func parseInvoice(env Envelope, raw json.RawMessage) (Event, error) {
	var obj invoiceObject
	if err := decodeObject(raw, &obj); err != nil {
		return nil, err
	}
	succeeded := env.Type == EventInvoicePaymentSucceeded
	amount := obj.AmountDue
	if succeeded {
		amount = obj.AmountPaid
	}
	return InvoicePayment{
		Envelope:       env,
		InvoiceID:      obj.ID,
		SubscriptionID: obj.subscriptionID(),
		AmountMinor:    amount,
		Currency:       obj.Currency,
		Succeeded:      succeeded,
	}, nil
}

func decodeObject(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("event has no data.object")
	}
	return json.Unmarshal(raw, dst)
}
