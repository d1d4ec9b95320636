package webhook

import (
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeSignatureHeader carries the Stripe event signature.
const StripeSignatureHeader = "Stripe-Signature"

const checkoutCompleted = "checkout.session.completed"

// Checkout is the part of a completed Stripe checkout the resolver needs.
type Checkout struct {
	SessionID    string
	BillingEmail string
}

// ParseStripe verifies a Stripe event and extracts the completed checkout.
// Events of any other type return (nil, nil).
func ParseStripe(payload []byte, sigHeader, secret string) (*Checkout, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Type != checkoutCompleted {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: unmarshal checkout session: %v", ErrInvalidPayload, err)
	}

	c := &Checkout{SessionID: sess.ID}
	if sess.CustomerDetails != nil {
		c.BillingEmail = sess.CustomerDetails.Email
	}
	if c.BillingEmail == "" {
		c.BillingEmail = sess.CustomerEmail
	}
	if c.BillingEmail == "" {
		return nil, fmt.Errorf("%w: checkout session %s has no customer email", ErrInvalidPayload, sess.ID)
	}
	return c, nil
}
