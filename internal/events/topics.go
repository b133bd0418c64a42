package events

import "github.com/noah-isme/kasir-desk/internal/pricing"

// Topic constants for session events.
const (
	TopicSessionOpened     = "session.opened"
	TopicSessionDiscarded  = "session.discarded"
	TopicCheckoutSubmitted = "checkout.submitted"
	TopicCheckoutSucceeded = "checkout.succeeded"
	TopicCheckoutFailed    = "checkout.failed"
)

// DefaultTopics returns every topic the service emits.
func DefaultTopics() []string {
	return []string{
		TopicSessionOpened,
		TopicSessionDiscarded,
		TopicCheckoutSubmitted,
		TopicCheckoutSucceeded,
		TopicCheckoutFailed,
	}
}

// CheckoutPayload is the payload of the checkout topics.
type CheckoutPayload struct {
	Kind      string        `json:"kind"`
	Reference string        `json:"reference"`
	NetTotal  pricing.Money `json:"net_total"`
	Received  pricing.Money `json:"amount_received"`
	SaleID    string        `json:"sale_id,omitempty"`
	Error     string        `json:"error,omitempty"`
}
