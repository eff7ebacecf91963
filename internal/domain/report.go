package domain

import "context"

// Report is one rendered change notification for one subscriber. Reports are
// produced per cycle and never stored.
type Report struct {
	SubscriberID SubscriberID `json:"subscriber_id"`
	Region       string       `json:"region"`
	Text         string       `json:"text"`
}

// Deliverer hands a report to the outside world. Idempotency is the
// implementation's concern.
type Deliverer interface {
	Deliver(ctx context.Context, report Report) error
}
