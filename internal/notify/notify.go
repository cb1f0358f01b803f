// Package notify defines the hand-off boundary to the external analysis
// service. After the audit stage, one summary message per job is published
// through a Publisher; what the analysis service does with it is out of
// this service's hands.
package notify

import "context"

// Publisher delivers one payload to a named topic and returns the
// broker-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
