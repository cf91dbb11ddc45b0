package processor

import (
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v76"
)

// ParseEvent decodes a webhook body. The caller must verify the signature
// first; the API version of the event is not checked.
func ParseEvent(body []byte) (*stripe.Event, error) {
	var e stripe.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	if e.Data == nil {
		return nil, errors.New("processor: event has no data object")
	}
	return &e, nil
}
