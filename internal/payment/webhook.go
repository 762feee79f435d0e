package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

type EventKind int

const (
	EventUnknown EventKind = iota
	EventSucceeded
	EventFailed
)

var eventKinds = map[string]EventKind{
	"checkout.completed":               EventSucceeded,
	"payment_intent.payment_succeeded": EventSucceeded,
	"payment_intent.succeeded":         EventSucceeded,
	"payment_intent.payment_failed":    EventFailed,
	"checkout.expired":                 EventFailed,
}

// GatewayEvent is the subset of a webhook delivery the reconciliation needs.
type GatewayEvent struct {
	Type             string
	SessionID        string
	PaymentID        int64
	GatewayPaymentID string
	Raw              map[string]any
}

func (e *GatewayEvent) Kind() EventKind {
	return eventKinds[strings.ToLower(e.Type)]
}

// HasCorrelation reports whether the event can be tied to a local record at all.
func (e *GatewayEvent) HasCorrelation() bool {
	return e.SessionID != "" || e.PaymentID > 0
}

// ParseWebhook accepts both "type" and "event_type" envelopes. Metadata values
// arrive as strings or numbers depending on the gateway's serializer.
func ParseWebhook(body []byte) (*GatewayEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("webhook body is not an object")
	}

	evt := &GatewayEvent{Raw: raw}
	evt.Type = cast.ToString(raw["event_type"])
	if evt.Type == "" {
		evt.Type = cast.ToString(raw["type"])
	}

	data := cast.ToStringMap(raw["data"])
	if len(data) == 0 {
		return evt, nil
	}

	evt.SessionID = cast.ToString(data["session_id"])
	if evt.SessionID == "" && strings.HasPrefix(strings.ToLower(evt.Type), "checkout.") {
		evt.SessionID = cast.ToString(data["id"])
	}

	if strings.HasPrefix(strings.ToLower(evt.Type), "payment_intent.") {
		evt.GatewayPaymentID = cast.ToString(data["id"])
	}
	if pid := cast.ToString(data["payment_id"]); pid != "" {
		evt.GatewayPaymentID = pid
	}

	metadata := cast.ToStringMap(data["metadata"])
	if id, err := cast.ToInt64E(metadata["payment_id"]); err == nil && id > 0 {
		evt.PaymentID = id
	} else if id, err := cast.ToInt64E(data["client_reference_id"]); err == nil && id > 0 {
		evt.PaymentID = id
	}

	return evt, nil
}
