package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Signature"

// Webhook event names
const (
	EventChargeCompleted   = "charge.completed"
	EventChargeFailed      = "charge.failed"
	EventTransferCompleted = "transfer.completed"
	EventTransferFailed    = "transfer.failed"
)

// WebhookEvent is the body the processor posts to us
type WebhookEvent struct {
	Event string `json:"event"`
	Data  Result `json:"data"`
}

// IsTransfer reports whether the event is about a payout
func (e WebhookEvent) IsTransfer() bool {
	return strings.HasPrefix(e.Event, "transfer.")
}

// Sign returns the signature the processor puts on body
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against body in constant time. An empty
// secret never verifies.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseWebhook decodes a webhook body and normalises its status. When the
// payload carries no status of its own the event name decides.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if ev.Data.Status == "" {
		switch ev.Event {
		case EventChargeCompleted, EventTransferCompleted:
			ev.Data.Status = StatusSucceeded
		case EventChargeFailed, EventTransferFailed:
			ev.Data.Status = StatusFailed
		}
	}
	ev.Data.Status = NormalizeStatus(ev.Data.Status)
	return &ev, nil
}
