// Package events publishes committed domain changes for the notification
// service. Delivery is best effort and always happens after commit.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Event types
const (
	WalletTransactionUpdated = "wallet.transaction.updated"
	TradeOrderUpdated        = "trade.order.updated"
)

// Event is the message published on the channel
type Event struct {
	Type      string    `json:"type"`
	UserID    uint      `json:"user_id"`
	Reference string    `json:"reference,omitempty"`
	OrderID   uint      `json:"order_id,omitempty"`
	Status    string    `json:"status"`
	Amount    string    `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events to subscribers
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// RedisPublisher publishes JSON events with Redis PUBLISH
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher returns a publisher; a nil client yields a no-op publisher.
func NewRedisPublisher(rdb *redis.Client, channel string) Publisher {
	if rdb == nil {
		return Nop{}
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish never fails the caller; delivery errors are logged.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).Error("failed to marshal event")
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel": p.channel,
			"type":    ev.Type,
			"user_id": ev.UserID,
			"error":   err.Error(),
		}).Warn("failed to publish event")
	}
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
