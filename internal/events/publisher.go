// Package events publishes order desk domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/order-desk/internal/domain/order"
)

// Event types.
const (
	TypeOrderPlaced    = "order.placed"
	TypeCouponRedeemed = "coupon.redeemed"
)

var _ order.Publisher = (*Publisher)(nil)

// Config configures the Kafka publisher. No brokers disables publishing.
type Config struct {
	Brokers []string `usage:"Kafka broker addresses; empty disables events"`
	Topic   string   `default:"order-desk-events" usage:"Kafka topic for domain events"`
}

// Envelope is the JSON value of every message.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// OrderPlaced is the payload of TypeOrderPlaced.
type OrderPlaced struct {
	OrderID        string       `json:"orderId"`
	AgentID        string       `json:"agentId"`
	Items          []order.Item `json:"products"`
	Subtotal       string       `json:"subtotal"`
	DiscountAmount string       `json:"discountAmount"`
	TotalAmount    string       `json:"totalAmount"`
	CouponCode     string       `json:"couponCode,omitempty"`
	Date           time.Time    `json:"date"`
}

// CouponRedeemed is the payload of TypeCouponRedeemed.
type CouponRedeemed struct {
	Code   string    `json:"code"`
	UsedBy string    `json:"usedBy"`
	UsedAt time.Time `json:"usedAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes events to a single topic. Messages are keyed by order id
// or coupon code so that events of one entity stay ordered.
type Publisher struct {
	w   messageWriter
	now func() time.Time
}

// NewPublisher returns a Publisher for cfg, or a no-op one when cfg has no
// brokers.
func NewPublisher(cfg Config) *Publisher {
	if len(cfg.Brokers) == 0 {
		return &Publisher{now: time.Now}
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		now: time.Now,
	}
}

// Enabled reports whether events are actually sent.
func (p *Publisher) Enabled() bool {
	return p.w != nil
}

// OrderPlaced publishes an order that reached the remote store.
func (p *Publisher) OrderPlaced(ctx context.Context, o order.Order) error {
	return p.publish(ctx, o.ID, TypeOrderPlaced, OrderPlaced{
		OrderID:        o.ID,
		AgentID:        o.AgentID,
		Items:          o.Items,
		Subtotal:       o.Subtotal.StringFixed(2),
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		TotalAmount:    o.TotalAmount.StringFixed(2),
		CouponCode:     o.CouponCode,
		Date:           o.Date,
	})
}

// CouponRedeemed publishes a successful redemption.
func (p *Publisher) CouponRedeemed(ctx context.Context, code, agentID string, at time.Time) error {
	return p.publish(ctx, code, TypeCouponRedeemed, CouponRedeemed{
		Code:   code,
		UsedBy: agentID,
		UsedAt: at,
	})
}

func (p *Publisher) publish(ctx context.Context, key, typ string, payload any) error {
	if p.w == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", typ, err)
	}
	value, err := json.Marshal(Envelope{
		ID:         uuid.New().String(),
		Type:       typ,
		OccurredAt: p.now().UTC(),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("marshaling %s envelope: %w", typ, err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(typ)},
		},
	})
	if err != nil {
		return fmt.Errorf("writing %s event: %w", typ, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}
