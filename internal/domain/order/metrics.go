package order

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	pathRemote = attribute.String("path", "remote")
	pathQueued = attribute.String("path", "queued")

	outcomeOK       = attribute.String("outcome", "ok")
	outcomeRejected = attribute.String("outcome", "rejected")
	outcomeFailed   = attribute.String("outcome", "failed")
)

type metrics struct {
	submitted   metric.Int64Counter
	synced      metric.Int64Counter
	redemptions metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter("github.com/xenking/order-desk/internal/domain/order")

	submitted, err := meter.Int64Counter("order_desk.orders.submitted",
		metric.WithDescription("Orders accepted, by remote or queued path"))
	if err != nil {
		return nil, err
	}
	synced, err := meter.Int64Counter("order_desk.orders.synced",
		metric.WithDescription("Pending orders replayed against the remote store"))
	if err != nil {
		return nil, err
	}
	redemptions, err := meter.Int64Counter("order_desk.coupons.redemptions",
		metric.WithDescription("Coupon redemption attempts by outcome"))
	if err != nil {
		return nil, err
	}

	return &metrics{
		submitted:   submitted,
		synced:      synced,
		redemptions: redemptions,
	}, nil
}
