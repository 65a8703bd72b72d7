package pending

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/order"
)

// The stored form is a JSON array of orders. Amounts are decimal strings so
// that no precision is lost across restarts.

func encodeOrders(orders []order.Order) string {
	var e jx.Encoder
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(&e, o)
	}
	e.ArrEnd()
	return e.String()
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerName")
	e.Str(o.CustomerName)
	e.FieldStart("customerAddress")
	e.Str(o.CustomerAddress)
	e.FieldStart("customerMobile1")
	e.Str(o.CustomerMobile1)
	e.FieldStart("customerMobile2")
	e.Str(o.CustomerMobile2)
	e.FieldStart("products")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.String())
	e.FieldStart("discountAmount")
	e.Str(o.DiscountAmount.String())
	e.FieldStart("totalAmount")
	e.Str(o.TotalAmount.String())
	e.FieldStart("date")
	e.Str(o.Date.UTC().Format(time.RFC3339Nano))
	e.FieldStart("agentId")
	e.Str(o.AgentID)
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.ObjEnd()
}

func decodeOrders(raw string) ([]order.Order, error) {
	var orders []order.Order
	err := jx.DecodeStr(raw).Arr(func(d *jx.Decoder) error {
		o, err := decodeOrder(d)
		if err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	})
	return orders, err
}

func decodeOrder(d *jx.Decoder) (order.Order, error) {
	var o order.Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "customerName":
			o.CustomerName, err = d.Str()
		case "customerAddress":
			o.CustomerAddress, err = d.Str()
		case "customerMobile1":
			o.CustomerMobile1, err = d.Str()
		case "customerMobile2":
			o.CustomerMobile2, err = d.Str()
		case "products":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return err
				}
				o.Items = append(o.Items, item)
				return nil
			})
		case "subtotal":
			o.Subtotal, err = decodeAmount(d)
		case "discountAmount":
			o.DiscountAmount, err = decodeAmount(d)
		case "totalAmount":
			o.TotalAmount, err = decodeAmount(d)
		case "date":
			var s string
			if s, err = d.Str(); err == nil {
				o.Date, err = time.Parse(time.RFC3339Nano, s)
			}
		case "agentId":
			o.AgentID, err = d.Str()
		case "couponCode":
			o.CouponCode, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return o, err
}

func decodeItem(d *jx.Decoder) (order.Item, error) {
	var item order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
