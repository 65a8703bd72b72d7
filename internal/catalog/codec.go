package catalog

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/product"
)

func encodeProducts(products []product.Product) string {
	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("price")
		e.Str(p.Price.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.String()
}

func decodeProducts(raw string) ([]product.Product, error) {
	var products []product.Product
	err := jx.DecodeStr(raw).Arr(func(d *jx.Decoder) error {
		var p product.Product
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					p.Price, err = decimal.NewFromString(s)
				}
			default:
				err = d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	return products, err
}
