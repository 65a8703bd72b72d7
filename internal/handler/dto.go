package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/coupon"
	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
)

// amount renders money with two decimal places. Amounts travel as strings
// so clients never see binary floating point.
func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type orderItemDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	CustomerName    string         `json:"customerName"`
	CustomerAddress string         `json:"customerAddress"`
	CustomerMobile1 string         `json:"customerMobile1"`
	CustomerMobile2 string         `json:"customerMobile2"`
	Products        []orderItemDTO `json:"products"`
	CouponCode      string         `json:"couponCode"`
}

func (r orderRequest) draft() order.Draft {
	items := make([]order.Item, len(r.Products))
	for i, p := range r.Products {
		items[i] = order.Item{ProductID: p.ProductID, Quantity: p.Quantity}
	}
	return order.Draft{
		CustomerName:    r.CustomerName,
		CustomerAddress: r.CustomerAddress,
		CustomerMobile1: r.CustomerMobile1,
		CustomerMobile2: r.CustomerMobile2,
		Items:           items,
		CouponCode:      r.CouponCode,
	}
}

type orderDTO struct {
	ID              string         `json:"id"`
	CustomerName    string         `json:"customerName"`
	CustomerAddress string         `json:"customerAddress"`
	CustomerMobile1 string         `json:"customerMobile1"`
	CustomerMobile2 string         `json:"customerMobile2,omitempty"`
	Products        []orderItemDTO `json:"products"`
	Subtotal        string         `json:"subtotal"`
	DiscountAmount  string         `json:"discountAmount"`
	TotalAmount     string         `json:"totalAmount"`
	Date            time.Time      `json:"date"`
	AgentID         string         `json:"agentId"`
	CouponCode      string         `json:"couponCode,omitempty"`
	Pending         bool           `json:"pending"`
}

func toOrderDTO(o order.Order) orderDTO {
	items := make([]orderItemDTO, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemDTO{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return orderDTO{
		ID:              o.ID,
		CustomerName:    o.CustomerName,
		CustomerAddress: o.CustomerAddress,
		CustomerMobile1: o.CustomerMobile1,
		CustomerMobile2: o.CustomerMobile2,
		Products:        items,
		Subtotal:        amount(o.Subtotal),
		DiscountAmount:  amount(o.DiscountAmount),
		TotalAmount:     amount(o.TotalAmount),
		Date:            o.Date,
		AgentID:         o.AgentID,
		CouponCode:      o.CouponCode,
		Pending:         order.IsPlaceholder(o.ID),
	}
}

func toOrderDTOs(orders []order.Order) []orderDTO {
	out := make([]orderDTO, len(orders))
	for i, o := range orders {
		out[i] = toOrderDTO(o)
	}
	return out
}

type placeOrderResponse struct {
	Order  orderDTO `json:"order"`
	Queued bool     `json:"queued"`
}

type productDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

func toProductDTOs(products []product.Product) []productDTO {
	out := make([]productDTO, len(products))
	for i, p := range products {
		out[i] = productDTO{ID: p.ID, Name: p.Name, Price: amount(p.Price)}
	}
	return out
}

type validateCouponRequest struct {
	Code string `json:"code"`
}

type couponDTO struct {
	Code               string     `json:"code"`
	DiscountPercentage string     `json:"discountPercentage"`
	IsUsed             bool       `json:"isUsed"`
	UsedBy             string     `json:"usedBy,omitempty"`
	UsedAt             *time.Time `json:"usedAt,omitempty"`
}

func toCouponDTO(c coupon.Coupon) couponDTO {
	return couponDTO{
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage.String(),
		IsUsed:             c.IsUsed,
		UsedBy:             c.UsedBy,
		UsedAt:             c.UsedAt,
	}
}

type connectivityDTO struct {
	Online    bool   `json:"online"`
	LastError string `json:"lastError,omitempty"`
	Pending   int    `json:"pending"`
}

type syncedDTO struct {
	PlaceholderID string `json:"placeholderId"`
	ID            string `json:"id"`
}

type syncResponse struct {
	Synced []syncedDTO `json:"synced"`
	Failed []string    `json:"failed,omitempty"`
}

func toSyncResponse(res *order.SyncResult) syncResponse {
	resp := syncResponse{Synced: []syncedDTO{}}
	if res == nil {
		return resp
	}
	for _, s := range res.Synced {
		resp.Synced = append(resp.Synced, syncedDTO{PlaceholderID: s.PlaceholderID, ID: s.ID})
	}
	resp.Failed = res.Failed
	return resp
}

type reportResponse struct {
	Orders   []orderDTO `json:"orders"`
	Count    int        `json:"count"`
	Revenue  string     `json:"revenue"`
	Discount string     `json:"discount"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
