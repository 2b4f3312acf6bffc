package handlers

import (
	"github.com/picklepantry/api/internal/services"
)

type addressPayload struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

func (a addressPayload) toService() services.Address {
	return services.Address{
		Name:    a.Name,
		Phone:   a.Phone,
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		Pincode: a.Pincode,
	}
}

func buildAddressPayload(a services.Address) addressPayload {
	return addressPayload{
		Name:    a.Name,
		Phone:   a.Phone,
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		Pincode: a.Pincode,
	}
}

type orderItemPayload struct {
	ProductID      string `json:"productId"`
	ProductName    string `json:"productName,omitempty"`
	SelectedWeight string `json:"selectedWeight"`
	UnitPrice      int64  `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	TotalPrice     int64  `json:"totalPrice"`
}

type orderPaymentPayload struct {
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"providerOrderId"`
	PaymentID       string `json:"paymentId"`
	VerifiedAt      string `json:"verifiedAt,omitempty"`
}

type deliveryOTPPayload struct {
	IssuedAt  string `json:"issuedAt"`
	ExpiresAt string `json:"expiresAt"`
	Attempts  int    `json:"attempts"`
}

// orderPayload is the wire shape of an order. The delivery code hash never leaves the
// service.
type orderPayload struct {
	ID               string               `json:"id"`
	UserID           string               `json:"userId"`
	Items            []orderItemPayload   `json:"items"`
	TotalAmount      int64                `json:"totalAmount"`
	Currency         string               `json:"currency,omitempty"`
	Address          addressPayload       `json:"address"`
	DeliveryDate     string               `json:"deliveryDate,omitempty"`
	DeliveryTime     string               `json:"deliveryTime,omitempty"`
	Status           string               `json:"status"`
	PaymentMethod    string               `json:"paymentMethod"`
	PaymentStatus    string               `json:"paymentStatus"`
	Payment          *orderPaymentPayload `json:"payment,omitempty"`
	StockDecremented bool                 `json:"stockDecremented"`
	DeliveryOTP      *deliveryOTPPayload  `json:"deliveryOtp,omitempty"`
	Locale           string               `json:"locale,omitempty"`
	CancelReason     string               `json:"cancelReason,omitempty"`
	CreatedAt        string               `json:"createdAt"`
	UpdatedAt        string               `json:"updatedAt,omitempty"`
	DeliveredAt      *string              `json:"deliveredAt,omitempty"`
	CancelledAt      *string              `json:"cancelledAt,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		UserID:           order.UserID,
		Items:            make([]orderItemPayload, 0, len(order.Items)),
		TotalAmount:      order.TotalAmount,
		Currency:         order.Currency,
		Address:          buildAddressPayload(order.Address),
		DeliveryDate:     order.DeliveryDate,
		DeliveryTime:     order.DeliveryTime,
		Status:           string(order.Status),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentStatus:    string(order.PaymentStatus),
		StockDecremented: order.StockDecremented,
		Locale:           order.Locale,
		CancelReason:     order.CancelReason,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
		DeliveredAt:      formatTimePtr(order.DeliveredAt),
		CancelledAt:      formatTimePtr(order.CancelledAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			SelectedWeight: string(item.Weight),
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			TotalPrice:     item.LineTotal,
		})
	}
	if order.Payment != nil {
		payload.Payment = &orderPaymentPayload{
			Provider:        order.Payment.Provider,
			ProviderOrderID: order.Payment.ProviderOrderID,
			PaymentID:       order.Payment.PaymentID,
			VerifiedAt:      formatTime(order.Payment.VerifiedAt),
		}
	}
	if order.DeliveryOTP != nil {
		payload.DeliveryOTP = &deliveryOTPPayload{
			IssuedAt:  formatTime(order.DeliveryOTP.IssuedAt),
			ExpiresAt: formatTime(order.DeliveryOTP.ExpiresAt),
			Attempts:  order.DeliveryOTP.Attempts,
		}
	}
	return payload
}

func buildOrderList(page []services.Order, next string) orderListResponse {
	resp := orderListResponse{Items: make([]orderPayload, 0, len(page)), NextPageToken: next}
	for _, order := range page {
		resp.Items = append(resp.Items, buildOrderPayload(order))
	}
	return resp
}

type priceTierPayload struct {
	Weight     string `json:"weight"`
	Price      int64  `json:"price"`
	FinalPrice int64  `json:"finalPrice"`
	Stock      int    `json:"stock"`
}

type productPayload struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Category          string             `json:"category,omitempty"`
	Prices            []priceTierPayload `json:"prices"`
	Discount          float64            `json:"discount"`
	IsDiscountActive  bool               `json:"isDiscountActive"`
	DiscountValid     bool               `json:"discountValid"`
	DiscountStartDate *string            `json:"discountStartDate,omitempty"`
	DiscountEndDate   *string            `json:"discountEndDate,omitempty"`
	IsAvailable       bool               `json:"isAvailable"`
	CreatedAt         string             `json:"createdAt,omitempty"`
	UpdatedAt         string             `json:"updatedAt,omitempty"`
}

func buildProductPayload(quote services.ProductQuote) productPayload {
	product := quote.Product
	payload := productPayload{
		ID:                product.ID,
		Name:              product.Name,
		Description:       product.Description,
		Category:          product.Category,
		Prices:            make([]priceTierPayload, 0, len(quote.Tiers)),
		Discount:          product.Discount,
		IsDiscountActive:  product.IsDiscountActive,
		DiscountValid:     quote.DiscountValid,
		DiscountStartDate: formatTimePtr(product.DiscountStartDate),
		DiscountEndDate:   formatTimePtr(product.DiscountEndDate),
		IsAvailable:       product.IsAvailable,
		CreatedAt:         formatTime(product.CreatedAt),
		UpdatedAt:         formatTime(product.UpdatedAt),
	}
	for _, tier := range quote.Tiers {
		payload.Prices = append(payload.Prices, priceTierPayload{
			Weight:     string(tier.Weight),
			Price:      tier.Price,
			FinalPrice: tier.FinalPrice,
			Stock:      tier.Stock,
		})
	}
	return payload
}

type cartItemPayload struct {
	ProductID      string `json:"productId"`
	SelectedWeight string `json:"selectedWeight"`
	UnitPrice      int64  `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	TotalPrice     int64  `json:"totalPrice"`
	AddedAt        string `json:"addedAt,omitempty"`
}

type cartResponse struct {
	Items       []cartItemPayload `json:"items"`
	TotalAmount int64             `json:"totalAmount"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
}

func buildCartResponse(cart services.Cart) cartResponse {
	resp := cartResponse{Items: make([]cartItemPayload, 0, len(cart.Items)), UpdatedAt: formatTime(cart.UpdatedAt)}
	for _, item := range cart.Items {
		resp.Items = append(resp.Items, cartItemPayload{
			ProductID:      item.ProductID,
			SelectedWeight: string(item.Weight),
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			TotalPrice:     item.LineTotal,
			AddedAt:        formatTime(item.AddedAt),
		})
		resp.TotalAmount += item.LineTotal
	}
	return resp
}
