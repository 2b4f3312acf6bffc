package firestore

import (
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"
	cartsCollection    = "carts"
)

type orderDocument struct {
	UserID           string                `firestore:"userId"`
	Items            []orderItemDocument   `firestore:"items"`
	TotalAmount      int64                 `firestore:"totalAmount"`
	Currency         string                `firestore:"currency"`
	Address          addressDocument       `firestore:"address"`
	DeliveryDate     string                `firestore:"deliveryDate,omitempty"`
	DeliveryTime     string                `firestore:"deliveryTime,omitempty"`
	Status           string                `firestore:"status"`
	PaymentMethod    string                `firestore:"paymentMethod"`
	PaymentStatus    string                `firestore:"paymentStatus"`
	Payment          *orderPaymentDocument `firestore:"payment,omitempty"`
	StockDecremented bool                  `firestore:"stockDecremented"`
	DeliveryOTP      *deliveryOTPDocument  `firestore:"deliveryOtp,omitempty"`
	Locale           string                `firestore:"locale,omitempty"`
	CancelReason     string                `firestore:"cancelReason,omitempty"`
	UpdatedBy        string                `firestore:"updatedBy,omitempty"`
	CreatedAt        time.Time             `firestore:"createdAt"`
	UpdatedAt        time.Time             `firestore:"updatedAt"`
	DeliveredAt      *time.Time            `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time            `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName,omitempty"`
	Weight      string `firestore:"selectedWeight"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int    `firestore:"quantity"`
	LineTotal   int64  `firestore:"lineTotal"`
}

type addressDocument struct {
	Name    string `firestore:"name,omitempty"`
	Phone   string `firestore:"phone,omitempty"`
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Pincode string `firestore:"pincode"`
}

type orderPaymentDocument struct {
	Provider        string    `firestore:"provider"`
	ProviderOrderID string    `firestore:"providerOrderId"`
	PaymentID       string    `firestore:"paymentId"`
	VerifiedAt      time.Time `firestore:"verifiedAt"`
}

type deliveryOTPDocument struct {
	Hash      string    `firestore:"hash"`
	IssuedAt  time.Time `firestore:"issuedAt"`
	ExpiresAt time.Time `firestore:"expiresAt"`
	Attempts  int       `firestore:"attempts"`
}

type productDocument struct {
	Name              string              `firestore:"name"`
	Description       string              `firestore:"description,omitempty"`
	Category          string              `firestore:"category,omitempty"`
	Prices            []priceTierDocument `firestore:"prices"`
	Discount          float64             `firestore:"discount"`
	IsDiscountActive  bool                `firestore:"isDiscountActive"`
	DiscountStartDate *time.Time          `firestore:"discountStartDate,omitempty"`
	DiscountEndDate   *time.Time          `firestore:"discountEndDate,omitempty"`
	IsAvailable       bool                `firestore:"isAvailable"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
}

type priceTierDocument struct {
	Weight string `firestore:"weight"`
	Price  int64  `firestore:"price"`
	Stock  int    `firestore:"stock"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Weight    string    `firestore:"selectedWeight"`
	UnitPrice int64     `firestore:"unitPrice"`
	Quantity  int       `firestore:"quantity"`
	LineTotal int64     `firestore:"lineTotal"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:           order.UserID,
		Items:            make([]orderItemDocument, 0, len(order.Items)),
		TotalAmount:      order.TotalAmount,
		Currency:         order.Currency,
		Address:          addressDocument(order.Address),
		DeliveryDate:     order.DeliveryDate,
		DeliveryTime:     order.DeliveryTime,
		Status:           string(order.Status),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentStatus:    string(order.PaymentStatus),
		StockDecremented: order.StockDecremented,
		Locale:           order.Locale,
		CancelReason:     order.CancelReason,
		UpdatedBy:        order.UpdatedBy,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
		DeliveredAt:      utcPointer(order.DeliveredAt),
		CancelledAt:      utcPointer(order.CancelledAt),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Weight:      string(item.Weight),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	if order.Payment != nil {
		doc.Payment = &orderPaymentDocument{
			Provider:        order.Payment.Provider,
			ProviderOrderID: order.Payment.ProviderOrderID,
			PaymentID:       order.Payment.PaymentID,
			VerifiedAt:      order.Payment.VerifiedAt.UTC(),
		}
	}
	if order.DeliveryOTP != nil {
		doc.DeliveryOTP = &deliveryOTPDocument{
			Hash:      order.DeliveryOTP.Hash,
			IssuedAt:  order.DeliveryOTP.IssuedAt.UTC(),
			ExpiresAt: order.DeliveryOTP.ExpiresAt.UTC(),
			Attempts:  order.DeliveryOTP.Attempts,
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:               id,
		UserID:           d.UserID,
		Items:            make([]domain.OrderItem, 0, len(d.Items)),
		TotalAmount:      d.TotalAmount,
		Currency:         d.Currency,
		Address:          domain.Address(d.Address),
		DeliveryDate:     d.DeliveryDate,
		DeliveryTime:     d.DeliveryTime,
		Status:           domain.OrderStatus(d.Status),
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(d.PaymentStatus),
		StockDecremented: d.StockDecremented,
		Locale:           d.Locale,
		CancelReason:     d.CancelReason,
		UpdatedBy:        d.UpdatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		DeliveredAt:      utcPointer(d.DeliveredAt),
		CancelledAt:      utcPointer(d.CancelledAt),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Weight:      domain.WeightTier(item.Weight),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	if d.Payment != nil {
		order.Payment = &domain.OrderPayment{
			Provider:        d.Payment.Provider,
			ProviderOrderID: d.Payment.ProviderOrderID,
			PaymentID:       d.Payment.PaymentID,
			VerifiedAt:      d.Payment.VerifiedAt,
		}
	}
	if d.DeliveryOTP != nil {
		order.DeliveryOTP = &domain.DeliveryOTP{
			Hash:      d.DeliveryOTP.Hash,
			IssuedAt:  d.DeliveryOTP.IssuedAt,
			ExpiresAt: d.DeliveryOTP.ExpiresAt,
			Attempts:  d.DeliveryOTP.Attempts,
		}
	}
	return order
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:              product.Name,
		Description:       product.Description,
		Category:          product.Category,
		Prices:            encodeTiers(product.Prices),
		Discount:          product.Discount,
		IsDiscountActive:  product.IsDiscountActive,
		DiscountStartDate: utcPointer(product.DiscountStartDate),
		DiscountEndDate:   utcPointer(product.DiscountEndDate),
		IsAvailable:       product.IsAvailable,
		CreatedAt:         product.CreatedAt.UTC(),
		UpdatedAt:         product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	product := domain.Product{
		ID:                id,
		Name:              d.Name,
		Description:       d.Description,
		Category:          d.Category,
		Prices:            make([]domain.PriceTier, 0, len(d.Prices)),
		Discount:          d.Discount,
		IsDiscountActive:  d.IsDiscountActive,
		DiscountStartDate: utcPointer(d.DiscountStartDate),
		DiscountEndDate:   utcPointer(d.DiscountEndDate),
		IsAvailable:       d.IsAvailable,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	for _, tier := range d.Prices {
		product.Prices = append(product.Prices, domain.PriceTier{
			Weight: domain.WeightTier(tier.Weight),
			Price:  tier.Price,
			Stock:  tier.Stock,
		})
	}
	return product
}

func encodeTiers(tiers []domain.PriceTier) []priceTierDocument {
	docs := make([]priceTierDocument, 0, len(tiers))
	for _, tier := range tiers {
		docs = append(docs, priceTierDocument{
			Weight: string(tier.Weight),
			Price:  tier.Price,
			Stock:  tier.Stock,
		})
	}
	return docs
}

func newCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Weight:    string(item.Weight),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	cart := domain.Cart{
		UserID:    userID,
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Weight:    domain.WeightTier(item.Weight),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
			AddedAt:   item.AddedAt,
		})
	}
	return cart
}

func utcPointer(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC()
	return &value
}
