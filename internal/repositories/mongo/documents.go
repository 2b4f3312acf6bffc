// Package mongo implements the repositories on MongoDB.
package mongo

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
	ID               string             `bson:"_id"`
	UserID           string             `bson:"userId"`
	Items            []orderItemDoc     `bson:"items"`
	TotalAmount      int64              `bson:"totalAmount"`
	Currency         string             `bson:"currency"`
	Address          addressDoc         `bson:"address"`
	DeliveryDate     string             `bson:"deliveryDate,omitempty"`
	DeliveryTime     string             `bson:"deliveryTime,omitempty"`
	Status           string             `bson:"status"`
	PaymentMethod    string             `bson:"paymentMethod"`
	PaymentStatus    string             `bson:"paymentStatus"`
	Payment          *paymentDoc        `bson:"payment,omitempty"`
	StockDecremented bool               `bson:"stockDecremented"`
	DeliveryOTP      *otpDoc            `bson:"deliveryOtp,omitempty"`
	Locale           string             `bson:"locale,omitempty"`
	CancelReason     string             `bson:"cancelReason,omitempty"`
	UpdatedBy        string             `bson:"updatedBy,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
	DeliveredAt      *time.Time         `bson:"deliveredAt,omitempty"`
	CancelledAt      *time.Time         `bson:"cancelledAt,omitempty"`
}

type orderItemDoc struct {
	ProductID   string `bson:"productId"`
	ProductName string `bson:"productName,omitempty"`
	Weight      string `bson:"selectedWeight"`
	UnitPrice   int64  `bson:"unitPrice"`
	Quantity    int    `bson:"quantity"`
	LineTotal   int64  `bson:"lineTotal"`
}

type addressDoc struct {
	Name    string `bson:"name,omitempty"`
	Phone   string `bson:"phone,omitempty"`
	Street  string `bson:"street"`
	City    string `bson:"city"`
	State   string `bson:"state"`
	Pincode string `bson:"pincode"`
}

type paymentDoc struct {
	Provider        string    `bson:"provider"`
	ProviderOrderID string    `bson:"providerOrderId"`
	PaymentID       string    `bson:"paymentId"`
	VerifiedAt      time.Time `bson:"verifiedAt"`
}

type otpDoc struct {
	Hash      string    `bson:"hash"`
	IssuedAt  time.Time `bson:"issuedAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
	Attempts  int       `bson:"attempts"`
}

type productDocument struct {
	ID                string     `bson:"_id"`
	Name              string     `bson:"name"`
	Description       string     `bson:"description,omitempty"`
	Category          string     `bson:"category,omitempty"`
	Prices            []tierDoc  `bson:"prices"`
	Discount          float64    `bson:"discount"`
	IsDiscountActive  bool       `bson:"isDiscountActive"`
	DiscountStartDate *time.Time `bson:"discountStartDate,omitempty"`
	DiscountEndDate   *time.Time `bson:"discountEndDate,omitempty"`
	IsAvailable       bool       `bson:"isAvailable"`
	CreatedAt         time.Time  `bson:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt"`
}

type tierDoc struct {
	Weight string `bson:"weight"`
	Price  int64  `bson:"price"`
	Stock  int    `bson:"stock"`
}

type cartDocument struct {
	UserID    string        `bson:"_id"`
	Items     []cartItemDoc `bson:"items"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

type cartItemDoc struct {
	ProductID string    `bson:"productId"`
	Weight    string    `bson:"selectedWeight"`
	UnitPrice int64     `bson:"unitPrice"`
	Quantity  int       `bson:"quantity"`
	LineTotal int64     `bson:"lineTotal"`
	AddedAt   time.Time `bson:"addedAt"`
}

func fromOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		ID:               order.ID,
		UserID:           order.UserID,
		Items:            make([]orderItemDoc, 0, len(order.Items)),
		TotalAmount:      order.TotalAmount,
		Currency:         order.Currency,
		Address:          addressDoc(order.Address),
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
		DeliveredAt:      utc(order.DeliveredAt),
		CancelledAt:      utc(order.CancelledAt),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDoc{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Weight:      string(item.Weight),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	if p := order.Payment; p != nil {
		doc.Payment = &paymentDoc{Provider: p.Provider, ProviderOrderID: p.ProviderOrderID, PaymentID: p.PaymentID, VerifiedAt: p.VerifiedAt.UTC()}
	}
	if otp := order.DeliveryOTP; otp != nil {
		doc.DeliveryOTP = &otpDoc{Hash: otp.Hash, IssuedAt: otp.IssuedAt.UTC(), ExpiresAt: otp.ExpiresAt.UTC(), Attempts: otp.Attempts}
	}
	return doc
}

func (d orderDocument) order() domain.Order {
	order := domain.Order{
		ID:               d.ID,
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
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		DeliveredAt:      utc(d.DeliveredAt),
		CancelledAt:      utc(d.CancelledAt),
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
	if p := d.Payment; p != nil {
		order.Payment = &domain.OrderPayment{Provider: p.Provider, ProviderOrderID: p.ProviderOrderID, PaymentID: p.PaymentID, VerifiedAt: p.VerifiedAt.UTC()}
	}
	if otp := d.DeliveryOTP; otp != nil {
		order.DeliveryOTP = &domain.DeliveryOTP{Hash: otp.Hash, IssuedAt: otp.IssuedAt.UTC(), ExpiresAt: otp.ExpiresAt.UTC(), Attempts: otp.Attempts}
	}
	return order
}

func fromProduct(product domain.Product) productDocument {
	doc := productDocument{
		ID:                product.ID,
		Name:              product.Name,
		Description:       product.Description,
		Category:          product.Category,
		Prices:            make([]tierDoc, 0, len(product.Prices)),
		Discount:          product.Discount,
		IsDiscountActive:  product.IsDiscountActive,
		DiscountStartDate: utc(product.DiscountStartDate),
		DiscountEndDate:   utc(product.DiscountEndDate),
		IsAvailable:       product.IsAvailable,
		CreatedAt:         product.CreatedAt.UTC(),
		UpdatedAt:         product.UpdatedAt.UTC(),
	}
	for _, tier := range product.Prices {
		doc.Prices = append(doc.Prices, tierDoc{Weight: string(tier.Weight), Price: tier.Price, Stock: tier.Stock})
	}
	return doc
}

func (d productDocument) product() domain.Product {
	product := domain.Product{
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		Category:          d.Category,
		Prices:            make([]domain.PriceTier, 0, len(d.Prices)),
		Discount:          d.Discount,
		IsDiscountActive:  d.IsDiscountActive,
		DiscountStartDate: utc(d.DiscountStartDate),
		DiscountEndDate:   utc(d.DiscountEndDate),
		IsAvailable:       d.IsAvailable,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
	for _, tier := range d.Prices {
		product.Prices = append(product.Prices, domain.PriceTier{Weight: domain.WeightTier(tier.Weight), Price: tier.Price, Stock: tier.Stock})
	}
	return product
}

func fromCart(cart domain.Cart) cartDocument {
	doc := cartDocument{UserID: cart.UserID, Items: make([]cartItemDoc, 0, len(cart.Items)), UpdatedAt: cart.UpdatedAt.UTC()}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDoc{
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

func (d cartDocument) cart() domain.Cart {
	cart := domain.Cart{UserID: d.UserID, Items: make([]domain.CartItem, 0, len(d.Items)), UpdatedAt: d.UpdatedAt.UTC()}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Weight:    domain.WeightTier(item.Weight),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return cart
}

func utc(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC()
	return &value
}
