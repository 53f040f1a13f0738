package api

import (
	"time"

	"github.com/shopspring/decimal"

	"rentbuy/internal/transaction"
)

type rentRequest struct {
	StartDate *time.Time `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date" validate:"required"`
}

// ProductSummary is the catalog data shown next to a buy or rent. It is
// omitted when the catalog no longer knows the product.
type ProductSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	OwnerID  string `json:"owner_id"`
	RentUnit string `json:"rent_unit,omitempty"`
}

// BuyResponse is the wire shape of a purchase.
type BuyResponse struct {
	ID        string                `json:"id"`
	ProductID string                `json:"product_id"`
	Product   *ProductSummary       `json:"product,omitempty"`
	BuyerID   string                `json:"buyer_id"`
	SellerID  string                `json:"seller_id"`
	Price     decimal.Decimal       `json:"price"`
	Status    transaction.BuyStatus `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// RentResponse is the wire shape of a rental.
type RentResponse struct {
	ID           string                 `json:"id"`
	ProductID    string                 `json:"product_id"`
	Product      *ProductSummary        `json:"product,omitempty"`
	RenterUserID string                 `json:"renter_user_id"`
	OwnerUserID  string                 `json:"owner_user_id"`
	StartDate    time.Time              `json:"start_date"`
	EndDate      time.Time              `json:"end_date"`
	RentalPrice  decimal.Decimal        `json:"rental_price"`
	Status       transaction.RentStatus `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// TransactionResponse is one history entry. Exactly one of Buy and Rent is
// set, as named by Type.
type TransactionResponse struct {
	Type      transaction.Kind `json:"type"`
	UserRole  transaction.Role `json:"user_role"`
	CreatedAt time.Time        `json:"created_at"`
	Product   *ProductSummary  `json:"product,omitempty"`
	Buy       *BuyResponse     `json:"buy,omitempty"`
	Rent      *RentResponse    `json:"rent,omitempty"`
}

type errorResponse struct {
	Error string                `json:"error"`
	Code  transaction.ErrorKind `json:"code"`
}

// productIndex maps product ids to the catalog entries looked up for a response.
type productIndex map[string]*transaction.Product

func (idx productIndex) summary(productID string) *ProductSummary {
	p, ok := idx[productID]
	if !ok {
		return nil
	}
	return &ProductSummary{
		ID:       p.ID,
		Title:    p.Title,
		OwnerID:  p.OwnerID,
		RentUnit: p.RentUnit,
	}
}

func newBuyResponse(b *transaction.Buy, products productIndex) *BuyResponse {
	return &BuyResponse{
		ID:        b.ID,
		ProductID: b.ProductID,
		Product:   products.summary(b.ProductID),
		BuyerID:   b.BuyerID,
		SellerID:  b.SellerID,
		Price:     b.Price,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func newRentResponse(r *transaction.Rent, products productIndex) *RentResponse {
	return &RentResponse{
		ID:           r.ID,
		ProductID:    r.ProductID,
		Product:      products.summary(r.ProductID),
		RenterUserID: r.RenterUserID,
		OwnerUserID:  r.OwnerUserID,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		RentalPrice:  r.RentalPrice,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func newBuyResponses(buys []*transaction.Buy, products productIndex) []*BuyResponse {
	out := make([]*BuyResponse, 0, len(buys))
	for _, b := range buys {
		out = append(out, newBuyResponse(b, products))
	}
	return out
}

func newRentResponses(rents []*transaction.Rent, products productIndex) []*RentResponse {
	out := make([]*RentResponse, 0, len(rents))
	for _, r := range rents {
		out = append(out, newRentResponse(r, products))
	}
	return out
}

func newTransactionResponses(history []transaction.Transaction, products productIndex) []*TransactionResponse {
	out := make([]*TransactionResponse, 0, len(history))
	for _, tx := range history {
		resp := &TransactionResponse{
			Type:      tx.Kind(),
			UserRole:  tx.Role(),
			CreatedAt: tx.Created(),
		}
		switch v := tx.(type) {
		case transaction.BuyTransaction:
			resp.Buy = newBuyResponse(v.Buy, products)
			resp.Product = resp.Buy.Product
		case transaction.RentTransaction:
			resp.Rent = newRentResponse(v.Rent, products)
			resp.Product = resp.Rent.Product
		}
		out = append(out, resp)
	}
	return out
}
