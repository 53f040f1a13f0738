package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// BuyStatus is the lifecycle state of a purchase.
type BuyStatus string

const (
	BuyPending   BuyStatus = "PENDING"
	BuyCompleted BuyStatus = "COMPLETED"
	BuyCancelled BuyStatus = "CANCELLED"
)

// RentStatus is the lifecycle state of a rental.
type RentStatus string

const (
	RentPending   RentStatus = "PENDING"
	RentActive    RentStatus = "ACTIVE"
	RentCompleted RentStatus = "COMPLETED"
	RentCancelled RentStatus = "CANCELLED"
)

// Blocking reports whether a rental in this status still holds its interval.
func (s RentStatus) Blocking() bool {
	return s == RentPending || s == RentActive
}

// Buy represents a purchase of a product.
type Buy struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	Price     decimal.Decimal `json:"price"`
	Status    BuyStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Rent represents a reservation of a product over [StartDate, EndDate).
type Rent struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	RenterUserID string          `json:"renter_user_id"`
	OwnerUserID  string          `json:"owner_user_id"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	RentalPrice  decimal.Decimal `json:"rental_price"`
	Status       RentStatus      `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Overlaps reports whether the rental's interval intersects [start, end).
// Intervals that only touch at a boundary do not overlap.
func (r *Rent) Overlaps(start, end time.Time) bool {
	return r.StartDate.Before(end) && r.EndDate.After(start)
}

// Kind discriminates the members of the Transaction union.
type Kind string

const (
	KindBuy  Kind = "BUY"
	KindRent Kind = "RENT"
)

// Role is a user's relationship to a transaction.
type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
	RoleRenter Role = "RENTER"
	RoleOwner  Role = "OWNER"
)

// Transaction is a read-only history entry: either a BuyTransaction or a
// RentTransaction, seen from one user's side.
type Transaction interface {
	Kind() Kind
	Role() Role
	Created() time.Time
	isTransaction()
}

// BuyTransaction is a Buy annotated with the viewer's role.
type BuyTransaction struct {
	Buy      *Buy
	UserRole Role
}

func (t BuyTransaction) Kind() Kind         { return KindBuy }
func (t BuyTransaction) Role() Role         { return t.UserRole }
func (t BuyTransaction) Created() time.Time { return t.Buy.CreatedAt }
func (BuyTransaction) isTransaction()        {}

// RentTransaction is a Rent annotated with the viewer's role.
type RentTransaction struct {
	Rent     *Rent
	UserRole Role
}

func (t RentTransaction) Kind() Kind         { return KindRent }
func (t RentTransaction) Role() Role         { return t.UserRole }
func (t RentTransaction) Created() time.Time { return t.Rent.CreatedAt }
func (RentTransaction) isTransaction()        {}

// TypeFilter selects which kinds GetTransactionHistory returns.
type TypeFilter string

const (
	TypeAll  TypeFilter = "ALL"
	TypeBuy  TypeFilter = "BUY"
	TypeRent TypeFilter = "RENT"
)

func (f TypeFilter) admits(k Kind) bool {
	return f == "" || f == TypeAll || string(f) == string(k)
}

// ParseBuyStatus validates a status filter value. An empty string means no filter.
func ParseBuyStatus(s string) (BuyStatus, error) {
	switch st := BuyStatus(s); st {
	case "", BuyPending, BuyCompleted, BuyCancelled:
		return st, nil
	}
	return "", invalidInputf("invalid buy status %q", s)
}

// ParseRentStatus validates a status filter value. An empty string means no filter.
func ParseRentStatus(s string) (RentStatus, error) {
	switch st := RentStatus(s); st {
	case "", RentPending, RentActive, RentCompleted, RentCancelled:
		return st, nil
	}
	return "", invalidInputf("invalid rent status %q", s)
}

// ParseTypeFilter validates a history type filter. An empty string means ALL.
func ParseTypeFilter(s string) (TypeFilter, error) {
	switch f := TypeFilter(s); f {
	case "":
		return TypeAll, nil
	case TypeAll, TypeBuy, TypeRent:
		return f, nil
	}
	return "", invalidInputf("invalid transaction type %q", s)
}
