package transaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service validates and executes buy, rent and cancel operations against a
// Catalog and a Storage backend, and builds history views.
type Service struct {
	storage Storage
	catalog Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new Service.
func NewService(storage Storage, catalog Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		storage: storage,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// BuyProduct records a completed purchase of productID by buyerID at the
// product's current purchase price.
func (s *Service) BuyProduct(ctx context.Context, buyerID, productID string) (*Buy, error) {
	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		return nil, s.rejectLookup(err, "buy", buyerID, productID)
	}
	if product.PurchasePrice == nil {
		return nil, s.reject(ErrNotForSale, "buy", buyerID, productID)
	}
	if product.OwnerID == buyerID {
		return nil, s.reject(ErrOwnProductBuy, "buy", buyerID, productID)
	}

	now := s.clock()
	buy := &Buy{
		ID:        uuid.NewString(),
		ProductID: productID,
		BuyerID:   buyerID,
		SellerID:  product.OwnerID,
		Price:     *product.PurchasePrice,
		Status:    BuyCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.CreateBuy(ctx, buy); err != nil {
		s.logger.Error("failed to save buy", zap.String("buy_id", buy.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to save buy: %w", err)
	}

	s.logger.Info("buy created",
		zap.String("buy_id", buy.ID),
		zap.String("product_id", productID),
		zap.String("buyer_id", buyerID),
		zap.String("seller_id", buy.SellerID),
		zap.Stringer("price", buy.Price),
	)
	return buy, nil
}

// RentProduct reserves productID for renterID over [start, end).
func (s *Service) RentProduct(ctx context.Context, renterID, productID string, start, end time.Time) (*Rent, error) {
	start, end = start.UTC().Truncate(time.Microsecond), end.UTC().Truncate(time.Microsecond)
	if !start.Before(end) {
		return nil, s.reject(ErrInvalidPeriod, "rent", renterID, productID)
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		return nil, s.rejectLookup(err, "rent", renterID, productID)
	}
	if product.RentalPrice == nil {
		return nil, s.reject(ErrNotForRent, "rent", renterID, productID)
	}
	if product.OwnerID == renterID {
		return nil, s.reject(ErrOwnProductRent, "rent", renterID, productID)
	}

	now := s.clock()
	rent := &Rent{
		ID:           uuid.NewString(),
		ProductID:    productID,
		RenterUserID: renterID,
		OwnerUserID:  product.OwnerID,
		StartDate:    start,
		EndDate:      end,
		RentalPrice:  *product.RentalPrice,
		Status:       RentActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.CreateRent(ctx, rent); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, s.reject(err, "rent", renterID, productID)
		}
		s.logger.Error("failed to save rent", zap.String("rent_id", rent.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to save rent: %w", err)
	}

	s.logger.Info("rent created",
		zap.String("rent_id", rent.ID),
		zap.String("product_id", productID),
		zap.String("renter_id", renterID),
		zap.String("owner_id", rent.OwnerUserID),
		zap.Time("start_date", rent.StartDate),
		zap.Time("end_date", rent.EndDate),
		zap.Stringer("rental_price", rent.RentalPrice),
	)
	return rent, nil
}

// CancelBuy marks a buy CANCELLED. Only the buyer or the seller may cancel.
// Cancelling an already cancelled buy succeeds.
func (s *Service) CancelBuy(ctx context.Context, callerID, buyID string) (*Buy, error) {
	buy, err := s.GetBuy(ctx, callerID, buyID)
	if err != nil {
		return nil, err
	}

	updated, err := s.storage.SetBuyStatus(ctx, buy.ID, BuyCancelled, s.clock())
	if err != nil {
		s.logger.Error("failed to cancel buy", zap.String("buy_id", buyID), zap.Error(err))
		return nil, fmt.Errorf("failed to cancel buy: %w", err)
	}

	s.logger.Info("buy cancelled", zap.String("buy_id", buyID), zap.String("user_id", callerID))
	return updated, nil
}

// CancelRent marks a rent CANCELLED. Only the renter or the owner may cancel.
func (s *Service) CancelRent(ctx context.Context, callerID, rentID string) (*Rent, error) {
	rent, err := s.GetRent(ctx, callerID, rentID)
	if err != nil {
		return nil, err
	}

	updated, err := s.storage.SetRentStatus(ctx, rent.ID, RentCancelled, s.clock())
	if err != nil {
		s.logger.Error("failed to cancel rent", zap.String("rent_id", rentID), zap.Error(err))
		return nil, fmt.Errorf("failed to cancel rent: %w", err)
	}

	s.logger.Info("rent cancelled", zap.String("rent_id", rentID), zap.String("user_id", callerID))
	return updated, nil
}

// GetBuy returns a buy visible to callerID.
func (s *Service) GetBuy(ctx context.Context, callerID, buyID string) (*Buy, error) {
	buy, err := s.storage.GetBuy(ctx, buyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBuyNotFound
		}
		return nil, fmt.Errorf("failed to read buy: %w", err)
	}
	if callerID != buy.BuyerID && callerID != buy.SellerID {
		s.logger.Warn("buy access denied", zap.String("buy_id", buyID), zap.String("user_id", callerID))
		return nil, ErrNotParty
	}
	return buy, nil
}

// GetRent returns a rent visible to callerID.
func (s *Service) GetRent(ctx context.Context, callerID, rentID string) (*Rent, error) {
	rent, err := s.storage.GetRent(ctx, rentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrRentNotFound
		}
		return nil, fmt.Errorf("failed to read rent: %w", err)
	}
	if callerID != rent.RenterUserID && callerID != rent.OwnerUserID {
		s.logger.Warn("rent access denied", zap.String("rent_id", rentID), zap.String("user_id", callerID))
		return nil, ErrNotParty
	}
	return rent, nil
}

// GetUserBuys lists purchases made by userID, optionally filtered by status.
func (s *Service) GetUserBuys(ctx context.Context, userID string, status BuyStatus) ([]*Buy, error) {
	return s.listBuys(ctx, BuyFilter{BuyerID: userID, Status: status})
}

// GetUserSales lists purchases of userID's products.
func (s *Service) GetUserSales(ctx context.Context, userID string) ([]*Buy, error) {
	return s.listBuys(ctx, BuyFilter{SellerID: userID})
}

// GetUserRentals lists rentals where userID is the renter, optionally filtered by status.
func (s *Service) GetUserRentals(ctx context.Context, userID string, status RentStatus) ([]*Rent, error) {
	return s.listRents(ctx, RentFilter{RenterID: userID, Status: status})
}

// GetUserLendings lists rentals of userID's products.
func (s *Service) GetUserLendings(ctx context.Context, userID string) ([]*Rent, error) {
	return s.listRents(ctx, RentFilter{OwnerID: userID})
}

// GetTransactionHistory merges every buy and rent userID takes part in,
// newest first. Buys precede rents created at the same instant.
func (s *Service) GetTransactionHistory(ctx context.Context, userID string, filter TypeFilter) ([]Transaction, error) {
	var history []Transaction

	if filter.admits(KindBuy) {
		buys, err := s.listBuys(ctx, BuyFilter{PartyID: userID})
		if err != nil {
			return nil, err
		}
		for _, b := range buys {
			role := RoleSeller
			if b.BuyerID == userID {
				role = RoleBuyer
			}
			history = append(history, BuyTransaction{Buy: b, UserRole: role})
		}
	}

	if filter.admits(KindRent) {
		rents, err := s.listRents(ctx, RentFilter{PartyID: userID})
		if err != nil {
			return nil, err
		}
		for _, r := range rents {
			role := RoleOwner
			if r.RenterUserID == userID {
				role = RoleRenter
			}
			history = append(history, RentTransaction{Rent: r, UserRole: role})
		}
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Created().After(history[j].Created())
	})

	s.logger.Debug("transaction history assembled",
		zap.String("user_id", userID),
		zap.String("type_filter", string(filter)),
		zap.Int("results_count", len(history)),
	)
	return history, nil
}

// ProductHasOpenTransactions reports whether a product is still bought
// (PENDING or COMPLETED) or rented (PENDING or ACTIVE). Only the product's
// owner may ask.
func (s *Service) ProductHasOpenTransactions(ctx context.Context, callerID, productID string) (bool, error) {
	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		return false, s.rejectLookup(err, "open transactions", callerID, productID)
	}
	if product.OwnerID != callerID {
		return false, s.reject(ErrNotProductOwner, "open transactions", callerID, productID)
	}

	open, err := s.storage.HasOpenTransactions(ctx, productID)
	if err != nil {
		s.logger.Error("failed to check open transactions", zap.String("product_id", productID), zap.Error(err))
		return false, fmt.Errorf("failed to check open transactions: %w", err)
	}
	return open, nil
}

// Products looks up the catalog entries behind productIDs. Products the
// catalog no longer knows are left out of the result.
func (s *Service) Products(ctx context.Context, productIDs ...string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(productIDs))
	for _, id := range productIDs {
		if _, ok := out[id]; ok {
			continue
		}
		p, err := s.catalog.FindProduct(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("catalog lookup failed", zap.String("product_id", id), zap.Error(err))
			return nil, fmt.Errorf("catalog lookup failed: %w", err)
		}
		out[id] = p
	}
	return out, nil
}

func (s *Service) listBuys(ctx context.Context, f BuyFilter) ([]*Buy, error) {
	buys, err := s.storage.ListBuys(ctx, f)
	if err != nil {
		s.logger.Error("failed to list buys", zap.Any("filter", f), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve buys: %w", err)
	}
	return buys, nil
}

func (s *Service) listRents(ctx context.Context, f RentFilter) ([]*Rent, error) {
	rents, err := s.storage.ListRents(ctx, f)
	if err != nil {
		s.logger.Error("failed to list rents", zap.Any("filter", f), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve rents: %w", err)
	}
	return rents, nil
}

// clock returns the current time at the microsecond precision records are stored with.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) reject(err error, op, userID, productID string) error {
	s.logger.Warn(op+" rejected",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.String("kind", string(KindOf(err))),
		zap.Error(err),
	)
	return err
}

func (s *Service) rejectLookup(err error, op, userID, productID string) error {
	if errors.Is(err, ErrNotFound) {
		return s.reject(ErrProductNotFound, op, userID, productID)
	}
	s.logger.Error("catalog lookup failed", zap.String("product_id", productID), zap.Error(err))
	return fmt.Errorf("catalog lookup failed: %w", err)
}
