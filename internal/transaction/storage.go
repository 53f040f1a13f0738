package transaction

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrEmptyID is returned when trying to store a record with an empty ID.
var ErrEmptyID = errors.New("empty transaction ID")

// BuyFilter narrows ListBuys. Empty fields match everything; PartyID matches
// either the buyer or the seller.
type BuyFilter struct {
	BuyerID  string
	SellerID string
	PartyID  string
	Status   BuyStatus
}

func (f BuyFilter) match(b *Buy) bool {
	return (f.BuyerID == "" || b.BuyerID == f.BuyerID) &&
		(f.SellerID == "" || b.SellerID == f.SellerID) &&
		(f.PartyID == "" || b.BuyerID == f.PartyID || b.SellerID == f.PartyID) &&
		(f.Status == "" || b.Status == f.Status)
}

// RentFilter narrows ListRents. Empty fields match everything; PartyID matches
// either the renter or the owner.
type RentFilter struct {
	RenterID string
	OwnerID  string
	PartyID  string
	Status   RentStatus
}

func (f RentFilter) match(r *Rent) bool {
	return (f.RenterID == "" || r.RenterUserID == f.RenterID) &&
		(f.OwnerID == "" || r.OwnerUserID == f.OwnerID) &&
		(f.PartyID == "" || r.RenterUserID == f.PartyID || r.OwnerUserID == f.PartyID) &&
		(f.Status == "" || r.Status == f.Status)
}

// Storage is the durable record of buys and rents.
//
// CreateRent must check for blocking overlaps and insert as one atomic step,
// returning ErrAlreadyRented when another PENDING or ACTIVE rental of the same
// product intersects the new interval. List methods return newest first.
type Storage interface {
	CreateBuy(ctx context.Context, b *Buy) error
	GetBuy(ctx context.Context, id string) (*Buy, error)
	SetBuyStatus(ctx context.Context, id string, status BuyStatus, at time.Time) (*Buy, error)
	ListBuys(ctx context.Context, f BuyFilter) ([]*Buy, error)

	CreateRent(ctx context.Context, r *Rent) error
	GetRent(ctx context.Context, id string) (*Rent, error)
	SetRentStatus(ctx context.Context, id string, status RentStatus, at time.Time) (*Rent, error)
	ListRents(ctx context.Context, f RentFilter) ([]*Rent, error)

	HasOpenTransactions(ctx context.Context, productID string) (bool, error)
}

type buyEntry struct {
	seq int
	buy Buy
}

type rentEntry struct {
	seq  int
	rent Rent
}

// LocalStorage provides an in-memory Storage. Records are copied in and out so
// callers never share memory with the store.
type LocalStorage struct {
	mu    sync.RWMutex
	seq   int
	buys  map[string]*buyEntry
	rents map[string]*rentEntry
}

// NewLocalStorage instantiates a new LocalStorage with empty maps.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		buys:  map[string]*buyEntry{},
		rents: map[string]*rentEntry{},
	}
}

// CreateBuy stores a new buy. Returns ErrEmptyID if the buy has an empty ID.
func (l *LocalStorage) CreateBuy(_ context.Context, b *Buy) error {
	if b.ID == "" {
		return ErrEmptyID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.buys[b.ID] = &buyEntry{seq: l.seq, buy: *b}
	return nil
}

// GetBuy retrieves a buy by ID.
// Returns ErrBuyNotFound if the buy is not found.
func (l *LocalStorage) GetBuy(_ context.Context, id string) (*Buy, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.buys[id]
	if !ok {
		return nil, ErrBuyNotFound
	}
	b := e.buy
	return &b, nil
}

func (l *LocalStorage) SetBuyStatus(_ context.Context, id string, status BuyStatus, at time.Time) (*Buy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.buys[id]
	if !ok {
		return nil, ErrBuyNotFound
	}
	e.buy.Status = status
	e.buy.UpdatedAt = at
	b := e.buy
	return &b, nil
}

func (l *LocalStorage) ListBuys(_ context.Context, f BuyFilter) ([]*Buy, error) {
	l.mu.RLock()
	entries := make([]*buyEntry, 0, len(l.buys))
	for _, e := range l.buys {
		if f.match(&e.buy) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.buy.CreatedAt.Equal(b.buy.CreatedAt) {
			return a.buy.CreatedAt.After(b.buy.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]*Buy, 0, len(entries))
	for _, e := range entries {
		b := e.buy
		out = append(out, &b)
	}
	l.mu.RUnlock()
	return out, nil
}

// CreateRent stores a new rent unless a blocking rental of the same product
// overlaps it. The check and the insert happen under one lock.
func (l *LocalStorage) CreateRent(_ context.Context, r *Rent) error {
	if r.ID == "" {
		return ErrEmptyID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.rents {
		if e.rent.ProductID == r.ProductID && e.rent.Status.Blocking() && e.rent.Overlaps(r.StartDate, r.EndDate) {
			return ErrAlreadyRented
		}
	}
	l.seq++
	l.rents[r.ID] = &rentEntry{seq: l.seq, rent: *r}
	return nil
}

// GetRent retrieves a rent by ID.
// Returns ErrRentNotFound if the rent is not found.
func (l *LocalStorage) GetRent(_ context.Context, id string) (*Rent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.rents[id]
	if !ok {
		return nil, ErrRentNotFound
	}
	r := e.rent
	return &r, nil
}

func (l *LocalStorage) SetRentStatus(_ context.Context, id string, status RentStatus, at time.Time) (*Rent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.rents[id]
	if !ok {
		return nil, ErrRentNotFound
	}
	e.rent.Status = status
	e.rent.UpdatedAt = at
	r := e.rent
	return &r, nil
}

func (l *LocalStorage) ListRents(_ context.Context, f RentFilter) ([]*Rent, error) {
	l.mu.RLock()
	entries := make([]*rentEntry, 0, len(l.rents))
	for _, e := range l.rents {
		if f.match(&e.rent) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.rent.CreatedAt.Equal(b.rent.CreatedAt) {
			return a.rent.CreatedAt.After(b.rent.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]*Rent, 0, len(entries))
	for _, e := range entries {
		r := e.rent
		out = append(out, &r)
	}
	l.mu.RUnlock()
	return out, nil
}

// HasOpenTransactions reports whether the product has a PENDING or COMPLETED
// buy, or a PENDING or ACTIVE rent.
func (l *LocalStorage) HasOpenTransactions(_ context.Context, productID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.buys {
		if e.buy.ProductID == productID && (e.buy.Status == BuyPending || e.buy.Status == BuyCompleted) {
			return true, nil
		}
	}
	for _, e := range l.rents {
		if e.rent.ProductID == productID && e.rent.Status.Blocking() {
			return true, nil
		}
	}
	return false, nil
}
