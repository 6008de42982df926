package pizza

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("pizza: not found")
	ErrInvalidInput = errors.New("pizza: invalid input")
	ErrConflict     = errors.New("pizza: conflict")
)

// FranchiseAdmin is a user that administers a franchise.
type FranchiseAdmin struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Franchise struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Admins []FranchiseAdmin `json:"admins"`
	Stores []Store          `json:"stores"`
}

type Store struct {
	ID          string `json:"id"`
	FranchiseID string `json:"franchiseId"`
	Name        string `json:"name"`
}

type MenuItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Price       float64 `json:"price"`
}

type OrderItem struct {
	ID          string  `json:"id,omitempty"`
	MenuID      string  `json:"menuId"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type Order struct {
	ID          string      `json:"id"`
	DinerID     string      `json:"dinerId"`
	FranchiseID string      `json:"franchiseId"`
	StoreID     string      `json:"storeId"`
	Date        time.Time   `json:"date"`
	Items       []OrderItem `json:"items"`
}

// Repository persists franchises, stores, menu and orders.
type Repository interface {
	ListFranchises(ctx context.Context) ([]Franchise, error)
	ListFranchisesForUser(ctx context.Context, userID string) ([]Franchise, error)
	GetFranchise(ctx context.Context, id string) (Franchise, error)
	CreateFranchise(ctx context.Context, f Franchise) (Franchise, error)
	DeleteFranchise(ctx context.Context, id string) error

	CreateStore(ctx context.Context, s Store) (Store, error)
	DeleteStore(ctx context.Context, franchiseID, storeID string) error

	Menu(ctx context.Context) ([]MenuItem, error)
	AddMenuItem(ctx context.Context, item MenuItem) (MenuItem, error)

	ListOrders(ctx context.Context, dinerID string, offset, limit int) ([]Order, error)
	CreateOrder(ctx context.Context, o Order) (Order, error)
}
