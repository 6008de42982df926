package pizza

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jwtpizza.org/internal/auth"
)

// OrdersPageSize is the number of orders returned per page.
const OrdersPageSize = 10

// UserDirectory resolves franchise admins by email and records their scoped role.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (auth.User, error)
	FindByID(ctx context.Context, id string) (auth.User, error)
	auth.RoleWriter
}

// Service implements the franchise, store, menu and order operations on top of the
// authorization policy.
type Service struct {
	repo   Repository
	users  UserDirectory
	policy *auth.Policy
	now    func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the pizza domain service.
func NewService(repo Repository, users UserDirectory, policy *auth.Policy, opts ...Option) (*Service, error) {
	if repo == nil || users == nil {
		return nil, errors.New("pizza: repository and user directory are required")
	}
	if policy == nil {
		policy = auth.NewPolicy()
	}
	s := &Service{repo: repo, users: users, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListFranchises returns every franchise with its stores. Only Admin sees franchise admins.
func (s *Service) ListFranchises(ctx context.Context, actor *auth.Actor) ([]Franchise, error) {
	if err := s.policy.Authorize(actor, auth.ActionListFranchises, auth.Resource{Kind: auth.ResourceFranchise}); err != nil {
		return nil, err
	}
	list, err := s.repo.ListFranchises(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		for i := range list {
			list[i].Admins = nil
		}
	}
	return list, nil
}

// ListUserFranchises returns the franchises userID administers.
func (s *Service) ListUserFranchises(ctx context.Context, actor *auth.Actor, userID string) ([]Franchise, error) {
	if err := s.policy.Authorize(actor, auth.ActionListUserFranchises, auth.Resource{Kind: auth.ResourceUser, ID: userID}); err != nil {
		return nil, err
	}
	return s.repo.ListFranchisesForUser(ctx, userID)
}

// CreateFranchise creates a franchise. Every admin email must belong to a registered
// user, who is granted the Franchisee role scoped to the new franchise.
func (s *Service) CreateFranchise(ctx context.Context, actor *auth.Actor, name string, adminEmails []string) (Franchise, error) {
	if err := s.policy.Authorize(actor, auth.ActionCreateFranchise, auth.Resource{Kind: auth.ResourceFranchise}); err != nil {
		return Franchise{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Franchise{}, fmt.Errorf("%w: franchise name is required", ErrInvalidInput)
	}
	admins := make([]auth.User, 0, len(adminEmails))
	for _, raw := range adminEmails {
		email, err := auth.NormalizeEmail(raw)
		if err != nil {
			return Franchise{}, fmt.Errorf("%w: admin email %q", ErrInvalidInput, raw)
		}
		u, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return Franchise{}, fmt.Errorf("%w: unknown user email %s", ErrNotFound, email)
			}
			return Franchise{}, err
		}
		admins = append(admins, u)
	}

	f := Franchise{Name: name}
	for _, u := range admins {
		f.Admins = append(f.Admins, FranchiseAdmin{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	created, err := s.repo.CreateFranchise(ctx, f)
	if err != nil {
		return Franchise{}, err
	}
	grant := auth.RoleAssignment{Role: auth.RoleFranchisee, ObjectID: created.ID}
	for _, u := range admins {
		if err := s.users.GrantRole(ctx, u.ID, grant); err != nil {
			return Franchise{}, fmt.Errorf("grant franchisee role: %w", err)
		}
	}
	return created, nil
}

// DeleteFranchise removes a franchise, its stores and the Franchisee roles scoped to it.
func (s *Service) DeleteFranchise(ctx context.Context, actor *auth.Actor, franchiseID string) error {
	if err := s.policy.Authorize(actor, auth.ActionDeleteFranchise, auth.Resource{Kind: auth.ResourceFranchise, ID: franchiseID, FranchiseID: franchiseID}); err != nil {
		return err
	}
	f, err := s.repo.GetFranchise(ctx, franchiseID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteFranchise(ctx, franchiseID); err != nil {
		return err
	}
	scoped := auth.RoleAssignment{Role: auth.RoleFranchisee, ObjectID: franchiseID}
	for _, a := range f.Admins {
		err := s.users.RevokeRole(ctx, a.ID, scoped)
		if err != nil && !errors.Is(err, auth.ErrNotFound) {
			return fmt.Errorf("revoke franchisee role: %w", err)
		}
	}
	return nil
}

// CreateStore adds a store to a franchise.
func (s *Service) CreateStore(ctx context.Context, actor *auth.Actor, franchiseID, name string) (Store, error) {
	if err := s.policy.Authorize(actor, auth.ActionCreateStore, auth.Resource{Kind: auth.ResourceStore, FranchiseID: franchiseID}); err != nil {
		return Store{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Store{}, fmt.Errorf("%w: store name is required", ErrInvalidInput)
	}
	if _, err := s.repo.GetFranchise(ctx, franchiseID); err != nil {
		return Store{}, err
	}
	return s.repo.CreateStore(ctx, Store{FranchiseID: franchiseID, Name: name})
}

// DeleteStore removes a store from a franchise.
func (s *Service) DeleteStore(ctx context.Context, actor *auth.Actor, franchiseID, storeID string) error {
	if err := s.policy.Authorize(actor, auth.ActionDeleteStore, auth.Resource{Kind: auth.ResourceStore, ID: storeID, FranchiseID: franchiseID}); err != nil {
		return err
	}
	return s.repo.DeleteStore(ctx, franchiseID, storeID)
}

// Menu returns the menu. It is public.
func (s *Service) Menu(ctx context.Context, actor *auth.Actor) ([]MenuItem, error) {
	if err := s.policy.Authorize(actor, auth.ActionViewMenu, auth.Resource{Kind: auth.ResourceMenu}); err != nil {
		return nil, err
	}
	return s.repo.Menu(ctx)
}

// AddMenuItem appends an item and returns the full menu.
func (s *Service) AddMenuItem(ctx context.Context, actor *auth.Actor, item MenuItem) ([]MenuItem, error) {
	if err := s.policy.Authorize(actor, auth.ActionAddMenuItem, auth.Resource{Kind: auth.ResourceMenu}); err != nil {
		return nil, err
	}
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if item.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	item.ID = ""
	if _, err := s.repo.AddMenuItem(ctx, item); err != nil {
		return nil, err
	}
	return s.repo.Menu(ctx)
}

// ListOrders returns one page (1-based) of the actor's own orders.
func (s *Service) ListOrders(ctx context.Context, actor *auth.Actor, page int) ([]Order, error) {
	if err := s.policy.Authorize(actor, auth.ActionListOrders, auth.Resource{Kind: auth.ResourceOrder}); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	return s.repo.ListOrders(ctx, actor.UserID, (page-1)*OrdersPageSize, OrdersPageSize)
}

// CreateOrder places an order for the actor. Item descriptions and prices come from the
// menu, not from the caller.
func (s *Service) CreateOrder(ctx context.Context, actor *auth.Actor, franchiseID, storeID string, menuIDs []string) (Order, error) {
	if err := s.policy.Authorize(actor, auth.ActionCreateOrder, auth.Resource{Kind: auth.ResourceOrder, FranchiseID: franchiseID}); err != nil {
		return Order{}, err
	}
	if len(menuIDs) == 0 {
		return Order{}, fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}
	f, err := s.repo.GetFranchise(ctx, franchiseID)
	if err != nil {
		return Order{}, err
	}
	if !f.hasStore(storeID) {
		return Order{}, fmt.Errorf("%w: store %s is not part of franchise %s", ErrNotFound, storeID, franchiseID)
	}
	menu, err := s.repo.Menu(ctx)
	if err != nil {
		return Order{}, err
	}
	byID := make(map[string]MenuItem, len(menu))
	for _, m := range menu {
		byID[m.ID] = m
	}
	order := Order{
		DinerID:     actor.UserID,
		FranchiseID: franchiseID,
		StoreID:     storeID,
		Date:        s.now().UTC(),
	}
	for _, id := range menuIDs {
		m, ok := byID[id]
		if !ok {
			return Order{}, fmt.Errorf("%w: unknown menu item %s", ErrInvalidInput, id)
		}
		order.Items = append(order.Items, OrderItem{MenuID: m.ID, Description: m.Title, Price: m.Price})
	}
	return s.repo.CreateOrder(ctx, order)
}

func (f Franchise) hasStore(storeID string) bool {
	for _, st := range f.Stores {
		if st.ID == storeID {
			return true
		}
	}
	return false
}
