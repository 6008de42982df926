package memory

import (
	"context"
	"sort"
	"sync"

	"jwtpizza.org/internal/ids"
	"jwtpizza.org/internal/pizza"
)

// Pizza implements pizza.Repository in memory.
type Pizza struct {
	mu         sync.RWMutex
	franchises map[string]*pizza.Franchise
	order      []string // franchise ids in creation order
	menu       []pizza.MenuItem
	orders     []pizza.Order
}

var _ pizza.Repository = (*Pizza)(nil)

// NewPizza creates a repository whose menu starts with menu.
func NewPizza(menu ...pizza.MenuItem) *Pizza {
	p := &Pizza{franchises: make(map[string]*pizza.Franchise)}
	for _, m := range menu {
		m.ID = ids.New()
		p.menu = append(p.menu, m)
	}
	return p
}

func (p *Pizza) ListFranchises(ctx context.Context) ([]pizza.Franchise, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pizza.Franchise, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, cloneFranchise(*p.franchises[id]))
	}
	return out, nil
}

func (p *Pizza) ListFranchisesForUser(ctx context.Context, userID string) ([]pizza.Franchise, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := []pizza.Franchise{}
	for _, id := range p.order {
		f := p.franchises[id]
		for _, a := range f.Admins {
			if a.ID == userID {
				out = append(out, cloneFranchise(*f))
				break
			}
		}
	}
	return out, nil
}

func (p *Pizza) GetFranchise(ctx context.Context, id string) (pizza.Franchise, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.franchises[id]
	if !ok {
		return pizza.Franchise{}, pizza.ErrNotFound
	}
	return cloneFranchise(*f), nil
}

func (p *Pizza) CreateFranchise(ctx context.Context, f pizza.Franchise) (pizza.Franchise, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.franchises {
		if existing.Name == f.Name {
			return pizza.Franchise{}, pizza.ErrConflict
		}
	}
	f = cloneFranchise(f)
	f.ID = ids.New()
	f.Stores = []pizza.Store{}
	p.franchises[f.ID] = &f
	p.order = append(p.order, f.ID)
	return cloneFranchise(f), nil
}

func (p *Pizza) DeleteFranchise(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.franchises[id]; !ok {
		return pizza.ErrNotFound
	}
	delete(p.franchises, id)
	for i, fid := range p.order {
		if fid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

func (p *Pizza) CreateStore(ctx context.Context, s pizza.Store) (pizza.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.franchises[s.FranchiseID]
	if !ok {
		return pizza.Store{}, pizza.ErrNotFound
	}
	s.ID = ids.New()
	f.Stores = append(f.Stores, s)
	return s, nil
}

func (p *Pizza) DeleteStore(ctx context.Context, franchiseID, storeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.franchises[franchiseID]
	if !ok {
		return pizza.ErrNotFound
	}
	for i, s := range f.Stores {
		if s.ID == storeID {
			f.Stores = append(f.Stores[:i], f.Stores[i+1:]...)
			return nil
		}
	}
	return pizza.ErrNotFound
}

func (p *Pizza) Menu(ctx context.Context) ([]pizza.MenuItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pizza.MenuItem, len(p.menu))
	copy(out, p.menu)
	return out, nil
}

func (p *Pizza) AddMenuItem(ctx context.Context, item pizza.MenuItem) (pizza.MenuItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item.ID = ids.New()
	p.menu = append(p.menu, item)
	return item, nil
}

// ListOrders returns the diner's orders, newest first.
func (p *Pizza) ListOrders(ctx context.Context, dinerID string, offset, limit int) ([]pizza.Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var mine []pizza.Order
	for _, o := range p.orders {
		if o.DinerID == dinerID {
			mine = append(mine, cloneOrder(o))
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].Date.After(mine[j].Date) })
	if offset >= len(mine) {
		return []pizza.Order{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], nil
}

func (p *Pizza) CreateOrder(ctx context.Context, o pizza.Order) (pizza.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o = cloneOrder(o)
	o.ID = ids.New()
	for i := range o.Items {
		o.Items[i].ID = ids.New()
	}
	p.orders = append(p.orders, o)
	return cloneOrder(o), nil
}

func cloneFranchise(f pizza.Franchise) pizza.Franchise {
	f.Admins = append([]pizza.FranchiseAdmin(nil), f.Admins...)
	f.Stores = append([]pizza.Store{}, f.Stores...)
	return f
}

func cloneOrder(o pizza.Order) pizza.Order {
	o.Items = append([]pizza.OrderItem(nil), o.Items...)
	return o
}
