package pg

import (
	"context"
	"database/sql"
	"errors"

	"jwtpizza.org/internal/ids"
	"jwtpizza.org/internal/pizza"
)

// Pizza adapts Store to pizza.Repository.
type Pizza struct {
	s *Store
}

var _ pizza.Repository = Pizza{}

// Pizza returns the franchise, menu and order view of the store.
func (s *Store) Pizza() Pizza { return Pizza{s: s} }

func (p Pizza) ListFranchises(ctx context.Context) ([]pizza.Franchise, error) {
	return p.listFranchises(ctx, `select id, name from franchises order by created_at, id`)
}

func (p Pizza) ListFranchisesForUser(ctx context.Context, userID string) ([]pizza.Franchise, error) {
	return p.listFranchises(ctx, `
		select f.id, f.name
		from franchises f
		join franchise_admins fa on fa.franchise_id = f.id
		where fa.user_id = $1
		order by f.created_at, f.id
	`, userID)
}

func (p Pizza) listFranchises(ctx context.Context, query string, args ...any) ([]pizza.Franchise, error) {
	if p.s.db == nil {
		return nil, errNoDB
	}
	rows, err := p.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var list []pizza.Franchise
	for rows.Next() {
		var f pizza.Franchise
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]pizza.Franchise, 0, len(list))
	for _, f := range list {
		if err := p.fillFranchise(ctx, &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (p Pizza) fillFranchise(ctx context.Context, f *pizza.Franchise) error {
	admins, err := p.s.db.QueryContext(ctx, `
		select u.id, u.name, u.email
		from franchise_admins fa
		join users u on u.id = fa.user_id
		where fa.franchise_id = $1
		order by u.email
	`, f.ID)
	if err != nil {
		return err
	}
	defer admins.Close()
	for admins.Next() {
		var a pizza.FranchiseAdmin
		if err := admins.Scan(&a.ID, &a.Name, &a.Email); err != nil {
			return err
		}
		f.Admins = append(f.Admins, a)
	}
	if err := admins.Err(); err != nil {
		return err
	}

	stores, err := p.s.db.QueryContext(ctx, `
		select id, franchise_id, name
		from stores
		where franchise_id = $1
		order by created_at, id
	`, f.ID)
	if err != nil {
		return err
	}
	defer stores.Close()
	f.Stores = []pizza.Store{}
	for stores.Next() {
		var st pizza.Store
		if err := stores.Scan(&st.ID, &st.FranchiseID, &st.Name); err != nil {
			return err
		}
		f.Stores = append(f.Stores, st)
	}
	return stores.Err()
}

func (p Pizza) GetFranchise(ctx context.Context, id string) (pizza.Franchise, error) {
	if p.s.db == nil {
		return pizza.Franchise{}, errNoDB
	}
	var f pizza.Franchise
	err := p.s.db.QueryRowContext(ctx, `select id, name from franchises where id = $1`, id).Scan(&f.ID, &f.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return pizza.Franchise{}, pizza.ErrNotFound
	}
	if err != nil {
		return pizza.Franchise{}, err
	}
	if err := p.fillFranchise(ctx, &f); err != nil {
		return pizza.Franchise{}, err
	}
	return f, nil
}

func (p Pizza) CreateFranchise(ctx context.Context, f pizza.Franchise) (pizza.Franchise, error) {
	if p.s.db == nil {
		return pizza.Franchise{}, errNoDB
	}
	f.ID = ids.New()
	tx, err := p.s.db.BeginTx(ctx, nil)
	if err != nil {
		return pizza.Franchise{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `insert into franchises (id, name) values ($1, $2)`, f.ID, f.Name); err != nil {
		if isUniqueViolation(err) {
			return pizza.Franchise{}, pizza.ErrConflict
		}
		return pizza.Franchise{}, err
	}
	for _, a := range f.Admins {
		if _, err := tx.ExecContext(ctx, `
			insert into franchise_admins (franchise_id, user_id)
			values ($1, $2)
			on conflict do nothing
		`, f.ID, a.ID); err != nil {
			if isForeignKeyViolation(err) {
				return pizza.Franchise{}, pizza.ErrNotFound
			}
			return pizza.Franchise{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return pizza.Franchise{}, err
	}
	f.Stores = []pizza.Store{}
	return f, nil
}

// DeleteFranchise removes the franchise; stores and admin links cascade.
func (p Pizza) DeleteFranchise(ctx context.Context, id string) error {
	return p.execOne(ctx, `delete from franchises where id = $1`, id)
}

func (p Pizza) CreateStore(ctx context.Context, st pizza.Store) (pizza.Store, error) {
	if p.s.db == nil {
		return pizza.Store{}, errNoDB
	}
	st.ID = ids.New()
	_, err := p.s.db.ExecContext(ctx, `
		insert into stores (id, franchise_id, name) values ($1, $2, $3)
	`, st.ID, st.FranchiseID, st.Name)
	if err != nil {
		if isForeignKeyViolation(err) {
			return pizza.Store{}, pizza.ErrNotFound
		}
		return pizza.Store{}, err
	}
	return st, nil
}

func (p Pizza) DeleteStore(ctx context.Context, franchiseID, storeID string) error {
	return p.execOne(ctx, `delete from stores where franchise_id = $1 and id = $2`, franchiseID, storeID)
}

func (p Pizza) execOne(ctx context.Context, query string, args ...any) error {
	if p.s.db == nil {
		return errNoDB
	}
	res, err := p.s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pizza.ErrNotFound
	}
	return nil
}

func (p Pizza) Menu(ctx context.Context) ([]pizza.MenuItem, error) {
	if p.s.db == nil {
		return nil, errNoDB
	}
	rows, err := p.s.db.QueryContext(ctx, `
		select id, title, description, image, price
		from menu_items
		order by created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	menu := []pizza.MenuItem{}
	for rows.Next() {
		var m pizza.MenuItem
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Image, &m.Price); err != nil {
			return nil, err
		}
		menu = append(menu, m)
	}
	return menu, rows.Err()
}

func (p Pizza) AddMenuItem(ctx context.Context, item pizza.MenuItem) (pizza.MenuItem, error) {
	if p.s.db == nil {
		return pizza.MenuItem{}, errNoDB
	}
	item.ID = ids.New()
	_, err := p.s.db.ExecContext(ctx, `
		insert into menu_items (id, title, description, image, price)
		values ($1, $2, $3, $4, $5)
	`, item.ID, item.Title, item.Description, item.Image, item.Price)
	if err != nil {
		return pizza.MenuItem{}, err
	}
	return item, nil
}

// ListOrders returns the diner's orders, newest first.
func (p Pizza) ListOrders(ctx context.Context, dinerID string, offset, limit int) ([]pizza.Order, error) {
	if p.s.db == nil {
		return nil, errNoDB
	}
	rows, err := p.s.db.QueryContext(ctx, `
		select id, diner_id, franchise_id, store_id, created_at
		from orders
		where diner_id = $1
		order by created_at desc, id desc
		offset $2 limit $3
	`, dinerID, offset, limit)
	if err != nil {
		return nil, err
	}
	orders := []pizza.Order{}
	for rows.Next() {
		var o pizza.Order
		if err := rows.Scan(&o.ID, &o.DinerID, &o.FranchiseID, &o.StoreID, &o.Date); err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range orders {
		items, err := p.orderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (p Pizza) orderItems(ctx context.Context, orderID string) ([]pizza.OrderItem, error) {
	rows, err := p.s.db.QueryContext(ctx, `
		select id, menu_id, description, price
		from order_items
		where order_id = $1
		order by id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []pizza.OrderItem
	for rows.Next() {
		var it pizza.OrderItem
		if err := rows.Scan(&it.ID, &it.MenuID, &it.Description, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (p Pizza) CreateOrder(ctx context.Context, o pizza.Order) (pizza.Order, error) {
	if p.s.db == nil {
		return pizza.Order{}, errNoDB
	}
	o.ID = ids.New()
	tx, err := p.s.db.BeginTx(ctx, nil)
	if err != nil {
		return pizza.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into orders (id, diner_id, franchise_id, store_id, created_at)
		values ($1, $2, $3, $4, $5)
	`, o.ID, o.DinerID, o.FranchiseID, o.StoreID, o.Date); err != nil {
		return pizza.Order{}, err
	}
	items := make([]pizza.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.ID = ids.New()
		if _, err := tx.ExecContext(ctx, `
			insert into order_items (id, order_id, menu_id, description, price)
			values ($1, $2, $3, $4, $5)
		`, it.ID, o.ID, it.MenuID, it.Description, it.Price); err != nil {
			return pizza.Order{}, err
		}
		items[i] = it
	}
	if err := tx.Commit(); err != nil {
		return pizza.Order{}, err
	}
	o.Items = items
	return o, nil
}
