package server_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"
)

// =====================
// インメモリの永続化（HTTP通しのテスト用）
// =====================

type memStore struct {
	mu sync.Mutex

	users      map[int64]*model.User
	nextUserID int64

	carts      map[int64]model.Cart // userID → cart
	nextCartID int64

	items      map[int64]model.CartItem
	nextItemID int64

	products map[string]model.Product
	audits   []model.AuditLog
}

func newMemStore(products ...model.Product) *memStore {
	s := &memStore{
		users:    map[int64]*model.User{},
		carts:    map[int64]model.Cart{},
		items:    map[int64]model.CartItem{},
		products: map[string]model.Product{},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) auditCount(action model.AuditAction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.audits {
		if l.Action == action {
			n++
		}
	}
	return n
}

func (s *memStore) setRole(email string, role model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			u.Role = role
		}
	}
}

// users

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return errDuplicate
		}
	}
	r.s.nextUserID++
	user.ID = r.s.nextUserID
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r memUsers) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUsers) Update(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r memUsers) IncrementTokenVersion(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.TokenVersion++
	return nil
}

// carts + cart_items

type memCarts struct{ s *memStore }

func (r memCarts) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.carts[userID]; ok {
		return c, nil
	}
	r.s.nextCartID++
	c := model.Cart{ID: r.s.nextCartID, UserID: userID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.s.carts[userID] = c
	return c, nil
}

func (r memCarts) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[userID]
	if !ok {
		return model.Cart{}, repo.ErrNotFound
	}
	return c, nil
}

func (r memCarts) Clear(ctx context.Context, cartID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, it := range r.s.items {
		if it.CartID == cartID {
			delete(r.s.items, id)
		}
	}
	return nil
}

func (r memCarts) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.CartItem{}
	for _, it := range r.s.items {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ロック取得済みで呼ぶ
func (r memCarts) findLine(cartID int64, productID string) (model.CartItem, bool) {
	for _, it := range r.s.items {
		if it.CartID == cartID && it.ProductID == productID {
			return it, true
		}
	}
	return model.CartItem{}, false
}

func (r memCarts) insert(item model.CartItem) model.CartItem {
	r.s.nextItemID++
	item.ID = r.s.nextItemID
	r.s.items[item.ID] = item
	return item
}

func (r memCarts) UpsertByCartAndProduct(ctx context.Context, item model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.findLine(item.CartID, item.ProductID); ok {
		cur.Quantity += item.Quantity
		cur.UnitPrice = item.UnitPrice
		if item.ProductName != "" {
			cur.ProductName = item.ProductName
			cur.ProductImage = item.ProductImage
		}
		r.s.items[cur.ID] = cur
		return nil
	}
	r.insert(item)
	return nil
}

func (r memCarts) SetByCartAndProduct(ctx context.Context, item model.CartItem) (model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.findLine(item.CartID, item.ProductID); ok {
		cur.Quantity = item.Quantity
		cur.UnitPrice = item.UnitPrice
		cur.ProductName = item.ProductName
		cur.ProductImage = item.ProductImage
		r.s.items[cur.ID] = cur
		return cur, nil
	}
	return r.insert(item), nil
}

func (r memCarts) CreateBulk(ctx context.Context, items []model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range items {
		r.insert(it)
	}
	return nil
}

func (r memCarts) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[cartItemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Quantity = qty
	r.s.items[cartItemID] = it
	return nil
}

func (r memCarts) DeleteByID(ctx context.Context, cartItemID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[cartItemID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.items, cartItemID)
	return nil
}

func (r memCarts) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[cartItemID]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (r memCarts) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[cartItemID]
	if !ok {
		return false, nil
	}
	c, ok := r.s.carts[userID]
	return ok && c.ID == it.CartID, nil
}

// products

type memProducts struct{ s *memStore }

func (r memProducts) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Product{}
	for _, p := range r.s.products {
		if !p.IsActive {
			continue
		}
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Q)) {
			continue
		}
		if q.ShopID != "" && p.ShopID != q.ShopID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r memProducts) FindByID(ctx context.Context, id string) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r memProducts) FindByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.products[p.ID] = p
	return p, nil
}

func (r memProducts) Update(ctx context.Context, p model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; !ok {
		return repo.ErrNotFound
	}
	r.s.products[p.ID] = p
	return nil
}

func (r memProducts) SoftDelete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

// audit_logs

type memAudits struct{ s *memStore }

func (r memAudits) Create(ctx context.Context, log model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	log.ID = int64(len(r.s.audits) + 1)
	r.s.audits = append(r.s.audits, log)
	return nil
}

func (r memAudits) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.AuditLog{}
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		l := r.s.audits[i]
		if filter.Action != nil && l.Action != *filter.Action {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// tx

type memTx struct{ s *memStore }

func (t memTx) Carts() repo.CartRepository         { return memCarts{t.s} }
func (t memTx) CartItems() repo.CartItemRepository { return memCarts{t.s} }
func (t memTx) Products() repo.ProductRepository   { return memProducts{t.s} }
func (t memTx) AuditLogs() repo.AuditLogRepository { return memAudits{t.s} }

func (t memTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(t)
}

var errDuplicate = fmt.Errorf("duplicate key: %w", repo.ErrDuplicate)

var (
	_ repo.UserRepository     = memUsers{}
	_ repo.CartRepository     = memCarts{}
	_ repo.CartItemRepository = memCarts{}
	_ repo.ProductRepository  = memProducts{}
	_ repo.AuditLogRepository = memAudits{}
	_ repo.TransactionManager = memTx{}
)
