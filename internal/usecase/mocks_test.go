package usecase_test

import (
	"context"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// Repository モック
// =====================

type CartRepoMock struct{ mock.Mock }

func (m *CartRepoMock) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) Clear(ctx context.Context, cartID int64) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

var _ repo.CartRepository = (*CartRepoMock)(nil)

type CartItemRepoMock struct{ mock.Mock }

func (m *CartItemRepoMock) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, cartID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartItemRepoMock) UpsertByCartAndProduct(ctx context.Context, item model.CartItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *CartItemRepoMock) SetByCartAndProduct(ctx context.Context, item model.CartItem) (model.CartItem, error) {
	args := m.Called(ctx, item)
	saved, _ := args.Get(0).(model.CartItem)
	return saved, args.Error(1)
}

func (m *CartItemRepoMock) CreateBulk(ctx context.Context, items []model.CartItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *CartItemRepoMock) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	args := m.Called(ctx, cartItemID, qty)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteByID(ctx context.Context, cartItemID int64) error {
	args := m.Called(ctx, cartItemID)
	return args.Error(0)
}

func (m *CartItemRepoMock) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	args := m.Called(ctx, cartItemID)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *CartItemRepoMock) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	args := m.Called(ctx, cartItemID, userID)
	return args.Bool(0), args.Error(1)
}

var _ repo.CartItemRepository = (*CartItemRepoMock)(nil)

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id string) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	created, _ := args.Get(0).(model.Product)
	return created, args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProductRepoMock) SoftDelete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ repo.ProductRepository = (*ProductRepoMock)(nil)

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

var _ repo.AuditLogRepository = (*AuditRepoMock)(nil)

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) IncrementTokenVersion(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ repo.UserRepository = (*UserRepoMock)(nil)

type CartCacheMock struct{ mock.Mock }

func (m *CartCacheMock) Get(ctx context.Context, userID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartCacheMock) Version(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CartCacheMock) Set(ctx context.Context, userID int64, version int64, items []model.CartItem) error {
	args := m.Called(ctx, userID, version, items)
	return args.Error(0)
}

func (m *CartCacheMock) Delete(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

var _ repo.CartCache = (*CartCacheMock)(nil)

// =====================
// Tx：モックをそのまま渡すだけ
// =====================

type fakeTxRepos struct {
	carts     *CartRepoMock
	cartItems *CartItemRepoMock
	products  *ProductRepoMock
	audits    *AuditRepoMock
}

func (r *fakeTxRepos) Carts() repo.CartRepository         { return r.carts }
func (r *fakeTxRepos) CartItems() repo.CartItemRepository { return r.cartItems }
func (r *fakeTxRepos) Products() repo.ProductRepository   { return r.products }
func (r *fakeTxRepos) AuditLogs() repo.AuditLogRepository { return r.audits }

type fakeTxManager struct {
	repos *fakeTxRepos
	calls int
}

func (tm *fakeTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	tm.calls++
	return fn(tm.repos)
}

var _ repo.TransactionManager = (*fakeTxManager)(nil)
