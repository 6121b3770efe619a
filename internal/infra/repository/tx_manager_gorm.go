package repository

import (
	"context"

	repo "localshop/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	products  repo.ProductRepository
	auditLogs repo.AuditLogRepository
}

func (r *txReposGorm) Carts() repo.CartRepository         { return r.carts }
func (r *txReposGorm) CartItems() repo.CartItemRepository { return r.cartItems }
func (r *txReposGorm) Products() repo.ProductRepository   { return r.products }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

var _ repo.TransactionManager = (*TxManagerGorm)(nil)

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		cartRepo := NewCartGormRepository(tx)
		r := &txReposGorm{
			carts:     cartRepo,
			cartItems: cartRepo,
			products:  NewProductGormRepository(tx),
			auditLogs: NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
}
