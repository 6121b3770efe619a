package repository

import (
	"context"
	"errors"
	"time"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// carts と cart_items の両方を扱う。
type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

var (
	_ repo.CartRepository     = (*CartGormRepository)(nil)
	_ repo.CartItemRepository = (*CartGormRepository)(nil)
)

// ユーザーのカートを取得し、無ければ作成
func (r *CartGormRepository) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&cart).Error

		if findErr == nil {
			return nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		now := time.Now()
		newCart := model.Cart{
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.Create(&newCart).Error; err != nil {
			if !isUniqueViolation(err) {
				return err
			}
			// 同時作成でuniqueに負けた側は読み直す
			return tx.Where("user_id = ?", userID).First(&cart).Error
		}

		cart = newCart
		return nil
	})

	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

func (r *CartGormRepository) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// 指定カートの明細を全削除
func (r *CartGormRepository) Clear(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&model.CartItem{}).Error
}

func (r *CartGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}

	return items, nil
}

// 同一商品は数量加算
func (r *CartGormRepository) UpsertByCartAndProduct(ctx context.Context, item model.CartItem) error {
	if item.Quantity <= 0 {
		return errors.New("invalid quantity")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockLine(tx, item.CartID, item.ProductID)
		if err == nil {
			res := tx.Model(&model.CartItem{}).
				Where("id = ?", existing.ID).
				Updates(mergeUpdates(existing, item))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repo.ErrNotFound
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		item.ID = 0
		return tx.Create(&item).Error
	})
}

// 既存行への足し込み。商品名が空の行はカタログに無い商品なので、名前と画像は今の値を残す
func mergeUpdates(existing, item model.CartItem) map[string]interface{} {
	updates := map[string]interface{}{
		"quantity":   existing.Quantity + item.Quantity,
		"unit_price": item.UnitPrice,
	}
	if item.ProductName != "" {
		updates["product_name"] = item.ProductName
		updates["product_image"] = item.ProductImage
	}
	return updates
}

// 同一商品は数量を上書き
func (r *CartGormRepository) SetByCartAndProduct(ctx context.Context, item model.CartItem) (model.CartItem, error) {
	if item.Quantity <= 0 {
		return model.CartItem{}, errors.New("invalid quantity")
	}

	var saved model.CartItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockLine(tx, item.CartID, item.ProductID)
		if err == nil {
			if err := tx.Model(&model.CartItem{}).
				Where("id = ?", existing.ID).
				Update("quantity", item.Quantity).Error; err != nil {
				return err
			}
			return tx.First(&saved, existing.ID).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		item.ID = 0
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		saved = item
		return nil
	})
	if err != nil {
		return model.CartItem{}, err
	}
	return saved, nil
}

func (r *CartGormRepository) CreateBulk(ctx context.Context, items []model.CartItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// 明細の数量を更新
func (r *CartGormRepository) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ?", cartItemID).
		Update("quantity", qty)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) DeleteByID(ctx context.Context, cartItemID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.CartItem{}, cartItemID)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	var item model.CartItem

	err := r.db.WithContext(ctx).
		Where("id = ?", cartItemID).
		First(&item).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CartItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CartItem{}, err
	}
	return item, nil
}

// cartItemが、そのuserのカートに属しているかを判定
func (r *CartGormRepository) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Table("cart_items").
		Joins("join carts on carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ?", cartItemID, userID).
		Count(&count).Error

	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func lockLine(tx *gorm.DB, cartID int64, productID string) (model.CartItem, error) {
	var item model.CartItem
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	return item, err
}
