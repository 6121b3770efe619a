package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	auditRepo   repo.AuditLogRepository
}

// DI
func NewProductUsecase(productRepo repo.ProductRepository, auditRepo repo.AuditLogRepository) *ProductUsecase {
	return &ProductUsecase{
		productRepo: productRepo,
		auditRepo:   auditRepo,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page   int
	Limit  int
	Q      string
	ShopID string
	Sort   string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:   in.Page,
		Limit:  in.Limit,
		Q:      strings.TrimSpace(in.Q),
		ShopID: strings.TrimSpace(in.ShopID),
		Sort:   in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// 非公開の商品は404
func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID string) (model.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || len(productID) > maxProductIDLen {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return p, nil
}

type AdminProductInput struct {
	ID          string
	ShopID      string
	Name        string
	Description string
	Image       string
	Price       decimal.Decimal
	IsActive    bool
}

func (in AdminProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name required")
	}
	if in.Price.IsNegative() {
		return NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" || len(in.ID) > maxProductIDLen {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := in.validate(); err != nil {
		return model.Product{}, err
	}

	if _, err := u.productRepo.FindByID(ctx, in.ID); err == nil {
		return model.Product{}, NewHTTPError(http.StatusConflict, "product already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := time.Now()
	p, err := u.productRepo.Create(ctx, model.Product{
		ID:          in.ID,
		ShopID:      strings.TrimSpace(in.ShopID),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Image:       in.Image,
		Price:       in.Price.Round(2),
		IsActive:    in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Product{}, NewHTTPError(http.StatusConflict, "product already exists")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.audit(ctx, adminUserID, model.AuditActionCreateProduct, p.ID, nil, &p); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, in AdminProductInput) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.ID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := in.validate(); err != nil {
		return err
	}

	before, err := u.productRepo.FindByID(ctx, in.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	after := before
	after.ShopID = strings.TrimSpace(in.ShopID)
	after.Name = strings.TrimSpace(in.Name)
	after.Description = in.Description
	after.Image = in.Image
	after.Price = in.Price.Round(2)
	after.IsActive = in.IsActive
	after.UpdatedAt = time.Now()

	err = u.productRepo.Update(ctx, after)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.audit(ctx, adminUserID, model.AuditActionUpdateProduct, in.ID, &before, &after)
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID string) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(productID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.audit(ctx, adminUserID, model.AuditActionDeleteProduct, productID, nil, nil)
}

// 「誰が」「何を」「どの対象に」「どう変えたか」を残す
func (u *ProductUsecase) audit(ctx context.Context, actor int64, action model.AuditAction, productID string, before, after *model.Product) error {
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   productJSON(before),
		AfterJSON:    productJSON(after),
		CreatedAt:    time.Now(),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func productJSON(p *model.Product) string {
	if p == nil {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}
