package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"localshop/internal/domain/model"
	repo "localshop/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const maxProductIDLen = 64

// CartUsecase は /cart の業務ロジックです。
// マージと置き換えは1トランザクションで行い、監査ログも同じTxで残す。
type CartUsecase struct {
	tx        repo.TransactionManager
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	cache     repo.CartCache
	logger    *slog.Logger

	sfg singleflight.Group
}

func NewCartUsecase(
	tx repo.TransactionManager,
	carts repo.CartRepository,
	cartItems repo.CartItemRepository,
	cache repo.CartCache,
	logger *slog.Logger,
) *CartUsecase {
	return &CartUsecase{
		tx:        tx,
		carts:     carts,
		cartItems: cartItems,
		cache:     cache,
		logger:    logger,
	}
}

type CartItemResponse struct {
	ID           int64   `json:"id"`
	ProductID    string  `json:"product_id"`
	Quantity     int64   `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total float64            `json:"total"`
}

type CartItemOutput struct {
	Item CartItemResponse `json:"item"`
}

// クライアントから届く1行。unit_priceはカタログに無い商品のときだけ使う
type CartLineInput struct {
	ProductID string
	Quantity  int64
	UnitPrice *float64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// GetCart はカート取得。カートが無ければ空を返す（作らない）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	// 同じユーザーの同時ミスは1回のDB読み込みにまとめる
	v, err, _ := u.sfg.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		// 待っている他のリクエストがあるので、最初の呼び出し元のキャンセルは引き継がない
		ctx := context.WithoutCancel(ctx)

		items, err := u.cache.Get(ctx, userID)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, repo.ErrCacheMiss) {
			u.logger.WarnContext(ctx, "cart cache get failed", "user_id", userID, "err", err)
		}

		// DBより先に世代を取る。読み込み後に書き込みがあればSetは捨てられる
		version, verErr := u.cache.Version(ctx, userID)
		if verErr != nil {
			u.logger.WarnContext(ctx, "cart cache version failed", "user_id", userID, "err", verErr)
		}

		cart, err := u.carts.FindByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return []model.CartItem{}, nil
		}
		if err != nil {
			return nil, err
		}

		items, err = u.cartItems.ListByCartID(ctx, cart.ID)
		if err != nil {
			return nil, err
		}

		if verErr == nil {
			u.fill(ctx, userID, version, items)
		}
		return items, nil
	})
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items, _ := v.([]model.CartItem)
	return buildCartResponse(items), nil
}

// MergeCart はゲストカートをサーバーカートへ足し込む（同一商品は数量加算）。
func (u *CartUsecase) MergeCart(ctx context.Context, userID int64, in []CartLineInput) (CartResponse, error) {
	return u.writeLines(ctx, userID, in, model.AuditActionCartMerge)
}

// ReplaceCart はサーバーカートの明細を全削除して、届いた明細で作り直す。
func (u *CartUsecase) ReplaceCart(ctx context.Context, userID int64, in []CartLineInput) (CartResponse, error) {
	return u.writeLines(ctx, userID, in, model.AuditActionCartReplace)
}

func (u *CartUsecase) writeLines(ctx context.Context, userID int64, in []CartLineInput, action model.AuditAction) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	lines, err := normalizeLines(in)
	if err != nil {
		return CartResponse{}, err
	}

	var after []model.CartItem
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}

		before, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return err
		}

		catalog, err := lookupCatalog(ctx, r.Products(), lines)
		if err != nil {
			return err
		}

		if action == model.AuditActionCartReplace {
			if err := r.Carts().Clear(ctx, cart.ID); err != nil {
				return err
			}
			rows := make([]model.CartItem, 0, len(lines))
			for _, ln := range lines {
				rows = append(rows, priceLine(cart.ID, ln, catalog))
			}
			if err := r.CartItems().CreateBulk(ctx, rows); err != nil {
				return err
			}
		} else {
			for _, ln := range lines {
				if err := r.CartItems().UpsertByCartAndProduct(ctx, priceLine(cart.ID, ln, catalog)); err != nil {
					return err
				}
			}
		}

		after, err = r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return err
		}

		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  userID,
			Action:       action,
			ResourceType: model.AuditResourceCart,
			ResourceID:   strconv.FormatInt(cart.ID, 10),
			BeforeJSON:   auditJSON(before),
			AfterJSON:    auditJSON(after),
			CreatedAt:    time.Now(),
		})
	})
	if err != nil {
		u.logger.ErrorContext(ctx, "cart write failed", "user_id", userID, "action", action, "err", err)
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.invalidate(ctx, userID)
	return buildCartResponse(after), nil
}

// SetItem は1商品の数量を絶対値で設定する（無ければ追加）。
func (u *CartUsecase) SetItem(ctx context.Context, userID int64, in CartLineInput) (CartItemOutput, error) {
	if userID <= 0 {
		return CartItemOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	lines, err := normalizeLines([]CartLineInput{{ProductID: in.ProductID, Quantity: in.Quantity}})
	if err != nil {
		return CartItemOutput{}, err
	}
	ln := lines[0]

	var saved model.CartItem
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateByUserID(ctx, userID)
		if err != nil {
			return err
		}
		catalog, err := lookupCatalog(ctx, r.Products(), lines)
		if err != nil {
			return err
		}
		saved, err = r.CartItems().SetByCartAndProduct(ctx, priceLine(cart.ID, ln, catalog))
		return err
	})
	if err != nil {
		return CartItemOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.invalidate(ctx, userID)
	return CartItemOutput{Item: toCartItemResponse(saved)}, nil
}

// 数量変更（所有チェックあり）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, cartItemID int64, in UpdateCartItemInput) (CartItemOutput, error) {
	if userID <= 0 {
		return CartItemOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartItemOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Quantity < 1 {
		return CartItemOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	if err := u.checkOwner(ctx, userID, cartItemID); err != nil {
		return CartItemOutput{}, err
	}

	if err := u.cartItems.UpdateQuantity(ctx, cartItemID, in.Quantity); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartItemOutput{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartItemOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	u.invalidate(ctx, userID)

	item, err := u.cartItems.FindByID(ctx, cartItemID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartItemOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CartItemOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return CartItemOutput{Item: toCartItemResponse(item)}, nil
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := u.checkOwner(ctx, userID, cartItemID); err != nil {
		return err
	}

	if err := u.cartItems.DeleteByID(ctx, cartItemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.invalidate(ctx, userID)
	return nil
}

// 他人の明細は存在しない扱い（404）
func (u *CartUsecase) checkOwner(ctx context.Context, userID int64, cartItemID int64) error {
	owned, err := u.cartItems.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !owned {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	return nil
}

func (u *CartUsecase) fill(ctx context.Context, userID int64, version int64, items []model.CartItem) {
	err := u.cache.Set(ctx, userID, version, items)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrCacheStale):
		u.logger.DebugContext(ctx, "cart cache fill skipped, newer write", "user_id", userID)
	default:
		u.logger.WarnContext(ctx, "cart cache set failed", "user_id", userID, "err", err)
	}
}

func (u *CartUsecase) invalidate(ctx context.Context, userID int64) {
	if err := u.cache.Delete(ctx, userID); err != nil {
		u.logger.WarnContext(ctx, "cart cache delete failed", "user_id", userID, "err", err)
	}
}

// 数量1未満は1扱い。同じ商品IDは数量を合算して1行にまとめる（順序は最初の出現順）。
func normalizeLines(in []CartLineInput) ([]CartLineInput, error) {
	out := make([]CartLineInput, 0, len(in))
	index := make(map[string]int, len(in))

	for _, ln := range in {
		id := strings.TrimSpace(ln.ProductID)
		if id == "" {
			return nil, NewHTTPError(http.StatusBadRequest, "missing product_id")
		}
		if len(id) > maxProductIDLen {
			return nil, NewHTTPError(http.StatusBadRequest, "invalid product_id")
		}
		qty := ln.Quantity
		if qty < 1 {
			qty = 1
		}

		if i, ok := index[id]; ok {
			out[i].Quantity += qty
			if out[i].UnitPrice == nil {
				out[i].UnitPrice = ln.UnitPrice
			}
			continue
		}
		index[id] = len(out)
		out = append(out, CartLineInput{ProductID: id, Quantity: qty, UnitPrice: ln.UnitPrice})
	}
	return out, nil
}

func lookupCatalog(ctx context.Context, products repo.ProductRepository, lines []CartLineInput) (map[string]model.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, ln := range lines {
		ids = append(ids, ln.ProductID)
	}

	found, err := products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	catalog := make(map[string]model.Product, len(found))
	for _, p := range found {
		catalog[p.ID] = p
	}
	return catalog, nil
}

// カタログにあれば価格・名前・画像はカタログの値。無ければクライアントの単価（無ければ0）。
func priceLine(cartID int64, ln CartLineInput, catalog map[string]model.Product) model.CartItem {
	item := model.CartItem{
		CartID:    cartID,
		ProductID: ln.ProductID,
		Quantity:  ln.Quantity,
		UnitPrice: decimal.Zero,
	}

	if p, ok := catalog[ln.ProductID]; ok {
		item.UnitPrice = p.Price
		item.ProductName = p.Name
		item.ProductImage = p.Image
		return item
	}

	if ln.UnitPrice != nil && *ln.UnitPrice > 0 {
		item.UnitPrice = decimal.NewFromFloat(*ln.UnitPrice).Round(2)
	}
	return item
}

func buildCartResponse(items []model.CartItem) CartResponse {
	resp := CartResponse{Items: make([]CartItemResponse, 0, len(items))}

	total := decimal.Zero
	for _, it := range items {
		resp.Items = append(resp.Items, toCartItemResponse(it))
		total = total.Add(it.Subtotal())
	}
	resp.Total = total.InexactFloat64()
	return resp
}

func toCartItemResponse(it model.CartItem) CartItemResponse {
	return CartItemResponse{
		ID:           it.ID,
		ProductID:    it.ProductID,
		Quantity:     it.Quantity,
		UnitPrice:    it.UnitPrice.InexactFloat64(),
		ProductName:  it.ProductName,
		ProductImage: it.ProductImage,
	}
}

type auditLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

func auditJSON(items []model.CartItem) string {
	lines := make([]auditLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, auditLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "[]"
	}
	return string(b)
}
