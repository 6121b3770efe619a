package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"localshop/internal/client/cart"
)

// ゲストカートの保存キー（固定）
const GuestCartKey = "localshop_cart"

// GuestCart はゲストカートの読み書き。
// 読めないデータは空カート扱い、書き込み失敗はログだけ。
type GuestCart struct {
	slot   Slot
	logger *slog.Logger
}

func NewGuestCart(slot Slot, logger *slog.Logger) *GuestCart {
	return &GuestCart{slot: slot, logger: logger}
}

// 保存形式。idは文字列でも数値でも読む
type storedItem struct {
	ID       json.RawMessage `json:"id"`
	Name     string          `json:"name"`
	Image    string          `json:"image"`
	Price    float64         `json:"price"`
	Quantity float64         `json:"quantity"`
}

func (g *GuestCart) Load(ctx context.Context) []cart.LineItem {
	b, err := g.slot.Get(ctx, GuestCartKey)
	if errors.Is(err, ErrNotFound) {
		return []cart.LineItem{}
	}
	if err != nil {
		g.logger.WarnContext(ctx, "guest cart read failed", "err", err)
		return []cart.LineItem{}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		g.logger.WarnContext(ctx, "guest cart is not a JSON array, ignoring", "err", err)
		return []cart.LineItem{}
	}

	items := make([]cart.LineItem, 0, len(raw))
	for _, r := range raw {
		it, ok := decodeItem(r)
		if !ok {
			continue
		}
		items = append(items, it)
	}
	return cart.Normalize(items)
}

func decodeItem(r json.RawMessage) (cart.LineItem, bool) {
	var s storedItem
	if err := json.Unmarshal(r, &s); err != nil {
		return cart.LineItem{}, false
	}
	id, ok := decodeID(s.ID)
	if !ok {
		return cart.LineItem{}, false
	}
	if s.Quantity < 1 || s.Quantity != math.Trunc(s.Quantity) {
		return cart.LineItem{}, false
	}
	if s.Price < 0 || math.IsNaN(s.Price) {
		return cart.LineItem{}, false
	}
	return cart.LineItem{
		ID:       id,
		Name:     s.Name,
		Image:    s.Image,
		Price:    s.Price,
		Quantity: int64(s.Quantity),
	}, true
}

func decodeID(r json.RawMessage) (string, bool) {
	if len(r) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(r, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), true
		}
	}
	return "", false
}

// Save は失敗しても返さない
func (g *GuestCart) Save(ctx context.Context, items []cart.LineItem) {
	if items == nil {
		items = []cart.LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		g.logger.WarnContext(ctx, "guest cart marshal failed", "err", err)
		return
	}
	if err := g.slot.Put(ctx, GuestCartKey, b); err != nil {
		g.logger.WarnContext(ctx, "guest cart write failed", "err", err)
	}
}

// マージ済みのゲストカートを消す
func (g *GuestCart) Clear(ctx context.Context) {
	if err := g.slot.Delete(ctx, GuestCartKey); err != nil {
		g.logger.WarnContext(ctx, "guest cart clear failed", "err", err)
	}
}
