package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

// 追加時点の商品スナップショット
type Product struct {
	ID    string
	Name  string
	Image string
	Price float64
}

// カートの1行。ゲストカートの保存形式もこの形
type LineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Image    string  `json:"image"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// 小計 = 単価 × 数量
func (i LineItem) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Price).Mul(decimal.NewFromInt(i.Quantity))
}

// State はカートの中身。Itemsは追加順で、IDは重複しない。
type State struct {
	Items []LineItem
}

// 合計は毎回計算する（保存しない）
func (s State) Total() float64 {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Subtotal())
	}
	return total.InexactFloat64()
}

func (s State) indexOf(id string) int {
	for i, it := range s.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// 同じIDは数量を合算、IDが空・数量1未満は捨てる
func Normalize(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" || it.Quantity < 1 {
			continue
		}
		if it.Price < 0 {
			it.Price = 0
		}
		if i, ok := index[it.ID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
