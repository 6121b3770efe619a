package cart_test

import (
	"math/rand"
	"sync"
	"testing"

	"localshop/internal/client/cart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var miel = cart.Product{ID: "P1", Name: "Miel", Image: "/img/p1.jpg", Price: 10}

// 同じ商品を2回追加 → 1行で数量2
func TestReduce_AddTwice_IncrementsQuantity(t *testing.T) {
	s := cart.State{}
	s = cart.Reduce(s, cart.AddItem(miel))
	s = cart.Reduce(s, cart.AddItem(miel))

	require.Len(t, s.Items, 1)
	assert.Equal(t, int64(2), s.Items[0].Quantity)
	assert.Equal(t, "Miel", s.Items[0].Name)
	assert.Equal(t, 10.0, s.Items[0].Price)
}

// 欠けた項目は空のまま追加される
func TestReduce_AddItem_BlankFields(t *testing.T) {
	s := cart.Reduce(cart.State{}, cart.AddItem(cart.Product{ID: "X"}))
	require.Len(t, s.Items, 1)
	assert.Equal(t, "", s.Items[0].Name)
	assert.Equal(t, 0.0, s.Items[0].Price)
	assert.Equal(t, int64(1), s.Items[0].Quantity)
}

// 0以下への更新は削除
func TestReduce_UpdateQuantity_NonPositiveRemoves(t *testing.T) {
	base := cart.State{Items: []cart.LineItem{
		{ID: "P1", Price: 10, Quantity: 2},
		{ID: "P2", Price: 4.5, Quantity: 1},
	}}

	for _, q := range []int64{0, -3} {
		s := cart.Reduce(base, cart.UpdateQuantity("P1", q))
		require.Len(t, s.Items, 1)
		assert.Equal(t, "P2", s.Items[0].ID)
	}
}

func TestReduce_UpdateQuantity_AbsoluteSet(t *testing.T) {
	base := cart.State{Items: []cart.LineItem{{ID: "P1", Quantity: 2}}}

	s := cart.Reduce(base, cart.UpdateQuantity("P1", 7))
	assert.Equal(t, int64(7), s.Items[0].Quantity)

	// 無いIDは何もしない
	s = cart.Reduce(base, cart.UpdateQuantity("NOPE", 7))
	assert.Equal(t, base, s)
}

func TestReduce_RemoveAndClear(t *testing.T) {
	base := cart.State{Items: []cart.LineItem{{ID: "P1", Quantity: 1}, {ID: "P2", Quantity: 1}, {ID: "P3", Quantity: 1}}}

	s := cart.Reduce(base, cart.RemoveItem("P2"))
	require.Len(t, s.Items, 2)
	assert.Equal(t, "P1", s.Items[0].ID)
	assert.Equal(t, "P3", s.Items[1].ID)

	assert.Equal(t, base, cart.Reduce(base, cart.RemoveItem("NOPE")))

	s = cart.Reduce(base, cart.ClearCart())
	assert.Empty(t, s.Items)
}

// 入力のStateは変更されない
func TestReduce_DoesNotMutateInput(t *testing.T) {
	items := []cart.LineItem{{ID: "P1", Quantity: 1}, {ID: "P2", Quantity: 5}}
	base := cart.State{Items: items}

	_ = cart.Reduce(base, cart.AddItem(cart.Product{ID: "P1"}))
	_ = cart.Reduce(base, cart.UpdateQuantity("P2", 9))
	_ = cart.Reduce(base, cart.RemoveItem("P1"))

	assert.Equal(t, int64(1), items[0].Quantity)
	assert.Equal(t, int64(5), items[1].Quantity)
	assert.Len(t, items, 2)
}

func TestReduce_HydrateNormalizes(t *testing.T) {
	s := cart.Reduce(cart.State{Items: []cart.LineItem{{ID: "OLD", Quantity: 1}}}, cart.Hydrate([]cart.LineItem{
		{ID: "P1", Quantity: 1, Price: 10},
		{ID: " ", Quantity: 1},
		{ID: "P2", Quantity: 0},
		{ID: "P1", Quantity: 2, Price: 10},
		{ID: "P3", Quantity: 1, Price: -1},
	}, cart.OriginRemote))

	require.Len(t, s.Items, 2)
	assert.Equal(t, "P1", s.Items[0].ID)
	assert.Equal(t, int64(3), s.Items[0].Quantity)
	assert.Equal(t, "P3", s.Items[1].ID)
	assert.Equal(t, 0.0, s.Items[1].Price)
}

// 合計 = Σ 単価 × 数量
func TestState_Total(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for n := 0; n < 200; n++ {
		var s cart.State
		want := 0.0
		lines := rng.Intn(8)
		for i := 0; i < lines; i++ {
			price := float64(rng.Intn(100000)) / 100
			qty := int64(rng.Intn(9) + 1)
			s.Items = append(s.Items, cart.LineItem{ID: string(rune('A' + i)), Price: price, Quantity: qty})
			want += price * float64(qty)
		}
		assert.InDelta(t, want, s.Total(), 1e-9)
	}

	assert.Equal(t, 0.0, cart.State{}.Total())
	// 0.1 + 0.2 のずれが出ない
	assert.Equal(t, 0.3, cart.State{Items: []cart.LineItem{{ID: "a", Price: 0.1, Quantity: 1}, {ID: "b", Price: 0.2, Quantity: 1}}}.Total())
}

// =====================
// Store
// =====================

func TestStore_ListenersSeeDispatchOrder(t *testing.T) {
	store := cart.NewStore()

	var got []cart.ActionType
	var quantities []int64
	unsubscribe := store.Subscribe(func(s cart.State, a cart.Action) {
		got = append(got, a.Type)
		if len(s.Items) > 0 {
			quantities = append(quantities, s.Items[0].Quantity)
		}
	})

	store.AddItem(miel)
	store.AddItem(miel)
	store.UpdateQuantity("P1", 5)
	store.ClearCart()

	assert.Equal(t, []cart.ActionType{
		cart.ActionAddItem, cart.ActionAddItem, cart.ActionUpdateQuantity, cart.ActionClearCart,
	}, got)
	assert.Equal(t, []int64{1, 2, 5}, quantities)

	unsubscribe()
	unsubscribe()
	store.AddItem(miel)
	assert.Len(t, got, 4)
}

func TestStore_ItemsReturnsCopy(t *testing.T) {
	store := cart.NewStore()
	store.AddItem(miel)

	items := store.Items()
	items[0].Quantity = 99

	assert.Equal(t, int64(1), store.Items()[0].Quantity)
	assert.Equal(t, 10.0, store.Total())
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	store := cart.NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.AddItem(miel)
		}()
	}
	wg.Wait()

	require.Len(t, store.Items(), 1)
	assert.Equal(t, int64(50), store.Items()[0].Quantity)
	assert.Equal(t, 500.0, store.Total())
}
