package cart

type ActionType string

const (
	ActionAddItem        ActionType = "ADD_ITEM"
	ActionRemoveItem     ActionType = "REMOVE_ITEM"
	ActionUpdateQuantity ActionType = "UPDATE_QUANTITY"
	ActionClearCart      ActionType = "CLEAR_CART"
	// ローカル保存やサーバーのカートで丸ごと置き換える
	ActionHydrate ActionType = "HYDRATE"
)

// 誰が起こした変更か
type Origin string

const (
	OriginUser    Origin = "user"
	OriginStorage Origin = "storage"
	OriginRemote  Origin = "remote"
)

type Action struct {
	Type   ActionType
	Origin Origin

	Product  Product    // ADD_ITEM
	ID       string     // REMOVE_ITEM / UPDATE_QUANTITY
	Quantity int64      // UPDATE_QUANTITY（絶対値）
	Items    []LineItem // HYDRATE
}

func AddItem(p Product) Action {
	return Action{Type: ActionAddItem, Origin: OriginUser, Product: p}
}

func RemoveItem(id string) Action {
	return Action{Type: ActionRemoveItem, Origin: OriginUser, ID: id}
}

func UpdateQuantity(id string, quantity int64) Action {
	return Action{Type: ActionUpdateQuantity, Origin: OriginUser, ID: id, Quantity: quantity}
}

func ClearCart() Action {
	return Action{Type: ActionClearCart, Origin: OriginUser}
}

func Hydrate(items []LineItem, origin Origin) Action {
	return Action{Type: ActionHydrate, Origin: origin, Items: items}
}

// Reduce は (State, Action) → State の純粋関数。引数のStateは変更しない。
func Reduce(s State, a Action) State {
	switch a.Type {
	case ActionAddItem:
		//同じIDなら数量+1
		if i := s.indexOf(a.Product.ID); i >= 0 {
			items := cloneItems(s.Items)
			items[i].Quantity++
			return State{Items: items}
		}
		price := a.Product.Price
		if price < 0 {
			price = 0
		}
		items := append(cloneItems(s.Items), LineItem{
			ID:       a.Product.ID,
			Name:     a.Product.Name,
			Image:    a.Product.Image,
			Price:    price,
			Quantity: 1,
		})
		return State{Items: items}

	case ActionRemoveItem:
		i := s.indexOf(a.ID)
		if i < 0 {
			return s
		}
		items := make([]LineItem, 0, len(s.Items)-1)
		items = append(items, s.Items[:i]...)
		items = append(items, s.Items[i+1:]...)
		return State{Items: items}

	case ActionUpdateQuantity:
		//0以下は削除と同じ
		if a.Quantity <= 0 {
			return Reduce(s, Action{Type: ActionRemoveItem, Origin: a.Origin, ID: a.ID})
		}
		i := s.indexOf(a.ID)
		if i < 0 {
			return s
		}
		items := cloneItems(s.Items)
		items[i].Quantity = a.Quantity
		return State{Items: items}

	case ActionClearCart:
		return State{Items: []LineItem{}}

	case ActionHydrate:
		return State{Items: Normalize(a.Items)}
	}
	return s
}
