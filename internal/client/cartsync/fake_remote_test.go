package cartsync_test

import (
	"context"
	"sync"

	"localshop/internal/client/cartapi"
	"localshop/internal/client/cartsync"
)

type catalogEntry struct {
	name  string
	image string
	price float64
}

// fakeRemote はサーバのマージ/置き換えの規則をメモリ上で再現する
type fakeRemote struct {
	mu sync.Mutex

	catalog map[string]catalogEntry
	rows    []cartapi.RemoteItem
	nextID  int64

	merges   [][]cartapi.Line
	replaces [][]cartapi.Line
	gets     int

	mergeErrs   []error
	getErrs     []error
	replaceErrs []error

	// nilでなければGetCartはcloseされるかctxが切れるまで待つ
	getBlock chan struct{}
}

var _ cartsync.RemoteCart = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{catalog: map[string]catalogEntry{}}
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeRemote) GetCart(ctx context.Context, token string) (cartapi.Cart, error) {
	if token == "" {
		return cartapi.Cart{}, cartapi.ErrUnauthenticated
	}
	f.mu.Lock()
	f.gets++
	block := f.getBlock
	err := pop(&f.getErrs)
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return cartapi.Cart{}, ctx.Err()
		}
	}
	if err != nil {
		return cartapi.Cart{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked(), nil
}

func (f *fakeRemote) MergeCart(ctx context.Context, token string, lines []cartapi.Line) (cartapi.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.merges = append(f.merges, lines)
	if err := pop(&f.mergeErrs); err != nil {
		return cartapi.Cart{}, err
	}

	for _, l := range lines {
		row := f.rowLocked(l)
		if i := f.indexLocked(l.ProductID); i >= 0 {
			f.rows[i].Quantity += row.Quantity
			f.rows[i].UnitPrice = row.UnitPrice
			continue
		}
		f.rows = append(f.rows, row)
	}
	return f.snapshotLocked(), nil
}

func (f *fakeRemote) ReplaceCart(ctx context.Context, token string, lines []cartapi.Line) (cartapi.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.replaces = append(f.replaces, lines)
	if err := pop(&f.replaceErrs); err != nil {
		return cartapi.Cart{}, err
	}

	f.rows = nil
	for _, l := range lines {
		f.rows = append(f.rows, f.rowLocked(l))
	}
	return f.snapshotLocked(), nil
}

func (f *fakeRemote) rowLocked(l cartapi.Line) cartapi.RemoteItem {
	qty := l.Quantity
	if qty < 1 {
		qty = 1
	}
	f.nextID++
	row := cartapi.RemoteItem{ID: f.nextID, ProductID: l.ProductID, Quantity: qty}
	if p, ok := f.catalog[l.ProductID]; ok {
		row.UnitPrice, row.ProductName, row.ProductImage = p.price, p.name, p.image
	} else if l.UnitPrice != nil {
		row.UnitPrice = *l.UnitPrice
	}
	return row
}

func (f *fakeRemote) indexLocked(productID string) int {
	for i, r := range f.rows {
		if r.ProductID == productID {
			return i
		}
	}
	return -1
}

func (f *fakeRemote) snapshotLocked() cartapi.Cart {
	out := cartapi.Cart{Items: make([]cartapi.RemoteItem, len(f.rows))}
	copy(out.Items, f.rows)
	for _, r := range f.rows {
		out.Total += r.UnitPrice * float64(r.Quantity)
	}
	return out
}

func (f *fakeRemote) counts() (merges, gets, replaces int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.merges), f.gets, len(f.replaces)
}

func (f *fakeRemote) lastReplace() []cartapi.Line {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replaces) == 0 {
		return nil
	}
	return f.replaces[len(f.replaces)-1]
}

func (f *fakeRemote) row(productID string) (cartapi.RemoteItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexLocked(productID); i >= 0 {
		return f.rows[i], true
	}
	return cartapi.RemoteItem{}, false
}
