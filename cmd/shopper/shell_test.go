package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"localshop/internal/client/cart"
	"localshop/internal/client/cartapi"
	"localshop/internal/client/cartsync"
	"localshop/internal/client/session"
	"localshop/internal/client/storage"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog map[string]cartapi.Product

func (c stubCatalog) GetProduct(_ context.Context, id string) (cartapi.Product, error) {
	p, ok := c[id]
	if !ok {
		return cartapi.Product{}, &cartapi.StatusError{Status: 404, Message: "product not found"}
	}
	return p, nil
}

// stubAPI はログインとカートAPIをまとめて返す
type stubAPI struct {
	mu       sync.Mutex
	cart     cartapi.Cart
	replaced [][]cartapi.Line
	token    string
}

func (a *stubAPI) Login(_ context.Context, email, _ string) (string, error) {
	return a.token, nil
}

func (a *stubAPI) Logout(context.Context, string) error { return nil }

func (a *stubAPI) GetCart(context.Context, string) (cartapi.Cart, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cart, nil
}

func (a *stubAPI) MergeCart(context.Context, string, []cartapi.Line) (cartapi.Cart, error) {
	return a.cart, nil
}

func (a *stubAPI) ReplaceCart(_ context.Context, _ string, lines []cartapi.Line) (cartapi.Cart, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replaced = append(a.replaced, lines)
	return a.cart, nil
}

func newTestShell(t *testing.T) (*shell, *bytes.Buffer, *stubAPI) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "3", "email": "carol@example.com",
	}).SignedString([]byte("x"))
	require.NoError(t, err)

	api := &stubAPI{token: token, cart: cartapi.Cart{Items: []cartapi.RemoteItem{}}}
	broker := session.NewBroker()
	guest := storage.NewGuestCart(storage.NewFileSlot(afero.NewMemMapFs(), "/cart"), logger)

	svc := cartsync.NewService(cart.NewStore(), guest, api, broker, cartsync.Options{Debounce: time.Hour, Logger: logger})
	t.Cleanup(svc.Close)
	svc.Start(context.Background())

	out := &bytes.Buffer{}
	return &shell{
		svc:    svc,
		auth:   session.NewAuthenticator(api, broker, logger),
		broker: broker,
		products: stubCatalog{
			"P1": {ID: "P1", Name: "Miel", Price: decimal.RequireFromString("10.00")},
		},
		out: out,
	}, out, api
}

func TestShell_AddShowQty(t *testing.T) {
	sh, out, _ := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.exec(ctx, "add P1"))
	require.NoError(t, sh.exec(ctx, "add P1"))
	assert.Equal(t, int64(2), sh.svc.Items()[0].Quantity)
	assert.Contains(t, out.String(), "total: 20.00")

	require.NoError(t, sh.exec(ctx, "qty P1 5"))
	assert.Equal(t, 50.0, sh.svc.Total())

	require.NoError(t, sh.exec(ctx, "qty P1 0"))
	assert.Empty(t, sh.svc.Items())
	assert.Contains(t, out.String(), "(cart is empty)")
}

func TestShell_Errors(t *testing.T) {
	sh, _, _ := newTestShell(t)
	ctx := context.Background()

	assert.ErrorContains(t, sh.exec(ctx, "add NOPE"), `no such product "NOPE"`)
	assert.ErrorContains(t, sh.exec(ctx, "qty P1 x"), "quantity must be a number")
	assert.ErrorContains(t, sh.exec(ctx, "add"), "usage")
	assert.ErrorContains(t, sh.exec(ctx, "dance"), "unknown command")
	assert.NoError(t, sh.exec(ctx, "   "))
	assert.ErrorIs(t, sh.exec(ctx, "quit"), errQuit)
}

func TestShell_LoginEditFlushLogout(t *testing.T) {
	sh, out, api := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.exec(ctx, "login carol@example.com pw"))
	assert.Contains(t, out.String(), "signed in as carol@example.com (sync: synced)")

	require.NoError(t, sh.exec(ctx, "add P1"))
	require.NoError(t, sh.exec(ctx, "flush"))
	assert.Contains(t, out.String(), "uploaded")

	api.mu.Lock()
	require.Len(t, api.replaced, 1)
	assert.Equal(t, "P1", api.replaced[0][0].ProductID)
	api.mu.Unlock()

	require.NoError(t, sh.exec(ctx, "logout"))
	require.NoError(t, sh.exec(ctx, "status"))
	assert.Contains(t, out.String(), "user: guest")
	assert.Contains(t, out.String(), "sync: idle")
}

func TestShell_RunStopsOnQuit(t *testing.T) {
	sh, out, _ := newTestShell(t)

	err := sh.run(context.Background(), strings.NewReader("help\nadd P1\nquit\nadd P1\n"))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "commands:")
	assert.Equal(t, int64(1), sh.svc.Items()[0].Quantity)
}
